// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package doctor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// LinkState is the lifecycle state of one link.
type LinkState int

const (
	LinkDisconnected LinkState = iota
	LinkConnecting
	LinkConnected
	LinkError
)

func (state LinkState) String() string {
	switch state {
	case LinkDisconnected:
		return "disconnected"
	case LinkConnecting:
		return "connecting"
	case LinkConnected:
		return "connected"
	case LinkError:
		return "error"
	default:
		return fmt.Sprintf("LinkState(%d)", int(state))
	}
}

// LinkStatus is a link's state and, for LinkError, why.
type LinkStatus struct {
	State  LinkState
	Reason string
}

func (status LinkStatus) String() string {
	if status.State == LinkError && status.Reason != "" {
		return "error: " + status.Reason
	}
	return status.State.String()
}

type connectParams struct {
	endpoint     string
	credentials  Credentials
	autoPairHint string
}

// ConnectionManager drives the operator and node links through a Dialer
// and reports their status to a sink as events.
type ConnectionManager struct {
	dialer Dialer
	sink   EventHandler
	logger *slog.Logger

	// connectMutex serializes Connect, Reconnect, and Disconnect.
	connectMutex sync.Mutex

	mutex    sync.Mutex
	operator LinkStatus
	bridge   LinkStatus
	last     *connectParams
}

// NewConnectionManager returns a manager with both links disconnected.
func NewConnectionManager(dialer Dialer, sink EventHandler, logger *slog.Logger) *ConnectionManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &ConnectionManager{dialer: dialer, sink: sink, logger: logger}
}

// Status returns the state of both links.
func (manager *ConnectionManager) Status() (operator, bridge LinkStatus) {
	manager.mutex.Lock()
	defer manager.mutex.Unlock()
	return manager.operator, manager.bridge
}

// Connect brings up the operator link and then the node link. A node
// refused as unpaired is retried once after approving pairing requests
// from autoPairHint, when one is given.
//
// An operator failure returns ErrConnectFailed. A node failure returns
// ErrNodeRegistration with the operator link left up, so chat works
// without command execution.
func (manager *ConnectionManager) Connect(ctx context.Context, endpoint string, credentials Credentials, autoPairHint string) error {
	manager.connectMutex.Lock()
	defer manager.connectMutex.Unlock()
	return manager.connect(ctx, connectParams{endpoint: endpoint, credentials: credentials, autoPairHint: autoPairHint})
}

// Reconnect repeats the last Connect whose operator link succeeded.
func (manager *ConnectionManager) Reconnect(ctx context.Context) error {
	manager.connectMutex.Lock()
	defer manager.connectMutex.Unlock()
	manager.mutex.Lock()
	last := manager.last
	manager.mutex.Unlock()
	if last == nil {
		return ErrNoPriorConnection
	}
	return manager.connect(ctx, *last)
}

// Disconnect closes both links whatever their state.
func (manager *ConnectionManager) Disconnect(ctx context.Context) error {
	manager.connectMutex.Lock()
	defer manager.connectMutex.Unlock()
	err := manager.dialer.DisconnectAll(ctx)
	manager.setOperator(LinkStatus{State: LinkDisconnected})
	manager.setBridge(LinkStatus{State: LinkDisconnected})
	manager.sink.Handle(OperatorDisconnected{Reason: "disconnected"})
	manager.sink.Handle(BridgeDisconnected{Reason: "disconnected"})
	if err != nil {
		return fmt.Errorf("doctor: disconnect: %w", err)
	}
	manager.logger.Info("links disconnected")
	return nil
}

// Run forwards events from the dialer's links to the sink, tracking
// link drops, until ctx is done or raw is closed.
func (manager *ConnectionManager) Run(ctx context.Context, raw <-chan Event) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-raw:
			if !ok {
				return nil
			}
			manager.observe(event)
			manager.sink.Handle(event)
		}
	}
}

func (manager *ConnectionManager) observe(event Event) {
	switch event := event.(type) {
	case OperatorConnected:
		manager.setOperator(LinkStatus{State: LinkConnected})
	case OperatorDisconnected:
		manager.setOperator(LinkStatus{State: LinkDisconnected})
		manager.logger.Warn("operator link lost", "reason", event.Reason)
	case BridgeConnected:
		manager.setBridge(LinkStatus{State: LinkConnected})
	case BridgeDisconnected:
		manager.setBridge(LinkStatus{State: LinkDisconnected})
		manager.logger.Warn("node link lost", "reason", event.Reason)
	}
}

func (manager *ConnectionManager) connect(ctx context.Context, params connectParams) error {
	manager.setOperator(LinkStatus{State: LinkConnecting})
	if err := manager.dialer.ConnectOperator(ctx, params.endpoint, params.credentials); err != nil {
		manager.setOperator(LinkStatus{State: LinkError, Reason: err.Error()})
		manager.logger.Error("operator link failed", "endpoint", params.endpoint, "error", err)
		return fmt.Errorf("%w: %w", ErrConnectFailed, err)
	}
	manager.mutex.Lock()
	manager.operator = LinkStatus{State: LinkConnected}
	manager.last = &params
	manager.mutex.Unlock()
	manager.sink.Handle(OperatorConnected{})
	manager.logger.Info("operator link connected", "endpoint", params.endpoint)

	manager.setBridge(LinkStatus{State: LinkConnecting})
	err := manager.dialer.ConnectBridge(ctx, params.endpoint, params.credentials)
	if err != nil && errors.Is(err, ErrPairingRequired) && params.autoPairHint != "" {
		manager.logger.Info("node not paired, approving pairing", "host", params.autoPairHint)
		approved, pairErr := manager.dialer.ApprovePairing(ctx, params.autoPairHint)
		if pairErr != nil {
			err = fmt.Errorf("%w (auto-pair: %w)", err, pairErr)
		} else {
			manager.logger.Info("pairing approved", "host", params.autoPairHint, "approved", approved)
			err = manager.dialer.ConnectBridge(ctx, params.endpoint, params.credentials)
		}
	}
	if err != nil {
		manager.setBridge(LinkStatus{State: LinkError, Reason: err.Error()})
		manager.logger.Warn("node link failed, continuing without command execution", "error", err)
		return fmt.Errorf("%w: %w", ErrNodeRegistration, err)
	}
	manager.setBridge(LinkStatus{State: LinkConnected})
	manager.sink.Handle(BridgeConnected{})
	manager.logger.Info("node link connected", "endpoint", params.endpoint)
	return nil
}

func (manager *ConnectionManager) setOperator(status LinkStatus) {
	manager.mutex.Lock()
	manager.operator = status
	manager.mutex.Unlock()
}

func (manager *ConnectionManager) setBridge(status LinkStatus) {
	manager.mutex.Lock()
	manager.bridge = status
	manager.mutex.Unlock()
}
