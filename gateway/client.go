// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/clawpal/clawpal/doctor"
	"github.com/clawpal/clawpal/lib/clock"
	"github.com/clawpal/clawpal/lib/netutil"
	"github.com/clawpal/clawpal/lib/version"
)

// Defaults for Config fields left zero.
const (
	DefaultRequestTimeout    = 30 * time.Second
	DefaultChallengeTimeout  = 3 * time.Second
	DefaultUserPendingAfter  = 25 * time.Second
	DefaultMaxPendingInvokes = 50
)

// Config configures a Client.
type Config struct {
	// Identity signs both handshakes unless the credentials passed to
	// a connect call carry their own key.
	Identity *Identity

	// Executor runs approved commands. Defaults to LocalExecutor.
	Executor Executor

	// NodeID is the instance id the node reports. Defaults to the
	// hostname.
	NodeID string

	RequestTimeout    time.Duration
	ChallengeTimeout  time.Duration
	UserPendingAfter  time.Duration
	MaxPendingInvokes int

	// EventBuffer is the capacity of the Events channel. Defaults to 256.
	EventBuffer int

	Clock  clock.Clock
	Logger *slog.Logger
}

// Client holds the operator and node links to one gateway.
type Client struct {
	config  Config
	events  chan doctor.Event
	invokes *invokeTable

	ctx    context.Context
	cancel context.CancelFunc

	mutex    sync.Mutex
	operator *link
	node     *link
}

var (
	_ doctor.Dialer  = (*Client)(nil)
	_ doctor.Gateway = (*Client)(nil)
)

// NewClient returns a client with no links open.
func NewClient(config Config) *Client {
	if config.Executor == nil {
		config.Executor = LocalExecutor{}
	}
	if config.NodeID == "" {
		config.NodeID, _ = os.Hostname()
		if config.NodeID == "" {
			config.NodeID = "clawpal-unknown"
		}
	}
	if config.RequestTimeout <= 0 {
		config.RequestTimeout = DefaultRequestTimeout
	}
	if config.ChallengeTimeout <= 0 {
		config.ChallengeTimeout = DefaultChallengeTimeout
	}
	if config.UserPendingAfter <= 0 {
		config.UserPendingAfter = DefaultUserPendingAfter
	}
	if config.MaxPendingInvokes <= 0 {
		config.MaxPendingInvokes = DefaultMaxPendingInvokes
	}
	if config.EventBuffer <= 0 {
		config.EventBuffer = 256
	}
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		config:  config,
		events:  make(chan doctor.Event, config.EventBuffer),
		invokes: newInvokeTable(config.MaxPendingInvokes),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Events delivers chat and invoke events from both links, and a
// disconnected event when a link drops on its own. Connected events
// are not sent; the connection manager emits those.
func (client *Client) Events() <-chan doctor.Event {
	return client.events
}

// Close closes both links and stops event delivery.
func (client *Client) Close() error {
	err := client.DisconnectAll(context.Background())
	client.cancel()
	return err
}

// NodeID returns the instance id reported by the node link.
func (client *Client) NodeID() string {
	return client.config.NodeID
}

// PendingInvokes returns the number of invocations held on the node.
func (client *Client) PendingInvokes() int {
	return client.invokes.len()
}

func (client *Client) emit(event doctor.Event) {
	select {
	case client.events <- event:
	case <-client.ctx.Done():
	}
}

func (client *Client) identityFor(credentials doctor.Credentials) (*Identity, error) {
	if len(credentials.DeviceKeyPEM) > 0 {
		return ParseIdentity(credentials.DeviceKeyPEM)
	}
	if client.config.Identity == nil {
		return nil, errors.New("gateway: no device identity configured")
	}
	return client.config.Identity, nil
}

// ConnectOperator replaces the operator link with a new authenticated
// one.
func (client *Client) ConnectOperator(ctx context.Context, endpoint string, credentials doctor.Credentials) error {
	identity, err := client.identityFor(credentials)
	if err != nil {
		return err
	}
	client.replace(&client.operator, nil)

	connection, err := dialLink(ctx, endpoint, linkConfig{
		role:           "operator",
		clock:          client.config.Clock,
		logger:         client.config.Logger,
		requestTimeout: client.config.RequestTimeout,
		onEvent:        client.handleOperatorEvent,
		onClose: func(connection *link, closeErr error) {
			if client.clearIf(&client.operator, connection) {
				client.emit(doctor.OperatorDisconnected{Reason: netutil.CloseReason(closeErr)})
			}
		},
	})
	if err != nil {
		return err
	}
	_, err = connection.handshake(ctx, hello{
		role:       "operator",
		clientID:   "clawpal",
		clientMode: "cli",
		scopes:     operatorScopes,
		token:      credentials.Token,
		identity:   identity,
		version:    version.Short(),
		instanceID: client.config.NodeID,
	}, client.config.ChallengeTimeout)
	if err != nil {
		connection.close()
		return fmt.Errorf("gateway: operator handshake: %w", err)
	}
	client.replace(&client.operator, connection)
	client.config.Logger.Info("operator link authenticated", "endpoint", endpoint, "device_id", identity.DeviceID)
	return nil
}

// ConnectBridge replaces the node link with a new authenticated one and
// rejects, as stale, any invocation delivered during the handshake.
func (client *Client) ConnectBridge(ctx context.Context, endpoint string, credentials doctor.Credentials) error {
	identity, err := client.identityFor(credentials)
	if err != nil {
		return err
	}
	client.replace(&client.node, nil)
	client.invokes.reset()

	connection, err := dialLink(ctx, endpoint, linkConfig{
		role:           "node",
		clock:          client.config.Clock,
		logger:         client.config.Logger,
		requestTimeout: client.config.RequestTimeout,
		onEvent:        client.handleNodeEvent,
		onClose: func(connection *link, closeErr error) {
			if client.clearIf(&client.node, connection) {
				client.invokes.reset()
				client.emit(doctor.BridgeDisconnected{Reason: netutil.CloseReason(closeErr)})
			}
		},
	})
	if err != nil {
		return err
	}

	_, err = connection.handshake(ctx, hello{
		role:       "node",
		clientID:   "node-host",
		clientMode: "node",
		caps:       []string{"system"},
		commands:   nodeCommands,
		token:      credentials.Token,
		identity:   identity,
		version:    version.Short(),
		instanceID: client.config.NodeID,
	}, client.config.ChallengeTimeout)
	if err != nil {
		connection.close()
		return fmt.Errorf("gateway: node handshake: %w", err)
	}
	client.replace(&client.node, connection)

	stale := client.invokes.authenticate()
	for _, entry := range stale {
		if err := connection.notify(ctx, "node.invoke.result", errorResult(entry.invoke.ID, entry.nodeID, CodeStale, staleMessage)); err != nil {
			client.config.Logger.Warn("rejecting stale invoke failed", "invoke_id", entry.invoke.ID, "error", err)
		}
	}
	client.config.Logger.Info("node link authenticated",
		"endpoint", endpoint,
		"node_id", client.config.NodeID,
		"stale_invokes", len(stale),
	)
	return nil
}

// ApprovePairing approves every pending pairing request that comes from
// hostID and returns how many were approved.
func (client *Client) ApprovePairing(ctx context.Context, hostID string) (int, error) {
	connection := client.current(&client.operator)
	if connection == nil {
		return 0, fmt.Errorf("gateway: approve pairing: %w", ErrNotConnected)
	}
	payload, err := connection.request(ctx, "device.pair.list", map[string]any{})
	if err != nil {
		return 0, fmt.Errorf("gateway: listing pairing requests: %w", err)
	}
	var listing struct {
		Pending []pairingRequest `json:"pending"`
	}
	if err := json.Unmarshal(payload, &listing); err != nil {
		return 0, fmt.Errorf("gateway: decoding pairing requests: %w", err)
	}

	approved := 0
	for _, request := range listing.Pending {
		if !request.matches(hostID) {
			continue
		}
		if _, err := connection.request(ctx, "device.pair.approve", map[string]any{"requestId": request.RequestID}); err != nil {
			return approved, fmt.Errorf("gateway: approving pairing request %s: %w", request.RequestID, err)
		}
		approved++
		client.config.Logger.Info("pairing request approved", "request_id", request.RequestID, "device_id", request.DeviceID)
	}
	return approved, nil
}

// DisconnectAll closes both links. No disconnected events are emitted.
func (client *Client) DisconnectAll(ctx context.Context) error {
	client.replace(&client.operator, nil)
	client.replace(&client.node, nil)
	client.invokes.reset()
	return nil
}

// SendChat sends a chat.send request on the operator link.
func (client *Client) SendChat(ctx context.Context, request doctor.ChatRequest) error {
	connection := client.current(&client.operator)
	if connection == nil {
		return fmt.Errorf("gateway: chat.send: %w", ErrNotConnected)
	}
	_, err := connection.request(ctx, "chat.send", map[string]any{
		"sessionKey":     request.SessionKey,
		"agentId":        request.AgentID,
		"message":        request.Text,
		"idempotencyKey": uuid.NewString(),
	})
	return err
}

// ApproveInvoke executes a held invocation on request.Target and
// reports the result: to the gateway as node.invoke.result, unless the
// invocation expired, and to Events as InvokeCompleted. A command that
// fails to run is an error result, not an error return.
func (client *Client) ApproveInvoke(ctx context.Context, request doctor.ApprovalRequest) error {
	connection := client.current(&client.node)
	if connection == nil {
		return fmt.Errorf("gateway: approve %s: %w", request.InvokeID, ErrNotConnected)
	}
	entry, exists := client.invokes.take(request.InvokeID)
	if !exists {
		return fmt.Errorf("gateway: invoke %s is not pending on this node", request.InvokeID)
	}
	entry.timer.Stop()

	var reply invokeResult
	var display any
	result, err := client.execute(ctx, request.Target, entry.invoke)
	switch {
	case errors.Is(err, errUnsupportedCommand):
		reply = errorResult(entry.invoke.ID, entry.nodeID, CodeUnsupported, err.Error())
		display = map[string]string{"error": err.Error()}
	case err != nil && result == nil:
		reply = errorResult(entry.invoke.ID, entry.nodeID, CodeExecFailed, err.Error())
		display = map[string]string{"error": err.Error()}
	case err != nil:
		reply = errorResult(entry.invoke.ID, entry.nodeID, CodeExecFailed, err.Error())
		display = map[string]any{"stdout": result.Stdout, "stderr": result.Stderr, "error": err.Error()}
	default:
		reply = okResult(entry.invoke.ID, entry.nodeID, result)
		display = result
	}
	client.config.Logger.Info("invoke executed",
		"invoke_id", entry.invoke.ID,
		"target", request.Target,
		"ok", reply.OK,
		"expired", entry.expired,
	)

	var forwardErr error
	if !entry.expired {
		forwardErr = connection.notify(ctx, "node.invoke.result", reply)
	}
	encoded, err := json.Marshal(display)
	if err != nil {
		return fmt.Errorf("gateway: encoding result of %s: %w", entry.invoke.ID, err)
	}
	client.emit(doctor.InvokeCompleted{InvokeID: entry.invoke.ID, Result: encoded, Expired: entry.expired})
	return forwardErr
}

// RejectInvoke answers a held invocation with a REJECTED error. An id
// the node no longer holds is ignored.
func (client *Client) RejectInvoke(ctx context.Context, invokeID, reason string) error {
	connection := client.current(&client.node)
	if connection == nil {
		return fmt.Errorf("gateway: reject %s: %w", invokeID, ErrNotConnected)
	}
	entry, exists := client.invokes.take(invokeID)
	if !exists {
		client.config.Logger.Debug("reject for unknown invoke", "invoke_id", invokeID)
		return nil
	}
	entry.timer.Stop()
	if entry.expired {
		return nil
	}
	if reason == "" {
		reason = "Rejected by the operator"
	}
	return connection.notify(ctx, "node.invoke.result", errorResult(invokeID, entry.nodeID, CodeRejected, reason))
}

var errUnsupportedCommand = errors.New("gateway: unsupported command")

// execute runs a system.run invocation. The returned *Result is nil
// when the command never started.
func (client *Client) execute(ctx context.Context, target string, invoke doctor.Invoke) (*Result, error) {
	if invoke.Command != CommandSystemRun {
		return nil, fmt.Errorf("%w: %q", errUnsupportedCommand, invoke.Command)
	}
	command, err := commandFromInvoke(invoke)
	if err != nil {
		return nil, err
	}
	result, err := client.config.Executor.Run(ctx, target, command)
	if err != nil {
		if result.Stdout == "" && result.Stderr == "" {
			return nil, err
		}
		return &result, err
	}
	return &result, nil
}

func (client *Client) handleOperatorEvent(_ *link, name string, payload json.RawMessage) {
	if name != "chat" {
		return
	}
	event, err := chatEvent(payload)
	if err != nil {
		client.config.Logger.Warn("malformed chat event", "error", err)
		return
	}
	if event != nil {
		client.emit(event)
	}
}

func (client *Client) handleNodeEvent(connection *link, name string, payload json.RawMessage) {
	if name != "node.invoke.request" {
		return
	}
	invoke, nodeID, err := parseInvokeRequest(payload)
	if err != nil {
		client.config.Logger.Warn("malformed invoke request", "error", err)
		return
	}

	entry := &nodeInvoke{invoke: invoke, nodeID: nodeID}
	added, live, evicted := client.invokes.add(entry, func() *clock.Timer {
		return client.config.Clock.AfterFunc(client.config.UserPendingAfter, func() {
			client.expireInvoke(connection, invoke.ID)
		})
	})
	for _, old := range evicted {
		old.timer.Stop()
		if err := connection.notify(client.ctx, "node.invoke.result", errorResult(old.invoke.ID, old.nodeID, CodeEvicted, evictedMessage)); err != nil {
			client.config.Logger.Warn("evicting invoke failed", "invoke_id", old.invoke.ID, "error", err)
		}
	}
	if !added {
		client.config.Logger.Debug("duplicate invoke request", "invoke_id", invoke.ID)
		return
	}
	if !live {
		client.config.Logger.Debug("invoke during handshake held as stale", "invoke_id", invoke.ID)
		return
	}
	client.emit(doctor.InvokeRequested{Invoke: invoke})
}

// expireInvoke tells the gateway the operator is still deciding. The
// invocation stays held.
func (client *Client) expireInvoke(connection *link, invokeID string) {
	nodeID, expired := client.invokes.expire(invokeID)
	if !expired {
		return
	}
	client.config.Logger.Info("invoke awaiting operator past gateway deadline", "invoke_id", invokeID)
	if err := connection.notify(client.ctx, "node.invoke.result", errorResult(invokeID, nodeID, CodeUserPending, userPendingMessage)); err != nil {
		client.config.Logger.Warn("sending USER_PENDING failed", "invoke_id", invokeID, "error", err)
	}
}

// current returns the link in slot, or nil.
func (client *Client) current(slot **link) *link {
	client.mutex.Lock()
	defer client.mutex.Unlock()
	return *slot
}

// replace installs next in slot and closes what was there.
func (client *Client) replace(slot **link, next *link) {
	client.mutex.Lock()
	previous := *slot
	*slot = next
	client.mutex.Unlock()
	if previous != nil && previous != next {
		previous.close()
	}
}

// clearIf empties slot if it still holds connection, and reports
// whether it did.
func (client *Client) clearIf(slot **link, connection *link) bool {
	client.mutex.Lock()
	defer client.mutex.Unlock()
	if *slot != connection {
		return false
	}
	*slot = nil
	return true
}
