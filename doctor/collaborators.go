// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package doctor

import (
	"context"
	"time"
)

// ChatRequest is a message for the agent on the operator link.
type ChatRequest struct {
	SessionKey string
	AgentID    string
	Text       string
}

// ApprovalRequest tells the node to execute an approved invocation.
type ApprovalRequest struct {
	InvokeID   string
	Target     string
	SessionKey string
	AgentID    string
}

// Gateway carries the controller's outbound calls. Implementations
// must be safe for concurrent use: auto-approvals are forwarded from
// their own goroutines.
type Gateway interface {
	SendChat(ctx context.Context, request ChatRequest) error
	ApproveInvoke(ctx context.Context, request ApprovalRequest) error
	RejectInvoke(ctx context.Context, invokeID, reason string) error
}

// Credentials authenticate both links. The connection manager stores
// the last successful set for Reconnect and otherwise does not look
// inside.
type Credentials struct {
	Token string

	// DeviceKeyPEM, when set, replaces the locally stored device key
	// for this connection (remote gateways paired from another host).
	DeviceKeyPEM []byte
}

// Dialer establishes and tears down the two links.
type Dialer interface {
	ConnectOperator(ctx context.Context, endpoint string, credentials Credentials) error

	// ConnectBridge returns an error wrapping ErrPairingRequired when
	// the gateway refuses an unpaired device.
	ConnectBridge(ctx context.Context, endpoint string, credentials Credentials) error

	// ApprovePairing approves pending pairing requests from hostID
	// and returns how many were approved.
	ApprovePairing(ctx context.Context, hostID string) (int, error)

	DisconnectAll(ctx context.Context) error
}

// EventHandler receives inbound events. *Controller implements it.
type EventHandler interface {
	Handle(event Event)
}

// SessionRecord is a finished session as handed to an Archiver.
type SessionRecord struct {
	Session   Session   `cbor:"session"`
	StartedAt time.Time `cbor:"started_at"`
	EndedAt   time.Time `cbor:"ended_at"`
	Messages  []Message `cbor:"messages"`
}

// Archiver persists finished sessions.
type Archiver interface {
	Archive(ctx context.Context, record SessionRecord) error
}
