// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package doctor

import "errors"

// Failures surfaced by the controller and the connection manager. Each
// is wrapped around the collaborator's error, so callers test with
// errors.Is and still see the underlying cause in the message. None of
// them leaves the session in a state that cannot be retried.
var (
	// ErrStartFailed: a diagnosis could not start, either because the
	// operator link is not connected or the initial prompt failed.
	ErrStartFailed = errors.New("doctor: start diagnosis failed")

	// ErrSendFailed: a chat message could not be delivered. The user
	// message stays in the transcript.
	ErrSendFailed = errors.New("doctor: send failed")

	// ErrConnectFailed: the operator link was refused or timed out.
	ErrConnectFailed = errors.New("doctor: connect failed")

	// ErrPairingRequired: the gateway refused the node link because
	// this device is not paired. Dialers wrap their error with it.
	ErrPairingRequired = errors.New("doctor: node pairing required")

	// ErrNodeRegistration: the operator link is up but the node link
	// could not be established, even after an auto-pair retry.
	ErrNodeRegistration = errors.New("doctor: node registration failed")

	// ErrApprovalForwardFailed: an approval was recorded locally but
	// could not be forwarded to the node.
	ErrApprovalForwardFailed = errors.New("doctor: approval forward failed")

	// ErrRejectionForwardFailed: a rejection was recorded locally but
	// could not be forwarded to the node.
	ErrRejectionForwardFailed = errors.New("doctor: rejection forward failed")

	// ErrNoPriorConnection: Reconnect was called before any successful
	// Connect.
	ErrNoPriorConnection = errors.New("doctor: no prior connection to reconnect")

	// ErrNoSession: an operation needs an active session.
	ErrNoSession = errors.New("doctor: no active session")
)
