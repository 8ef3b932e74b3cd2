// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package doctor

import "encoding/json"

// Event is an inbound notification from one of the two links. The set
// of implementations is closed: only the types in this file satisfy it.
type Event interface {
	isEvent()
}

// OperatorConnected reports that the operator link is up.
type OperatorConnected struct{}

// OperatorDisconnected reports that the operator link dropped. A drop
// does not end the session.
type OperatorDisconnected struct {
	Reason string
}

// ChatDelta carries the agent's reply so far. Text is the full text of
// the current utterance, not an increment. SessionKey is empty when the
// link does not tag chat events; a non-empty key must match the active
// session.
type ChatDelta struct {
	SessionKey string
	Text       string
}

// ChatFinal closes the current utterance. Empty Text means the agent
// ended the turn to issue a tool call.
type ChatFinal struct {
	SessionKey string
	Text       string
}

// ChatError reports an agent-side failure for the session.
type ChatError struct {
	SessionKey string
	Message    string
}

// BridgeConnected reports that this process is registered as a node.
type BridgeConnected struct{}

// BridgeDisconnected reports that the node link dropped.
type BridgeDisconnected struct {
	Reason string
}

// InvokeRequested delivers a tool invocation from the agent.
type InvokeRequested struct {
	Invoke Invoke
}

// InvokeCompleted delivers the result of an executed invocation.
// Expired is set when the gateway had already been told the user was
// still reviewing; the gateway discards late node results, so the
// controller relays an expired result to the agent through chat.
type InvokeCompleted struct {
	InvokeID string
	Result   json.RawMessage
	Expired  bool
}

func (OperatorConnected) isEvent()    {}
func (OperatorDisconnected) isEvent() {}
func (ChatDelta) isEvent()            {}
func (ChatFinal) isEvent()            {}
func (ChatError) isEvent()            {}
func (BridgeConnected) isEvent()      {}
func (BridgeDisconnected) isEvent()   {}
func (InvokeRequested) isEvent()      {}
func (InvokeCompleted) isEvent()      {}

// isLinkStatus reports whether event is one of the four connection
// status events, which bypass session gating.
func isLinkStatus(event Event) bool {
	switch event.(type) {
	case OperatorConnected, OperatorDisconnected, BridgeConnected, BridgeDisconnected:
		return true
	}
	return false
}
