// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package gateway

import "encoding/json"

const (
	frameRequest  = "req"
	frameResponse = "res"
	frameEvent    = "event"
)

// requestFrame is an outbound request.
type requestFrame struct {
	Type   string `json:"type"`
	ID     string `json:"id"`
	Method string `json:"method"`
	Params any    `json:"params,omitempty"`
}

// inboundFrame is any frame read from the gateway. Which fields are set
// depends on Type.
type inboundFrame struct {
	Type string `json:"type"`

	// Response fields.
	ID      string          `json:"id,omitempty"`
	OK      bool            `json:"ok,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   *Error          `json:"error,omitempty"`

	// Event fields. Payload is shared with responses.
	Event string `json:"event,omitempty"`
}

// invokeResult is the params of a node.invoke.result request. NodeID
// echoes the id the gateway put on the request, not this host's name.
type invokeResult struct {
	ID      string `json:"id"`
	NodeID  string `json:"nodeId"`
	OK      bool   `json:"ok"`
	Payload any    `json:"payload,omitempty"`
	Error   *Error `json:"error,omitempty"`
}

func okResult(id, nodeID string, payload any) invokeResult {
	return invokeResult{ID: id, NodeID: nodeID, OK: true, Payload: payload}
}

func errorResult(id, nodeID, code, message string) invokeResult {
	return invokeResult{ID: id, NodeID: nodeID, Error: &Error{Code: code, Message: message}}
}
