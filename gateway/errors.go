// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"errors"
	"fmt"
	"strings"
)

// Error codes used on invoke results and recognized on responses.
const (
	CodeUserPending = "USER_PENDING"
	CodeEvicted     = "EVICTED"
	CodeStale       = "STALE"
	CodeRejected    = "REJECTED"
	CodeExecFailed  = "EXEC_FAILED"
	CodeUnsupported = "UNSUPPORTED_COMMAND"
	CodeNotPaired   = "NOT_PAIRED"
)

var (
	// ErrNotConnected is returned by calls that need a link that is
	// not up.
	ErrNotConnected = errors.New("gateway: link not connected")

	// ErrTimeout is returned when the gateway does not answer a
	// request in time.
	ErrTimeout = errors.New("gateway: request timed out")

	// ErrUnsupportedTarget is returned by executors asked to run a
	// command on a target they cannot reach.
	ErrUnsupportedTarget = errors.New("gateway: unsupported target")
)

// Error is an error reported by the gateway in a response frame.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	if e.Code == "" {
		return "gateway: " + e.Message
	}
	return fmt.Sprintf("gateway: %s: %s", e.Code, e.Message)
}

// IsCode reports whether err is or wraps a gateway *Error with code.
func IsCode(err error, code string) bool {
	var gatewayError *Error
	return errors.As(err, &gatewayError) && gatewayError.Code == code
}

// isPairingRefusal reports whether a connect failure means the device
// is not paired. Gateways report this either as a response error or as
// the close reason of the socket.
func isPairingRefusal(code, message string) bool {
	if code == CodeNotPaired || code == "PAIRING_REQUIRED" {
		return true
	}
	lower := strings.ToLower(message)
	return strings.Contains(lower, "pairing required") || strings.Contains(lower, "not paired")
}
