// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package netutil classifies connection teardown errors.
package netutil

import (
	"context"
	"errors"
	"io"
	"net"
	"syscall"

	"github.com/coder/websocket"
)

// IsExpectedCloseError reports whether err is an ordinary end of a
// gateway link: a normal or going-away WebSocket close, EOF, a closed
// connection, a broken pipe, a reset, or a cancelled read context.
// Reader loops log these at Debug and everything else as an error.
func IsExpectedCloseError(err error) bool {
	if err == nil {
		return false
	}
	switch websocket.CloseStatus(err) {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway:
		return true
	}
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || errors.Is(err, context.Canceled) {
		return true
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno == syscall.EPIPE || errno == syscall.ECONNRESET
	}
	return false
}

// CloseReason renders err as the human-readable reason carried in a
// disconnected event.
func CloseReason(err error) string {
	if err == nil {
		return "closed"
	}
	var closeError websocket.CloseError
	if errors.As(err, &closeError) {
		if closeError.Reason != "" {
			return closeError.Reason
		}
		return closeError.Code.String()
	}
	if IsExpectedCloseError(err) {
		return "server closed"
	}
	return err.Error()
}
