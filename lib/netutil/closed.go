// Copyright 2026 The Rillrate Authors
// SPDX-License-Identifier: Apache-2.0

// Package netutil classifies connection errors for the node and the
// provider link.
package netutil

import (
	"errors"
	"io"
	"net"
	"syscall"

	"github.com/gorilla/websocket"
)

// IsExpectedCloseError reports whether err is a normal end of a
// connection rather than a failure: EOF, a closed connection or pipe,
// a broken pipe, a reset, or a websocket close frame with a normal
// code. Links torn down by either side produce these on the surviving
// side, and none of them should be logged as errors.
func IsExpectedCloseError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe) {
		return true
	}
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
		return true
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno == syscall.EPIPE || errno == syscall.ECONNRESET
	}
	return false
}
