// Copyright 2026 The Rillrate Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import "errors"

var (
	// ErrClosed is returned when the hub, tracer or subscription has
	// already been closed.
	ErrClosed = errors.New("closed")

	// ErrAlreadyTaken is returned when a single-consumer resource such
	// as a tracer's action stream is claimed a second time.
	ErrAlreadyTaken = errors.New("already taken")

	// ErrUnknownPath is returned for paths no tracer is registered at.
	ErrUnknownPath = errors.New("unknown path")

	// ErrPathInUse is returned when a second tracer is created for a
	// path that already has one.
	ErrPathInUse = errors.New("path already has a tracer")
)
