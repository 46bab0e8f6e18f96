// Copyright 2026 The Rillrate Authors
// SPDX-License-Identifier: Apache-2.0

// Package process provides binary entrypoint helpers for rillrate
// binaries: the raw stderr reporting used before a structured logger
// exists, the process exit after an unrecoverable error in main(), and
// the signal-bound context every long-running binary serves under.
package process
