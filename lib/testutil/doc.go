// Copyright 2026 The Rillrate Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for rillrate packages.
//
// [RequireReceive], [RequireSend], and [RequireClosed] wrap the
// select-with-timeout safety valve so individual tests never call
// time.After themselves. [Context] does the same for APIs that block
// on a context. These helpers are the only place tests use the wall
// clock; everything time-dependent under test runs on clock.Fake.
//
// [UniqueID] produces distinct identifiers for connection ids and
// path segments without consulting the clock.
//
// All helpers call t.Fatalf on failure rather than returning errors,
// since test setup failures are not recoverable.
package testutil
