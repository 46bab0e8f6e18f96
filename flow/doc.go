// Copyright 2026 The Rillrate Authors
// SPDX-License-Identifier: Apache-2.0

// Package flow defines the contract every telemetry data type
// implements to be synchronized between a writer and any number of
// readers.
//
// A flow has a State (the full value, sent once to every new
// subscriber as a snapshot) and an Event (an incremental change). The
// transition Apply(state, event) must be deterministic: replaying the
// same ordered events from the same initial state always yields the
// same state. Readers stay in sync with the writer by applying exactly
// the events the writer applied, in the same order.
//
// A [Delta] is an ordered batch of timestamped events. Batching is
// only a transport optimization; a delta of N events is equivalent to
// N deltas of one event.
//
// Both states and deltas are packed with the CBOR configuration in
// lib/codec. Packing errors are returned, never panicked, so a bad
// payload surfaces as an errored stream rather than a crashed process.
//
// Readers that do not know a flow's Go types (generic dashboards, the
// tail command) use a [Registry], a table from [StreamType] to
// type-erased operations on packed bytes.
package flow
