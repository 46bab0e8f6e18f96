// Copyright 2026 The Rillrate Authors
// SPDX-License-Identifier: Apache-2.0

// Package engine turns in-process values into subscribable streams.
//
// A [Hub] is the process-wide context: it owns the path registry and
// every live recorder, and is constructed explicitly and passed to
// whoever needs it. Instrumented code creates a [Tracer] for a path;
// the tracer keeps a local copy of the flow's state for cheap reads
// and forwards each event to the path's recorder. The recorder is a
// goroutine that owns the canonical state and fans snapshots and
// deltas out to subscribers.
//
// Every subscriber first receives a full state snapshot and then, in
// order, the deltas applied after that snapshot. A late joiner is
// served from the recorder's canonical state, never from a replay of
// deltas, so it can never miss or double-apply an event.
//
// Nothing on the write path blocks: tracers and recorders talk over
// unbounded mailboxes, so a slow subscriber only grows its own queue.
//
// Lifecycle:
//
//	hub := engine.NewHub(engine.HubConfig{Logger: logger})
//	defer hub.Close()
//
//	requests, err := engine.NewTracer(hub, ref.PathOf("app", "http", "requests"),
//		flows.Counter{}, flows.CounterState{}, engine.TracerOptions{})
//	if err != nil {
//		return err
//	}
//	defer requests.Close()
//	requests.Send(flows.Inc(1))
//
// Closing a tracer unregisters its path and ends every subscription
// to it with a Done update.
package engine
