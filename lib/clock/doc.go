// Copyright 2026 The Rillrate Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock abstracts wall time so that event timestamps, pull
// flow tickers, and heartbeats can be driven deterministically in
// tests.
//
// Components take a Clock field instead of calling the time package.
// Production code injects Real(); tests inject Fake() and move time
// forward with Advance:
//
//	fake := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	hub := engine.NewHub(engine.HubConfig{Clock: fake})
//	fake.WaitForTimers(1)
//	fake.Advance(time.Second)
package clock
