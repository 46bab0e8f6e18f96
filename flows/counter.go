// Copyright 2026 The Rillrate Authors
// SPDX-License-Identifier: Apache-2.0

package flows

import "github.com/rillrate-fossil/rillrate-sub001/flow"

// CounterStreamType identifies counter streams.
const CounterStreamType flow.StreamType = "rillrate.data.counter.v0"

// Counter is a monotonic-by-convention integer total.
type Counter struct{}

// CounterState is the running total.
type CounterState struct {
	Total int64 `cbor:"total"`
}

// CounterEvent adds Delta to the total.
type CounterEvent struct {
	Delta int64 `cbor:"delta"`
}

// Inc returns an event incrementing the counter by delta.
func Inc(delta int64) CounterEvent { return CounterEvent{Delta: delta} }

func (Counter) StreamType() flow.StreamType { return CounterStreamType }

func (Counter) Apply(state *CounterState, event CounterEvent) error {
	state.Total += event.Delta
	return nil
}
