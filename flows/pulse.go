// Copyright 2026 The Rillrate Authors
// SPDX-License-Identifier: Apache-2.0

package flows

import (
	"errors"
	"math"
	"time"

	"github.com/rillrate-fossil/rillrate-sub001/flow"
	"github.com/rillrate-fossil/rillrate-sub001/frame"
)

// PulseStreamType identifies pulse streams.
const PulseStreamType flow.StreamType = "rillrate.data.pulse.v0"

// DefaultPulseDepth is the history window of NewPulseState(0).
const DefaultPulseDepth = 30 * time.Second

// Pulse keeps a time window of float samples for sparkline charts.
type Pulse struct{}

// PulseState holds the samples of the last Depth.
type PulseState struct {
	Samples *frame.TimedFrame[float64] `cbor:"samples"`
}

// NewPulseState returns an empty window. depth <= 0 selects
// DefaultPulseDepth.
func NewPulseState(depth time.Duration) PulseState {
	if depth <= 0 {
		depth = DefaultPulseDepth
	}
	return PulseState{Samples: frame.NewTimed[float64](depth)}
}

// PulseEvent records Value observed at At. The sample carries its own
// timestamp so replicas evict exactly as the writer did.
type PulseEvent struct {
	At    flow.Timestamp `cbor:"at"`
	Value float64        `cbor:"value"`
}

// Push returns a sample event.
func Push(at flow.Timestamp, value float64) PulseEvent {
	return PulseEvent{At: at, Value: value}
}

func (Pulse) StreamType() flow.StreamType { return PulseStreamType }

func (Pulse) Apply(state *PulseState, event PulseEvent) error {
	if math.IsNaN(event.Value) {
		return errors.New("pulse sample is NaN")
	}
	if state.Samples == nil {
		*state = NewPulseState(0)
	}
	state.Samples.InsertPop(flow.TimedEvent[float64]{Timestamp: event.At, Event: event.Value})
	return nil
}
