// Copyright 2026 The Rillrate Authors
// SPDX-License-Identifier: Apache-2.0

package flows

import (
	"fmt"
	"math"

	"github.com/rillrate-fossil/rillrate-sub001/flow"
)

// GaugeStreamType identifies gauge streams.
const GaugeStreamType flow.StreamType = "rillrate.data.gauge.v0"

// Gauge tracks the last value set together with the observed range.
type Gauge struct{}

// GaugeState is the current value and the extremes seen so far. All
// three are zero until Observed is set.
type GaugeState struct {
	Value    float64 `cbor:"value"`
	Min      float64 `cbor:"min"`
	Max      float64 `cbor:"max"`
	Observed bool    `cbor:"observed"`
}

// GaugeEvent sets the gauge to Value.
type GaugeEvent struct {
	Value float64 `cbor:"value"`
}

// Set returns an event setting the gauge to value.
func Set(value float64) GaugeEvent { return GaugeEvent{Value: value} }

func (Gauge) StreamType() flow.StreamType { return GaugeStreamType }

func (Gauge) Apply(state *GaugeState, event GaugeEvent) error {
	if math.IsNaN(event.Value) || math.IsInf(event.Value, 0) {
		return fmt.Errorf("gauge value %v is not finite", event.Value)
	}
	if !state.Observed {
		state.Min, state.Max = event.Value, event.Value
		state.Observed = true
	}
	state.Value = event.Value
	state.Min = min(state.Min, event.Value)
	state.Max = max(state.Max, event.Value)
	return nil
}
