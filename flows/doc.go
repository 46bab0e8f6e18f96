// Copyright 2026 The Rillrate Authors
// SPDX-License-Identifier: Apache-2.0

// Package flows holds the concrete flows shipped with rillrate.
//
// Each flow is a stateless value implementing [flow.Flow] over its own
// state and event types: [Counter], [Gauge], [Pulse] and [Logger] are
// visual flows, [Selector] is a control flow that also accepts
// [Choose] actions from dashboards, and [Paths] is the live path
// registry that the engine itself publishes.
//
// Use [Register] to make all of them known to a [flow.Registry] so
// readers that only know a stream type can follow the stream.
package flows

import (
	"errors"

	"github.com/rillrate-fossil/rillrate-sub001/flow"
)

// Register adds every flow of this package to registry.
func Register(registry *flow.Registry) error {
	return errors.Join(
		registry.Register(flow.KindOf[CounterState, CounterEvent](Counter{})),
		registry.Register(flow.KindOf[GaugeState, GaugeEvent](Gauge{})),
		registry.Register(flow.KindOf[PulseState, PulseEvent](Pulse{})),
		registry.Register(flow.KindOf[LoggerState, LoggerEvent](Logger{})),
		registry.Register(flow.KindOf[SelectorState, SelectorEvent](Selector{})),
		registry.Register(flow.KindOf[PathsState, PathsEvent](Paths{})),
	)
}
