// Copyright 2026 The Rillrate Authors
// SPDX-License-Identifier: Apache-2.0

package flow

import (
	"errors"
	"fmt"
	"time"

	"github.com/rillrate-fossil/rillrate-sub001/lib/clock"
	"github.com/rillrate-fossil/rillrate-sub001/lib/codec"
)

// StreamType is a versioned schema identifier such as
// "rillrate.data.counter.v0". Both ends compare it before applying
// deltas to detect a schema mismatch.
type StreamType string

// ErrStreamTypeMismatch is returned when a payload is applied to a
// flow of a different stream type.
var ErrStreamTypeMismatch = errors.New("stream type mismatch")

// Flow is the state transition contract of a data type. S is the full
// state, E the incremental event.
type Flow[S, E any] interface {
	// StreamType identifies the schema of S and E.
	StreamType() StreamType

	// Apply transitions state by event. It must be deterministic. An
	// error means the event is invalid for this state; Apply must
	// then leave state unchanged.
	Apply(state *S, event E) error
}

// NoAction is the action type of flows that accept no input from
// subscribers.
type NoAction struct{}

// Timestamp is milliseconds since the Unix epoch.
type Timestamp int64

// Now returns the clock's current time as a Timestamp.
func Now(c clock.Clock) Timestamp {
	return Timestamp(clock.UnixMilli(c))
}

// Time converts the timestamp to a time.Time in UTC.
func (t Timestamp) Time() time.Time {
	return time.UnixMilli(int64(t)).UTC()
}

// Sub returns t - other as a duration.
func (t Timestamp) Sub(other Timestamp) time.Duration {
	return time.Duration(t-other) * time.Millisecond
}

// TimedEvent is an event stamped with the moment it happened. Events
// are ordered by timestamp, and two timed events with the same
// timestamp are considered the same event regardless of content.
type TimedEvent[E any] struct {
	Timestamp Timestamp `cbor:"ts"`
	Event     E         `cbor:"ev"`
}

// Same reports whether both events carry the same timestamp.
func (e TimedEvent[E]) Same(other TimedEvent[E]) bool {
	return e.Timestamp == other.Timestamp
}

// Before reports whether e happened strictly before other.
func (e TimedEvent[E]) Before(other TimedEvent[E]) bool {
	return e.Timestamp < other.Timestamp
}

// Delta is an ordered batch of events. Receivers apply the events in
// slice order.
type Delta[E any] []TimedEvent[E]

// ApplyDelta applies every event of delta to state in order. Invalid
// events leave the state as it was and are reported in the joined
// error; the remaining events are still applied.
func ApplyDelta[S, E any](f Flow[S, E], state *S, delta Delta[E]) error {
	var errs []error
	for _, timed := range delta {
		if err := f.Apply(state, timed.Event); err != nil {
			errs = append(errs, fmt.Errorf("event at %d: %w", timed.Timestamp, err))
		}
	}
	return errors.Join(errs...)
}

// PackState encodes a full state.
func PackState[S any](state S) ([]byte, error) {
	data, err := codec.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("packing state: %w", err)
	}
	return data, nil
}

// UnpackState decodes a full state.
func UnpackState[S any](data []byte) (S, error) {
	var state S
	if err := codec.Unmarshal(data, &state); err != nil {
		return state, fmt.Errorf("unpacking state: %w", err)
	}
	return state, nil
}

// PackDelta encodes a delta.
func PackDelta[E any](delta Delta[E]) ([]byte, error) {
	data, err := codec.Marshal(delta)
	if err != nil {
		return nil, fmt.Errorf("packing delta: %w", err)
	}
	return data, nil
}

// UnpackDelta decodes a delta.
func UnpackDelta[E any](data []byte) (Delta[E], error) {
	var delta Delta[E]
	if err := codec.Unmarshal(data, &delta); err != nil {
		return nil, fmt.Errorf("unpacking delta: %w", err)
	}
	return delta, nil
}
