// Copyright 2026 The Rillrate Authors
// SPDX-License-Identifier: Apache-2.0

package frame

import (
	"fmt"
	"iter"
	"time"

	"github.com/rillrate-fossil/rillrate-sub001/flow"
	"github.com/rillrate-fossil/rillrate-sub001/lib/codec"
)

// TimedFrame keeps the timed items that fall inside a window of depth
// ending at the most recently inserted item.
//
// The window is always measured from the item being inserted, not from
// the newest timestamp seen so far. An item arriving out of order with
// an older timestamp evicts only what is older than depth relative to
// itself; it never evicts based on a newer, already stored item.
type TimedFrame[T any] struct {
	depth time.Duration
	items ring[flow.TimedEvent[T]]
}

// NewTimed returns an empty TimedFrame. Panics if depth is not
// positive.
func NewTimed[T any](depth time.Duration) *TimedFrame[T] {
	if depth <= 0 {
		panic(fmt.Sprintf("frame: depth must be positive, got %v", depth))
	}
	return &TimedFrame[T]{depth: depth}
}

// InsertPop pops items from the front while
// item.Timestamp - front.Timestamp >= depth, then appends item. The
// popped items are returned oldest first.
func (f *TimedFrame[T]) InsertPop(item flow.TimedEvent[T]) []flow.TimedEvent[T] {
	var popped []flow.TimedEvent[T]
	for {
		front := f.items.front()
		if front == nil || item.Timestamp.Sub(front.Timestamp) < f.depth {
			break
		}
		evicted, _ := f.items.popFront()
		popped = append(popped, evicted)
	}
	f.items.pushBack(item)
	return popped
}

// Depth returns the window length.
func (f *TimedFrame[T]) Depth() time.Duration { return f.depth }

// Len returns the number of stored items.
func (f *TimedFrame[T]) Len() int { return f.items.len() }

// Front returns the oldest stored item.
func (f *TimedFrame[T]) Front() (flow.TimedEvent[T], bool) {
	if slot := f.items.front(); slot != nil {
		return *slot, true
	}
	return flow.TimedEvent[T]{}, false
}

// Back returns the most recently inserted item.
func (f *TimedFrame[T]) Back() (flow.TimedEvent[T], bool) {
	if slot := f.items.back(); slot != nil {
		return *slot, true
	}
	return flow.TimedEvent[T]{}, false
}

// All iterates in insertion order.
func (f *TimedFrame[T]) All() iter.Seq[flow.TimedEvent[T]] {
	return func(yield func(flow.TimedEvent[T]) bool) {
		for i := 0; i < f.items.len(); i++ {
			if !yield(*f.items.at(i)) {
				return
			}
		}
	}
}

// Items returns a copy of the contents in insertion order.
func (f *TimedFrame[T]) Items() []flow.TimedEvent[T] { return f.items.slice() }

// Values returns just the payloads in insertion order.
func (f *TimedFrame[T]) Values() []T {
	values := make([]T, 0, f.items.len())
	for item := range f.All() {
		values = append(values, item.Event)
	}
	return values
}

// Clear removes every item.
func (f *TimedFrame[T]) Clear() { f.items.clear() }

// Clone returns an independent copy.
func (f *TimedFrame[T]) Clone() *TimedFrame[T] {
	clone := NewTimed[T](f.depth)
	for item := range f.All() {
		clone.items.pushBack(item)
	}
	return clone
}

type packedTimedFrame[T any] struct {
	DepthMillis int64                `cbor:"depth_ms"`
	Items       []flow.TimedEvent[T] `cbor:"items"`
}

// MarshalCBOR packs the depth and the items.
func (f *TimedFrame[T]) MarshalCBOR() ([]byte, error) {
	return codec.Marshal(packedTimedFrame[T]{DepthMillis: f.depth.Milliseconds(), Items: f.Items()})
}

// UnmarshalCBOR restores a packed frame verbatim, without re-running
// eviction, so a replica holds exactly what the writer held.
func (f *TimedFrame[T]) UnmarshalCBOR(data []byte) error {
	var packed packedTimedFrame[T]
	if err := codec.Unmarshal(data, &packed); err != nil {
		return fmt.Errorf("decoding timed frame: %w", err)
	}
	if packed.DepthMillis <= 0 {
		return fmt.Errorf("decoding timed frame: invalid depth %dms", packed.DepthMillis)
	}
	*f = *NewTimed[T](time.Duration(packed.DepthMillis) * time.Millisecond)
	for _, item := range packed.Items {
		f.items.pushBack(item)
	}
	return nil
}
