// Copyright 2026 The Rillrate Authors
// SPDX-License-Identifier: Apache-2.0

// Package frame holds the bounded history containers behind every
// visual flow's buffered samples: [Frame] keeps the last N items,
// [TimedFrame] keeps the items of the last time window. Both are
// append-only from the writer's point of view and evict from the
// front, so memory stays bounded under continuous writes.
//
// The containers are plain values owned by a flow state; they are not
// safe for concurrent use on their own. They pack to CBOR so a state
// containing one can be snapshotted like any other.
package frame

import (
	"fmt"
	"iter"

	"github.com/rillrate-fossil/rillrate-sub001/lib/codec"
)

// Frame keeps at most size items, evicting the oldest.
type Frame[T any] struct {
	size  int
	items ring[T]
}

// New returns an empty Frame holding up to size items. Panics if size
// is not positive.
func New[T any](size int) *Frame[T] {
	if size <= 0 {
		panic(fmt.Sprintf("frame: size must be positive, got %d", size))
	}
	frame := &Frame[T]{size: size}
	frame.items.reserve(size)
	return frame
}

// Insert appends item, first popping exactly one item from the front
// if the frame is full. The returned pointer refers to the stored item
// and stays valid until the next Insert or Clear.
func (f *Frame[T]) Insert(item T) *T {
	if f.items.len() >= f.size {
		f.items.popFront()
	}
	return f.items.pushBack(item)
}

// Size returns the capacity given at construction.
func (f *Frame[T]) Size() int { return f.size }

// Len returns the number of stored items.
func (f *Frame[T]) Len() int { return f.items.len() }

// Front returns the oldest item.
func (f *Frame[T]) Front() (T, bool) {
	if slot := f.items.front(); slot != nil {
		return *slot, true
	}
	var zero T
	return zero, false
}

// Back returns the newest item.
func (f *Frame[T]) Back() (T, bool) {
	if slot := f.items.back(); slot != nil {
		return *slot, true
	}
	var zero T
	return zero, false
}

// All iterates oldest to newest.
func (f *Frame[T]) All() iter.Seq[T] {
	return func(yield func(T) bool) {
		for i := 0; i < f.items.len(); i++ {
			if !yield(*f.items.at(i)) {
				return
			}
		}
	}
}

// Items returns a copy of the contents, oldest first.
func (f *Frame[T]) Items() []T { return f.items.slice() }

// Clear removes every item and keeps the size.
func (f *Frame[T]) Clear() {
	f.items.clear()
	f.items.reserve(f.size)
}

// Clone returns an independent copy.
func (f *Frame[T]) Clone() *Frame[T] {
	clone := New[T](f.size)
	for item := range f.All() {
		clone.Insert(item)
	}
	return clone
}

type packedFrame[T any] struct {
	Size  int `cbor:"size"`
	Items []T `cbor:"items"`
}

// MarshalCBOR packs the size and the items.
func (f *Frame[T]) MarshalCBOR() ([]byte, error) {
	return codec.Marshal(packedFrame[T]{Size: f.size, Items: f.Items()})
}

// UnmarshalCBOR restores a packed frame. Surplus items beyond the
// declared size are evicted as if they had been inserted in order.
func (f *Frame[T]) UnmarshalCBOR(data []byte) error {
	var packed packedFrame[T]
	if err := codec.Unmarshal(data, &packed); err != nil {
		return fmt.Errorf("decoding frame: %w", err)
	}
	if packed.Size <= 0 {
		return fmt.Errorf("decoding frame: invalid size %d", packed.Size)
	}
	*f = *New[T](packed.Size)
	for _, item := range packed.Items {
		f.Insert(item)
	}
	return nil
}
