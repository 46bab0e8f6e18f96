// Copyright 2026 The Rillrate Authors
// SPDX-License-Identifier: Apache-2.0

package frame

// ring is a growable circular deque.
type ring[T any] struct {
	items  []T
	head   int
	length int
}

func (r *ring[T]) len() int { return r.length }

func (r *ring[T]) at(i int) *T {
	return &r.items[(r.head+i)%len(r.items)]
}

func (r *ring[T]) pushBack(item T) *T {
	if r.length == len(r.items) {
		r.grow()
	}
	slot := r.at(r.length)
	*slot = item
	r.length++
	return slot
}

func (r *ring[T]) popFront() (T, bool) {
	var zero T
	if r.length == 0 {
		return zero, false
	}
	slot := &r.items[r.head]
	item := *slot
	*slot = zero // release references for GC
	r.head = (r.head + 1) % len(r.items)
	r.length--
	return item, true
}

func (r *ring[T]) front() *T {
	if r.length == 0 {
		return nil
	}
	return &r.items[r.head]
}

func (r *ring[T]) back() *T {
	if r.length == 0 {
		return nil
	}
	return r.at(r.length - 1)
}

func (r *ring[T]) grow() {
	capacity := 2 * len(r.items)
	if capacity == 0 {
		capacity = 4
	}
	r.reserve(capacity)
}

// reserve re-lays the contents out from index zero in a buffer of the
// given capacity.
func (r *ring[T]) reserve(capacity int) {
	items := make([]T, capacity)
	for i := 0; i < r.length; i++ {
		items[i] = *r.at(i)
	}
	r.items = items
	r.head = 0
}

func (r *ring[T]) slice() []T {
	out := make([]T, r.length)
	for i := range out {
		out[i] = *r.at(i)
	}
	return out
}

func (r *ring[T]) clear() {
	r.items = nil
	r.head = 0
	r.length = 0
}
