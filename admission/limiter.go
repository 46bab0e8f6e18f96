// Copyright 2026 The Rillrate Authors
// SPDX-License-Identifier: Apache-2.0

package admission

import (
	"errors"
	"fmt"
	"sync"
)

// ErrLimitReached is returned by Acquire when every slot is taken.
var ErrLimitReached = errors.New("connection limit reached")

// Limit is the maximum number of concurrent connections of one class.
type Limit struct {
	Total int `yaml:"total" json:"total"`
}

// ConnectionLimiter maps connection identities to the address used to
// interrupt them, holding at most Limit.Total entries. Slots are kept
// in acquisition order, which is the order SetLimit evicts in. Safe for
// concurrent use.
type ConnectionLimiter[K comparable, A any] struct {
	mu    sync.Mutex
	limit Limit
	order []K
	slots map[K]A
}

// NewConnectionLimiter returns an empty limiter.
func NewConnectionLimiter[K comparable, A any](limit Limit) *ConnectionLimiter[K, A] {
	return &ConnectionLimiter[K, A]{
		limit: limit,
		slots: make(map[K]A),
	}
}

// HasSlot reports whether another connection may be acquired.
func (l *ConnectionLimiter[K, A]) HasSlot() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.slots) < l.limit.Total
}

// Acquire takes a slot for id. Returns ErrLimitReached if none is
// free. Re-acquiring an id that already holds a slot replaces its
// address without using another slot.
func (l *ConnectionLimiter[K, A]) Acquire(id K, address A) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, held := l.slots[id]; held {
		l.slots[id] = address
		return nil
	}
	if len(l.slots) >= l.limit.Total {
		return fmt.Errorf("%w (%d)", ErrLimitReached, l.limit.Total)
	}
	l.slots[id] = address
	l.order = append(l.order, id)
	return nil
}

// Release frees the slot held by id. Releasing an unknown id is a
// no-op.
func (l *ConnectionLimiter[K, A]) Release(id K) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, held := l.slots[id]; !held {
		return
	}
	delete(l.slots, id)
	for i, existing := range l.order {
		if existing == id {
			l.order = append(l.order[:i], l.order[i+1:]...)
			break
		}
	}
}

// Len returns the number of held slots.
func (l *ConnectionLimiter[K, A]) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.slots)
}

// Values returns the held addresses in acquisition order.
func (l *ConnectionLimiter[K, A]) Values() []A {
	l.mu.Lock()
	defer l.mu.Unlock()
	values := make([]A, 0, len(l.order))
	for _, id := range l.order {
		values = append(values, l.slots[id])
	}
	return values
}

// Limit returns the current limit.
func (l *ConnectionLimiter[K, A]) Limit() Limit {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.limit
}

// SetLimit installs a new limit and returns the addresses of the
// len-total connections that now exceed it, oldest first. The slots
// stay held until the caller has interrupted those connections and
// they Release; until then HasSlot is false.
func (l *ConnectionLimiter[K, A]) SetLimit(limit Limit) []A {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.limit = limit

	excess := len(l.order) - limit.Total
	if excess <= 0 {
		return nil
	}
	evicted := make([]A, 0, excess)
	for _, id := range l.order[:excess] {
		evicted = append(evicted, l.slots[id])
	}
	return evicted
}
