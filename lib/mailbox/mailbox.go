// Copyright 2026 The Rillrate Authors
// SPDX-License-Identifier: Apache-2.0

// Package mailbox provides the unbounded FIFO queue that connects
// tracers to recorders and recorders to subscribers.
//
// Push never blocks: a slow consumer lets the queue grow instead of
// stalling the producer. Memory is the only bound. Consumers wait on
// Notify and drain with Drain, usually in a select loop next to a
// context:
//
//	for {
//		select {
//		case <-box.Notify():
//			for _, item := range box.Drain() { ... }
//		case <-ctx.Done():
//			return
//		}
//	}
package mailbox

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned by Receive once the mailbox is closed and
// empty.
var ErrClosed = errors.New("mailbox closed")

// Mailbox is an unbounded FIFO queue. Safe for concurrent use by any
// number of producers and one consumer.
type Mailbox[T any] struct {
	mu     sync.Mutex
	items  []T
	closed bool
	notify chan struct{}
}

// New returns an empty open mailbox.
func New[T any]() *Mailbox[T] {
	return &Mailbox[T]{notify: make(chan struct{}, 1)}
}

// Push appends item and wakes the consumer. Returns false if the
// mailbox is closed; the item is discarded in that case.
func (m *Mailbox[T]) Push(item T) bool {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return false
	}
	m.items = append(m.items, item)
	m.mu.Unlock()

	m.signal()
	return true
}

// Drain removes and returns everything queued, oldest first.
func (m *Mailbox[T]) Drain() []T {
	m.mu.Lock()
	defer m.mu.Unlock()
	items := m.items
	m.items = nil
	return items
}

// Receive removes and returns the oldest item, waiting until one is
// queued. Items pushed before Close are still returned; after that it
// returns ErrClosed. Receive and Drain must not be called concurrently.
func (m *Mailbox[T]) Receive(ctx context.Context) (T, error) {
	var zero T
	for {
		m.mu.Lock()
		if len(m.items) > 0 {
			item := m.items[0]
			m.items[0] = zero
			m.items = m.items[1:]
			m.mu.Unlock()
			return item, nil
		}
		closed := m.closed
		m.mu.Unlock()
		if closed {
			return zero, ErrClosed
		}

		select {
		case <-m.notify:
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	}
}

// Len returns the number of queued items.
func (m *Mailbox[T]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

// Close rejects further pushes. Items already queued stay available
// to Drain so the consumer can finish them. Close is idempotent.
func (m *Mailbox[T]) Close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.signal()
}

// Closed reports whether Close has been called.
func (m *Mailbox[T]) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Notify returns the wakeup channel. It receives at most one pending
// signal per batch of pushes, and one after Close.
func (m *Mailbox[T]) Notify() <-chan struct{} {
	return m.notify
}

func (m *Mailbox[T]) signal() {
	select {
	case m.notify <- struct{}{}:
	default:
	}
}
