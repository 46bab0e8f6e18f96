// Copyright 2026 The Rillrate Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rillrate-fossil/rillrate-sub001/flow"
	"github.com/rillrate-fossil/rillrate-sub001/lib/mailbox"
	"github.com/rillrate-fossil/rillrate-sub001/ref"
)

// UpdateKind tells what an Update carries.
type UpdateKind uint8

const (
	// UpdateState carries a packed full state.
	UpdateState UpdateKind = iota + 1
	// UpdateDelta carries a packed delta to apply to the last state.
	UpdateDelta
	// UpdateDone ends the stream; nothing follows it.
	UpdateDone
	// UpdateError reports a failure; a Done follows it.
	UpdateError
)

func (k UpdateKind) String() string {
	switch k {
	case UpdateState:
		return "state"
	case UpdateDelta:
		return "delta"
	case UpdateDone:
		return "done"
	case UpdateError:
		return "error"
	default:
		return fmt.Sprintf("update(%d)", uint8(k))
	}
}

// Update is one item of a subscription, in the flow's packed encoding.
// Payloads are shared between subscribers and must not be modified.
type Update struct {
	Kind    UpdateKind
	Payload []byte
	Message string
}

// SubscriberKey identifies a subscriber within a recorder. Connection
// groups the subscribers that go away together when a transport
// drops; Request distinguishes streams on the same connection.
type SubscriberKey struct {
	Connection string
	Request    uint64
}

func (k SubscriberKey) String() string {
	return fmt.Sprintf("%s/%d", k.Connection, k.Request)
}

// Subscription is the receiving end of one stream. It yields a state
// first, then deltas and further states, and ends with Done. Next must
// be called from a single goroutine.
type Subscription struct {
	hub        *Hub
	key        SubscriberKey
	path       ref.Path
	streamType flow.StreamType
	updates    *mailbox.Mailbox[Update]
	closeOnce  sync.Once
}

// Key returns the subscriber key.
func (s *Subscription) Key() SubscriberKey { return s.key }

// Path returns the subscribed path.
func (s *Subscription) Path() ref.Path { return s.path }

// StreamType returns the stream type of the subscribed flow.
func (s *Subscription) StreamType() flow.StreamType { return s.streamType }

// Next returns the next update, waiting for one if needed. After Done
// has been returned, or after Close, Next returns ErrClosed.
func (s *Subscription) Next(ctx context.Context) (Update, error) {
	update, err := s.updates.Receive(ctx)
	if errors.Is(err, mailbox.ErrClosed) {
		return Update{}, ErrClosed
	}
	return update, err
}

// Pending returns the number of updates queued but not yet read.
func (s *Subscription) Pending() int { return s.updates.Len() }

// Close stops delivery and asks the recorder to forget the
// subscriber. The request is best effort: if the recorder is already
// gone the failure is only logged, since recorder shutdown and
// connection loss clean up on their own.
func (s *Subscription) Close() {
	s.closeOnce.Do(func() {
		s.updates.Close()
		if s.hub != nil {
			s.hub.unsubscribe(s.path, s.key)
		}
	})
}

// deliver queues update for the subscriber. It returns false once the
// subscriber has closed.
func (s *Subscription) deliver(update Update) bool {
	return s.updates.Push(update)
}

// finish queues Done and closes the queue.
func (s *Subscription) finish() {
	s.updates.Push(Update{Kind: UpdateDone})
	s.updates.Close()
}

// StateOrDelta is a decoded subscription item: exactly one of State
// and Delta is set.
type StateOrDelta[S, E any] struct {
	State *S
	Delta flow.Delta[E]
}

// TypedSubscription decodes a Subscription for a known flow.
type TypedSubscription[S, E any] struct {
	raw *Subscription
}

// Watch subscribes to path and decodes its updates as f's state and
// event types. Returns flow.ErrStreamTypeMismatch if the flow at path
// is of another stream type.
func Watch[S, E any](hub *Hub, path ref.Path, f flow.Flow[S, E]) (*TypedSubscription[S, E], error) {
	raw, err := hub.Subscribe(path)
	if err != nil {
		return nil, err
	}
	if raw.StreamType() != f.StreamType() {
		raw.Close()
		return nil, fmt.Errorf("%w: %s is %q, not %q", flow.ErrStreamTypeMismatch, path, raw.StreamType(), f.StreamType())
	}
	return &TypedSubscription[S, E]{raw: raw}, nil
}

// Raw returns the undecoded subscription.
func (s *TypedSubscription[S, E]) Raw() *Subscription { return s.raw }

// Next returns the next decoded item. The stream ending with Done
// yields ErrClosed; an Error update is returned as an error.
func (s *TypedSubscription[S, E]) Next(ctx context.Context) (StateOrDelta[S, E], error) {
	for {
		update, err := s.raw.Next(ctx)
		if err != nil {
			return StateOrDelta[S, E]{}, err
		}
		switch update.Kind {
		case UpdateState:
			state, err := flow.UnpackState[S](update.Payload)
			if err != nil {
				return StateOrDelta[S, E]{}, err
			}
			return StateOrDelta[S, E]{State: &state}, nil
		case UpdateDelta:
			delta, err := flow.UnpackDelta[E](update.Payload)
			if err != nil {
				return StateOrDelta[S, E]{}, err
			}
			return StateOrDelta[S, E]{Delta: delta}, nil
		case UpdateError:
			return StateOrDelta[S, E]{}, fmt.Errorf("stream %s: %s", s.raw.Path(), update.Message)
		case UpdateDone:
			return StateOrDelta[S, E]{}, ErrClosed
		}
	}
}

// Close closes the underlying subscription.
func (s *TypedSubscription[S, E]) Close() { s.raw.Close() }
