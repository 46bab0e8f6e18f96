// Copyright 2026 The Rillrate Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"fmt"
	"log/slog"

	"github.com/rillrate-fossil/rillrate-sub001/flow"
	"github.com/rillrate-fossil/rillrate-sub001/lib/codec"
	"github.com/rillrate-fossil/rillrate-sub001/lib/mailbox"
)

// stream is the type-erased view of a recorder held by the hub.
type stream interface {
	description() flow.Description
	subscribe(sub *Subscription) bool
	unsubscribe(key SubscriberKey) bool
	disconnected(connection string) bool
	act(payload []byte) error
	run()
	close()
	done() <-chan struct{}
}

type (
	eventMessage[E any] struct {
		event flow.TimedEvent[E]
	}
	snapshotMessage struct {
		data []byte
	}
	subscribeMessage struct {
		sub *Subscription
	}
	unsubscribeMessage struct {
		key SubscriberKey
	}
	disconnectedMessage struct {
		connection string
	}
	actionMessage[A any] struct {
		action A
	}
	attachMessage[A any] struct {
		box *mailbox.Mailbox[A]
	}
	detachMessage[A any] struct {
		box *mailbox.Mailbox[A]
	}
)

// recorder owns the canonical state of one path. Everything below
// the inbox is touched only by the run goroutine.
type recorder[S, E, A any] struct {
	desc   flow.Description
	flow   flow.Flow[S, E]
	logger *slog.Logger
	inbox  *mailbox.Mailbox[any]
	exited chan struct{}

	state       S
	pending     flow.Delta[E]
	subscribers map[SubscriberKey]*Subscription
	actions     *mailbox.Mailbox[A]
}

func newRecorder[S, E, A any](desc flow.Description, f flow.Flow[S, E], state S, logger *slog.Logger) *recorder[S, E, A] {
	return &recorder[S, E, A]{
		desc:        desc,
		flow:        f,
		logger:      logger.With("path", desc.Path.String(), "stream_type", string(desc.StreamType)),
		inbox:       mailbox.New[any](),
		exited:      make(chan struct{}),
		state:       state,
		subscribers: make(map[SubscriberKey]*Subscription),
	}
}

func (r *recorder[S, E, A]) description() flow.Description { return r.desc }

func (r *recorder[S, E, A]) post(message any) bool { return r.inbox.Push(message) }

func (r *recorder[S, E, A]) subscribe(sub *Subscription) bool {
	return r.post(subscribeMessage{sub: sub})
}

func (r *recorder[S, E, A]) unsubscribe(key SubscriberKey) bool {
	return r.post(unsubscribeMessage{key: key})
}

func (r *recorder[S, E, A]) disconnected(connection string) bool {
	return r.post(disconnectedMessage{connection: connection})
}

func (r *recorder[S, E, A]) act(payload []byte) error {
	var action A
	if err := codec.Unmarshal(payload, &action); err != nil {
		return fmt.Errorf("decoding action for %s: %w", r.desc.Path, err)
	}
	if !r.post(actionMessage[A]{action: action}) {
		return fmt.Errorf("%s: %w", r.desc.Path, ErrClosed)
	}
	return nil
}

func (r *recorder[S, E, A]) close() { r.inbox.Close() }

func (r *recorder[S, E, A]) done() <-chan struct{} { return r.exited }

// run is the recorder loop. Messages are handled in arrival order.
// Consecutive events are coalesced into one delta, which is flushed
// before any other message is handled so that snapshots and
// subscriber changes stay sequenced with the events around them.
func (r *recorder[S, E, A]) run() {
	defer close(r.exited)
	for {
		for _, message := range r.inbox.Drain() {
			r.handle(message)
		}
		r.flush()

		if r.inbox.Closed() {
			for _, message := range r.inbox.Drain() {
				r.handle(message)
			}
			r.flush()
			r.shutdown()
			return
		}
		<-r.inbox.Notify()
	}
}

func (r *recorder[S, E, A]) handle(message any) {
	if event, ok := message.(eventMessage[E]); ok {
		r.applyEvent(event.event)
		return
	}
	r.flush()

	switch message := message.(type) {
	case snapshotMessage:
		r.replaceState(message.data)
	case subscribeMessage:
		r.addSubscriber(message.sub)
	case unsubscribeMessage:
		if sub, ok := r.subscribers[message.key]; ok {
			delete(r.subscribers, message.key)
			sub.finish()
			r.logger.Debug("subscriber left", "subscriber", message.key.String())
		}
	case disconnectedMessage:
		r.dropConnection(message.connection)
	case actionMessage[A]:
		r.dispatchAction(message.action)
	case attachMessage[A]:
		if r.actions != nil && r.actions != message.box {
			r.actions.Close()
		}
		r.actions = message.box
	case detachMessage[A]:
		if r.actions == message.box {
			r.actions = nil
		}
	default:
		r.logger.Error("recorder received unexpected message", "type", fmt.Sprintf("%T", message))
	}
}

func (r *recorder[S, E, A]) applyEvent(event flow.TimedEvent[E]) {
	if err := r.flow.Apply(&r.state, event.Event); err != nil {
		r.logger.Warn("dropping invalid event", "timestamp", int64(event.Timestamp), "error", err)
		return
	}
	r.pending = append(r.pending, event)
}

// flush broadcasts the pending events as one delta.
func (r *recorder[S, E, A]) flush() {
	if len(r.pending) == 0 {
		return
	}
	delta := r.pending
	r.pending = nil
	if len(r.subscribers) == 0 {
		return
	}

	data, err := flow.PackDelta(delta)
	if err != nil {
		r.failAll(err)
		return
	}
	r.broadcast(Update{Kind: UpdateDelta, Payload: data})
}

// replaceState installs a state published by a pull tracer and sends
// it to every subscriber as is.
func (r *recorder[S, E, A]) replaceState(data []byte) {
	state, err := flow.UnpackState[S](data)
	if err != nil {
		r.logger.Error("discarding undecodable snapshot", "error", err)
		return
	}
	r.state = state
	r.broadcast(Update{Kind: UpdateState, Payload: data})
}

func (r *recorder[S, E, A]) broadcast(update Update) {
	for key, sub := range r.subscribers {
		if !sub.deliver(update) {
			delete(r.subscribers, key)
			r.logger.Debug("dropping closed subscriber", "subscriber", key.String())
		}
	}
}

// addSubscriber sends the canonical state to sub and starts delivering
// deltas to it. A subscriber already registered under the same key is
// ended first.
func (r *recorder[S, E, A]) addSubscriber(sub *Subscription) {
	if previous, ok := r.subscribers[sub.key]; ok && previous != sub {
		previous.finish()
	}

	data, err := flow.PackState(r.state)
	if err != nil {
		r.logger.Error("cannot snapshot state", "subscriber", sub.key.String(), "error", err)
		sub.deliver(Update{Kind: UpdateError, Message: err.Error()})
		sub.finish()
		delete(r.subscribers, sub.key)
		return
	}
	if !sub.deliver(Update{Kind: UpdateState, Payload: data}) {
		return
	}
	r.subscribers[sub.key] = sub
	r.logger.Debug("subscriber joined", "subscriber", sub.key.String(), "subscribers", len(r.subscribers))
}

func (r *recorder[S, E, A]) dropConnection(connection string) {
	dropped := 0
	for key, sub := range r.subscribers {
		if key.Connection != connection {
			continue
		}
		delete(r.subscribers, key)
		sub.finish()
		dropped++
	}
	if dropped > 0 {
		r.logger.Debug("connection gone", "connection", connection, "dropped", dropped)
	}
}

func (r *recorder[S, E, A]) dispatchAction(action A) {
	if r.actions == nil || !r.actions.Push(action) {
		r.actions = nil
		r.logger.Warn("dropping action, no consumer attached")
	}
}

// failAll reports an encoding failure to every subscriber and ends
// their streams. The recorder itself keeps running; new subscribers
// get a fresh snapshot.
func (r *recorder[S, E, A]) failAll(err error) {
	r.logger.Error("cannot encode delta", "error", err)
	for key, sub := range r.subscribers {
		sub.deliver(Update{Kind: UpdateError, Message: err.Error()})
		sub.finish()
		delete(r.subscribers, key)
	}
}

func (r *recorder[S, E, A]) shutdown() {
	for key, sub := range r.subscribers {
		sub.finish()
		delete(r.subscribers, key)
	}
	if r.actions != nil {
		r.actions.Close()
		r.actions = nil
	}
	r.logger.Debug("recorder stopped")
}
