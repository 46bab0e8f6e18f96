// Copyright 2026 The Rillrate Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/zeebo/blake3"

	"github.com/rillrate-fossil/rillrate-sub001/flow"
	"github.com/rillrate-fossil/rillrate-sub001/lib/clock"
	"github.com/rillrate-fossil/rillrate-sub001/lib/mailbox"
	"github.com/rillrate-fossil/rillrate-sub001/ref"
)

// TracerOptions configures a tracer.
type TracerOptions struct {
	// Mode selects how changes reach subscribers. Zero is Realtime.
	Mode Mode

	// Layer is recorded in the path registry for dashboards. Control
	// tracers always register as flow.LayerControl.
	Layer flow.Layer
}

// Tracer is the write handle of one flow instance. Only the tracer
// changes the flow's state; Send applies an event to the tracer's
// local copy at once and forwards it to the recorder without waiting.
// All methods are safe for concurrent use.
type Tracer[S, E, A any] struct {
	hub          *Hub
	desc         flow.Description
	flow         flow.Flow[S, E]
	mode         Mode
	logger       *slog.Logger
	recorder     *recorder[S, E, A]
	registration *Registration

	mu           sync.Mutex
	state        S
	closed       bool
	dirty        bool
	published    [32]byte
	actionsTaken bool

	stop      chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once
}

// NewTracer creates the tracer for a flow that takes no actions,
// registers path in the hub's registry and starts its recorder. The
// recorder starts from a copy of initial.
func NewTracer[S, E any](hub *Hub, path ref.Path, f flow.Flow[S, E], initial S, options TracerOptions) (*Tracer[S, E, flow.NoAction], error) {
	return newTracer[S, E, flow.NoAction](hub, path, f, initial, options, true)
}

// NewControlTracer is NewTracer for a flow that accepts actions of
// type A from subscribers. Consume them with TakeActions or OnAction.
//
//	mode, err := engine.NewControlTracer[flows.Choose](hub, path, flows.Selector{},
//		flows.NewSelectorState("mode", "fast", "slow"), engine.TracerOptions{})
func NewControlTracer[A, S, E any](hub *Hub, path ref.Path, f flow.Flow[S, E], initial S, options TracerOptions) (*Tracer[S, E, A], error) {
	options.Layer = flow.LayerControl
	return newTracer[S, E, A](hub, path, f, initial, options, true)
}

func newTracer[S, E, A any](hub *Hub, path ref.Path, f flow.Flow[S, E], initial S, options TracerOptions, register bool) (*Tracer[S, E, A], error) {
	if path.IsZero() {
		return nil, errors.New("creating tracer: empty path")
	}
	desc := flow.Description{Path: path, Layer: options.Layer, StreamType: f.StreamType()}

	// The recorder needs its own copy: states may hold pointers.
	packed, err := flow.PackState(initial)
	if err != nil {
		return nil, fmt.Errorf("creating tracer for %s: %w", path, err)
	}
	canonical, err := flow.UnpackState[S](packed)
	if err != nil {
		return nil, fmt.Errorf("creating tracer for %s: %w", path, err)
	}

	tracer := &Tracer[S, E, A]{
		hub:       hub,
		desc:      desc,
		flow:      f,
		mode:      options.Mode,
		logger:    hub.logger.With("path", path.String()),
		recorder:  newRecorder[S, E, A](desc, f, canonical, hub.logger),
		state:     initial,
		published: blake3.Sum256(packed),
	}
	if err := hub.attach(path, tracer.recorder); err != nil {
		return nil, err
	}
	if register {
		tracer.registration = hub.Declare(desc)
	}

	if tracer.mode.kind == modePull {
		tracer.stop = make(chan struct{})
		tracer.stopped = make(chan struct{})
		ticker := hub.clock.NewTicker(tracer.mode.interval)
		hub.running.Add(1)
		go func() {
			defer hub.running.Done()
			tracer.pullLoop(ticker)
		}()
	}
	return tracer, nil
}

// Description returns what the tracer registered.
func (t *Tracer[S, E, A]) Description() flow.Description { return t.desc }

// Path returns the tracer's path.
func (t *Tracer[S, E, A]) Path() ref.Path { return t.desc.Path }

// Mode returns the publication mode.
func (t *Tracer[S, E, A]) Mode() Mode { return t.mode }

// Now returns the hub clock's current time as an event timestamp.
func (t *Tracer[S, E, A]) Now() flow.Timestamp { return flow.Now(t.hub.clock) }

// Send applies event stamped with the current time. See SendAt.
func (t *Tracer[S, E, A]) Send(event E) {
	t.SendAt(event, t.Now())
}

// SendAt applies event to the local state and hands it to the
// recorder. It never blocks on subscribers. An event the flow rejects
// is logged and dropped, leaving the state as it was. Sends after
// Close are ignored.
func (t *Tracer[S, E, A]) SendAt(event E, timestamp flow.Timestamp) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		t.logger.Debug("ignoring event sent after close")
		return
	}
	if err := t.flow.Apply(&t.state, event); err != nil {
		t.logger.Warn("dropping invalid event", "error", err)
		return
	}

	switch t.mode.kind {
	case modeRealtime:
		t.recorder.post(eventMessage[E]{event: flow.TimedEvent[E]{Timestamp: timestamp, Event: event}})
	case modePull:
		t.dirty = true
	case modePushOnce:
	}
}

// SendAction delivers action to whichever consumer currently holds
// the tracer's action stream, as if a subscriber had sent it. With no
// consumer attached the action is dropped and logged.
func (t *Tracer[S, E, A]) SendAction(action A) error {
	if !t.recorder.post(actionMessage[A]{action: action}) {
		return fmt.Errorf("%s: %w", t.desc.Path, ErrClosed)
	}
	return nil
}

// Read calls fn with the tracer's current local state. fn runs under
// the tracer's lock: it must not retain or modify the state, and must
// not call back into the tracer.
func (t *Tracer[S, E, A]) Read(fn func(state S)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fn(t.state)
}

// Snapshot returns the packed local state.
func (t *Tracer[S, E, A]) Snapshot() ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return flow.PackState(t.state)
}

// TakeActions claims the tracer's action stream. Only one receiver
// may exist at a time: a second claim fails with ErrAlreadyTaken
// until the first receiver is closed.
func (t *Tracer[S, E, A]) TakeActions() (*ActionReceiver[A], error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil, fmt.Errorf("%s: %w", t.desc.Path, ErrClosed)
	}
	if t.actionsTaken {
		return nil, fmt.Errorf("actions of %s: %w", t.desc.Path, ErrAlreadyTaken)
	}

	box := mailbox.New[A]()
	if !t.recorder.post(attachMessage[A]{box: box}) {
		return nil, fmt.Errorf("%s: %w", t.desc.Path, ErrClosed)
	}
	t.actionsTaken = true
	return &ActionReceiver[A]{box: box, release: func() { t.releaseActions(box) }}, nil
}

func (t *Tracer[S, E, A]) releaseActions(box *mailbox.Mailbox[A]) {
	t.mu.Lock()
	t.actionsTaken = false
	t.mu.Unlock()
	t.recorder.post(detachMessage[A]{box: box})
}

// Close unregisters the path, ends every subscription with Done and
// stops the recorder. A pull tracer publishes its final state first.
// Close is idempotent.
func (t *Tracer[S, E, A]) Close() error {
	t.closeOnce.Do(func() {
		if t.stop != nil {
			close(t.stop)
			<-t.stopped
			t.publish()
		}

		t.mu.Lock()
		t.closed = true
		t.mu.Unlock()

		if t.registration != nil {
			t.registration.Close()
		}
		t.hub.detach(t.desc.Path, t.recorder)
		t.recorder.close()
	})
	return nil
}

// Done is closed once the recorder has delivered Done to every
// subscriber and exited.
func (t *Tracer[S, E, A]) Done() <-chan struct{} { return t.recorder.done() }

// pullLoop publishes the state on every tick until the tracer or the
// hub closes. The ticker drops ticks while a publication is running,
// so missed intervals are skipped.
func (t *Tracer[S, E, A]) pullLoop(ticker *clock.Ticker) {
	defer close(t.stopped)
	defer ticker.Stop()
	for {
		select {
		case <-t.stop:
			return
		case <-t.hub.stopping:
			return
		case <-ticker.C:
			t.publish()
		}
	}
}

// publish sends the local state to the recorder if it changed since
// the last publication. Unchanged states are detected by fingerprint,
// so an event that cancels out a previous one publishes nothing.
func (t *Tracer[S, E, A]) publish() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.dirty {
		return
	}
	t.dirty = false

	data, err := flow.PackState(t.state)
	if err != nil {
		t.logger.Error("cannot pack state for publication", "error", err)
		return
	}
	fingerprint := blake3.Sum256(data)
	if fingerprint == t.published {
		return
	}
	t.published = fingerprint
	t.recorder.post(snapshotMessage{data: data})
}
