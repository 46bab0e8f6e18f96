// Copyright 2026 The Rillrate Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"errors"
	"sync"

	"github.com/rillrate-fossil/rillrate-sub001/lib/mailbox"
)

// ActionReceiver is the single consumer of a tracer's actions.
type ActionReceiver[A any] struct {
	box       *mailbox.Mailbox[A]
	release   func()
	closeOnce sync.Once
}

// Next returns the next action, waiting for one if needed. After Close,
// actions that were already delivered are still returned; then Next
// returns ErrClosed. Next also returns ErrClosed once the tracer is
// closed and the queue is empty.
func (r *ActionReceiver[A]) Next(ctx context.Context) (A, error) {
	action, err := r.box.Receive(ctx)
	if errors.Is(err, mailbox.ErrClosed) {
		return action, ErrClosed
	}
	return action, err
}

// Close detaches the receiver. Actions arriving afterwards are dropped
// until another receiver is taken.
func (r *ActionReceiver[A]) Close() {
	r.closeOnce.Do(func() {
		r.box.Close()
		r.release()
	})
}

// OnAction starts a callback worker that calls callback for every
// action, one at a time and in arrival order. The returned detach
// function stops accepting new actions, waits until the worker has
// handled every action already delivered to it, and returns. Returns
// ErrAlreadyTaken if another consumer holds the actions.
func (t *Tracer[S, E, A]) OnAction(callback func(A)) (detach func(), err error) {
	receiver, err := t.TakeActions()
	if err != nil {
		return nil, err
	}

	exited := make(chan struct{})
	go func() {
		defer close(exited)
		for {
			action, err := receiver.Next(context.Background())
			if err != nil {
				return
			}
			callback(action)
		}
	}()

	return func() {
		receiver.Close()
		<-exited
	}, nil
}
