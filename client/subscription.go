// Copyright 2026 The Rillrate Authors
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rillrate-fossil/rillrate-sub001/flow"
	"github.com/rillrate-fossil/rillrate-sub001/lib/mailbox"
	"github.com/rillrate-fossil/rillrate-sub001/protocol"
	"github.com/rillrate-fossil/rillrate-sub001/ref"
)

// Update is one decoded item of a stream. Data is the uncompressed
// packed state or delta.
type Update struct {
	Kind       protocol.ResponseKind
	StreamType flow.StreamType
	Data       []byte
}

// StreamError is a failure the node or provider reported for a stream.
type StreamError struct {
	Path    ref.Path
	Message string
}

func (e *StreamError) Error() string {
	return fmt.Sprintf("stream %s: %s", e.Path, e.Message)
}

// Subscription is one stream of a Client. Next must be called from a
// single goroutine.
type Subscription struct {
	client     *Client
	id         protocol.DirectID
	path       ref.Path
	streamType flow.StreamType
	responses  *mailbox.Mailbox[protocol.Response]
	closeOnce  sync.Once
}

// ID returns the request id of the stream.
func (s *Subscription) ID() protocol.DirectID { return s.id }

// Path returns the subscribed path.
func (s *Subscription) Path() ref.Path { return s.path }

// StreamType returns the stream type announced by the last state, or
// "" before the first state.
func (s *Subscription) StreamType() flow.StreamType { return s.streamType }

// Next returns the next state or delta. It returns a *StreamError when
// the node reports a failure, and ErrClosed once the stream has ended.
func (s *Subscription) Next(ctx context.Context) (Update, error) {
	for {
		response, err := s.responses.Receive(ctx)
		if errors.Is(err, mailbox.ErrClosed) {
			return Update{}, ErrClosed
		}
		if err != nil {
			return Update{}, err
		}

		switch response.Kind {
		case protocol.ResponseState, protocol.ResponseDelta:
			data, err := response.Data()
			if err != nil {
				return Update{}, fmt.Errorf("stream %s: %w", s.path, err)
			}
			if response.Kind == protocol.ResponseState {
				s.streamType = response.StreamType
			}
			return Update{Kind: response.Kind, StreamType: s.streamType, Data: data}, nil
		case protocol.ResponseError:
			return Update{}, &StreamError{Path: s.path, Message: response.Message}
		case protocol.ResponseDone:
			return Update{}, ErrClosed
		}
	}
}

// Close asks the node to end the stream and stops delivery.
func (s *Subscription) Close() {
	s.closeOnce.Do(func() {
		s.client.forget(s.id)
		s.responses.Close()
		s.responses.Drain()
		if err := s.client.send(protocol.ControlStream(s.id, s.path, false)); err != nil {
			s.client.logger.Debug("unsubscribe not sent", "path", s.path.String(), "error", err)
		}
	})
}

// Mirror keeps a decoded replica of a stream. Next must be called from
// a single goroutine; Value and Pack may be called from any.
type Mirror struct {
	sub      *Subscription
	registry *flow.Registry

	mu      sync.Mutex
	replica flow.Replica
}

// Mirror subscribes to path and returns a mirror of it.
func (c *Client) Mirror(path ref.Path) (*Mirror, error) {
	sub, err := c.Subscribe(path)
	if err != nil {
		return nil, err
	}
	return &Mirror{sub: sub, registry: c.registry}, nil
}

// Next waits for the next update and applies it to the replica.
func (m *Mirror) Next(ctx context.Context) error {
	update, err := m.sub.Next(ctx)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	switch update.Kind {
	case protocol.ResponseState:
		replica, err := m.registry.Restore(update.StreamType, update.Data)
		if err != nil {
			return err
		}
		m.replica = replica
	case protocol.ResponseDelta:
		if m.replica == nil {
			return fmt.Errorf("stream %s: delta before state", m.sub.path)
		}
		if err := m.replica.ApplyDelta(update.Data); err != nil {
			return err
		}
	}
	return nil
}

// Value returns a copy of the current state, or nil before the first
// state. The copy is safe to read while Next runs.
func (m *Mirror) Value() any {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.replica == nil {
		return nil
	}
	return m.replica.Value()
}

// Pack returns the current state packed, or nil before the first
// state.
func (m *Mirror) Pack() ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.replica == nil {
		return nil, nil
	}
	return m.replica.Pack()
}

// Subscription returns the underlying stream.
func (m *Mirror) Subscription() *Subscription { return m.sub }

// Close ends the stream.
func (m *Mirror) Close() { m.sub.Close() }

// Value returns the mirror's state as S. It returns false before the
// first state or if the stream holds another type.
func Value[S any](m *Mirror) (S, bool) {
	state, ok := m.Value().(S)
	return state, ok
}
