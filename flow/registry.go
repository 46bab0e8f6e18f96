// Copyright 2026 The Rillrate Authors
// SPDX-License-Identifier: Apache-2.0

package flow

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrUnknownStreamType is returned for stream types nobody registered.
var ErrUnknownStreamType = errors.New("unknown stream type")

// Kind is the type-erased form of a Flow: it works on packed bytes so
// that code holding only a StreamType can still follow a stream.
type Kind interface {
	StreamType() StreamType

	// Restore decodes a snapshot into a Replica.
	Restore(snapshot []byte) (Replica, error)
}

// Replica is a decoded state owned by a reader.
type Replica interface {
	StreamType() StreamType

	// ApplyDelta decodes delta and applies its events in order.
	ApplyDelta(delta []byte) error

	// Pack encodes the current state.
	Pack() ([]byte, error)

	// Value returns a copy of the current state as the flow's Go type.
	// The copy shares nothing with the replica, so later deltas do not
	// change it. It is nil if the state cannot be re-encoded.
	Value() any
}

// KindOf adapts a typed Flow to a Kind.
func KindOf[S, E any](f Flow[S, E]) Kind {
	return kind[S, E]{flow: f}
}

type kind[S, E any] struct {
	flow Flow[S, E]
}

func (k kind[S, E]) StreamType() StreamType { return k.flow.StreamType() }

func (k kind[S, E]) Restore(snapshot []byte) (Replica, error) {
	state, err := UnpackState[S](snapshot)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", k.flow.StreamType(), err)
	}
	return &replica[S, E]{flow: k.flow, state: state}, nil
}

type replica[S, E any] struct {
	flow  Flow[S, E]
	state S
}

func (r *replica[S, E]) StreamType() StreamType { return r.flow.StreamType() }

func (r *replica[S, E]) ApplyDelta(data []byte) error {
	delta, err := UnpackDelta[E](data)
	if err != nil {
		return fmt.Errorf("%s: %w", r.flow.StreamType(), err)
	}
	return ApplyDelta(r.flow, &r.state, delta)
}

func (r *replica[S, E]) Pack() ([]byte, error) { return PackState(r.state) }

func (r *replica[S, E]) Value() any {
	data, err := PackState(r.state)
	if err != nil {
		return nil
	}
	state, err := UnpackState[S](data)
	if err != nil {
		return nil
	}
	return state
}

// Registry maps stream types to kinds. Safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	kinds map[StreamType]Kind
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{kinds: make(map[StreamType]Kind)}
}

// Register adds kind. Registering a stream type twice is an error.
func (r *Registry) Register(kind Kind) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	streamType := kind.StreamType()
	if _, exists := r.kinds[streamType]; exists {
		return fmt.Errorf("stream type %q already registered", streamType)
	}
	r.kinds[streamType] = kind
	return nil
}

// Lookup returns the kind registered for streamType.
func (r *Registry) Lookup(streamType StreamType) (Kind, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kind, ok := r.kinds[streamType]
	return kind, ok
}

// Restore decodes snapshot with the kind registered for streamType.
func (r *Registry) Restore(streamType StreamType, snapshot []byte) (Replica, error) {
	kind, ok := r.Lookup(streamType)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownStreamType, streamType)
	}
	return kind.Restore(snapshot)
}

// StreamTypes returns the registered stream types, sorted.
func (r *Registry) StreamTypes() []StreamType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]StreamType, 0, len(r.kinds))
	for streamType := range r.kinds {
		types = append(types, streamType)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}
