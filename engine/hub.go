// Copyright 2026 The Rillrate Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/rillrate-fossil/rillrate-sub001/flow"
	"github.com/rillrate-fossil/rillrate-sub001/flows"
	"github.com/rillrate-fossil/rillrate-sub001/lib/clock"
	"github.com/rillrate-fossil/rillrate-sub001/lib/mailbox"
	"github.com/rillrate-fossil/rillrate-sub001/ref"
)

// LocalConnection is the connection id of subscriptions made with
// Hub.Subscribe.
const LocalConnection = "local"

// HubConfig configures a Hub.
type HubConfig struct {
	// Clock stamps events and drives pull tracers. Nil means
	// clock.Real().
	Clock clock.Clock

	// Logger receives recorder and tracer diagnostics. Nil means
	// slog.Default().
	Logger *slog.Logger
}

// Hub is the process-wide context of the engine: the set of live
// recorders, one per path, and the path registry. A process usually
// has one hub, created at startup and closed at shutdown.
type Hub struct {
	clock  clock.Clock
	logger *slog.Logger

	mu       sync.Mutex
	streams  map[string]stream
	closed   bool
	running  sync.WaitGroup
	stopping chan struct{}

	registry     *Tracer[flows.PathsState, flows.PathsEvent, flow.NoAction]
	localRequest atomic.Uint64
}

// NewHub creates a hub with an empty registry published at
// flows.PathsPath.
func NewHub(config HubConfig) *Hub {
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	hub := &Hub{
		clock:    config.Clock,
		logger:   config.Logger,
		streams:  make(map[string]stream),
		stopping: make(chan struct{}),
	}

	options := TracerOptions{Layer: flow.LayerTransparent}
	initial := flows.NewPathsState()
	self := flow.Description{Path: flows.PathsPath, Layer: options.Layer, StreamType: flows.PathsStreamType}
	initial.Entries[self.Path.Key()] = self

	registry, err := newTracer[flows.PathsState, flows.PathsEvent, flow.NoAction](hub, flows.PathsPath, flows.Paths{}, initial, options, false)
	if err != nil {
		panic(fmt.Sprintf("engine: creating path registry: %v", err))
	}
	hub.registry = registry
	return hub
}

// Clock returns the hub's clock.
func (h *Hub) Clock() clock.Clock { return h.clock }

// Logger returns the hub's logger.
func (h *Hub) Logger() *slog.Logger { return h.logger }

func (h *Hub) attach(path ref.Path, s stream) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return fmt.Errorf("attaching %s: %w", path, ErrClosed)
	}
	key := path.Key()
	if _, exists := h.streams[key]; exists {
		return fmt.Errorf("%w: %s", ErrPathInUse, path)
	}
	h.streams[key] = s

	h.running.Add(1)
	go func() {
		defer h.running.Done()
		s.run()
	}()
	return nil
}

func (h *Hub) detach(path ref.Path, s stream) {
	h.mu.Lock()
	defer h.mu.Unlock()
	key := path.Key()
	if h.streams[key] == s {
		delete(h.streams, key)
	}
}

func (h *Hub) lookup(path ref.Path) (stream, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	s, ok := h.streams[path.Key()]
	return s, ok
}

// Registration keeps a path in the registry until closed.
type Registration struct {
	hub       *Hub
	path      ref.Path
	closeOnce sync.Once
}

// Declare adds description to the path registry without a local
// tracer behind it. Tracers register themselves; Declare is for paths
// served elsewhere, such as those a node relays from its providers.
func (h *Hub) Declare(description flow.Description) *Registration {
	h.registry.Send(flows.AddPath(description))
	return &Registration{hub: h, path: description.Path}
}

// Path returns the registered path.
func (r *Registration) Path() ref.Path { return r.path }

// Close removes the path from the registry. Idempotent.
func (r *Registration) Close() {
	r.closeOnce.Do(func() {
		r.hub.registry.Send(flows.RemovePath(r.path))
	})
}

// Lookup returns the registry entry for path.
func (h *Hub) Lookup(path ref.Path) (description flow.Description, ok bool) {
	h.registry.Read(func(state flows.PathsState) {
		description, ok = state.Lookup(path)
	})
	return description, ok
}

// Paths returns every registered description sorted by path,
// including hidden ones.
func (h *Hub) Paths() (descriptions []flow.Description) {
	h.registry.Read(func(state flows.PathsState) {
		descriptions = state.Descriptions()
	})
	return descriptions
}

// Subscribe subscribes to path on the local connection.
func (h *Hub) Subscribe(path ref.Path) (*Subscription, error) {
	return h.SubscribeAs(path, SubscriberKey{
		Connection: LocalConnection,
		Request:    h.localRequest.Add(1),
	})
}

// SubscribeAs subscribes to path under key. A subscription already
// open under the same key is ended. Returns ErrUnknownPath if no
// tracer is registered at path.
func (h *Hub) SubscribeAs(path ref.Path, key SubscriberKey) (*Subscription, error) {
	s, ok := h.lookup(path)
	if !ok {
		return nil, fmt.Errorf("subscribing to %s: %w", path, ErrUnknownPath)
	}
	sub := &Subscription{
		hub:        h,
		key:        key,
		path:       path,
		streamType: s.description().StreamType,
		updates:    mailbox.New[Update](),
	}
	if !s.subscribe(sub) {
		return nil, fmt.Errorf("subscribing to %s: %w", path, ErrClosed)
	}
	return sub, nil
}

func (h *Hub) unsubscribe(path ref.Path, key SubscriberKey) {
	s, ok := h.lookup(path)
	if !ok || !s.unsubscribe(key) {
		h.logger.Debug("unsubscribe not delivered, recorder already gone",
			"path", path.String(), "subscriber", key.String())
	}
}

// Disconnected ends every subscription made under connection. Call it
// when a transport carrying subscriptions goes away.
func (h *Hub) Disconnected(connection string) {
	h.mu.Lock()
	streams := make([]stream, 0, len(h.streams))
	for _, s := range h.streams {
		streams = append(streams, s)
	}
	h.mu.Unlock()

	for _, s := range streams {
		s.disconnected(connection)
	}
}

// Act decodes payload as an action of the flow at path and delivers
// it to the flow's action consumer.
func (h *Hub) Act(path ref.Path, payload []byte) error {
	s, ok := h.lookup(path)
	if !ok {
		return fmt.Errorf("acting on %s: %w", path, ErrUnknownPath)
	}
	return s.act(payload)
}

// Close stops every recorder and pull loop, ending all subscriptions
// with Done, and waits for them to exit. Tracers created on the hub
// become inert; closing them afterwards is still allowed.
func (h *Hub) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	close(h.stopping)
	streams := make([]stream, 0, len(h.streams))
	for _, s := range h.streams {
		streams = append(streams, s)
	}
	h.mu.Unlock()

	for _, s := range streams {
		s.close()
	}
	h.running.Wait()
	return nil
}
