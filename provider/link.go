// Copyright 2026 The Rillrate Authors
// SPDX-License-Identifier: Apache-2.0

package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/rillrate-fossil/rillrate-sub001/engine"
	"github.com/rillrate-fossil/rillrate-sub001/flow"
	"github.com/rillrate-fossil/rillrate-sub001/flows"
	"github.com/rillrate-fossil/rillrate-sub001/lib/netutil"
	"github.com/rillrate-fossil/rillrate-sub001/protocol"
	"github.com/rillrate-fossil/rillrate-sub001/ref"
)

// ErrRejected is returned when the node refuses the provider.
var ErrRejected = errors.New("rejected by node")

// Config configures a provider link.
type Config struct {
	// Name identifies the provider in node logs.
	Name string

	// Hub is the hub whose paths are provided.
	Hub *engine.Hub

	// Logger receives link diagnostics. Nil means Hub.Logger().
	Logger *slog.Logger

	// CompressionThreshold is the payload size from which states and
	// deltas are compressed. Zero disables compression.
	CompressionThreshold int

	// RetryInterval is the pause between connection attempts in Run.
	// Zero means one second.
	RetryInterval time.Duration
}

func (c *Config) defaults() error {
	if c.Hub == nil {
		return errors.New("provider: config has no hub")
	}
	if c.Name == "" {
		c.Name = "provider"
	}
	if c.Logger == nil {
		c.Logger = c.Hub.Logger()
	}
	if c.RetryInterval <= 0 {
		c.RetryInterval = time.Second
	}
	return nil
}

// link is the state of one connection.
type link struct {
	config     Config
	hub        *engine.Hub
	logger     *slog.Logger
	connection string
	writer     *protocol.FrameWriter

	mu      sync.Mutex
	streams map[protocol.DirectID]*engine.Subscription
	pumps   sync.WaitGroup
}

// Serve runs the provider side of conn until ctx ends, the node
// closes the link, or the link fails. It returns nil when ctx ends or
// the node closes the connection cleanly. Serve closes conn.
func Serve(ctx context.Context, conn net.Conn, config Config) error {
	if err := config.defaults(); err != nil {
		return err
	}
	defer conn.Close()

	connection := "node-" + uuid.NewString()
	l := &link{
		config:     config,
		hub:        config.Hub,
		logger:     config.Logger.With("connection", connection),
		connection: connection,
		writer:     protocol.NewFrameWriter(conn, protocol.FrameProvider),
		streams:    make(map[protocol.DirectID]*engine.Subscription),
	}
	if err := l.handshake(conn); err != nil {
		return err
	}
	l.logger.Info("provider link established")

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		<-groupCtx.Done()
		conn.Close()
		return nil
	})
	group.Go(func() error {
		return l.announce(groupCtx)
	})
	group.Go(func() error {
		err := l.readRequests(conn)
		if err == nil {
			err = io.EOF
		}
		return err
	})

	err := group.Wait()
	l.shutdown()
	if ctx.Err() != nil || netutil.IsExpectedCloseError(err) {
		return nil
	}
	return err
}

// Run keeps a link to the node at address alive until ctx ends,
// reconnecting after failures. Rejections are retried too: the node
// may have freed a slot by the next attempt.
func Run(ctx context.Context, address string, config Config) error {
	if err := config.defaults(); err != nil {
		return err
	}
	var dialer net.Dialer
	for {
		conn, err := dialer.DialContext(ctx, "tcp", address)
		if err == nil {
			err = Serve(ctx, conn, config)
		}
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			config.Logger.Warn("provider link failed", "address", address, "error", err)
		} else {
			config.Logger.Info("provider link closed by node", "address", address)
		}

		select {
		case <-config.Hub.Clock().After(config.RetryInterval):
		case <-ctx.Done():
			return nil
		}
	}
}

func (l *link) handshake(conn net.Conn) error {
	if err := l.writer.Write(protocol.Hello(l.config.Name)); err != nil {
		return fmt.Errorf("sending hello: %w", err)
	}
	var reply protocol.NodeMessage
	if err := protocol.ReadFrame(conn, protocol.FrameNode, &reply); err != nil {
		return fmt.Errorf("waiting for welcome: %w", err)
	}
	switch reply.Kind {
	case protocol.NodeWelcome:
		return nil
	case protocol.NodeReject:
		return fmt.Errorf("%w: %s", ErrRejected, reply.Message)
	default:
		return fmt.Errorf("unexpected %s message during handshake", reply.Kind)
	}
}

// announce mirrors the hub registry to the node as Describe and
// Forget messages. Hidden paths stay local.
func (l *link) announce(ctx context.Context) error {
	registry, err := engine.Watch(l.hub, flows.PathsPath, flows.Paths{})
	if err != nil {
		return fmt.Errorf("watching registry: %w", err)
	}
	defer registry.Close()

	announced := make(map[string]ref.Path)
	for {
		item, err := registry.Next(ctx)
		if err != nil {
			if errors.Is(err, engine.ErrClosed) || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("reading registry: %w", err)
		}

		if item.State != nil {
			if err := l.announceState(*item.State, announced); err != nil {
				return err
			}
			continue
		}
		for _, timed := range item.Delta {
			if err := l.announceEvent(timed.Event, announced); err != nil {
				return err
			}
		}
	}
}

func (l *link) announceState(state flows.PathsState, announced map[string]ref.Path) error {
	for key, path := range announced {
		if _, still := state.Entries[key]; !still {
			if err := l.announceEvent(flows.RemovePath(path), announced); err != nil {
				return err
			}
		}
	}
	for _, description := range state.Descriptions() {
		if err := l.announceEvent(flows.AddPath(description), announced); err != nil {
			return err
		}
	}
	return nil
}

func (l *link) announceEvent(event flows.PathsEvent, announced map[string]ref.Path) error {
	switch {
	case event.Add != nil:
		description := *event.Add
		if description.Path.IsHidden() {
			return nil
		}
		announced[description.Path.Key()] = description.Path
		return l.write(protocol.Describe(description))
	case event.Remove != nil:
		key := event.Remove.Key()
		if _, ok := announced[key]; !ok {
			return nil
		}
		delete(announced, key)
		return l.write(protocol.Forget(*event.Remove))
	}
	return nil
}

func (l *link) readRequests(conn net.Conn) error {
	for {
		var message protocol.NodeMessage
		if err := protocol.ReadFrame(conn, protocol.FrameNode, &message); err != nil {
			return err
		}
		if message.Kind != protocol.NodeRequest || message.Request == nil {
			l.logger.Warn("ignoring unexpected node message", "kind", message.Kind.String())
			continue
		}
		l.handleRequest(*message.Request)
	}
}

func (l *link) handleRequest(request protocol.Request) {
	if err := request.Validate(); err != nil {
		l.logger.Warn("invalid relayed request", "request_id", uint64(request.ID), "error", err)
		l.write(protocol.Error(request.ID, err.Error()))
		return
	}

	switch request.Kind {
	case protocol.RequestControlStream:
		if request.Active {
			l.startStream(request.ID, request.Path)
		} else {
			l.stopStream(request.ID)
		}
	case protocol.RequestAction:
		if err := l.hub.Act(request.Path, request.Payload); err != nil {
			l.logger.Warn("action failed", "path", request.Path.String(), "error", err)
			l.write(protocol.Error(request.ID, err.Error()))
		}
	}
}

func (l *link) startStream(id protocol.DirectID, path ref.Path) {
	sub, err := l.hub.SubscribeAs(path, engine.SubscriberKey{Connection: l.connection, Request: uint64(id)})
	if err != nil {
		l.write(protocol.Error(id, err.Error()))
		l.write(protocol.Done(id))
		return
	}

	l.mu.Lock()
	if previous, ok := l.streams[id]; ok {
		previous.Close()
	}
	l.streams[id] = sub
	l.mu.Unlock()

	l.pumps.Add(1)
	go func() {
		defer l.pumps.Done()
		l.pump(id, sub)
	}()
}

func (l *link) stopStream(id protocol.DirectID) {
	l.mu.Lock()
	sub, ok := l.streams[id]
	l.mu.Unlock()
	if ok {
		sub.Close()
	}
}

// updateSource is the part of an engine.Subscription that pump reads.
type updateSource interface {
	Next(ctx context.Context) (engine.Update, error)
	StreamType() flow.StreamType
	Close()
}

// pump forwards one subscription to the node until it ends. It always
// finishes the stream with Done. An update that cannot be encoded ends
// the stream with Error and Done; nothing queued behind it is sent.
func (l *link) pump(id protocol.DirectID, sub updateSource) {
	defer func() {
		l.mu.Lock()
		if l.streams[id] == sub {
			delete(l.streams, id)
		}
		l.mu.Unlock()
	}()

	for {
		update, err := sub.Next(context.Background())
		if err != nil {
			l.write(protocol.Done(id))
			return
		}
		response, err := l.encode(id, sub.StreamType(), update)
		if err != nil {
			l.logger.Error("cannot encode update", "request_id", uint64(id), "error", err)
			sub.Close()
			l.write(protocol.Error(id, err.Error()))
			l.write(protocol.Done(id))
			return
		}
		if err := l.write(response); err != nil {
			sub.Close()
			return
		}
		if update.Kind == engine.UpdateDone {
			return
		}
	}
}

func (l *link) encode(id protocol.DirectID, streamType flow.StreamType, update engine.Update) (protocol.Response, error) {
	switch update.Kind {
	case engine.UpdateState:
		return protocol.State(id, streamType, update.Payload, l.config.CompressionThreshold)
	case engine.UpdateDelta:
		return protocol.Delta(id, update.Payload, l.config.CompressionThreshold)
	case engine.UpdateError:
		return protocol.Error(id, update.Message), nil
	case engine.UpdateDone:
		return protocol.Done(id), nil
	default:
		return protocol.Response{}, fmt.Errorf("unknown update kind %s", update.Kind)
	}
}

func (l *link) write(message any) error {
	if response, ok := message.(protocol.Response); ok {
		message = protocol.Reply(response)
	}
	if err := l.writer.Write(message); err != nil {
		l.logger.Debug("write to node failed", "error", err)
		return err
	}
	return nil
}

// shutdown ends every stream served over the link. Disconnected is
// the authoritative cleanup; closing the subscriptions locally only
// unblocks the pumps.
func (l *link) shutdown() {
	l.hub.Disconnected(l.connection)

	l.mu.Lock()
	streams := make([]*engine.Subscription, 0, len(l.streams))
	for _, sub := range l.streams {
		streams = append(streams, sub)
	}
	l.mu.Unlock()
	for _, sub := range streams {
		sub.Close()
	}
	l.pumps.Wait()
	l.logger.Info("provider link closed")
}
