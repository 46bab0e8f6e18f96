// Copyright 2026 The Rillrate Authors
// SPDX-License-Identifier: Apache-2.0

package node

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/rillrate-fossil/rillrate-sub001/admission"
	"github.com/rillrate-fossil/rillrate-sub001/engine"
	"github.com/rillrate-fossil/rillrate-sub001/flow"
	"github.com/rillrate-fossil/rillrate-sub001/flows"
	"github.com/rillrate-fossil/rillrate-sub001/lib/codec"
	"github.com/rillrate-fossil/rillrate-sub001/lib/mailbox"
	"github.com/rillrate-fossil/rillrate-sub001/lib/netutil"
	"github.com/rillrate-fossil/rillrate-sub001/protocol"
	"github.com/rillrate-fossil/rillrate-sub001/ref"
)

const (
	writeTimeout   = 10 * time.Second
	controlTimeout = time.Second
)

// session is one dashboard connection.
type session struct {
	server *Server
	id     uuid.UUID
	acl    *admission.SessionAcl
	conn   *websocket.Conn
	logger *slog.Logger
	outbox *mailbox.Mailbox[protocol.Response]

	mu      sync.Mutex
	streams map[protocol.DirectID]*sessionStream
	closed  bool

	done      chan struct{}
	evictOnce sync.Once
}

// sessionStream is an open dashboard stream. Exactly one of provider
// and meta is set.
type sessionStream struct {
	path       ref.Path
	provider   *providerConn
	providerID protocol.DirectID
	meta       *engine.Subscription
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	s.serving.Add(1)
	defer s.serving.Done()

	sess := s.newSession(conn)
	if err := s.clients.Acquire(sess.id, sess); err != nil {
		s.metrics.rejected.WithLabelValues("client").Inc()
		sess.logger.Info("rejecting dashboard", "remote", r.RemoteAddr, "error", err)
		sess.evict(websocket.CloseTryAgainLater, "connection limit reached")
		return
	}
	defer s.clients.Release(sess.id)

	s.metrics.sessions.Inc()
	defer s.metrics.sessions.Dec()
	sess.logger.Info("dashboard connected", "remote", r.RemoteAddr, "session", sess.acl.ID().String())

	sess.serve()
	sess.logger.Info("dashboard disconnected")
}

func (s *Server) newSession(conn *websocket.Conn) *session {
	id := uuid.New()
	acl := admission.NewSessionAcl()
	if s.config.UnlockAll {
		acl.UnlockAll()
	}
	for _, path := range s.config.AllowedPaths {
		acl.AddPath(path)
	}
	return &session{
		server:  s,
		id:      id,
		acl:     acl,
		conn:    conn,
		logger:  s.logger.With("connection", id.String()),
		outbox:  mailbox.New[protocol.Response](),
		streams: make(map[protocol.DirectID]*sessionStream),
		done:    make(chan struct{}),
	}
}

// serve runs the session until the dashboard goes away or the session
// is evicted.
func (sess *session) serve() {
	sess.outbox.Push(protocol.Declare(sess.acl.ID()))

	var writer sync.WaitGroup
	writer.Add(1)
	go func() {
		defer writer.Done()
		sess.writeLoop()
	}()

	if err := sess.readLoop(); err != nil && !netutil.IsExpectedCloseError(err) {
		sess.logger.Info("dashboard read failed", "error", err)
	}

	sess.cleanup()
	writer.Wait()
	sess.conn.Close()
}

func (sess *session) readLoop() error {
	sess.conn.SetReadLimit(protocol.MaxFrameLength)
	for {
		messageType, data, err := sess.conn.ReadMessage()
		if err != nil {
			return err
		}
		if messageType != websocket.BinaryMessage {
			sess.outbox.Push(protocol.Error(0, "expected a binary message"))
			continue
		}
		var request protocol.Request
		if err := codec.Unmarshal(data, &request); err != nil {
			sess.outbox.Push(protocol.Error(0, fmt.Sprintf("decoding request: %v", err)))
			continue
		}
		if err := request.Validate(); err != nil {
			sess.outbox.Push(protocol.Error(request.ID, err.Error()))
			continue
		}
		sess.handle(request)
	}
}

func (sess *session) handle(request protocol.Request) {
	switch request.Kind {
	case protocol.RequestControlStream:
		if request.Active {
			sess.subscribe(request.ID, request.Path)
		} else {
			sess.unsubscribe(request.ID)
		}
	case protocol.RequestAction:
		sess.act(request.ID, request.Path, request.Payload)
	}
}

// visible reports whether the session may see path. Hidden paths hold
// node bookkeeping and are open to everyone.
func (sess *session) visible(path ref.Path) bool {
	return path.IsHidden() || sess.acl.HasAccessTo(path)
}

func (sess *session) refuse(id protocol.DirectID, message string) {
	sess.outbox.Push(protocol.Error(id, message))
	sess.outbox.Push(protocol.Done(id))
}

func (sess *session) subscribe(id protocol.DirectID, path ref.Path) {
	if !sess.visible(path) {
		sess.logger.Info("denied subscription", "path", path.String(), "request_id", uint64(id))
		sess.refuse(id, fmt.Sprintf("access to %s denied", path))
		return
	}
	sess.drop(id)

	if path.Equal(flows.PathsPath) {
		if err := sess.openMeta(id); err != nil {
			sess.refuse(id, err.Error())
		}
		return
	}

	r, ok := sess.server.route(path)
	if !ok {
		sess.refuse(id, fmt.Sprintf("%s: %v", path, engine.ErrUnknownPath))
		return
	}

	providerID, err := r.provider.reserve(sess, id)
	if err != nil {
		sess.refuse(id, err.Error())
		return
	}
	stream := &sessionStream{path: path, provider: r.provider, providerID: providerID}
	sess.mu.Lock()
	if sess.closed {
		sess.mu.Unlock()
		r.provider.release(providerID)
		return
	}
	sess.streams[id] = stream
	sess.mu.Unlock()

	if err := r.provider.open(providerID, path); err != nil {
		sess.mu.Lock()
		if sess.streams[id] == stream {
			delete(sess.streams, id)
		}
		sess.mu.Unlock()
		sess.refuse(id, err.Error())
		return
	}
	sess.logger.Debug("relaying stream", "path", path.String(), "request_id", uint64(id),
		"provider", r.provider.name, "provider_request_id", uint64(providerID))
}

// drop forgets a stream still open under id, without telling the
// dashboard. A subscription reusing an id replaces the old one.
func (sess *session) drop(id protocol.DirectID) {
	sess.mu.Lock()
	stream, ok := sess.streams[id]
	delete(sess.streams, id)
	sess.mu.Unlock()
	if ok {
		stream.stop(true)
	}
}

func (sess *session) unsubscribe(id protocol.DirectID) {
	sess.mu.Lock()
	stream, ok := sess.streams[id]
	sess.mu.Unlock()
	if !ok {
		sess.outbox.Push(protocol.Done(id))
		return
	}
	// The Done of the provider or of the meta pump ends the stream.
	stream.stop(false)
}

// stop ends the stream at its source. With forget set the stream's
// remaining responses are discarded instead of forwarded.
func (stream *sessionStream) stop(forget bool) {
	switch {
	case stream.meta != nil:
		stream.meta.Close()
	case forget:
		stream.provider.forget(stream.providerID, stream.path)
	default:
		stream.provider.close(stream.providerID, stream.path)
	}
}

// act relays an action. Actions have no stream: failures the node
// detects are answered with an Error, provider-side failures are only
// logged by the node.
func (sess *session) act(id protocol.DirectID, path ref.Path, payload []byte) {
	if path.IsHidden() || !sess.acl.HasAccessTo(path) {
		sess.outbox.Push(protocol.Error(id, fmt.Sprintf("access to %s denied", path)))
		return
	}
	r, ok := sess.server.route(path)
	if !ok {
		sess.outbox.Push(protocol.Error(id, fmt.Sprintf("%s: %v", path, engine.ErrUnknownPath)))
		return
	}
	if err := r.provider.act(path, payload); err != nil {
		sess.outbox.Push(protocol.Error(id, err.Error()))
	}
}

// relayed forwards a provider response for the session's request.
// Responses of a stream the session no longer maps to that provider
// id are stale and dropped.
func (sess *session) relayed(owner *providerConn, providerID, request protocol.DirectID, response protocol.Response) {
	sess.mu.Lock()
	stream, ok := sess.streams[request]
	if !ok || stream.provider != owner || stream.providerID != providerID {
		sess.mu.Unlock()
		return
	}
	if response.Terminal() {
		delete(sess.streams, request)
	}
	sess.mu.Unlock()

	response.ID = request
	sess.outbox.Push(response)
}

// openMeta serves the node's path registry on id, restricted to the
// paths the session may see.
func (sess *session) openMeta(id protocol.DirectID) error {
	sub, err := sess.server.hub.SubscribeAs(flows.PathsPath, engine.SubscriberKey{
		Connection: sess.id.String(),
		Request:    uint64(id),
	})
	if err != nil {
		return err
	}
	stream := &sessionStream{path: flows.PathsPath, meta: sub}
	sess.mu.Lock()
	if sess.closed {
		sess.mu.Unlock()
		sub.Close()
		return nil
	}
	sess.streams[id] = stream
	sess.mu.Unlock()

	go sess.pumpMeta(id, stream)
	return nil
}

func (sess *session) pumpMeta(id protocol.DirectID, stream *sessionStream) {
	threshold := sess.server.config.CompressionThreshold
	ctx := context.Background()
	for {
		update, err := stream.meta.Next(ctx)
		if err != nil || update.Kind == engine.UpdateDone {
			break
		}
		switch update.Kind {
		case engine.UpdateState:
			state, err := flow.UnpackState[flows.PathsState](update.Payload)
			if err != nil {
				sess.logger.Error("decoding registry state", "error", err)
				continue
			}
			snapshot, err := flow.PackState(state.Filter(sess.visible))
			if err != nil {
				sess.logger.Error("encoding registry state", "error", err)
				continue
			}
			response, err := protocol.State(id, flows.PathsStreamType, snapshot, threshold)
			if err != nil {
				sess.logger.Error("building registry state", "error", err)
				continue
			}
			sess.forwardMeta(id, stream, response)
		case engine.UpdateDelta:
			delta, err := flow.UnpackDelta[flows.PathsEvent](update.Payload)
			if err != nil {
				sess.logger.Error("decoding registry delta", "error", err)
				continue
			}
			delta = sess.filterPaths(delta)
			if len(delta) == 0 {
				continue
			}
			packed, err := flow.PackDelta(delta)
			if err != nil {
				sess.logger.Error("encoding registry delta", "error", err)
				continue
			}
			response, err := protocol.Delta(id, packed, threshold)
			if err != nil {
				sess.logger.Error("building registry delta", "error", err)
				continue
			}
			sess.forwardMeta(id, stream, response)
		case engine.UpdateError:
			sess.forwardMeta(id, stream, protocol.Error(id, update.Message))
		}
	}

	sess.mu.Lock()
	current := sess.streams[id] == stream
	if current {
		delete(sess.streams, id)
	}
	sess.mu.Unlock()
	if current {
		sess.outbox.Push(protocol.Done(id))
	}
}

func (sess *session) forwardMeta(id protocol.DirectID, stream *sessionStream, response protocol.Response) {
	sess.mu.Lock()
	current := sess.streams[id] == stream
	sess.mu.Unlock()
	if current {
		sess.outbox.Push(response)
	}
}

func (sess *session) filterPaths(delta flow.Delta[flows.PathsEvent]) flow.Delta[flows.PathsEvent] {
	filtered := delta[:0]
	for _, timed := range delta {
		switch {
		case timed.Event.Add != nil && sess.visible(timed.Event.Add.Path):
		case timed.Event.Remove != nil && sess.visible(*timed.Event.Remove):
		default:
			continue
		}
		filtered = append(filtered, timed)
	}
	return filtered
}

func (sess *session) writeLoop() {
	ticker := sess.server.config.Clock.NewTicker(sess.server.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-sess.outbox.Notify():
			for _, response := range sess.outbox.Drain() {
				if err := sess.write(response); err != nil {
					sess.logger.Debug("dashboard write failed", "error", err)
					sess.conn.Close()
					return
				}
			}
		case <-ticker.C:
			if err := sess.write(protocol.Heartbeat()); err != nil {
				sess.logger.Debug("dashboard heartbeat failed", "error", err)
				sess.conn.Close()
				return
			}
		case <-sess.done:
			return
		}
	}
}

func (sess *session) write(response protocol.Response) error {
	data, err := codec.Marshal(response)
	if err != nil {
		return fmt.Errorf("encoding %s response: %w", response.Kind, err)
	}
	sess.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := sess.conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
		return err
	}
	sess.server.metrics.relayed.WithLabelValues(response.Kind.String()).Inc()
	return nil
}

// evict closes the connection with a close frame carrying code and
// reason. The read loop then fails and the session cleans up.
func (sess *session) evict(code int, reason string) {
	sess.evictOnce.Do(func() {
		message := websocket.FormatCloseMessage(code, reason)
		if err := sess.conn.WriteControl(websocket.CloseMessage, message, time.Now().Add(controlTimeout)); err != nil {
			sess.logger.Debug("writing close frame failed", "error", err)
		}
		sess.conn.Close()
	})
}

// cleanup ends every open stream at its source and stops the writer.
func (sess *session) cleanup() {
	sess.mu.Lock()
	sess.closed = true
	streams := sess.streams
	sess.streams = make(map[protocol.DirectID]*sessionStream)
	sess.mu.Unlock()

	for _, stream := range streams {
		stream.stop(true)
	}
	sess.server.hub.Disconnected(sess.id.String())
	sess.outbox.Close()
	close(sess.done)
}
