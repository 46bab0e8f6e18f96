// Copyright 2026 The Rillrate Authors
// SPDX-License-Identifier: Apache-2.0

package node

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rillrate-fossil/rillrate-sub001/lib/netutil"
	"github.com/rillrate-fossil/rillrate-sub001/protocol"
	"github.com/rillrate-fossil/rillrate-sub001/ref"
)

// providerConn is one connected provider. Streams relayed to it are
// keyed by the DirectID the node assigned on this link.
type providerConn struct {
	server *Server
	id     uuid.UUID
	name   string
	conn   net.Conn
	writer *protocol.FrameWriter
	logger *slog.Logger

	mu     sync.Mutex
	nextID protocol.DirectID
	relays map[protocol.DirectID]relay
	closed bool
}

// relay is the dashboard stream behind a provider-side DirectID.
type relay struct {
	session *session
	request protocol.DirectID
}

// ConnectProvider serves a provider over conn until the provider
// leaves, ctx ends, or the provider is evicted. It performs the
// handshake and admission control; a provider over the limit is sent
// a Reject and disconnected. ConnectProvider closes conn.
//
// Run calls it for every accepted TCP connection. An embedding process
// can call it with one end of a net.Pipe to attach its own hub.
func (s *Server) ConnectProvider(ctx context.Context, conn net.Conn) error {
	s.serving.Add(1)
	defer s.serving.Done()
	defer conn.Close()

	writer := protocol.NewFrameWriter(conn, protocol.FrameNode)
	conn.SetReadDeadline(time.Now().Add(s.config.HandshakeTimeout))
	var hello protocol.ProviderMessage
	if err := protocol.ReadFrame(conn, protocol.FrameProvider, &hello); err != nil {
		return fmt.Errorf("reading provider hello: %w", err)
	}
	conn.SetReadDeadline(time.Time{})

	if hello.Kind != protocol.ProviderHello {
		writer.Write(protocol.Reject("expected hello"))
		return fmt.Errorf("provider opened with %s instead of hello", hello.Kind)
	}
	if hello.Version != protocol.Version {
		writer.Write(protocol.Reject(fmt.Sprintf("unsupported protocol version %d", hello.Version)))
		return fmt.Errorf("provider %q speaks protocol version %d", hello.Name, hello.Version)
	}

	id := uuid.New()
	provider := &providerConn{
		server: s,
		id:     id,
		name:   hello.Name,
		conn:   conn,
		writer: writer,
		logger: s.logger.With("provider", hello.Name, "connection", id.String()),
		relays: make(map[protocol.DirectID]relay),
	}
	if err := s.providers.Acquire(id, provider); err != nil {
		s.metrics.rejected.WithLabelValues("provider").Inc()
		writer.Write(protocol.Reject(err.Error()))
		return fmt.Errorf("admitting provider %q: %w", hello.Name, err)
	}
	defer s.providers.Release(id)

	if err := writer.Write(protocol.Welcome(s.config.Name)); err != nil {
		return fmt.Errorf("welcoming provider: %w", err)
	}
	s.metrics.providers.Inc()
	defer s.metrics.providers.Dec()
	provider.logger.Info("provider connected")

	stop := context.AfterFunc(ctx, provider.interrupt)
	defer stop()

	err := provider.readLoop()
	provider.disconnect()
	provider.logger.Info("provider disconnected")
	if err == nil || netutil.IsExpectedCloseError(err) || ctx.Err() != nil {
		return nil
	}
	return err
}

func (p *providerConn) readLoop() error {
	for {
		var message protocol.ProviderMessage
		if err := protocol.ReadFrame(p.conn, protocol.FrameProvider, &message); err != nil {
			return err
		}
		switch message.Kind {
		case protocol.ProviderDescribe:
			if message.Description == nil {
				p.logger.Warn("describe without description")
				continue
			}
			p.server.claimRoute(p, *message.Description)
		case protocol.ProviderForget:
			if message.Path == nil {
				p.logger.Warn("forget without path")
				continue
			}
			p.server.releaseRoute(p, *message.Path)
		case protocol.ProviderResponse:
			if message.Response == nil {
				p.logger.Warn("response message without response")
				continue
			}
			p.deliver(*message.Response)
		default:
			p.logger.Warn("ignoring unexpected provider message", "kind", message.Kind.String())
		}
	}
}

// deliver forwards a provider response to the dashboard stream it
// belongs to.
func (p *providerConn) deliver(response protocol.Response) {
	p.mu.Lock()
	target, ok := p.relays[response.ID]
	if ok && response.Terminal() {
		delete(p.relays, response.ID)
	}
	p.mu.Unlock()

	if !ok {
		if response.Kind == protocol.ResponseError {
			p.logger.Warn("provider reported an error", "request_id", uint64(response.ID), "message", response.Message)
			return
		}
		p.logger.Debug("response for unknown request", "request_id", uint64(response.ID), "kind", response.Kind.String())
		return
	}
	target.session.relayed(p, response.ID, target.request, response)
}

// reserve allocates a provider-side id routing responses to the
// session's request.
func (p *providerConn) reserve(sess *session, request protocol.DirectID) (protocol.DirectID, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return 0, errors.New("provider disconnected")
	}
	p.nextID++
	p.relays[p.nextID] = relay{session: sess, request: request}
	return p.nextID, nil
}

// release drops the routing of id.
func (p *providerConn) release(id protocol.DirectID) {
	p.mu.Lock()
	delete(p.relays, id)
	p.mu.Unlock()
}

// open asks the provider to start streaming path on a reserved id.
func (p *providerConn) open(id protocol.DirectID, path ref.Path) error {
	if err := p.writer.Write(protocol.Relay(protocol.ControlStream(id, path, true))); err != nil {
		p.release(id)
		return fmt.Errorf("relaying subscription: %w", err)
	}
	return nil
}

// close asks the provider to end stream id. The mapping stays until
// the provider's Done arrives so the dashboard receives it.
func (p *providerConn) close(id protocol.DirectID, path ref.Path) {
	if err := p.writer.Write(protocol.Relay(protocol.ControlStream(id, path, false))); err != nil {
		p.logger.Debug("relaying unsubscribe failed", "request_id", uint64(id), "error", err)
	}
}

// forget drops the mapping for id without waiting for Done. Used when
// the dashboard side is gone.
func (p *providerConn) forget(id protocol.DirectID, path ref.Path) {
	p.release(id)
	p.close(id, path)
}

// act relays an action. Actions are fire-and-forget: failures come
// back as Error responses for an id nobody tracks and are logged.
func (p *providerConn) act(path ref.Path, payload []byte) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return errors.New("provider disconnected")
	}
	p.nextID++
	id := p.nextID
	p.mu.Unlock()

	if err := p.writer.Write(protocol.Relay(protocol.ActionRequest(id, path, payload))); err != nil {
		return fmt.Errorf("relaying action: %w", err)
	}
	return nil
}

// disconnect ends every relayed stream with Done and withdraws the
// provider's paths.
func (p *providerConn) disconnect() {
	p.mu.Lock()
	p.closed = true
	relays := p.relays
	p.relays = make(map[protocol.DirectID]relay)
	p.mu.Unlock()

	for id, target := range relays {
		target.session.relayed(p, id, target.request, protocol.Done(id))
	}
	p.server.releaseProvider(p)
}

// interrupt closes the connection; readLoop then returns and the
// provider is cleaned up.
func (p *providerConn) interrupt() {
	p.conn.Close()
}
