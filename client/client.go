// Copyright 2026 The Rillrate Authors
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rillrate-fossil/rillrate-sub001/flow"
	"github.com/rillrate-fossil/rillrate-sub001/flows"
	"github.com/rillrate-fossil/rillrate-sub001/lib/codec"
	"github.com/rillrate-fossil/rillrate-sub001/lib/mailbox"
	"github.com/rillrate-fossil/rillrate-sub001/lib/netutil"
	"github.com/rillrate-fossil/rillrate-sub001/protocol"
	"github.com/rillrate-fossil/rillrate-sub001/ref"
)

// ErrClosed is returned by Next once a stream has ended, and by
// Client methods after Close.
var ErrClosed = errors.New("client: closed")

// Options configures Dial.
type Options struct {
	// Header is sent with the websocket handshake.
	Header http.Header

	// Dialer opens the websocket. Nil means websocket.DefaultDialer.
	Dialer *websocket.Dialer

	// Registry resolves stream types for mirrors. Nil means a registry
	// holding the flows package.
	Registry *flow.Registry

	// Logger receives connection diagnostics. Nil means
	// slog.Default().
	Logger *slog.Logger
}

// Client is a dashboard session on a node.
type Client struct {
	conn     *websocket.Conn
	session  string
	registry *flow.Registry
	logger   *slog.Logger

	writeMu sync.Mutex

	mu        sync.Mutex
	nextID    protocol.DirectID
	streams   map[protocol.DirectID]*Subscription
	heartbeat time.Time
	lastError string
	closed    bool

	done chan struct{}
	err  error
}

// Dial connects to the websocket endpoint at url and waits for the
// node to declare the session.
func Dial(ctx context.Context, url string, options Options) (*Client, error) {
	dialer := options.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	registry := options.Registry
	if registry == nil {
		registry = flow.NewRegistry()
		if err := flows.Register(registry); err != nil {
			return nil, err
		}
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}

	conn, _, err := dialer.DialContext(ctx, url, options.Header)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", url, err)
	}

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetReadDeadline(deadline)
	}
	var declare protocol.Response
	if err := readResponse(conn, &declare); err != nil {
		conn.Close()
		return nil, fmt.Errorf("waiting for session declaration: %w", err)
	}
	if declare.Kind != protocol.ResponseDeclare {
		conn.Close()
		return nil, fmt.Errorf("node opened with %s instead of declare", declare.Kind)
	}
	conn.SetReadDeadline(time.Time{})

	c := &Client{
		conn:     conn,
		session:  declare.Session,
		registry: registry,
		logger:   logger.With("session", declare.Session),
		streams:  make(map[protocol.DirectID]*Subscription),
		done:     make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

func readResponse(conn *websocket.Conn, response *protocol.Response) error {
	messageType, data, err := conn.ReadMessage()
	if err != nil {
		return err
	}
	if messageType != websocket.BinaryMessage {
		return fmt.Errorf("unexpected websocket message type %d", messageType)
	}
	return codec.Unmarshal(data, response)
}

// Session returns the session id the node declared.
func (c *Client) Session() string { return c.session }

// Registry returns the registry mirrors restore states with.
func (c *Client) Registry() *flow.Registry { return c.registry }

// LastHeartbeat returns when the last heartbeat arrived, or the zero
// time if none has.
func (c *Client) LastHeartbeat() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.heartbeat
}

// LastError returns the message of the last error the node reported
// for a request without a stream, such as an action.
func (c *Client) LastError() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastError
}

// Done is closed when the connection has ended.
func (c *Client) Done() <-chan struct{} { return c.done }

// Err returns why the connection ended. Valid after Done is closed.
func (c *Client) Err() error {
	<-c.done
	return c.err
}

// Subscribe opens a stream for path.
func (c *Client) Subscribe(path ref.Path) (*Subscription, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	c.nextID++
	sub := &Subscription{
		client:    c,
		id:        c.nextID,
		path:      path,
		responses: mailbox.New[protocol.Response](),
	}
	c.streams[sub.id] = sub
	c.mu.Unlock()

	if err := c.send(protocol.ControlStream(sub.id, path, true)); err != nil {
		c.forget(sub.id)
		return nil, err
	}
	return sub, nil
}

// Act sends a packed action to the flow at path. The node answers
// only failures it detects itself; see LastError.
func (c *Client) Act(path ref.Path, payload []byte) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.nextID++
	id := c.nextID
	c.mu.Unlock()
	return c.send(protocol.ActionRequest(id, path, payload))
}

// Act encodes action and sends it to the flow at path.
func Act[A any](c *Client, path ref.Path, action A) error {
	payload, err := codec.Marshal(action)
	if err != nil {
		return fmt.Errorf("encoding action: %w", err)
	}
	return c.Act(path, payload)
}

func (c *Client) send(request protocol.Request) error {
	data, err := codec.Marshal(request)
	if err != nil {
		return fmt.Errorf("encoding %s request: %w", request.Kind, err)
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
		return fmt.Errorf("sending %s request: %w", request.Kind, err)
	}
	return nil
}

func (c *Client) forget(id protocol.DirectID) {
	c.mu.Lock()
	delete(c.streams, id)
	c.mu.Unlock()
}

// Close ends the session. Open subscriptions end with ErrClosed.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		<-c.done
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.writeMu.Lock()
	c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.writeMu.Unlock()
	c.conn.Close()
	<-c.done
	return nil
}

func (c *Client) readLoop() {
	defer close(c.done)
	var err error
	for {
		var response protocol.Response
		if err = readResponse(c.conn, &response); err != nil {
			break
		}
		c.dispatch(response)
	}

	c.mu.Lock()
	closing := c.closed
	c.closed = true
	streams := c.streams
	c.streams = make(map[protocol.DirectID]*Subscription)
	c.mu.Unlock()

	if closing || netutil.IsExpectedCloseError(err) {
		err = nil
	} else {
		c.logger.Info("dashboard connection lost", "error", err)
	}
	c.err = err
	for _, sub := range streams {
		sub.responses.Close()
	}
}

func (c *Client) dispatch(response protocol.Response) {
	switch response.Kind {
	case protocol.ResponseHeartbeat:
		c.mu.Lock()
		c.heartbeat = time.Now()
		c.mu.Unlock()
		return
	case protocol.ResponseDeclare:
		c.logger.Warn("unexpected second session declaration", "declared", response.Session)
		return
	}

	c.mu.Lock()
	sub, ok := c.streams[response.ID]
	if ok && response.Terminal() {
		delete(c.streams, response.ID)
	}
	if !ok && response.Kind == protocol.ResponseError {
		c.lastError = response.Message
	}
	c.mu.Unlock()

	if !ok {
		if response.Kind == protocol.ResponseError {
			c.logger.Warn("node reported an error", "request_id", uint64(response.ID), "message", response.Message)
		}
		return
	}
	sub.responses.Push(response)
	if response.Terminal() {
		sub.responses.Close()
	}
}
