// Copyright 2026 The Rillrate Authors
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rillrate-fossil/rillrate-sub001/flow"
	"github.com/rillrate-fossil/rillrate-sub001/flows"
	"github.com/rillrate-fossil/rillrate-sub001/lib/codec"
	"github.com/rillrate-fossil/rillrate-sub001/lib/testutil"
	"github.com/rillrate-fossil/rillrate-sub001/protocol"
	"github.com/rillrate-fossil/rillrate-sub001/ref"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeNode serves one websocket session and hands the connection to
// script.
func fakeNode(t *testing.T, script func(conn *websocket.Conn)) string {
	t.Helper()
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()
		script(conn)
	}))
	t.Cleanup(func() {
		server.Close()
	})
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func send(t *testing.T, conn *websocket.Conn, response protocol.Response) {
	t.Helper()
	data, err := codec.Marshal(response)
	if err != nil {
		t.Errorf("encoding response: %v", err)
		return
	}
	if err := conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
		t.Errorf("writing response: %v", err)
	}
}

func receive(t *testing.T, conn *websocket.Conn) protocol.Request {
	t.Helper()
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Errorf("reading request: %v", err)
		return protocol.Request{}
	}
	var request protocol.Request
	if err := codec.Unmarshal(data, &request); err != nil {
		t.Errorf("decoding request: %v", err)
	}
	return request
}

func packed(t *testing.T, v any) []byte {
	t.Helper()
	data, err := codec.Marshal(v)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	return data
}

func TestMirrorFollowsStateAndDeltas(t *testing.T) {
	path := ref.PathOf("app", "requests")
	snapshot := packed(t, flows.CounterState{Total: 10})
	delta := packed(t, flow.Delta[flows.CounterEvent]{{Timestamp: 1, Event: flows.Inc(5)}})

	url := fakeNode(t, func(conn *websocket.Conn) {
		send(t, conn, protocol.Declare(ref.NewEntryID("@session-test")))
		request := receive(t, conn)
		if request.Kind != protocol.RequestControlStream || !request.Active || !request.Path.Equal(path) {
			t.Errorf("request = %+v", request)
			return
		}
		state, _ := protocol.State(request.ID, flows.CounterStreamType, snapshot, 0)
		send(t, conn, state)
		send(t, conn, protocol.Heartbeat())
		// A compressed delta is decompressed transparently.
		update, _ := protocol.Delta(request.ID, delta, 1)
		send(t, conn, update)
		send(t, conn, protocol.Done(request.ID))
		conn.ReadMessage()
	})

	c, err := Dial(testutil.Context(t), url, Options{Logger: quietLogger()})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer c.Close()
	if c.Session() != "@session-test" {
		t.Fatalf("Session = %q", c.Session())
	}

	mirror, err := c.Mirror(path)
	if err != nil {
		t.Fatalf("Mirror: %v", err)
	}
	ctx := testutil.Context(t)
	if err := mirror.Next(ctx); err != nil {
		t.Fatalf("first Next: %v", err)
	}
	first, _ := Value[flows.CounterState](mirror)
	if first.Total != 10 {
		t.Fatalf("state total = %d, want 10", first.Total)
	}
	if mirror.Subscription().StreamType() != flows.CounterStreamType {
		t.Fatalf("stream type = %q", mirror.Subscription().StreamType())
	}
	if err := mirror.Next(ctx); err != nil {
		t.Fatalf("second Next: %v", err)
	}
	if state, _ := Value[flows.CounterState](mirror); state.Total != 15 {
		t.Fatalf("total after delta = %d, want 15", state.Total)
	}
	if first.Total != 10 {
		t.Fatalf("earlier value changed to %d by a delta", first.Total)
	}
	if err := mirror.Next(ctx); !errors.Is(err, ErrClosed) {
		t.Fatalf("Next after Done = %v, want ErrClosed", err)
	}
	if c.LastHeartbeat().IsZero() {
		t.Error("heartbeat not recorded")
	}
}

func TestMirrorRejectsDeltaBeforeState(t *testing.T) {
	delta := packed(t, flow.Delta[flows.CounterEvent]{{Timestamp: 1, Event: flows.Inc(1)}})
	url := fakeNode(t, func(conn *websocket.Conn) {
		send(t, conn, protocol.Declare(ref.NewEntryID("@session-test")))
		request := receive(t, conn)
		update, _ := protocol.Delta(request.ID, delta, 0)
		send(t, conn, update)
		conn.ReadMessage()
	})

	c, err := Dial(testutil.Context(t), url, Options{Logger: quietLogger()})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer c.Close()
	mirror, err := c.Mirror(ref.PathOf("app"))
	if err != nil {
		t.Fatalf("Mirror: %v", err)
	}
	if err := mirror.Next(testutil.Context(t)); err == nil {
		t.Fatal("delta before state was accepted")
	}
	if mirror.Value() != nil {
		t.Fatalf("Value = %v, want nil", mirror.Value())
	}
}

func TestActSendsPackedAction(t *testing.T) {
	path := ref.PathOf("app", "mode")
	received := make(chan protocol.Request, 1)
	url := fakeNode(t, func(conn *websocket.Conn) {
		send(t, conn, protocol.Declare(ref.NewEntryID("@session-test")))
		request := receive(t, conn)
		received <- request
		send(t, conn, protocol.Error(request.ID, "no consumer"))
		conn.ReadMessage()
	})

	c, err := Dial(testutil.Context(t), url, Options{Logger: quietLogger()})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer c.Close()

	if err := Act(c, path, flows.Choose{Value: "slow"}); err != nil {
		t.Fatalf("Act: %v", err)
	}
	request := testutil.RequireReceive(t, received, testutil.Timeout, "action request")
	if request.Kind != protocol.RequestAction || !request.Path.Equal(path) {
		t.Fatalf("request = %+v", request)
	}
	var action flows.Choose
	if err := codec.Unmarshal(request.Payload, &action); err != nil || action.Value != "slow" {
		t.Fatalf("payload decodes to %+v, %v", action, err)
	}
	deadline := testutil.Context(t)
	for c.LastError() == "" {
		select {
		case <-deadline.Done():
			t.Fatal("action error not recorded")
		case <-c.Done():
			t.Fatal("connection ended")
		case <-time.After(5 * time.Millisecond):
		}
	}
	if c.LastError() != "no consumer" {
		t.Fatalf("LastError = %q", c.LastError())
	}
}

func TestDialRequiresDeclare(t *testing.T) {
	url := fakeNode(t, func(conn *websocket.Conn) {
		send(t, conn, protocol.Heartbeat())
		conn.ReadMessage()
	})
	if _, err := Dial(testutil.Context(t), url, Options{Logger: quietLogger()}); err == nil {
		t.Fatal("Dial accepted a session without declaration")
	}
}

func TestCloseEndsSubscriptions(t *testing.T) {
	url := fakeNode(t, func(conn *websocket.Conn) {
		send(t, conn, protocol.Declare(ref.NewEntryID("@session-test")))
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	c, err := Dial(testutil.Context(t), url, Options{Logger: quietLogger()})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	sub, err := c.Subscribe(ref.PathOf("app"))
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	c.Close()
	if _, err := sub.Next(testutil.Context(t)); !errors.Is(err, ErrClosed) {
		t.Fatalf("Next after Close = %v, want ErrClosed", err)
	}
	if err := c.Err(); err != nil {
		t.Fatalf("Err after Close = %v", err)
	}
	if _, err := c.Subscribe(ref.PathOf("app")); !errors.Is(err, ErrClosed) {
		t.Fatalf("Subscribe after Close = %v, want ErrClosed", err)
	}
}
