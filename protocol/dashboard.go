// Copyright 2026 The Rillrate Authors
// SPDX-License-Identifier: Apache-2.0

package protocol

import (
	"errors"
	"fmt"

	"github.com/rillrate-fossil/rillrate-sub001/flow"
	"github.com/rillrate-fossil/rillrate-sub001/lib/codec"
	"github.com/rillrate-fossil/rillrate-sub001/ref"
)

// DirectID correlates a request with its responses. The dashboard
// assigns it, counting up from 1 on each connection. Zero is reserved
// for connection-level responses (Declare, Heartbeat).
type DirectID uint64

// RequestKind selects what a Request asks for.
type RequestKind uint8

const (
	// RequestControlStream subscribes to Path when Active is set and
	// unsubscribes otherwise.
	RequestControlStream RequestKind = iota + 1

	// RequestAction sends Payload as an action to the flow at Path.
	RequestAction
)

func (k RequestKind) String() string {
	switch k {
	case RequestControlStream:
		return "control_stream"
	case RequestAction:
		return "action"
	default:
		return fmt.Sprintf("request(%d)", uint8(k))
	}
}

// Request is a dashboard-to-node envelope. The node relays requests
// to providers unchanged except for the ID.
type Request struct {
	ID      DirectID    `cbor:"id"`
	Kind    RequestKind `cbor:"kind"`
	Path    ref.Path    `cbor:"path"`
	Active  bool        `cbor:"active,omitempty"`
	Payload []byte      `cbor:"payload,omitempty"`
}

// ControlStream builds a subscribe (active) or unsubscribe request.
func ControlStream(id DirectID, path ref.Path, active bool) Request {
	return Request{ID: id, Kind: RequestControlStream, Path: path, Active: active}
}

// ActionRequest builds a request carrying a packed action.
func ActionRequest(id DirectID, path ref.Path, payload []byte) Request {
	return Request{ID: id, Kind: RequestAction, Path: path, Payload: payload}
}

// Validate checks the fields required by Kind.
func (r Request) Validate() error {
	switch r.Kind {
	case RequestControlStream:
	case RequestAction:
		if len(r.Payload) == 0 {
			return errors.New("action request without payload")
		}
	default:
		return fmt.Errorf("unknown request kind %d", uint8(r.Kind))
	}
	if r.ID == 0 {
		return errors.New("request id 0 is reserved")
	}
	if r.Path.IsZero() {
		return errors.New("request without path")
	}
	return nil
}

// ResponseKind selects what a Response carries.
type ResponseKind uint8

const (
	// ResponseDeclare identifies the session. Session holds its id.
	ResponseDeclare ResponseKind = iota + 1
	// ResponseState carries a full packed state in Payload, and the
	// flow's StreamType.
	ResponseState
	// ResponseDelta carries a packed delta in Payload.
	ResponseDelta
	// ResponseDone ends the stream for ID.
	ResponseDone
	// ResponseError reports a failure for ID in Message. For ID 0 the
	// failure concerns the whole connection.
	ResponseError
	// ResponseHeartbeat keeps idle connections alive.
	ResponseHeartbeat
)

func (k ResponseKind) String() string {
	switch k {
	case ResponseDeclare:
		return "declare"
	case ResponseState:
		return "state"
	case ResponseDelta:
		return "delta"
	case ResponseDone:
		return "done"
	case ResponseError:
		return "error"
	case ResponseHeartbeat:
		return "heartbeat"
	default:
		return fmt.Sprintf("response(%d)", uint8(k))
	}
}

// Response is a node-to-dashboard envelope, also used by providers to
// answer relayed requests.
type Response struct {
	ID         DirectID        `cbor:"id"`
	Kind       ResponseKind    `cbor:"kind"`
	Session    string          `cbor:"session,omitempty"`
	StreamType flow.StreamType `cbor:"stream_type,omitempty"`
	Payload    *codec.Payload  `cbor:"payload,omitempty"`
	Message    string          `cbor:"message,omitempty"`
}

// Declare builds the greeting carrying the session id.
func Declare(session ref.EntryID) Response {
	return Response{Kind: ResponseDeclare, Session: session.String()}
}

// Heartbeat builds a keepalive.
func Heartbeat() Response {
	return Response{Kind: ResponseHeartbeat}
}

// State builds a State response. Snapshots of at least threshold
// bytes are zstd compressed.
func State(id DirectID, streamType flow.StreamType, snapshot []byte, threshold int) (Response, error) {
	payload, err := codec.Compress(snapshot, codec.CompressionZstd, threshold)
	if err != nil {
		return Response{}, fmt.Errorf("compressing state: %w", err)
	}
	return Response{ID: id, Kind: ResponseState, StreamType: streamType, Payload: &payload}, nil
}

// Delta builds a Delta response. Deltas of at least threshold bytes
// are lz4 compressed.
func Delta(id DirectID, delta []byte, threshold int) (Response, error) {
	payload, err := codec.Compress(delta, codec.CompressionLZ4, threshold)
	if err != nil {
		return Response{}, fmt.Errorf("compressing delta: %w", err)
	}
	return Response{ID: id, Kind: ResponseDelta, Payload: &payload}, nil
}

// Done builds the end-of-stream response for id.
func Done(id DirectID) Response {
	return Response{ID: id, Kind: ResponseDone}
}

// Error builds an error response for id.
func Error(id DirectID, message string) Response {
	return Response{ID: id, Kind: ResponseError, Message: message}
}

// Data returns the uncompressed payload of a State or Delta response.
func (r Response) Data() ([]byte, error) {
	if r.Payload == nil {
		return nil, fmt.Errorf("%s response has no payload", r.Kind)
	}
	return r.Payload.Bytes()
}

// Terminal reports whether nothing more follows for r.ID.
func (r Response) Terminal() bool {
	return r.Kind == ResponseDone
}
