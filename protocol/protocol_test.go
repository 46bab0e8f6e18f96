// Copyright 2026 The Rillrate Authors
// SPDX-License-Identifier: Apache-2.0

package protocol

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/rillrate-fossil/rillrate-sub001/flow"
	"github.com/rillrate-fossil/rillrate-sub001/lib/codec"
	"github.com/rillrate-fossil/rillrate-sub001/ref"
)

func TestFramesRoundTrip(t *testing.T) {
	var buffer bytes.Buffer
	description := flow.Description{Path: ref.PathOf("app", "cpu"), Layer: flow.LayerVisual, StreamType: "rillrate.data.gauge.v0"}
	if err := WriteFrame(&buffer, FrameProvider, Describe(description)); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	if err := WriteFrame(&buffer, FrameProvider, Forget(description.Path)); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}

	var first ProviderMessage
	if err := ReadFrame(&buffer, FrameProvider, &first); err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if first.Kind != ProviderDescribe || first.Description == nil || !first.Description.Path.Equal(description.Path) {
		t.Fatalf("first = %+v", first)
	}

	var second ProviderMessage
	if err := ReadFrame(&buffer, FrameProvider, &second); err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if second.Kind != ProviderForget || second.Path == nil || second.Path.String() != "app.cpu" {
		t.Fatalf("second = %+v", second)
	}

	var third ProviderMessage
	if err := ReadFrame(&buffer, FrameProvider, &third); err != io.EOF {
		t.Fatalf("ReadFrame at end = %v, want io.EOF", err)
	}
}

func TestReadFrameRejectsWrongDirection(t *testing.T) {
	var buffer bytes.Buffer
	if err := WriteFrame(&buffer, FrameNode, Welcome("node")); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	var message ProviderMessage
	err := ReadFrame(&buffer, FrameProvider, &message)
	if err == nil || !strings.Contains(err.Error(), "unexpected frame type") {
		t.Fatalf("ReadFrame error = %v", err)
	}
}

func TestReadFrameRejectsOversizedLength(t *testing.T) {
	header := make([]byte, frameHeaderLength)
	header[0] = byte(FrameNode)
	binary.BigEndian.PutUint32(header[1:], MaxFrameLength+1)
	var message NodeMessage
	if err := ReadFrame(bytes.NewReader(header), FrameNode, &message); err == nil {
		t.Fatal("oversized frame accepted")
	}
}

func TestReadFrameTruncatedPayload(t *testing.T) {
	var buffer bytes.Buffer
	WriteFrame(&buffer, FrameNode, Relay(ControlStream(1, ref.PathOf("a"), true)))
	truncated := buffer.Bytes()[:buffer.Len()-1]
	var message NodeMessage
	err := ReadFrame(bytes.NewReader(truncated), FrameNode, &message)
	if err == nil || errors.Is(err, io.EOF) {
		t.Fatalf("truncated frame error = %v, want a wrapped unexpected EOF", err)
	}
}

func TestStateResponseCompression(t *testing.T) {
	snapshot := bytes.Repeat([]byte("rillrate "), 200)

	small, err := State(3, "t", snapshot, 0)
	if err != nil {
		t.Fatalf("State: %v", err)
	}
	if small.Payload.Compression != codec.CompressionNone {
		t.Fatalf("threshold 0 compressed with %s", small.Payload.Compression)
	}

	large, err := State(3, "t", snapshot, 64)
	if err != nil {
		t.Fatalf("State: %v", err)
	}
	if large.Payload.Compression != codec.CompressionZstd {
		t.Fatalf("compression = %s, want zstd", large.Payload.Compression)
	}

	encoded, err := codec.Marshal(large)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var decoded Response
	if err := codec.Unmarshal(encoded, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	data, err := decoded.Data()
	if err != nil {
		t.Fatalf("Data: %v", err)
	}
	if !bytes.Equal(data, snapshot) || decoded.StreamType != "t" || decoded.ID != 3 {
		t.Fatalf("decoded = %+v", decoded)
	}
}

func TestDeltaResponseUsesLZ4(t *testing.T) {
	delta := bytes.Repeat([]byte{0xAB}, 4096)
	response, err := Delta(9, delta, 1024)
	if err != nil {
		t.Fatalf("Delta: %v", err)
	}
	if response.Payload.Compression != codec.CompressionLZ4 {
		t.Fatalf("compression = %s, want lz4", response.Payload.Compression)
	}
	data, err := response.Data()
	if err != nil || !bytes.Equal(data, delta) {
		t.Fatalf("Data = %d bytes, %v", len(data), err)
	}
}

func TestRequestValidate(t *testing.T) {
	path := ref.PathOf("app", "x")
	tests := []struct {
		name    string
		request Request
		valid   bool
	}{
		{"subscribe", ControlStream(1, path, true), true},
		{"unsubscribe", ControlStream(2, path, false), true},
		{"action", ActionRequest(3, path, []byte{0xa0}), true},
		{"reserved id", ControlStream(0, path, true), false},
		{"no path", ControlStream(1, ref.Path{}, true), false},
		{"empty action", ActionRequest(4, path, nil), false},
		{"unknown kind", Request{ID: 1, Kind: 99, Path: path}, false},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			err := test.request.Validate()
			if (err == nil) != test.valid {
				t.Fatalf("Validate() = %v, want valid=%v", err, test.valid)
			}
		})
	}
}

func TestDeclareCarriesSession(t *testing.T) {
	response := Declare(ref.NewEntryID("@session-x"))
	if response.Kind != ResponseDeclare || response.Session != "@session-x" || response.ID != 0 {
		t.Fatalf("Declare = %+v", response)
	}
	if !Done(5).Terminal() || Error(5, "boom").Terminal() {
		t.Fatal("only Done is terminal")
	}
}
