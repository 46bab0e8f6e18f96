// Copyright 2026 The Rillrate Authors
// SPDX-License-Identifier: Apache-2.0

package protocol

import (
	"encoding/binary"
	"fmt"
	"io"
	"sync"

	"github.com/rillrate-fossil/rillrate-sub001/lib/codec"
)

// FrameType is the first byte of a provider link frame. It names the
// direction so a miswired peer fails on the first frame.
type FrameType byte

const (
	// FrameProvider carries a ProviderMessage, provider to node.
	FrameProvider FrameType = 0x01

	// FrameNode carries a NodeMessage, node to provider.
	FrameNode FrameType = 0x02
)

// frameHeaderLength is 1 byte type + 4 bytes big-endian length.
const frameHeaderLength = 5

// MaxFrameLength bounds a frame payload. Snapshots above the
// compression threshold are compressed, so this is far above what a
// well-behaved provider sends.
const MaxFrameLength = 64 * 1024 * 1024

// WriteFrame encodes message as CBOR and writes it as one frame:
// [1 byte type] [4 bytes payload length, big-endian] [payload].
// Callers serialize concurrent writers.
func WriteFrame(w io.Writer, frameType FrameType, message any) error {
	payload, err := codec.Marshal(message)
	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}
	if len(payload) > MaxFrameLength {
		return fmt.Errorf("frame payload of %d bytes exceeds maximum %d", len(payload), MaxFrameLength)
	}

	frame := make([]byte, frameHeaderLength+len(payload))
	frame[0] = byte(frameType)
	binary.BigEndian.PutUint32(frame[1:frameHeaderLength], uint32(len(payload)))
	copy(frame[frameHeaderLength:], payload)
	if _, err := w.Write(frame); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// ReadFrame reads one frame of the expected type from r and decodes
// it into message. io.EOF is returned unwrapped when r ends cleanly
// between frames.
func ReadFrame(r io.Reader, frameType FrameType, message any) error {
	var header [frameHeaderLength]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		if err == io.EOF {
			return io.EOF
		}
		return fmt.Errorf("read frame header: %w", err)
	}
	if got := FrameType(header[0]); got != frameType {
		return fmt.Errorf("unexpected frame type 0x%02x, want 0x%02x", byte(got), byte(frameType))
	}
	length := binary.BigEndian.Uint32(header[1:frameHeaderLength])
	if length > MaxFrameLength {
		return fmt.Errorf("frame payload length %d exceeds maximum %d", length, MaxFrameLength)
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return fmt.Errorf("read frame payload: %w", err)
	}
	if err := codec.Unmarshal(payload, message); err != nil {
		return fmt.Errorf("decode frame: %w", err)
	}
	return nil
}

// FrameWriter writes frames of one type and is safe for concurrent
// use.
type FrameWriter struct {
	mu        sync.Mutex
	w         io.Writer
	frameType FrameType
}

// NewFrameWriter returns a writer of frameType frames to w.
func NewFrameWriter(w io.Writer, frameType FrameType) *FrameWriter {
	return &FrameWriter{w: w, frameType: frameType}
}

// Write encodes message and writes it as a single frame.
func (f *FrameWriter) Write(message any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return WriteFrame(f.w, f.frameType, message)
}
