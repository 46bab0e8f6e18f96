// Copyright 2026 The Rillrate Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"bytes"
	"strings"
	"testing"
)

type sampleState struct {
	Total int64  `cbor:"total"`
	Label string `cbor:"label,omitempty"`
}

type sampleStateV1 struct {
	Total int64  `cbor:"total"`
	Label string `cbor:"label,omitempty"`
	Unit  string `cbor:"unit,omitempty"`
}

func TestMarshalDeterministic(t *testing.T) {
	state := map[string]int{"b": 2, "a": 1, "c": 3}
	first, err := Marshal(state)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	for i := 0; i < 10; i++ {
		again, err := Marshal(state)
		if err != nil {
			t.Fatalf("Marshal: %v", err)
		}
		if !bytes.Equal(first, again) {
			t.Fatalf("encoding is not deterministic: %x != %x", first, again)
		}
	}
}

func TestUnmarshalIgnoresNewOptionalFields(t *testing.T) {
	data, err := Marshal(sampleStateV1{Total: 7, Unit: "ms"})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var old sampleState
	if err := Unmarshal(data, &old); err != nil {
		t.Fatalf("older reader must accept newer state: %v", err)
	}
	if old.Total != 7 {
		t.Fatalf("Total = %d, want 7", old.Total)
	}
}

func TestUnmarshalMalformedReturnsError(t *testing.T) {
	var state sampleState
	if err := Unmarshal([]byte{0xff, 0x00, 0x13}, &state); err == nil {
		t.Fatal("expected error for malformed input")
	}
}

func TestStreamIsSelfDelimiting(t *testing.T) {
	var buffer bytes.Buffer
	encoder := NewEncoder(&buffer)
	for i := int64(1); i <= 3; i++ {
		if err := encoder.Encode(sampleState{Total: i}); err != nil {
			t.Fatalf("Encode: %v", err)
		}
	}
	decoder := NewDecoder(&buffer)
	for i := int64(1); i <= 3; i++ {
		var state sampleState
		if err := decoder.Decode(&state); err != nil {
			t.Fatalf("Decode %d: %v", i, err)
		}
		if state.Total != i {
			t.Fatalf("value %d decoded as %d", i, state.Total)
		}
	}
}

func TestDiagnose(t *testing.T) {
	data, err := Marshal(sampleState{Total: 3})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	text, err := Diagnose(data)
	if err != nil {
		t.Fatalf("Diagnose: %v", err)
	}
	if !strings.Contains(text, `"total": 3`) {
		t.Fatalf("Diagnose = %s", text)
	}
}

func TestCompressRoundTrip(t *testing.T) {
	data := bytes.Repeat([]byte("rillrate.data.counter.v0 "), 200)

	for _, algorithm := range []Compression{CompressionLZ4, CompressionZstd} {
		t.Run(algorithm.String(), func(t *testing.T) {
			payload, err := Compress(data, algorithm, 64)
			if err != nil {
				t.Fatalf("Compress: %v", err)
			}
			if payload.Compression != algorithm {
				t.Fatalf("Compression = %s, want %s", payload.Compression, algorithm)
			}
			if len(payload.Data) >= len(data) {
				t.Fatalf("compressed %d bytes into %d", len(data), len(payload.Data))
			}
			restored, err := payload.Bytes()
			if err != nil {
				t.Fatalf("Bytes: %v", err)
			}
			if !bytes.Equal(restored, data) {
				t.Fatal("round trip mismatch")
			}
		})
	}
}

func TestCompressBelowThresholdIsStoredRaw(t *testing.T) {
	payload, err := Compress([]byte("tiny"), CompressionZstd, 1024)
	if err != nil {
		t.Fatalf("Compress: %v", err)
	}
	if payload.Compression != CompressionNone || string(payload.Data) != "tiny" {
		t.Fatalf("payload = %+v", payload)
	}
}

func TestPayloadRejectsBogusSize(t *testing.T) {
	payload := Payload{Compression: CompressionZstd, Size: maxPayloadSize + 1, Data: []byte{1}}
	if _, err := payload.Bytes(); err == nil {
		t.Fatal("expected error for oversized declared length")
	}
}

func TestParseCompression(t *testing.T) {
	for _, name := range []string{"none", "lz4", "zstd"} {
		parsed, err := ParseCompression(name)
		if err != nil {
			t.Fatalf("ParseCompression(%q): %v", name, err)
		}
		if parsed.String() != name {
			t.Fatalf("String() = %q, want %q", parsed.String(), name)
		}
	}
	if _, err := ParseCompression("brotli"); err == nil {
		t.Fatal("expected error for unknown algorithm")
	}
}
