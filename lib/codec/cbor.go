// Copyright 2026 The Rillrate Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"io"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

// encMode uses Core Deterministic Encoding (RFC 8949 §4.2). Equal
// states pack to equal bytes, which the engine relies on when it
// fingerprints pull-mode states to skip unchanged publications.
var encMode cbor.EncMode

// decMode accepts standard CBOR and ignores unknown fields, so a
// dashboard built against an older flow version can still read a
// state that gained optional fields.
var decMode cbor.DecMode

func init() {
	var err error

	encOptions := cbor.CoreDetEncOptions()
	// ref.EntryID keeps its text in an unexported field. Without the
	// TextMarshaler mode it would encode as an empty map; with it, it
	// encodes as a text string through MarshalText.
	encOptions.TextMarshaler = cbor.TextMarshalerTextString
	encMode, err = encOptions.EncMode()
	if err != nil {
		panic("codec: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		// Flow states never use non-string map keys. Decoding into an
		// any target (Diagnose-style consumers, untyped payloads) then
		// yields map[string]any instead of CBOR's default
		// map[any]any. Typed struct fields are unaffected.
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
		// The counterpart of TextMarshaler above: EntryID fields
		// decode from text strings through UnmarshalText.
		TextUnmarshaler: cbor.TextUnmarshalerTextString,
	}.DecMode()
	if err != nil {
		panic("codec: CBOR decoder initialization failed: " + err.Error())
	}
}

// Marshal encodes v using Core Deterministic Encoding. Flow states,
// deltas and both wire protocols are encoded with it.
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes CBOR data into v. Unknown fields are ignored.
func Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}

// Encoder writes a stream of CBOR values. The alias keeps callers
// importing only lib/codec.
type Encoder = cbor.Encoder

// Decoder reads a stream of CBOR values.
type Decoder = cbor.Decoder

// RawMessage is an already-encoded CBOR value, used to carry flow
// payloads through envelopes without re-encoding them.
type RawMessage = cbor.RawMessage

// NewEncoder returns a stream encoder writing to w.
func NewEncoder(w io.Writer) *Encoder {
	return encMode.NewEncoder(w)
}

// NewDecoder returns a stream decoder reading from r with the same
// options as Unmarshal.
func NewDecoder(r io.Reader) *Decoder {
	return decMode.NewDecoder(r)
}

// Diagnose renders data in CBOR diagnostic notation (RFC 8949 §8).
// Consumers that do not know a flow's Go types use it to display
// states and deltas.
func Diagnose(data []byte) (string, error) {
	return cbor.Diagnose(data)
}
