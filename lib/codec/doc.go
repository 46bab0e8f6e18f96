// Copyright 2026 The Rillrate Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec is the single encoding configuration shared by flow
// state packing and both wire protocols.
//
// Everything rillrate puts on the wire is CBOR: it is self-describing
// and self-delimiting, so a stream of values needs no extra framing and
// decoders skip fields they do not know. Adding an optional field to a
// flow state or event is therefore backward compatible. The encoder
// uses Core Deterministic Encoding (RFC 8949 §4.2), so the same state
// always packs to the same bytes; pull flows rely on this to detect
// unchanged states by fingerprint.
//
// Large opaque payloads (snapshots and deltas) can additionally be
// compressed with [Compress]; the resulting [Payload] records the
// algorithm and original size so the receiver can reverse it.
package codec
