// Copyright 2026 The Rillrate Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"errors"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression identifies how a Payload's data is compressed. The
// values are wire constants.
type Compression uint8

const (
	// CompressionNone leaves data as is.
	CompressionNone Compression = 0

	// CompressionLZ4 is LZ4 block compression. Cheap enough for the
	// delta hot path.
	CompressionLZ4 Compression = 1

	// CompressionZstd is zstd at the default level. Used for
	// snapshots, which are larger and sent once per subscription.
	CompressionZstd Compression = 2
)

// String returns the configuration name of the algorithm.
func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionZstd:
		return "zstd"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(c))
	}
}

// ParseCompression parses a configuration name.
func ParseCompression(name string) (Compression, error) {
	switch name {
	case "", "none":
		return CompressionNone, nil
	case "lz4":
		return CompressionLZ4, nil
	case "zstd":
		return CompressionZstd, nil
	default:
		return 0, fmt.Errorf("unknown compression %q", name)
	}
}

// Payload is an opaque byte payload as it travels inside a wire
// envelope.
type Payload struct {
	Compression Compression `cbor:"c,omitempty"`
	// Size is the uncompressed length; zero when uncompressed.
	Size int    `cbor:"n,omitempty"`
	Data []byte `cbor:"d"`
}

// errIncompressible means compression would not shrink the data.
var errIncompressible = errors.New("data is incompressible")

// maxPayloadSize bounds the declared uncompressed size so a corrupt
// or hostile Size cannot force a huge allocation.
const maxPayloadSize = 64 * 1024 * 1024

// Compress wraps data into a Payload. Data shorter than threshold, or
// data the algorithm cannot shrink, is stored uncompressed. A
// threshold <= 0 disables compression.
func Compress(data []byte, algorithm Compression, threshold int) (Payload, error) {
	if algorithm == CompressionNone || threshold <= 0 || len(data) < threshold {
		return Payload{Data: data}, nil
	}

	var compressed []byte
	var err error
	switch algorithm {
	case CompressionLZ4:
		compressed, err = compressLZ4(data)
	case CompressionZstd:
		compressed, err = compressZstd(data)
	default:
		return Payload{}, fmt.Errorf("unsupported compression %s", algorithm)
	}
	if errors.Is(err, errIncompressible) {
		return Payload{Data: data}, nil
	}
	if err != nil {
		return Payload{}, err
	}
	return Payload{Compression: algorithm, Size: len(data), Data: compressed}, nil
}

// Bytes returns the uncompressed payload data.
func (p Payload) Bytes() ([]byte, error) {
	if p.Compression == CompressionNone {
		return p.Data, nil
	}
	if p.Size <= 0 || p.Size > maxPayloadSize {
		return nil, fmt.Errorf("%s payload: invalid size %d", p.Compression, p.Size)
	}
	switch p.Compression {
	case CompressionLZ4:
		return decompressLZ4(p.Data, p.Size)
	case CompressionZstd:
		return decompressZstd(p.Data, p.Size)
	default:
		return nil, fmt.Errorf("unsupported compression %s", p.Compression)
	}
}

func compressLZ4(data []byte) ([]byte, error) {
	destination := make([]byte, lz4.CompressBlockBound(len(data)))
	written, err := lz4.CompressBlock(data, destination, nil)
	if err != nil {
		return nil, fmt.Errorf("lz4 compress: %w", err)
	}
	if written == 0 || written >= len(data) {
		return nil, errIncompressible
	}
	return destination[:written], nil
}

func decompressLZ4(compressed []byte, size int) ([]byte, error) {
	destination := make([]byte, size)
	read, err := lz4.UncompressBlock(compressed, destination)
	if err != nil {
		return nil, fmt.Errorf("lz4 decompress: %w", err)
	}
	if read != size {
		return nil, fmt.Errorf("lz4 decompress: got %d bytes, expected %d", read, size)
	}
	return destination, nil
}

// zstd encoders and decoders are safe for concurrent use and costly
// to create, so one of each is shared.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("codec: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil, zstd.WithDecoderMaxMemory(maxPayloadSize))
	if err != nil {
		panic("codec: zstd decoder initialization failed: " + err.Error())
	}
}

func compressZstd(data []byte) ([]byte, error) {
	compressed := zstdEncoder.EncodeAll(data, nil)
	if len(compressed) >= len(data) {
		return nil, errIncompressible
	}
	return compressed, nil
}

func decompressZstd(compressed []byte, size int) ([]byte, error) {
	decoded, err := zstdDecoder.DecodeAll(compressed, make([]byte, 0, size))
	if err != nil {
		return nil, fmt.Errorf("zstd decompress: %w", err)
	}
	if len(decoded) != size {
		return nil, fmt.Errorf("zstd decompress: got %d bytes, expected %d", len(decoded), size)
	}
	return decoded, nil
}
