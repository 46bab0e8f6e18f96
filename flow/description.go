// Copyright 2026 The Rillrate Authors
// SPDX-License-Identifier: Apache-2.0

package flow

import (
	"fmt"

	"github.com/rillrate-fossil/rillrate-sub001/ref"
)

// Layer classifies what a flow is for so the UI can place it. It has
// no effect on synchronization.
type Layer uint8

const (
	// LayerVisual flows display data.
	LayerVisual Layer = iota
	// LayerControl flows accept actions from dashboards.
	LayerControl
	// LayerTransparent flows are infrastructure and not rendered.
	LayerTransparent
)

// String returns the wire name of the layer.
func (l Layer) String() string {
	switch l {
	case LayerVisual:
		return "visual"
	case LayerControl:
		return "control"
	case LayerTransparent:
		return "transparent"
	default:
		return fmt.Sprintf("layer(%d)", uint8(l))
	}
}

// MarshalText encodes the layer by name.
func (l Layer) MarshalText() ([]byte, error) {
	switch l {
	case LayerVisual, LayerControl, LayerTransparent:
		return []byte(l.String()), nil
	default:
		return nil, fmt.Errorf("unknown layer %d", uint8(l))
	}
}

// UnmarshalText decodes a layer name.
func (l *Layer) UnmarshalText(text []byte) error {
	switch string(text) {
	case "visual":
		*l = LayerVisual
	case "control":
		*l = LayerControl
	case "transparent":
		*l = LayerTransparent
	default:
		return fmt.Errorf("unknown layer %q", text)
	}
	return nil
}

// Description is what the path registry knows about a live flow.
type Description struct {
	Path       ref.Path   `cbor:"path"`
	Layer      Layer      `cbor:"layer"`
	StreamType StreamType `cbor:"stream_type"`
}
