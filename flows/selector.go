// Copyright 2026 The Rillrate Authors
// SPDX-License-Identifier: Apache-2.0

package flows

import (
	"errors"
	"fmt"
	"slices"

	"github.com/rillrate-fossil/rillrate-sub001/flow"
)

// SelectorStreamType identifies selector streams.
const SelectorStreamType flow.StreamType = "rillrate.control.selector.v0"

// ErrUnknownOption is returned when a selection names a value that is
// not among the selector's options.
var ErrUnknownOption = errors.New("unknown option")

// Selector is a control flow: dashboards send Choose actions, the
// owning code decides and confirms with a SelectorEvent.
type Selector struct{}

// SelectorState is the option list and the current choice, which is
// empty until something is selected.
type SelectorState struct {
	Label    string   `cbor:"label,omitempty"`
	Options  []string `cbor:"options"`
	Selected string   `cbor:"selected,omitempty"`
}

// NewSelectorState returns a selector with nothing selected.
func NewSelectorState(label string, options ...string) SelectorState {
	return SelectorState{Label: label, Options: slices.Clone(options)}
}

// SelectorEvent changes the selected value.
type SelectorEvent struct {
	Value string `cbor:"value"`
}

// Select returns an event selecting value.
func Select(value string) SelectorEvent { return SelectorEvent{Value: value} }

// Choose is the action a dashboard sends when the user picks an
// option. It is a request: the state only changes when the owner
// answers with Select.
type Choose struct {
	Value string `cbor:"value"`
}

func (Selector) StreamType() flow.StreamType { return SelectorStreamType }

func (Selector) Apply(state *SelectorState, event SelectorEvent) error {
	if !slices.Contains(state.Options, event.Value) {
		return fmt.Errorf("%w: %q", ErrUnknownOption, event.Value)
	}
	state.Selected = event.Value
	return nil
}
