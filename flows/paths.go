// Copyright 2026 The Rillrate Authors
// SPDX-License-Identifier: Apache-2.0

package flows

import (
	"errors"
	"maps"
	"slices"

	"github.com/rillrate-fossil/rillrate-sub001/flow"
	"github.com/rillrate-fossil/rillrate-sub001/ref"
)

// PathsStreamType identifies the path registry stream.
const PathsStreamType flow.StreamType = "rillrate.meta.paths.v0"

// PathsPath is where every hub publishes its registry. The leading
// hidden segment keeps the registry out of its own listings.
var PathsPath = ref.PathOf(ref.HiddenPrefix+"meta", "paths")

// Paths is the registry of live flows: one entry per registered
// tracer, added when the tracer is created and removed when it is
// closed.
type Paths struct{}

// PathsState maps each path's Key to the flow's description.
type PathsState struct {
	Entries map[string]flow.Description `cbor:"entries"`
}

// NewPathsState returns an empty registry.
func NewPathsState() PathsState {
	return PathsState{Entries: make(map[string]flow.Description)}
}

// PathsEvent adds or removes one entry. Exactly one field is set.
type PathsEvent struct {
	Add    *flow.Description `cbor:"add,omitempty"`
	Remove *ref.Path         `cbor:"remove,omitempty"`
}

// AddPath returns an event registering description.
func AddPath(description flow.Description) PathsEvent {
	return PathsEvent{Add: &description}
}

// RemovePath returns an event unregistering path.
func RemovePath(path ref.Path) PathsEvent {
	return PathsEvent{Remove: &path}
}

func (Paths) StreamType() flow.StreamType { return PathsStreamType }

func (Paths) Apply(state *PathsState, event PathsEvent) error {
	switch {
	case event.Add != nil && event.Remove != nil:
		return errors.New("paths event sets both add and remove")
	case event.Add != nil:
		if event.Add.Path.IsZero() {
			return errors.New("paths event adds an empty path")
		}
		if state.Entries == nil {
			state.Entries = make(map[string]flow.Description)
		}
		state.Entries[event.Add.Path.Key()] = *event.Add
	case event.Remove != nil:
		delete(state.Entries, event.Remove.Key())
	default:
		return errors.New("empty paths event")
	}
	return nil
}

// Lookup returns the description registered at exactly path.
func (s PathsState) Lookup(path ref.Path) (flow.Description, bool) {
	description, ok := s.Entries[path.Key()]
	return description, ok
}

// Descriptions returns every entry sorted by path.
func (s PathsState) Descriptions() []flow.Description {
	descriptions := slices.Collect(maps.Values(s.Entries))
	slices.SortFunc(descriptions, func(a, b flow.Description) int {
		return a.Path.Compare(b.Path)
	})
	return descriptions
}

// Under returns the entries at or below prefix, sorted by path.
// Hidden entries are only included when includeHidden is set.
func (s PathsState) Under(prefix ref.Path, includeHidden bool) []flow.Description {
	var matched []flow.Description
	for _, description := range s.Descriptions() {
		if !description.Path.HasPrefix(prefix) {
			continue
		}
		if description.Path.IsHidden() && !includeHidden {
			continue
		}
		matched = append(matched, description)
	}
	return matched
}

// Children returns the distinct segments directly below prefix that
// lead to at least one visible entry, sorted.
func (s PathsState) Children(prefix ref.Path) []ref.EntryID {
	seen := make(map[ref.EntryID]struct{})
	for _, description := range s.Under(prefix, false) {
		if description.Path.Len() <= prefix.Len() {
			continue
		}
		seen[description.Path.Segments()[prefix.Len()]] = struct{}{}
	}
	children := slices.Collect(maps.Keys(seen))
	slices.SortFunc(children, ref.EntryID.Compare)
	return children
}

// Filter returns a copy holding only the entries keep accepts.
func (s PathsState) Filter(keep func(ref.Path) bool) PathsState {
	filtered := NewPathsState()
	for key, description := range s.Entries {
		if keep(description.Path) {
			filtered.Entries[key] = description
		}
	}
	return filtered
}
