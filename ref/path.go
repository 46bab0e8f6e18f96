// Copyright 2026 The Rillrate Authors
// SPDX-License-Identifier: Apache-2.0

package ref

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/rillrate-fossil/rillrate-sub001/lib/codec"
)

// Separator joins segments in the textual form of a path.
const Separator = "."

// Path is a hierarchical flow address. Paths are immutable values;
// methods that derive a new path copy the segments.
type Path struct {
	segments []EntryID
}

// NewPath builds a path from segments.
func NewPath(segments ...EntryID) Path {
	return Path{segments: slices.Clone(segments)}
}

// PathOf builds a path from segment texts.
func PathOf(texts ...string) Path {
	segments := make([]EntryID, len(texts))
	for i, text := range texts {
		segments[i] = NewEntryID(text)
	}
	return Path{segments: segments}
}

// ParsePath splits dotted text into segments. Empty text and empty
// segments are rejected.
func ParsePath(text string) (Path, error) {
	if text == "" {
		return Path{}, errors.New("path is empty")
	}
	parts := strings.Split(text, Separator)
	for i, part := range parts {
		if part == "" {
			return Path{}, fmt.Errorf("path %q has an empty segment at position %d", text, i)
		}
	}
	return PathOf(parts...), nil
}

// Segments returns a copy of the segments.
func (p Path) Segments() []EntryID {
	return slices.Clone(p.segments)
}

// Len returns the number of segments.
func (p Path) Len() int { return len(p.segments) }

// IsZero reports whether the path has no segments. A zero path is not
// a valid address.
func (p Path) IsZero() bool { return len(p.segments) == 0 }

// Last returns the final segment, or the zero EntryID for a zero path.
func (p Path) Last() EntryID {
	if len(p.segments) == 0 {
		return EntryID{}
	}
	return p.segments[len(p.segments)-1]
}

// Append returns a new path with segments added at the end.
func (p Path) Append(segments ...EntryID) Path {
	joined := make([]EntryID, 0, len(p.segments)+len(segments))
	joined = append(joined, p.segments...)
	joined = append(joined, segments...)
	return Path{segments: joined}
}

// Parent returns the path without its last segment and false when p
// has fewer than two segments.
func (p Path) Parent() (Path, bool) {
	if len(p.segments) < 2 {
		return Path{}, false
	}
	return Path{segments: slices.Clone(p.segments[:len(p.segments)-1])}, true
}

// HasPrefix reports whether prefix is p or an ancestor of p. The zero
// path is a prefix of every path.
func (p Path) HasPrefix(prefix Path) bool {
	if len(prefix.segments) > len(p.segments) {
		return false
	}
	for i, segment := range prefix.segments {
		if p.segments[i] != segment {
			return false
		}
	}
	return true
}

// IsHidden reports whether any segment is hidden.
func (p Path) IsHidden() bool {
	for _, segment := range p.segments {
		if segment.IsHidden() {
			return true
		}
	}
	return false
}

// Equal reports whether both paths have the same segments.
func (p Path) Equal(other Path) bool {
	return slices.Equal(p.segments, other.segments)
}

// Compare orders paths lexicographically by segment. A path sorts
// before its descendants.
func (p Path) Compare(other Path) int {
	return slices.CompareFunc(p.segments, other.segments, EntryID.Compare)
}

// Key returns a text form that differs for every pair of paths that
// are not Equal. Each segment is written as its byte length, a colon
// and its text. Use it for map keys; String is ambiguous.
func (p Path) Key() string {
	var b strings.Builder
	for _, segment := range p.segments {
		text := segment.String()
		b.WriteString(strconv.Itoa(len(text)))
		b.WriteByte(':')
		b.WriteString(text)
	}
	return b.String()
}

// String joins the segments with Separator. The text is for display
// only: segments may themselves contain the separator (see
// ParseFixed), so two different paths can print the same.
func (p Path) String() string {
	texts := make([]string, len(p.segments))
	for i, segment := range p.segments {
		texts[i] = segment.String()
	}
	return strings.Join(texts, Separator)
}

// MarshalCBOR encodes the path as an array of segment strings.
func (p Path) MarshalCBOR() ([]byte, error) {
	texts := make([]string, len(p.segments))
	for i, segment := range p.segments {
		texts[i] = segment.String()
	}
	return codec.Marshal(texts)
}

// UnmarshalCBOR decodes an array of segment strings.
func (p *Path) UnmarshalCBOR(data []byte) error {
	var texts []string
	if err := codec.Unmarshal(data, &texts); err != nil {
		return fmt.Errorf("decoding path: %w", err)
	}
	*p = PathOf(texts...)
	return nil
}
