// Copyright 2026 The Rillrate Authors
// SPDX-License-Identifier: Apache-2.0

package ref

import (
	"strings"
	"unique"
)

// HiddenPrefix marks a segment that is excluded from normal listings.
const HiddenPrefix = "@"

// EntryID is one interned path segment. The zero value is the empty
// segment.
type EntryID struct {
	handle unique.Handle[string]
}

// NewEntryID interns text as a segment.
func NewEntryID(text string) EntryID {
	return EntryID{handle: unique.Make(text)}
}

// String returns the segment text.
func (e EntryID) String() string {
	if e.handle == (unique.Handle[string]{}) {
		return ""
	}
	return e.handle.Value()
}

// IsZero reports whether e is the empty segment.
func (e EntryID) IsZero() bool {
	return e.String() == ""
}

// IsHidden reports whether the segment starts with HiddenPrefix.
func (e EntryID) IsHidden() bool {
	return strings.HasPrefix(e.String(), HiddenPrefix)
}

// Compare orders segments by their text.
func (e EntryID) Compare(other EntryID) int {
	return strings.Compare(e.String(), other.String())
}

// MarshalText encodes the segment as its text.
func (e EntryID) MarshalText() ([]byte, error) {
	return []byte(e.String()), nil
}

// UnmarshalText interns the decoded text.
func (e *EntryID) UnmarshalText(text []byte) error {
	*e = NewEntryID(string(text))
	return nil
}
