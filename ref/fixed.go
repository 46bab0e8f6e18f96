// Copyright 2026 The Rillrate Authors
// SPDX-License-Identifier: Apache-2.0

package ref

import "strings"

// Unassigned is the sentinel segment used when a fixed-depth name
// cannot be split into the expected number of segments.
var Unassigned = NewEntryID("unassigned")

// AutoPathDepth is the number of segments of an AutoPath.
const AutoPathDepth = 4

// ParseFixed splits text into exactly arity segments. When text does
// not split into arity non-empty segments, the result is arity-1
// Unassigned segments followed by the whole original text as the last
// segment. ParseFixed never fails. Panics if arity < 1.
func ParseFixed(arity int, text string) Path {
	if arity < 1 {
		panic("ref: fixed path arity must be at least 1")
	}
	parts := strings.Split(text, Separator)
	if len(parts) == arity && !containsEmpty(parts) {
		return PathOf(parts...)
	}

	segments := make([]EntryID, arity)
	for i := 0; i < arity-1; i++ {
		segments[i] = Unassigned
	}
	segments[arity-1] = NewEntryID(text)
	return Path{segments: segments}
}

func containsEmpty(parts []string) bool {
	for _, part := range parts {
		if part == "" {
			return true
		}
	}
	return false
}

// AutoPath is the package.dashboard.group.name naming scheme used by
// instrumented code.
type AutoPath struct {
	Package   EntryID
	Dashboard EntryID
	Group     EntryID
	Name      EntryID
}

// ParseAutoPath parses a four-segment dotted name, degrading to
// Unassigned segments as described for ParseFixed.
func ParseAutoPath(text string) AutoPath {
	segments := ParseFixed(AutoPathDepth, text).segments
	return AutoPath{
		Package:   segments[0],
		Dashboard: segments[1],
		Group:     segments[2],
		Name:      segments[3],
	}
}

// Path returns the four-segment path.
func (a AutoPath) Path() Path {
	return NewPath(a.Package, a.Dashboard, a.Group, a.Name)
}

// String returns the dotted form.
func (a AutoPath) String() string {
	return a.Path().String()
}

// IsAssigned reports whether the name parsed into real segments.
func (a AutoPath) IsAssigned() bool {
	return a.Package != Unassigned || a.Dashboard != Unassigned || a.Group != Unassigned
}
