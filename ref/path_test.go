// Copyright 2026 The Rillrate Authors
// SPDX-License-Identifier: Apache-2.0

package ref

import (
	"slices"
	"testing"

	"github.com/rillrate-fossil/rillrate-sub001/lib/codec"
)

func TestParsePath(t *testing.T) {
	path, err := ParsePath("app.dashboard.cpu")
	if err != nil {
		t.Fatalf("ParsePath: %v", err)
	}
	if path.Len() != 3 {
		t.Fatalf("Len = %d, want 3", path.Len())
	}
	if path.String() != "app.dashboard.cpu" {
		t.Fatalf("String = %q", path.String())
	}
	if path.Last().String() != "cpu" {
		t.Fatalf("Last = %q", path.Last())
	}
}

func TestParsePathRejectsMalformed(t *testing.T) {
	for _, text := range []string{"", "a..b", ".a", "a."} {
		if _, err := ParsePath(text); err == nil {
			t.Errorf("ParsePath(%q) accepted malformed text", text)
		}
	}
}

func TestEntryIDInterning(t *testing.T) {
	first := NewEntryID("cpu")
	second := NewEntryID("c" + "pu")
	if first != second {
		t.Fatal("equal texts must intern to equal ids")
	}
	var zero EntryID
	if !zero.IsZero() || zero.String() != "" {
		t.Fatal("zero EntryID must be empty")
	}
}

func TestPathOrdering(t *testing.T) {
	paths := []Path{
		PathOf("b"),
		PathOf("a", "z"),
		PathOf("a"),
		PathOf("a", "b", "c"),
		PathOf("a", "b"),
	}
	slices.SortFunc(paths, Path.Compare)

	want := []string{"a", "a.b", "a.b.c", "a.z", "b"}
	for i, path := range paths {
		if path.String() != want[i] {
			t.Fatalf("sorted[%d] = %q, want %q", i, path, want[i])
		}
	}
}

func TestPathPrefix(t *testing.T) {
	path := PathOf("app", "dash", "cpu")
	if !path.HasPrefix(PathOf("app")) || !path.HasPrefix(PathOf("app", "dash")) || !path.HasPrefix(path) {
		t.Fatal("ancestors and the path itself must be prefixes")
	}
	if path.HasPrefix(PathOf("app", "other")) {
		t.Fatal("sibling must not be a prefix")
	}
	if !path.HasPrefix(Path{}) {
		t.Fatal("zero path is a prefix of everything")
	}
	parent, ok := path.Parent()
	if !ok || parent.String() != "app.dash" {
		t.Fatalf("Parent = %q, %v", parent, ok)
	}
	if _, ok := PathOf("root").Parent(); ok {
		t.Fatal("single segment path has no parent")
	}
}

func TestPathAppendDoesNotAlias(t *testing.T) {
	base := PathOf("a", "b")
	left := base.Append(NewEntryID("x"))
	right := base.Append(NewEntryID("y"))
	if left.String() != "a.b.x" || right.String() != "a.b.y" {
		t.Fatalf("left = %q, right = %q", left, right)
	}
}

func TestHiddenPaths(t *testing.T) {
	if !PathOf("@meta", "paths").IsHidden() {
		t.Fatal("@meta.paths must be hidden")
	}
	if PathOf("app", "cpu").IsHidden() {
		t.Fatal("app.cpu must not be hidden")
	}
}

func TestPathCBORPreservesSegments(t *testing.T) {
	// The last segment contains the separator, so the wire form must
	// be the segment list rather than the dotted text.
	original := ParseFixed(3, "two.segments")
	data, err := codec.Marshal(original)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var decoded Path
	if err := codec.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if !decoded.Equal(original) {
		t.Fatalf("decoded %v, want %v", decoded.Segments(), original.Segments())
	}
}

func TestAutoPathRoundTrip(t *testing.T) {
	auto := ParseAutoPath("pkg.dash.grp.name")
	if auto.String() != "pkg.dash.grp.name" {
		t.Fatalf("String = %q", auto.String())
	}
	if !auto.IsAssigned() {
		t.Fatal("well formed name must be assigned")
	}
	if auto.Group.String() != "grp" || auto.Name.String() != "name" {
		t.Fatalf("segments = %+v", auto)
	}
}

func TestAutoPathDegradesWrongArity(t *testing.T) {
	for _, text := range []string{"onlytwo.segments", "a.b.c.d.e", "single", "a..c.d"} {
		auto := ParseAutoPath(text)
		if auto.Name.String() != text {
			t.Errorf("%q: last segment = %q, want original text", text, auto.Name)
		}
		if auto.Package != Unassigned || auto.Dashboard != Unassigned || auto.Group != Unassigned {
			t.Errorf("%q: leading segments must be unassigned, got %+v", text, auto)
		}
		if auto.IsAssigned() {
			t.Errorf("%q: IsAssigned = true", text)
		}
	}
}

func TestParseFixedArities(t *testing.T) {
	path := ParseFixed(2, "group.name")
	if path.String() != "group.name" || path.Len() != 2 {
		t.Fatalf("ParseFixed(2) = %q", path)
	}
	degraded := ParseFixed(2, "flat")
	segments := degraded.Segments()
	if len(segments) != 2 || segments[0] != Unassigned || segments[1].String() != "flat" {
		t.Fatalf("degraded = %v", segments)
	}
	if ParseFixed(1, "a.b").Last().String() != "a.b" {
		t.Fatal("arity 1 keeps the whole text as one segment")
	}
}

func TestPathKeyDistinguishesSeparatorInSegments(t *testing.T) {
	degraded := ParseAutoPath("onlytwo.segments").Path()
	split := PathOf(Unassigned.String(), Unassigned.String(), Unassigned.String(), "onlytwo", "segments")
	if degraded.String() != split.String() {
		t.Fatalf("display texts differ: %q, %q", degraded, split)
	}
	if degraded.Equal(split) {
		t.Fatal("paths with different segments must not be Equal")
	}
	if degraded.Key() == split.Key() {
		t.Fatalf("Key collides for %v and %v", degraded.Segments(), split.Segments())
	}

	pairs := [][2]Path{
		{PathOf("a.b"), PathOf("a", "b")},
		{PathOf("1:a"), PathOf("a")},
		{PathOf("ab", "c"), PathOf("a", "bc")},
		{PathOf("a"), PathOf("a", "")},
	}
	for _, pair := range pairs {
		if pair[0].Key() == pair[1].Key() {
			t.Errorf("Key(%v) == Key(%v)", pair[0].Segments(), pair[1].Segments())
		}
	}
	if PathOf("a", "b").Key() != NewPath(NewEntryID("a"), NewEntryID("b")).Key() {
		t.Fatal("Equal paths must share a Key")
	}
}
