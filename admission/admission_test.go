// Copyright 2026 The Rillrate Authors
// SPDX-License-Identifier: Apache-2.0

package admission

import (
	"errors"
	"strings"
	"testing"

	"github.com/rillrate-fossil/rillrate-sub001/ref"
)

func TestLimiterFillsUp(t *testing.T) {
	limiter := NewConnectionLimiter[string, string](Limit{Total: 2})
	if !limiter.HasSlot() {
		t.Fatal("empty limiter must have a slot")
	}
	if err := limiter.Acquire("a", "addr-a"); err != nil {
		t.Fatalf("Acquire(a): %v", err)
	}
	if err := limiter.Acquire("b", "addr-b"); err != nil {
		t.Fatalf("Acquire(b): %v", err)
	}
	if limiter.HasSlot() {
		t.Fatal("HasSlot must be false after 2 acquires with limit 2")
	}
	if err := limiter.Acquire("c", "addr-c"); !errors.Is(err, ErrLimitReached) {
		t.Fatalf("third Acquire error = %v, want ErrLimitReached", err)
	}
	if limiter.Len() != 2 {
		t.Fatalf("Len = %d", limiter.Len())
	}
}

func TestLimiterReacquireKeepsSlotCount(t *testing.T) {
	limiter := NewConnectionLimiter[string, string](Limit{Total: 1})
	limiter.Acquire("a", "old")
	if err := limiter.Acquire("a", "new"); err != nil {
		t.Fatalf("re-Acquire: %v", err)
	}
	if evicted := limiter.SetLimit(Limit{Total: 0}); len(evicted) != 1 || evicted[0] != "new" {
		t.Fatalf("evicted = %v, want [new]", evicted)
	}
}

func TestLimiterSetLimitReturnsExcess(t *testing.T) {
	limiter := NewConnectionLimiter[string, string](Limit{Total: 2})
	limiter.Acquire("a", "addr-a")
	limiter.Acquire("b", "addr-b")

	evicted := limiter.SetLimit(Limit{Total: 1})
	if len(evicted) != 1 {
		t.Fatalf("evicted %v, want exactly one address", evicted)
	}
	if evicted[0] != "addr-a" {
		t.Fatalf("evicted %q, want the oldest connection", evicted[0])
	}

	// Nothing is closed by the limiter itself.
	if limiter.Len() != 2 || limiter.HasSlot() {
		t.Fatalf("Len = %d, HasSlot = %v", limiter.Len(), limiter.HasSlot())
	}
	if values := limiter.Values(); len(values) != 2 || values[0] != "addr-a" {
		t.Fatalf("Values = %v", values)
	}
	limiter.Release("a")
	if limiter.HasSlot() {
		t.Fatal("still at the new limit after one release")
	}
	limiter.Release("b")
	if !limiter.HasSlot() {
		t.Fatal("slot must free up once below the limit")
	}
}

func TestLimiterRaisingLimitEvictsNothing(t *testing.T) {
	limiter := NewConnectionLimiter[int, int](Limit{Total: 1})
	limiter.Acquire(1, 1)
	if evicted := limiter.SetLimit(Limit{Total: 5}); len(evicted) != 0 {
		t.Fatalf("evicted = %v", evicted)
	}
	if limiter.Limit().Total != 5 || !limiter.HasSlot() {
		t.Fatal("raised limit must free slots")
	}
	limiter.Release(42)
}

func TestSessionAclStartsLocked(t *testing.T) {
	acl := NewSessionAcl()
	path := ref.PathOf("app", "cpu")
	other := ref.PathOf("app", "mem")

	if acl.HasAccessTo(path) || acl.HasAccessTo(other) {
		t.Fatal("fresh session must not access anything")
	}

	acl.AddPath(path)
	if !acl.HasAccessTo(path) {
		t.Fatal("added path must be accessible")
	}
	if acl.HasAccessTo(other) {
		t.Fatal("other path must stay locked")
	}

	acl.UnlockAll()
	if !acl.HasAccessTo(path) || !acl.HasAccessTo(other) || !acl.IsUnlocked() {
		t.Fatal("UnlockAll must open every path")
	}
}

func TestSessionAclRemovePath(t *testing.T) {
	acl := NewSessionAcl()
	path := ref.PathOf("a")
	acl.AddPath(path)
	acl.AddPath(ref.PathOf("b"))
	acl.RemovePath(path)
	if acl.HasAccessTo(path) {
		t.Fatal("removed path still accessible")
	}
	allowed := acl.AllowedPaths()
	if len(allowed) != 1 || allowed[0].String() != "b" {
		t.Fatalf("AllowedPaths = %v", allowed)
	}
}

func TestSessionIDIsHiddenAndUnique(t *testing.T) {
	first := NewSessionAcl().ID()
	second := NewSessionAcl().ID()
	if first == second {
		t.Fatal("session ids must be random")
	}
	if !first.IsHidden() || !strings.HasPrefix(first.String(), SessionPrefix) {
		t.Fatalf("session id %q is not hidden", first)
	}
}

func TestSessionAclMatchesSegmentsNotText(t *testing.T) {
	acl := NewSessionAcl()
	acl.AddPath(ref.PathOf("a", "b"))
	if acl.HasAccessTo(ref.PathOf("a.b")) {
		t.Fatal("one segment a.b must not match the allowed path a/b")
	}
	if !acl.HasAccessTo(ref.PathOf("a", "b")) {
		t.Fatal("allowed path lost")
	}

	acl.AddPath(ref.PathOf("a.b"))
	acl.RemovePath(ref.PathOf("a", "b"))
	if acl.HasAccessTo(ref.PathOf("a", "b")) || !acl.HasAccessTo(ref.PathOf("a.b")) {
		t.Fatal("RemovePath must only revoke the path with the same segments")
	}
}
