// Copyright 2026 The Rillrate Authors
// SPDX-License-Identifier: Apache-2.0

package admission

import (
	"crypto/rand"
	"slices"
	"sync"

	"github.com/oklog/ulid/v2"

	"github.com/rillrate-fossil/rillrate-sub001/ref"
)

// SessionPrefix starts every session id. It makes the id a hidden
// segment so sessions never show up in path listings.
const SessionPrefix = ref.HiddenPrefix + "session-"

// SessionAcl is the per-session allow list. A new session is locked:
// it can access no path until paths are added or UnlockAll is called.
// Safe for concurrent use; every method holds the lock only for a
// short, non-blocking section.
type SessionAcl struct {
	id ref.EntryID

	mu        sync.Mutex
	unlockAll bool
	allowed   map[string]ref.Path
}

// NewSessionAcl returns a locked ACL with a fresh random session id.
func NewSessionAcl() *SessionAcl {
	id := ulid.MustNew(ulid.Now(), rand.Reader)
	return &SessionAcl{
		id:      ref.NewEntryID(SessionPrefix + id.String()),
		allowed: make(map[string]ref.Path),
	}
}

// ID returns the hidden session id.
func (a *SessionAcl) ID() ref.EntryID { return a.id }

// AddPath allows path.
func (a *SessionAcl) AddPath(path ref.Path) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.allowed[path.Key()] = path
}

// RemovePath revokes path. It does not affect UnlockAll.
func (a *SessionAcl) RemovePath(path ref.Path) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.allowed, path.Key())
}

// UnlockAll opens every path for this session. There is no way back;
// it is meant for local, trusted sessions.
func (a *SessionAcl) UnlockAll() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.unlockAll = true
}

// IsUnlocked reports whether UnlockAll was called.
func (a *SessionAcl) IsUnlocked() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.unlockAll
}

// HasAccessTo is true iff the session is unlocked or path was added.
func (a *SessionAcl) HasAccessTo(path ref.Path) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.unlockAll {
		return true
	}
	_, ok := a.allowed[path.Key()]
	return ok
}

// AllowedPaths returns the explicitly allowed paths, sorted.
func (a *SessionAcl) AllowedPaths() []ref.Path {
	a.mu.Lock()
	paths := make([]ref.Path, 0, len(a.allowed))
	for _, path := range a.allowed {
		paths = append(paths, path)
	}
	a.mu.Unlock()

	slices.SortFunc(paths, ref.Path.Compare)
	return paths
}
