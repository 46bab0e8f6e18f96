// Copyright 2026 The Rillrate Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"fmt"
	"time"
)

type modeKind uint8

const (
	modeRealtime modeKind = iota
	modePull
	modePushOnce
)

// Mode selects how a tracer's changes reach its recorder.
type Mode struct {
	kind     modeKind
	interval time.Duration
}

// Realtime forwards every event to the recorder as it is sent.
// Subscribers see each event as a delta. The zero Mode is Realtime.
var Realtime = Mode{kind: modeRealtime}

// PushOnce publishes only the initial state. Later events update the
// tracer's local copy and nothing else, which suits static
// information that subscribers read once.
var PushOnce = Mode{kind: modePushOnce}

// Pull coalesces events locally and publishes the full state once per
// interval, and only when it changed since the last publication. A
// tick that arrives while the previous one is still being handled is
// skipped. Panics if interval <= 0.
func Pull(interval time.Duration) Mode {
	if interval <= 0 {
		panic(fmt.Sprintf("engine: pull interval must be positive, got %v", interval))
	}
	return Mode{kind: modePull, interval: interval}
}

// Interval returns the pull interval, or zero for other modes.
func (m Mode) Interval() time.Duration { return m.interval }

func (m Mode) String() string {
	switch m.kind {
	case modeRealtime:
		return "realtime"
	case modePull:
		return fmt.Sprintf("pull(%v)", m.interval)
	case modePushOnce:
		return "push-once"
	default:
		return fmt.Sprintf("mode(%d)", m.kind)
	}
}
