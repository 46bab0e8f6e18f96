// Copyright 2026 The Rillrate Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import "time"

// Clock is the subset of the time package used by the engine.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// After returns a channel that receives the current time once d
	// has elapsed. If d <= 0 the channel is ready immediately.
	After(d time.Duration) <-chan time.Time

	// NewTicker returns a Ticker firing every d. Panics if d <= 0.
	NewTicker(d time.Duration) *Ticker
}

// Ticker delivers periodic ticks on C. C has capacity 1: a consumer
// that falls behind loses ticks instead of accumulating them, which
// is what pull flows rely on to skip missed intervals.
type Ticker struct {
	C <-chan time.Time

	stop func()
}

// Stop turns the ticker off. C is not closed.
func (t *Ticker) Stop() { t.stop() }

// UnixMilli returns the clock's current time in milliseconds since
// the Unix epoch, the resolution used for event timestamps.
func UnixMilli(c Clock) int64 {
	return c.Now().UnixMilli()
}
