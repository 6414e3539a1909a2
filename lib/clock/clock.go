// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import "time"

// Clock is the subset of the time package that fieldverify components
// depend on.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// After returns a channel that receives once d has elapsed. A
	// non-positive d delivers immediately.
	After(d time.Duration) <-chan time.Time

	// AfterFunc calls f once d has elapsed and returns a Timer that
	// can cancel the call. The real clock runs f on its own
	// goroutine; the fake clock runs it inside Advance.
	AfterFunc(d time.Duration, f func()) *Timer

	// NewTicker delivers ticks on the returned Ticker's C every d.
	// Panics if d <= 0.
	NewTicker(d time.Duration) *Ticker
}

// Timer is a pending AfterFunc call.
type Timer struct {
	stop func() bool
}

// Stop cancels the pending call. It reports whether the call was
// still pending; false means f already ran or Stop was called before.
func (t *Timer) Stop() bool {
	if t == nil || t.stop == nil {
		return false
	}
	return t.stop()
}

// Ticker delivers periodic ticks on C. C has capacity 1; ticks that
// the reader misses are dropped.
type Ticker struct {
	C <-chan time.Time

	stop func()
}

// Stop turns the ticker off. C is not closed.
func (t *Ticker) Stop() { t.stop() }
