// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"sync"
	"time"
)

// Fake returns a FakeClock frozen at start.
func Fake(start time.Time) *FakeClock {
	fake := &FakeClock{now: start}
	fake.changed = sync.NewCond(&fake.mu)
	return fake
}

// FakeClock is a Clock whose time moves only when Advance is called.
// It is safe for concurrent use. AfterFunc callbacks run on the
// goroutine calling Advance, without the clock's lock held, so a
// callback may schedule further timers. A callback must not call
// Advance.
type FakeClock struct {
	mu      sync.Mutex
	now     time.Time
	nextID  uint64
	pending []*scheduled
	changed *sync.Cond
}

// scheduled is one pending timer. Exactly one of fire or send is set.
type scheduled struct {
	id       uint64
	deadline time.Time
	fire     func()
	send     chan time.Time
	period   time.Duration
}

// Now returns the fake time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// After returns a channel that receives once the clock passes now+d.
func (c *FakeClock) After(d time.Duration) <-chan time.Time {
	channel := make(chan time.Time, 1)
	c.mu.Lock()
	defer c.mu.Unlock()
	if d <= 0 {
		channel <- c.now
		return channel
	}
	c.addLocked(&scheduled{deadline: c.now.Add(d), send: channel})
	return channel
}

// AfterFunc schedules f for now+d. A non-positive d runs f before
// AfterFunc returns.
func (c *FakeClock) AfterFunc(d time.Duration, f func()) *Timer {
	if d <= 0 {
		f()
		return &Timer{stop: func() bool { return false }}
	}
	c.mu.Lock()
	entry := &scheduled{deadline: c.now.Add(d), fire: f}
	c.addLocked(entry)
	c.mu.Unlock()
	return &Timer{stop: func() bool { return c.remove(entry.id) }}
}

// NewTicker returns a ticker firing every d of fake time.
func (c *FakeClock) NewTicker(d time.Duration) *Ticker {
	if d <= 0 {
		panic("clock: NewTicker with non-positive interval")
	}
	channel := make(chan time.Time, 1)
	c.mu.Lock()
	entry := &scheduled{deadline: c.now.Add(d), send: channel, period: d}
	c.addLocked(entry)
	c.mu.Unlock()
	return &Ticker{C: channel, stop: func() { c.remove(entry.id) }}
}

// Advance moves the clock forward by d, firing every timer whose
// deadline falls at or before the new time in deadline order. Ties
// fire in scheduling order.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	c.mu.Unlock()

	for {
		c.mu.Lock()
		entry := c.popDueLocked(target)
		if entry == nil {
			c.now = target
			c.mu.Unlock()
			return
		}
		c.now = entry.deadline
		if entry.period > 0 {
			c.addLocked(&scheduled{
				id:       entry.id,
				deadline: entry.deadline.Add(entry.period),
				send:     entry.send,
				period:   entry.period,
			})
		}
		at := c.now
		c.mu.Unlock()

		if entry.fire != nil {
			entry.fire()
			continue
		}
		select {
		case entry.send <- at:
		default:
		}
	}
}

// PendingCount returns the number of timers and tickers still
// scheduled.
func (c *FakeClock) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// WaitForTimers blocks until at least n timers are scheduled. Use it to
// wait for a goroutine to reach its timer before calling Advance.
func (c *FakeClock) WaitForTimers(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for len(c.pending) < n {
		c.changed.Wait()
	}
}

func (c *FakeClock) addLocked(entry *scheduled) {
	if entry.id == 0 {
		c.nextID++
		entry.id = c.nextID
	}
	c.pending = append(c.pending, entry)
	c.changed.Broadcast()
}

// popDueLocked removes and returns the earliest entry due at or before
// target, or nil.
func (c *FakeClock) popDueLocked(target time.Time) *scheduled {
	best := -1
	for index, entry := range c.pending {
		if entry.deadline.After(target) {
			continue
		}
		if best < 0 || entry.deadline.Before(c.pending[best].deadline) {
			best = index
		}
	}
	if best < 0 {
		return nil
	}
	entry := c.pending[best]
	c.pending = append(c.pending[:best], c.pending[best+1:]...)
	return entry
}

func (c *FakeClock) remove(id uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for index, entry := range c.pending {
		if entry.id == id {
			c.pending = append(c.pending[:index], c.pending[index+1:]...)
			return true
		}
	}
	return false
}
