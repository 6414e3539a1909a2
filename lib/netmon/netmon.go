// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package netmon tracks whether the device can reach the network and
// tells subscribers when that changes.
//
// Observations come from [Monitor.Report], either called directly by a
// platform hook or by [Monitor.Run] polling a [Probe]. Subscribers see
// only transitions: reporting the current state again is silent.
package netmon

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/bureau-foundation/fieldverify/lib/clock"
)

// Transition is a change in connectivity.
type Transition struct {
	Online bool
	At     time.Time
}

// Reconnected reports whether this is an offline-to-online transition.
func (t Transition) Reconnected() bool { return t.Online }

// Probe checks connectivity once.
type Probe interface {
	Check(ctx context.Context) bool
}

// ProbeFunc adapts a function to Probe.
type ProbeFunc func(ctx context.Context) bool

func (f ProbeFunc) Check(ctx context.Context) bool { return f(ctx) }

// Monitor holds the current connectivity state.
type Monitor struct {
	clock  clock.Clock
	logger *slog.Logger

	mu          sync.Mutex
	online      bool
	nextID      int
	subscribers []subscriber

	// deliverMu serializes notification so every subscriber sees
	// transitions in the order they happened.
	deliverMu sync.Mutex
}

type subscriber struct {
	id int
	fn func(Transition)
}

// New returns a Monitor in the given initial state.
func New(initialOnline bool, c clock.Clock, logger *slog.Logger) *Monitor {
	if c == nil {
		c = clock.Real()
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Monitor{clock: c, logger: logger, online: initialOnline}
}

// Online reports the current state.
func (m *Monitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// Subscribe registers fn for transitions. Subscribers run
// synchronously, in registration order, on the goroutine that called
// Report. The returned function unsubscribes.
func (m *Monitor) Subscribe(fn func(Transition)) (unsubscribe func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	id := m.nextID
	m.subscribers = append(m.subscribers, subscriber{id: id, fn: fn})

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			for index, sub := range m.subscribers {
				if sub.id == id {
					m.subscribers = append(m.subscribers[:index:index], m.subscribers[index+1:]...)
					return
				}
			}
		})
	}
}

// Report records an observation. Subscribers are called only when
// online differs from the current state. Report returns after every
// subscriber has returned.
func (m *Monitor) Report(online bool) {
	m.deliverMu.Lock()
	defer m.deliverMu.Unlock()

	m.mu.Lock()
	if m.online == online {
		m.mu.Unlock()
		return
	}
	m.online = online
	subscribers := m.subscribers
	m.mu.Unlock()

	transition := Transition{Online: online, At: m.clock.Now()}
	if online {
		m.logger.Info("network online")
	} else {
		m.logger.Warn("network offline")
	}
	for _, sub := range subscribers {
		sub.fn(transition)
	}
}

// Run checks probe immediately and then every interval, reporting each
// result, until ctx is done.
func (m *Monitor) Run(ctx context.Context, probe Probe, interval time.Duration) {
	ticker := m.clock.NewTicker(interval)
	defer ticker.Stop()

	m.Report(probe.Check(ctx))
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if ctx.Err() != nil {
				return
			}
			m.Report(probe.Check(ctx))
		}
	}
}
