// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package backend

import (
	"context"
	"slices"
	"sync"

	"github.com/bureau-foundation/fieldverify/lib/clock"
)

// Memory is an in-process Committer. It accepts each mutation ID once
// and reports repeats as duplicates. It also serves the HTTP protocol
// (see ServeHTTP), so tests can point a Client at it.
type Memory struct {
	clock clock.Clock

	mu       sync.Mutex
	accepted []Mutation
	seen     map[string]bool

	// err is returned by Commit while remaining != 0. A negative
	// remaining fails indefinitely.
	err       error
	remaining int
}

var _ Committer = (*Memory)(nil)

// NewMemory returns an empty Memory. A nil clock uses the wall clock.
func NewMemory(c clock.Clock) *Memory {
	if c == nil {
		c = clock.Real()
	}
	return &Memory{clock: c, seen: make(map[string]bool)}
}

// Commit implements Committer.
func (m *Memory) Commit(ctx context.Context, mutation Mutation) (Ack, error) {
	if err := ctx.Err(); err != nil {
		return Ack{}, err
	}
	if err := m.injectedFailure(); err != nil {
		return Ack{}, err
	}
	return m.accept(mutation), nil
}

// FailWith makes every later Commit return err. FailWith(nil) clears
// the failure.
func (m *Memory) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	m.remaining = -1
}

// FailNext makes the next n Commit calls return err.
func (m *Memory) FailNext(n int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	m.remaining = n
}

// Accepted returns every accepted mutation in commit order.
func (m *Memory) Accepted() []Mutation {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.accepted)
}

func (m *Memory) injectedFailure() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err == nil || m.remaining == 0 {
		return nil
	}
	if m.remaining > 0 {
		m.remaining--
	}
	return m.err
}

func (m *Memory) accept(mutation Mutation) Ack {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.seen[mutation.ID] {
		return Ack{ID: mutation.ID, Duplicate: true}
	}
	m.seen[mutation.ID] = true
	m.accepted = append(m.accepted, mutation)
	return Ack{ID: mutation.ID, AcceptedAt: m.clock.Now().UTC()}
}
