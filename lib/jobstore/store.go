// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package jobstore

import (
	"log/slog"
	"sync"
	"time"
)

// EntityRef names one entity by kind and id.
type EntityRef struct {
	Kind EntityKind
	ID   string
}

// Store is the device's single source of truth. It is safe for
// concurrent use: Apply calls are serialized and each one replaces the
// whole State, so readers always see a consistent snapshot.
type Store struct {
	mu        sync.Mutex
	state     State
	listeners []func(State)
	logger    *slog.Logger
}

// NewStore wraps an initial state. A nil logger discards.
func NewStore(initial State, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Store{state: initial, logger: logger}
}

// Apply reduces event against the current state. On error the state
// is unchanged. Listeners are notified, outside the lock, only when
// the state changed.
func (s *Store) Apply(event Event) (bool, error) {
	s.mu.Lock()
	next, changed, err := Reduce(s.state, event)
	if err != nil || !changed {
		s.mu.Unlock()
		return false, err
	}
	s.state = next
	listeners := s.listeners
	s.mu.Unlock()

	s.logger.Debug("store transition", "event", eventName(event))
	for _, listener := range listeners {
		listener(next)
	}
	return true, nil
}

// Subscribe registers listener for every state change. Listeners run
// synchronously on the goroutine that called Apply.
func (s *Store) Subscribe(listener func(State)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners[:len(s.listeners):len(s.listeners)], listener)
}

// Snapshot returns the current state.
func (s *Store) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Job returns one job.
func (s *Store) Job(id string) (Job, bool) {
	return s.Snapshot().Job(id)
}

// Jobs returns every job in seed order.
func (s *Store) Jobs() []Job {
	return s.Snapshot().Jobs()
}

// JobsOn returns jobs scheduled on the calendar day of day, for the
// history view.
func (s *Store) JobsOn(day time.Time) []Job {
	var jobs []Job
	for _, job := range s.Jobs() {
		if sameDay(day, job.ScheduledDate) {
			jobs = append(jobs, job)
		}
	}
	return jobs
}

// Collections returns every special collection.
func (s *Store) Collections() []SpecialCollection {
	return s.Snapshot().Collections()
}

// PendingSync lists every entity whose sync marker is pending.
func (s *Store) PendingSync() []EntityRef {
	state := s.Snapshot()
	var refs []EntityRef
	for _, job := range state.Jobs() {
		if job.SyncStatus == SyncPending {
			refs = append(refs, EntityRef{Kind: KindJob, ID: job.ID})
		}
	}
	for _, collection := range state.collections {
		if collection.SyncStatus == SyncPending {
			refs = append(refs, EntityRef{Kind: KindSpecialCollection, ID: collection.ID})
		}
	}
	return refs
}

func eventName(event Event) string {
	switch event.(type) {
	case QRMatched:
		return "qr_matched"
	case ProofConfirmed:
		return "proof_confirmed"
	case SpecialCollectionAdded:
		return "special_collection_added"
	case MutationAcknowledged:
		return "mutation_acknowledged"
	case PendingSynced:
		return "pending_synced"
	default:
		return "unknown"
	}
}
