// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package jobstore

import (
	"fmt"
	"maps"
	"slices"
)

// State is an immutable snapshot of everything on the device. Reduce
// never modifies its input; it returns a State that shares unchanged
// data with the previous one.
type State struct {
	jobs        map[string]Job
	order       []string
	collections []SpecialCollection
}

// NewState builds a State from seed jobs, preserving their order.
func NewState(jobs []Job) (State, error) {
	state := State{jobs: make(map[string]Job, len(jobs))}
	for _, job := range jobs {
		if _, exists := state.jobs[job.ID]; exists {
			return State{}, fmt.Errorf("%w: job %q", ErrDuplicateID, job.ID)
		}
		state.jobs[job.ID] = job
		state.order = append(state.order, job.ID)
	}
	return state, nil
}

// Job returns the job with the given id.
func (s State) Job(id string) (Job, bool) {
	job, ok := s.jobs[id]
	return job, ok
}

// Jobs returns all jobs in seed order.
func (s State) Jobs() []Job {
	jobs := make([]Job, 0, len(s.order))
	for _, id := range s.order {
		jobs = append(jobs, s.jobs[id])
	}
	return jobs
}

// Collections returns all special collections in creation order.
func (s State) Collections() []SpecialCollection {
	return slices.Clone(s.collections)
}

// Reduce applies event to state. changed is false when the event is
// valid but already reflected in state (a replayed completion, an
// acknowledgment for something already synced).
func Reduce(state State, event Event) (next State, changed bool, err error) {
	switch event := event.(type) {
	case QRMatched:
		return reduceQRMatched(state, event)
	case ProofConfirmed:
		return reduceProofConfirmed(state, event)
	case SpecialCollectionAdded:
		return reduceCollectionAdded(state, event)
	case MutationAcknowledged:
		return reduceAcknowledged(state, event)
	case PendingSynced:
		return reducePendingSynced(state)
	default:
		return state, false, fmt.Errorf("jobstore: unknown event %T", event)
	}
}

func reduceQRMatched(state State, event QRMatched) (State, bool, error) {
	job, ok := state.jobs[event.JobID]
	if !ok {
		return state, false, fmt.Errorf("%w: %q", ErrJobNotFound, event.JobID)
	}
	if job.Completed() {
		return state, false, nil
	}
	if event.Token != job.ExpectedToken {
		return state, false, fmt.Errorf("%w: job %q expects %q, got %q",
			ErrTokenMismatch, job.ID, job.ExpectedToken, event.Token)
	}
	job.Status = StatusCompleted
	job.SyncStatus = syncOrDefault(event.Sync)
	job.ProofImageRef = ""
	job.QRMatch = &QRMatch{Token: event.Token, MatchedAt: event.MatchedAt}
	job.CompletedAt = event.MatchedAt
	return state.withJob(job), true, nil
}

func reduceProofConfirmed(state State, event ProofConfirmed) (State, bool, error) {
	job, ok := state.jobs[event.JobID]
	if !ok {
		return state, false, fmt.Errorf("%w: %q", ErrJobNotFound, event.JobID)
	}
	if job.Completed() {
		return state, false, nil
	}
	if event.ImageRef == "" {
		return state, false, fmt.Errorf("%w: job %q", ErrMissingProof, job.ID)
	}
	job.Status = StatusCompleted
	job.SyncStatus = syncOrDefault(event.Sync)
	job.ProofImageRef = event.ImageRef
	job.QRMatch = nil
	job.CompletedAt = event.ConfirmedAt
	return state.withJob(job), true, nil
}

func reduceCollectionAdded(state State, event SpecialCollectionAdded) (State, bool, error) {
	collection := event.Collection
	for _, existing := range state.collections {
		if existing.ID == collection.ID {
			// Replaying the same weigh-in is a no-op.
			return state, false, nil
		}
	}
	if err := collection.Validate(); err != nil {
		return state, false, err
	}
	collection.SyncStatus = syncOrDefault(collection.SyncStatus)
	next := state
	next.collections = append(slices.Clone(state.collections), collection)
	return next, true, nil
}

func reduceAcknowledged(state State, event MutationAcknowledged) (State, bool, error) {
	switch event.Kind {
	case KindJob:
		job, ok := state.jobs[event.ID]
		if !ok {
			return state, false, fmt.Errorf("%w: %q", ErrJobNotFound, event.ID)
		}
		if job.SyncStatus == Synced {
			return state, false, nil
		}
		job.SyncStatus = Synced
		return state.withJob(job), true, nil
	case KindSpecialCollection:
		index := slices.IndexFunc(state.collections, func(c SpecialCollection) bool {
			return c.ID == event.ID
		})
		if index < 0 {
			return state, false, fmt.Errorf("jobstore: special collection %q not found", event.ID)
		}
		if state.collections[index].SyncStatus == Synced {
			return state, false, nil
		}
		next := state
		next.collections = slices.Clone(state.collections)
		next.collections[index].SyncStatus = Synced
		return next, true, nil
	default:
		return state, false, fmt.Errorf("jobstore: unknown entity kind %q", event.Kind)
	}
}

func reducePendingSynced(state State) (State, bool, error) {
	next := state
	changed := false
	for _, id := range state.order {
		job := state.jobs[id]
		if job.SyncStatus != SyncPending {
			continue
		}
		if !changed {
			next.jobs = maps.Clone(state.jobs)
			changed = true
		}
		job.SyncStatus = Synced
		next.jobs[id] = job
	}
	collectionsCloned := false
	for index, collection := range state.collections {
		if collection.SyncStatus != SyncPending {
			continue
		}
		if !collectionsCloned {
			next.collections = slices.Clone(state.collections)
			collectionsCloned = true
		}
		next.collections[index].SyncStatus = Synced
	}
	return next, changed || collectionsCloned, nil
}

// withJob returns a copy of s with job replaced.
func (s State) withJob(job Job) State {
	next := s
	next.jobs = maps.Clone(s.jobs)
	next.jobs[job.ID] = job
	return next
}

func syncOrDefault(status SyncStatus) SyncStatus {
	if status == "" {
		return SyncPending
	}
	return status
}
