// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package jobstore

import "time"

// Event is a requested state transition. The concrete types below are
// the complete set.
type Event interface {
	event()
}

// QRMatched completes a job after a scan decoded exactly its expected
// token.
type QRMatched struct {
	JobID     string
	Token     string
	MatchedAt time.Time
	// Sync is the marker the completed job carries. The engine passes
	// SyncPending until the backend acknowledges.
	Sync SyncStatus
}

// ProofConfirmed completes a job with a stored proof photo.
type ProofConfirmed struct {
	JobID       string
	ImageRef    string
	ConfirmedAt time.Time
	Sync        SyncStatus
}

// SpecialCollectionAdded records a new weigh-in.
type SpecialCollectionAdded struct {
	Collection SpecialCollection
}

// EntityKind distinguishes the two kinds of synced entity.
type EntityKind string

const (
	KindJob               EntityKind = "job"
	KindSpecialCollection EntityKind = "special_collection"
)

// MutationAcknowledged marks one entity synced after the backend
// accepted its mutation.
type MutationAcknowledged struct {
	Kind EntityKind
	ID   string
}

// PendingSynced marks every pending entity synced. The reconciler
// emits it after draining the whole offline queue.
type PendingSynced struct{}

func (QRMatched) event()              {}
func (ProofConfirmed) event()         {}
func (SpecialCollectionAdded) event() {}
func (MutationAcknowledged) event()   {}
func (PendingSynced) event()          {}
