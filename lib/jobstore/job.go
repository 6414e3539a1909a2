// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package jobstore

import (
	"errors"
	"time"
)

// JobStatus is the lifecycle state of a Job.
type JobStatus string

const (
	StatusPending   JobStatus = "pending"
	StatusCompleted JobStatus = "completed"
)

// SyncStatus reports whether an entity's latest mutation has been
// acknowledged by the backend.
type SyncStatus string

const (
	Synced      SyncStatus = "synced"
	SyncPending SyncStatus = "pending"
)

var (
	// ErrJobNotFound is returned for an event naming an unknown job.
	ErrJobNotFound = errors.New("jobstore: job not found")

	// ErrTokenMismatch is returned when a QR completion carries a token
	// that is not exactly the job's expected token.
	ErrTokenMismatch = errors.New("jobstore: QR token does not match job")

	// ErrMissingProof is returned for a proof completion without an
	// image reference.
	ErrMissingProof = errors.New("jobstore: proof completion requires an image reference")

	// ErrDuplicateID is returned when seeding or adding an entity whose
	// id already exists.
	ErrDuplicateID = errors.New("jobstore: duplicate id")
)

// Job is one unit of scheduled field work.
type Job struct {
	ID            string    `json:"id"`
	Location      string    `json:"location"`
	Address       string    `json:"address"`
	WasteType     string    `json:"waste_type"`
	ScheduledDate time.Time `json:"scheduled_date"`
	ExpectedToken string    `json:"expected_token"`
	Urgent        bool      `json:"urgent,omitempty"`

	Status        JobStatus  `json:"status"`
	SyncStatus    SyncStatus `json:"sync_status"`
	ProofImageRef string     `json:"proof_image_ref,omitempty"`
	QRMatch       *QRMatch   `json:"qr_match,omitempty"`
	CompletedAt   time.Time  `json:"completed_at,omitzero"`
}

// QRMatch records the scan that completed a job.
type QRMatch struct {
	Token     string    `json:"token"`
	MatchedAt time.Time `json:"matched_at"`
}

// Completed reports whether the job has reached its terminal state.
func (j Job) Completed() bool { return j.Status == StatusCompleted }

// NewJob returns a pending, synced job as produced by schedule import.
func NewJob(id, location, address, wasteType, expectedToken string, scheduled time.Time, urgent bool) Job {
	return Job{
		ID:            id,
		Location:      location,
		Address:       address,
		WasteType:     wasteType,
		ScheduledDate: scheduled,
		ExpectedToken: expectedToken,
		Urgent:        urgent,
		Status:        StatusPending,
		SyncStatus:    Synced,
	}
}

// sameDay reports whether a and b fall on the same calendar date in
// a's location.
func sameDay(a, b time.Time) bool {
	b = b.In(a.Location())
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
