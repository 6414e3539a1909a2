// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package jobstore holds the jobs and special collections a field
// worker has on the device, and the only code allowed to change them.
//
// Every change is an [Event] passed through [Reduce], a pure function
// from (State, Event) to the next State. [Store] wraps a State with a
// mutex so each Apply is atomic: status, sync marker, and proof
// reference change together or not at all.
//
// Job lifecycle:
//
//	pending --QRMatched------> completed (QRMatch set, no proof ref)
//	pending --ProofConfirmed-> completed (ProofImageRef set)
//
// completed is terminal. A completion event for a job that is already
// completed is accepted and changes nothing, which is what makes
// replaying an offline queue task more than once safe.
//
// Sync markers move from pending to synced on [MutationAcknowledged]
// for one entity, or on [PendingSynced] for everything after a full
// queue drain. They never move back.
package jobstore
