// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package offlinequeue holds mutations that could not reach the backend
// while the device was offline.
//
// Tasks are persisted in SQLite and delivered in enqueue order by
// [Queue.Drain]. Delivery is at least once: a task is deleted only
// after its handler succeeds, so a crash between handler and delete
// redelivers it. Handlers must therefore be idempotent, which the
// jobstore reducer and the backend idempotency key both guarantee.
//
// Enqueue never fails. When the database rejects a write the task is
// kept in an in-memory spill list and written ahead of later tasks on
// the next successful write or drain.
package offlinequeue
