// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package sqlitepool opens the on-device SQLite databases that back the
// offline queue and the job snapshot. It wraps zombiezen.com/go/sqlite
// with one set of pragmas chosen for a handheld that can lose power at
// any moment:
//
//   - journal_mode=WAL: readers (the CLI listing the queue) never block
//     the writer appending a task.
//   - synchronous=FULL: a task that Enqueue returned for survives a
//     power cut, not only a process crash. The write volume is a few
//     rows per completed job, so the per-commit fsync is affordable.
//   - busy_timeout=5000: a concurrent drain and enqueue wait for the
//     write lock instead of failing with SQLITE_BUSY.
//   - foreign_keys=ON and temp_store=MEMORY.
//
// Callers Take a connection, use it from one goroutine, and Put it back.
// Schemas are installed in [Config].OnConnect with sqlitex.ExecuteScript.
package sqlitepool
