// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package jobstore

import (
	"context"
	"fmt"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/bureau-foundation/fieldverify/lib/codec"
	"github.com/bureau-foundation/fieldverify/lib/sqlitepool"
)

// SnapshotSchema creates the tables Snapshotter uses. Pass it to
// sqlitepool.Config.OnConnect (directly or alongside other schemas).
const SnapshotSchema = `
CREATE TABLE IF NOT EXISTS jobs (
	id TEXT PRIMARY KEY,
	position INTEGER NOT NULL,
	body BLOB NOT NULL
);
CREATE TABLE IF NOT EXISTS special_collections (
	id TEXT PRIMARY KEY,
	position INTEGER NOT NULL,
	body BLOB NOT NULL
);
`

// InstallSnapshotSchema is an OnConnect hook installing SnapshotSchema.
func InstallSnapshotSchema(conn *sqlite.Conn) error {
	return sqlitex.ExecuteScript(conn, SnapshotSchema, nil)
}

// Snapshotter persists a State between process runs so the CLI sees
// completions made by earlier invocations. The in-memory Store stays
// authoritative while a process runs.
type Snapshotter struct {
	pool *sqlitepool.Pool
}

// NewSnapshotter uses pool, whose connections must have SnapshotSchema.
func NewSnapshotter(pool *sqlitepool.Pool) *Snapshotter {
	return &Snapshotter{pool: pool}
}

// Save replaces the stored snapshot with state in one transaction.
func (s *Snapshotter) Save(ctx context.Context, state State) (err error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return err
	}
	defer s.pool.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return fmt.Errorf("jobstore: begin snapshot: %w", err)
	}
	defer endTransaction(&err)

	if err := sqlitex.ExecuteTransient(conn, "DELETE FROM jobs", nil); err != nil {
		return fmt.Errorf("jobstore: clearing jobs: %w", err)
	}
	if err := sqlitex.ExecuteTransient(conn, "DELETE FROM special_collections", nil); err != nil {
		return fmt.Errorf("jobstore: clearing special collections: %w", err)
	}
	for position, job := range state.Jobs() {
		if err := insertRow(conn, "jobs", job.ID, position, job); err != nil {
			return err
		}
	}
	for position, collection := range state.collections {
		if err := insertRow(conn, "special_collections", collection.ID, position, collection); err != nil {
			return err
		}
	}
	return nil
}

// Load reads the stored snapshot. An empty database yields an empty
// State.
func (s *Snapshotter) Load(ctx context.Context) (State, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return State{}, err
	}
	defer s.pool.Put(conn)

	var jobs []Job
	err = sqlitex.Execute(conn, "SELECT body FROM jobs ORDER BY position", &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			var job Job
			if err := decodeColumn(stmt, &job); err != nil {
				return err
			}
			jobs = append(jobs, job)
			return nil
		},
	})
	if err != nil {
		return State{}, fmt.Errorf("jobstore: loading jobs: %w", err)
	}
	state, err := NewState(jobs)
	if err != nil {
		return State{}, err
	}

	err = sqlitex.Execute(conn, "SELECT body FROM special_collections ORDER BY position", &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			var collection SpecialCollection
			if err := decodeColumn(stmt, &collection); err != nil {
				return err
			}
			state.collections = append(state.collections, collection)
			return nil
		},
	})
	if err != nil {
		return State{}, fmt.Errorf("jobstore: loading special collections: %w", err)
	}
	return state, nil
}

func insertRow(conn *sqlite.Conn, table, id string, position int, value any) error {
	body, err := codec.Marshal(value)
	if err != nil {
		return fmt.Errorf("jobstore: encoding %s %q: %w", table, id, err)
	}
	err = sqlitex.Execute(conn, "INSERT INTO "+table+" (id, position, body) VALUES (?, ?, ?)", &sqlitex.ExecOptions{
		Args: []any{id, position, body},
	})
	if err != nil {
		return fmt.Errorf("jobstore: storing %s %q: %w", table, id, err)
	}
	return nil
}

func decodeColumn(stmt *sqlite.Stmt, value any) error {
	body := make([]byte, stmt.ColumnLen(0))
	stmt.ColumnBytes(0, body)
	return codec.Unmarshal(body, value)
}
