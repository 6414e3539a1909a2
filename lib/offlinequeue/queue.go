// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package offlinequeue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/bureau-foundation/fieldverify/lib/clock"
	"github.com/bureau-foundation/fieldverify/lib/sqlitepool"
)

// OpCode names the kind of mutation a task carries.
type OpCode string

const (
	OpCompleteJob          OpCode = "complete-job"
	OpAddSpecialCollection OpCode = "add-special-collection"
)

// ErrDrainAborted wraps the handler error that stopped a drain. The
// failed task and every task after it remain queued.
var ErrDrainAborted = errors.New("offlinequeue: drain aborted")

// Schema creates the task table. Pass InstallSchema to
// sqlitepool.Config.OnConnect.
const Schema = `
CREATE TABLE IF NOT EXISTS offline_tasks (
	sequence INTEGER PRIMARY KEY,
	id TEXT NOT NULL UNIQUE,
	op TEXT NOT NULL,
	subject TEXT NOT NULL,
	payload BLOB,
	created_at TEXT NOT NULL
);
`

// InstallSchema is an OnConnect hook installing Schema.
func InstallSchema(conn *sqlite.Conn) error {
	return sqlitex.ExecuteScript(conn, Schema, nil)
}

// Task is one queued mutation.
type Task struct {
	// ID is unique per task and doubles as the backend idempotency key.
	ID string

	// Sequence orders tasks. Lower sequences drain first.
	Sequence int64

	Op OpCode

	// Subject identifies the entity the mutation targets (a job id or
	// special collection id).
	Subject string

	// Payload is the CBOR-encoded mutation body. The queue does not
	// interpret it.
	Payload []byte

	CreatedAt time.Time
}

// Handler delivers one task. A nil return deletes the task.
type Handler func(ctx context.Context, task Task) error

// DrainResult counts what a drain did.
type DrainResult struct {
	Delivered int
	Remaining int
}

// Options configures a Queue.
type Options struct {
	Clock  clock.Clock
	Logger *slog.Logger
}

// Queue is a durable FIFO of tasks. Safe for concurrent use.
type Queue struct {
	pool   *sqlitepool.Pool
	clock  clock.Clock
	logger *slog.Logger

	// drainMu serializes drains.
	drainMu sync.Mutex

	// mu guards nextSequence and spill.
	mu           sync.Mutex
	nextSequence int64
	spill        []Task
}

// Open returns a Queue over pool, whose connections must have Schema
// installed. Sequences continue from the highest one already stored.
func Open(ctx context.Context, pool *sqlitepool.Pool, options Options) (*Queue, error) {
	if options.Clock == nil {
		options.Clock = clock.Real()
	}
	if options.Logger == nil {
		options.Logger = slog.New(slog.DiscardHandler)
	}

	conn, err := pool.Take(ctx)
	if err != nil {
		return nil, err
	}
	defer pool.Put(conn)

	var highest int64
	err = sqlitex.Execute(conn, "SELECT COALESCE(MAX(sequence), 0) FROM offline_tasks", &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			highest = stmt.ColumnInt64(0)
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("offlinequeue: reading sequence: %w", err)
	}

	return &Queue{
		pool:         pool,
		clock:        options.Clock,
		logger:       options.Logger,
		nextSequence: highest + 1,
	}, nil
}

// Enqueue appends a task and returns it. It never fails: a task the
// database rejects is held in memory until a later write succeeds.
func (q *Queue) Enqueue(op OpCode, subject string, payload []byte) Task {
	q.mu.Lock()
	defer q.mu.Unlock()

	task := Task{
		ID:        uuid.NewString(),
		Sequence:  q.nextSequence,
		Op:        op,
		Subject:   subject,
		Payload:   slices.Clone(payload),
		CreatedAt: q.clock.Now().UTC(),
	}
	q.nextSequence++

	q.spill = append(q.spill, task)
	if err := q.flushSpillLocked(context.Background()); err != nil {
		q.logger.Warn("offline task held in memory",
			"task_id", task.ID,
			"op", string(op),
			"subject", subject,
			"spilled", len(q.spill),
			"error", err,
		)
	} else {
		q.logger.Debug("offline task queued",
			"task_id", task.ID,
			"op", string(op),
			"subject", subject,
			"sequence", task.Sequence,
		)
	}
	return task
}

// flushSpillLocked writes spilled tasks to the database in order,
// stopping at the first failure. Caller holds q.mu.
func (q *Queue) flushSpillLocked(ctx context.Context) error {
	if len(q.spill) == 0 {
		return nil
	}
	conn, err := q.pool.Take(ctx)
	if err != nil {
		return err
	}
	defer q.pool.Put(conn)

	for len(q.spill) > 0 {
		if err := insertTask(conn, q.spill[0]); err != nil {
			return err
		}
		q.spill = q.spill[1:]
	}
	q.spill = nil
	return nil
}

func insertTask(conn *sqlite.Conn, task Task) error {
	err := sqlitex.Execute(conn,
		"INSERT INTO offline_tasks (sequence, id, op, subject, payload, created_at) VALUES (?, ?, ?, ?, ?, ?)",
		&sqlitex.ExecOptions{
			Args: []any{
				task.Sequence,
				task.ID,
				string(task.Op),
				task.Subject,
				task.Payload,
				task.CreatedAt.Format(time.RFC3339Nano),
			},
		})
	if err != nil {
		return fmt.Errorf("offlinequeue: storing task %s: %w", task.ID, err)
	}
	return nil
}

// List returns every queued task in drain order.
func (q *Queue) List(ctx context.Context) ([]Task, error) {
	q.mu.Lock()
	// A failed flush leaves tasks in spill, which is merged below.
	_ = q.flushSpillLocked(ctx)
	spilled := slices.Clone(q.spill)
	q.mu.Unlock()

	stored, err := q.stored(ctx)
	if err != nil {
		return nil, err
	}
	tasks := append(stored, spilled...)
	slices.SortFunc(tasks, func(a, b Task) int {
		switch {
		case a.Sequence < b.Sequence:
			return -1
		case a.Sequence > b.Sequence:
			return 1
		}
		return 0
	})
	return tasks, nil
}

// Len returns the number of queued tasks.
func (q *Queue) Len(ctx context.Context) (int, error) {
	tasks, err := q.List(ctx)
	if err != nil {
		return 0, err
	}
	return len(tasks), nil
}

func (q *Queue) stored(ctx context.Context) ([]Task, error) {
	conn, err := q.pool.Take(ctx)
	if err != nil {
		return nil, err
	}
	defer q.pool.Put(conn)

	var tasks []Task
	err = sqlitex.Execute(conn,
		"SELECT sequence, id, op, subject, payload, created_at FROM offline_tasks ORDER BY sequence",
		&sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				createdAt, err := time.Parse(time.RFC3339Nano, stmt.ColumnText(5))
				if err != nil {
					return fmt.Errorf("offlinequeue: task %s: created_at: %w", stmt.ColumnText(1), err)
				}
				payload := make([]byte, stmt.ColumnLen(4))
				stmt.ColumnBytes(4, payload)
				tasks = append(tasks, Task{
					Sequence:  stmt.ColumnInt64(0),
					ID:        stmt.ColumnText(1),
					Op:        OpCode(stmt.ColumnText(2)),
					Subject:   stmt.ColumnText(3),
					Payload:   payload,
					CreatedAt: createdAt,
				})
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("offlinequeue: listing tasks: %w", err)
	}
	return tasks, nil
}

// Drain delivers queued tasks to handler in enqueue order. Each task
// is deleted once its handler returns nil. The first handler error
// stops the drain; that task and all later ones stay queued and the
// returned error wraps both ErrDrainAborted and the handler's error.
//
// Tasks enqueued while a drain runs are picked up by the next drain.
// Concurrent calls to Drain run one after another.
func (q *Queue) Drain(ctx context.Context, handler Handler) (DrainResult, error) {
	q.drainMu.Lock()
	defer q.drainMu.Unlock()

	tasks, err := q.List(ctx)
	if err != nil {
		return DrainResult{}, err
	}

	var result DrainResult
	for index, task := range tasks {
		if err := ctx.Err(); err != nil {
			result.Remaining = len(tasks) - index
			return result, err
		}
		if err := handler(ctx, task); err != nil {
			result.Remaining = len(tasks) - index
			q.logger.Warn("offline drain aborted",
				"task_id", task.ID,
				"op", string(task.Op),
				"subject", task.Subject,
				"delivered", result.Delivered,
				"remaining", result.Remaining,
				"error", err,
			)
			return result, fmt.Errorf("%w: task %s (%s %s): %w", ErrDrainAborted, task.ID, task.Op, task.Subject, err)
		}
		if err := q.remove(context.WithoutCancel(ctx), task); err != nil {
			// The task was delivered but will be delivered again.
			result.Remaining = len(tasks) - index
			return result, err
		}
		result.Delivered++
	}

	if result.Delivered > 0 {
		q.logger.Info("offline queue drained", "delivered", result.Delivered)
	}
	return result, nil
}

func (q *Queue) remove(ctx context.Context, task Task) error {
	q.mu.Lock()
	index := slices.IndexFunc(q.spill, func(spilled Task) bool { return spilled.ID == task.ID })
	if index >= 0 {
		q.spill = slices.Delete(q.spill, index, index+1)
		q.mu.Unlock()
		return nil
	}
	q.mu.Unlock()

	conn, err := q.pool.Take(ctx)
	if err != nil {
		return err
	}
	defer q.pool.Put(conn)

	err = sqlitex.Execute(conn, "DELETE FROM offline_tasks WHERE id = ?", &sqlitex.ExecOptions{
		Args: []any{task.ID},
	})
	if err != nil {
		return fmt.Errorf("offlinequeue: deleting task %s: %w", task.ID, err)
	}
	return nil
}
