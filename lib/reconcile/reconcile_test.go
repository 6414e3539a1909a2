// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package reconcile

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/bureau-foundation/fieldverify/lib/backend"
	"github.com/bureau-foundation/fieldverify/lib/clock"
	"github.com/bureau-foundation/fieldverify/lib/engine"
	"github.com/bureau-foundation/fieldverify/lib/jobstore"
	"github.com/bureau-foundation/fieldverify/lib/netmon"
	"github.com/bureau-foundation/fieldverify/lib/offlinequeue"
	"github.com/bureau-foundation/fieldverify/lib/sqlitepool"
)

var epoch = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

type fixture struct {
	store      *jobstore.Store
	queue      *offlinequeue.Queue
	backend    *backend.Memory
	monitor    *netmon.Monitor
	engine     *engine.Engine
	reconciler *Reconciler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	fake := clock.Fake(epoch)

	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:      filepath.Join(t.TempDir(), "device.db"),
		OnConnect: offlinequeue.InstallSchema,
	})
	if err != nil {
		t.Fatalf("sqlitepool.Open: %v", err)
	}
	t.Cleanup(func() { pool.Close() })
	queue, err := offlinequeue.Open(context.Background(), pool, offlinequeue.Options{Clock: fake})
	if err != nil {
		t.Fatalf("offlinequeue.Open: %v", err)
	}

	state, err := jobstore.NewState([]jobstore.Job{
		jobstore.NewJob("job-1", "Marché central", "12 rue des Lilas", "plastic", "USER-001", epoch, false),
		jobstore.NewJob("job-2", "Dépôt nord", "8 quai Ouest", "glass", "USER-002", epoch, false),
		jobstore.NewJob("job-3", "Gare sud", "1 place de la Gare", "paper", "USER-003", epoch, false),
	})
	if err != nil {
		t.Fatalf("NewState: %v", err)
	}

	f := &fixture{
		store:   jobstore.NewStore(state, nil),
		queue:   queue,
		backend: backend.NewMemory(fake),
		monitor: netmon.New(false, fake, nil),
	}
	f.engine, err = engine.New(engine.Config{
		Store: f.store, Queue: queue, Backend: f.backend, Network: f.monitor, Clock: fake,
	})
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	f.reconciler = New(f.store, queue, f.backend, nil)
	return f
}

func (f *fixture) completeOffline(t *testing.T, jobID, token string) {
	t.Helper()
	outcome, err := f.engine.CompleteByQR(context.Background(), jobID, token)
	if err != nil {
		t.Fatalf("CompleteByQR(%s): %v", jobID, err)
	}
	if !outcome.Queued() {
		t.Fatalf("CompleteByQR(%s) outcome = %+v, want queued", jobID, outcome)
	}
}

func TestReconnectDrainsInOrderAndSyncs(t *testing.T) {
	f := newFixture(t)
	f.reconciler.Attach(context.Background(), f.monitor)

	f.completeOffline(t, "job-1", "USER-001")
	f.completeOffline(t, "job-2", "USER-002")

	f.monitor.Report(true)

	accepted := f.backend.Accepted()
	if len(accepted) != 2 {
		t.Fatalf("backend accepted %d mutations, want 2", len(accepted))
	}
	if accepted[0].Subject != "job-1" || accepted[1].Subject != "job-2" {
		t.Errorf("commit order = %s, %s; want job-1, job-2", accepted[0].Subject, accepted[1].Subject)
	}
	for _, id := range []string{"job-1", "job-2"} {
		if job, _ := f.store.Job(id); job.SyncStatus != jobstore.Synced {
			t.Errorf("%s SyncStatus = %q, want synced", id, job.SyncStatus)
		}
	}
	if length, _ := f.queue.Len(context.Background()); length != 0 {
		t.Errorf("queue length = %d, want 0", length)
	}
}

func TestOnePassPerReconnect(t *testing.T) {
	f := newFixture(t)
	passes := 0
	f.monitor.Subscribe(func(transition netmon.Transition) {
		if transition.Reconnected() {
			passes++
		}
	})
	f.reconciler.Attach(context.Background(), f.monitor)

	f.completeOffline(t, "job-1", "USER-001")
	f.monitor.Report(true)
	f.monitor.Report(true)
	f.monitor.Report(false)
	f.completeOffline(t, "job-2", "USER-002")
	f.monitor.Report(true)

	if passes != 2 {
		t.Errorf("reconnects = %d, want 2", passes)
	}
	if len(f.backend.Accepted()) != 2 {
		t.Errorf("backend accepted %d, want 2", len(f.backend.Accepted()))
	}
}

func TestFailedTaskStopsPassAndStaysPending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.completeOffline(t, "job-1", "USER-001")
	f.completeOffline(t, "job-2", "USER-002")
	f.completeOffline(t, "job-3", "USER-003")

	// First commit succeeds, second fails.
	calls := 0
	failing := committerFunc(func(ctx context.Context, m backend.Mutation) (backend.Ack, error) {
		calls++
		if calls == 2 {
			return backend.Ack{}, errors.New("timeout")
		}
		return f.backend.Commit(ctx, m)
	})
	reconciler := New(f.store, f.queue, failing, nil)

	result, err := reconciler.Reconcile(ctx)
	if !errors.Is(err, offlinequeue.ErrDrainAborted) {
		t.Fatalf("Reconcile error = %v, want ErrDrainAborted", err)
	}
	if result.Delivered != 1 || result.Remaining != 2 {
		t.Errorf("result = %+v, want 1 delivered, 2 remaining", result)
	}

	want := map[string]jobstore.SyncStatus{
		"job-1": jobstore.Synced,
		"job-2": jobstore.SyncPending,
		"job-3": jobstore.SyncPending,
	}
	for id, status := range want {
		if job, _ := f.store.Job(id); job.SyncStatus != status {
			t.Errorf("%s SyncStatus = %q, want %q", id, job.SyncStatus, status)
		}
	}
	// Every pending entity still has a queued task.
	if length, _ := f.queue.Len(ctx); length != 2 {
		t.Errorf("queue length = %d, want 2", length)
	}

	if _, err := f.reconciler.Reconcile(ctx); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if refs := f.store.PendingSync(); len(refs) != 0 {
		t.Errorf("still pending after retry: %v", refs)
	}
}

func TestReplayedTaskIsDeduplicated(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.completeOffline(t, "job-1", "USER-001")

	tasks, err := f.queue.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	// Simulate a crash after commit but before delete: the backend
	// already holds the task.
	if err := f.reconciler.deliver(ctx, tasks[0]); err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if _, err := f.reconciler.Reconcile(ctx); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if len(f.backend.Accepted()) != 1 {
		t.Errorf("backend accepted %d, want 1 after replay", len(f.backend.Accepted()))
	}
	if job, _ := f.store.Job("job-1"); job.SyncStatus != jobstore.Synced || !job.Completed() {
		t.Errorf("job-1 = %s/%s", job.Status, job.SyncStatus)
	}
}

func TestReplayRestoresLostLocalState(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.completeOffline(t, "job-1", "USER-001")

	// A fresh store (process restart without a snapshot) sees the
	// completion again from the queue.
	state, _ := jobstore.NewState([]jobstore.Job{
		jobstore.NewJob("job-1", "Marché central", "12 rue des Lilas", "plastic", "USER-001", epoch, false),
	})
	fresh := jobstore.NewStore(state, nil)
	if _, err := New(fresh, f.queue, f.backend, nil).Reconcile(ctx); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	job, _ := fresh.Job("job-1")
	if !job.Completed() || job.SyncStatus != jobstore.Synced || job.QRMatch == nil {
		t.Errorf("job-1 after replay = %+v", job)
	}
}

type committerFunc func(ctx context.Context, m backend.Mutation) (backend.Ack, error)

func (f committerFunc) Commit(ctx context.Context, m backend.Mutation) (backend.Ack, error) {
	return f(ctx, m)
}
