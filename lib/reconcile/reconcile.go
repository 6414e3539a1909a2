// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package reconcile delivers the offline queue to the backend when the
// device reconnects.
//
// A pass drains the queue in order. Each task is replayed into the job
// store (a no-op when the local transition already happened), committed
// with its task id as the idempotency key, and its entity marked
// synced. Once the whole queue has drained, every entity still marked
// pending is flipped to synced. A failed task stops the pass and leaves
// it, and everything after it, for the next reconnect.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/bureau-foundation/fieldverify/lib/backend"
	"github.com/bureau-foundation/fieldverify/lib/jobstore"
	"github.com/bureau-foundation/fieldverify/lib/mutation"
	"github.com/bureau-foundation/fieldverify/lib/netmon"
	"github.com/bureau-foundation/fieldverify/lib/offlinequeue"
)

// Queue is the drain side of the offline queue.
type Queue interface {
	Drain(ctx context.Context, handler offlinequeue.Handler) (offlinequeue.DrainResult, error)
}

// Subscriber delivers connectivity transitions. *netmon.Monitor
// implements it.
type Subscriber interface {
	Subscribe(fn func(netmon.Transition)) (unsubscribe func())
}

// Reconciler runs reconciliation passes. Passes never overlap.
type Reconciler struct {
	store   *jobstore.Store
	queue   Queue
	backend backend.Committer
	logger  *slog.Logger

	mu sync.Mutex
}

// New returns a Reconciler. A nil logger discards.
func New(store *jobstore.Store, queue Queue, committer backend.Committer, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Reconciler{store: store, queue: queue, backend: committer, logger: logger}
}

// Reconcile runs one pass. On error the undelivered tasks stay queued
// and the entities they touch stay pending.
func (r *Reconciler) Reconcile(ctx context.Context) (offlinequeue.DrainResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	result, err := r.queue.Drain(ctx, r.deliver)
	if err != nil {
		r.logger.Warn("reconciliation incomplete",
			"delivered", result.Delivered,
			"remaining", result.Remaining,
			"error", err,
		)
		return result, fmt.Errorf("reconcile: %w", err)
	}

	if _, err := r.store.Apply(jobstore.PendingSynced{}); err != nil {
		return result, fmt.Errorf("reconcile: marking synced: %w", err)
	}
	r.logger.Info("reconciliation complete", "delivered", result.Delivered)
	return result, nil
}

func (r *Reconciler) deliver(ctx context.Context, task offlinequeue.Task) error {
	payload, err := mutation.FromTask(task)
	if err != nil {
		return err
	}
	if _, err := r.store.Apply(payload.Event(jobstore.SyncPending)); err != nil {
		return fmt.Errorf("replaying task %s: %w", task.ID, err)
	}

	ack, err := r.backend.Commit(ctx, mutation.ToBackend(task))
	if err != nil {
		return err
	}

	entity := payload.Entity()
	if _, err := r.store.Apply(jobstore.MutationAcknowledged{Kind: entity.Kind, ID: entity.ID}); err != nil {
		return fmt.Errorf("acknowledging task %s: %w", task.ID, err)
	}
	r.logger.Debug("task delivered",
		"task_id", task.ID,
		"op", string(task.Op),
		"subject", task.Subject,
		"duplicate", ack.Duplicate,
	)
	return nil
}

// Attach runs one pass each time monitor reports an offline-to-online
// transition. The pass runs inside monitor's notification with ctx, so
// it finishes before later transitions are delivered. The returned
// function detaches.
func (r *Reconciler) Attach(ctx context.Context, monitor Subscriber) (detach func()) {
	return monitor.Subscribe(func(transition netmon.Transition) {
		if !transition.Reconnected() || ctx.Err() != nil {
			return
		}
		// Errors are logged by Reconcile; the next reconnect retries.
		_, _ = r.Reconcile(ctx)
	})
}
