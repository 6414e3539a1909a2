// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package engine turns worker actions into job store transitions and
// gets them to the backend.
//
// Every action is applied locally first with a pending sync marker, so
// the worker sees the result immediately whatever the network does.
// When the device is online the mutation is committed straight away
// and the marker flips to synced on acknowledgment. When it is offline,
// or the commit fails, the mutation goes to the offline queue and stays
// pending until the reconciler delivers it.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/bureau-foundation/fieldverify/lib/backend"
	"github.com/bureau-foundation/fieldverify/lib/clock"
	"github.com/bureau-foundation/fieldverify/lib/jobstore"
	"github.com/bureau-foundation/fieldverify/lib/mutation"
	"github.com/bureau-foundation/fieldverify/lib/offlinequeue"
)

// Queue is the part of the offline queue the engine writes to.
type Queue interface {
	Enqueue(op offlinequeue.OpCode, subject string, payload []byte) offlinequeue.Task
}

// Network reports connectivity. *netmon.Monitor implements it.
type Network interface {
	Online() bool
}

// Config wires an Engine.
type Config struct {
	Store   *jobstore.Store
	Queue   Queue
	Backend backend.Committer
	Network Network

	// PointsPerKg is the loyalty rate for special collections.
	// Zero means jobstore.DefaultPointsPerKg.
	PointsPerKg float64

	Clock  clock.Clock
	Logger *slog.Logger
}

// Engine applies worker actions. Safe for concurrent use.
type Engine struct {
	store       *jobstore.Store
	queue       Queue
	backend     backend.Committer
	network     Network
	pointsPerKg float64
	clock       clock.Clock
	logger      *slog.Logger
}

// New validates config and returns an Engine.
func New(config Config) (*Engine, error) {
	var missing []error
	if config.Store == nil {
		missing = append(missing, errors.New("Store is required"))
	}
	if config.Queue == nil {
		missing = append(missing, errors.New("Queue is required"))
	}
	if config.Backend == nil {
		missing = append(missing, errors.New("Backend is required"))
	}
	if config.Network == nil {
		missing = append(missing, errors.New("Network is required"))
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("engine: %w", errors.Join(missing...))
	}
	if config.PointsPerKg == 0 {
		config.PointsPerKg = jobstore.DefaultPointsPerKg
	}
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	if config.Logger == nil {
		config.Logger = slog.New(slog.DiscardHandler)
	}
	return &Engine{
		store:       config.Store,
		queue:       config.Queue,
		backend:     config.Backend,
		network:     config.Network,
		pointsPerKg: config.PointsPerKg,
		clock:       config.Clock,
		logger:      config.Logger,
	}, nil
}

// Outcome describes what an action did.
type Outcome struct {
	// Changed is false when the action was already reflected in the
	// store (for example, completing a completed job). Nothing is
	// committed or queued in that case.
	Changed bool

	// Synced is true when the backend acknowledged the mutation
	// during the call.
	Synced bool

	// TaskID is set when the mutation was queued for later delivery.
	TaskID string
}

// Queued reports whether the mutation is waiting in the offline queue.
func (o Outcome) Queued() bool { return o.TaskID != "" }

// CompleteByQR completes jobID after a scan decoded token. The token
// must equal the job's expected token exactly.
func (e *Engine) CompleteByQR(ctx context.Context, jobID, token string) (Outcome, error) {
	return e.submit(ctx, mutation.CompleteJob{
		JobID:       jobID,
		Method:      mutation.MethodQR,
		Token:       token,
		CompletedAt: e.clock.Now().UTC(),
	})
}

// CompleteWithProof completes jobID with a stored proof photo.
func (e *Engine) CompleteWithProof(ctx context.Context, jobID, imageRef string) (Outcome, error) {
	return e.submit(ctx, mutation.CompleteJob{
		JobID:         jobID,
		Method:        mutation.MethodProof,
		ProofImageRef: imageRef,
		CompletedAt:   e.clock.Now().UTC(),
	})
}

// SpecialCollectionInput is the weigh-in form.
type SpecialCollectionInput struct {
	ClientRef string
	WasteType string
	WeightKg  float64
	UnitPrice float64
}

// AddSpecialCollection records a weigh-in and returns the stored
// collection with its derived totals available.
func (e *Engine) AddSpecialCollection(ctx context.Context, input SpecialCollectionInput) (jobstore.SpecialCollection, Outcome, error) {
	collection := jobstore.SpecialCollection{
		ID:          uuid.NewString(),
		ClientRef:   input.ClientRef,
		WasteType:   input.WasteType,
		WeightKg:    input.WeightKg,
		UnitPrice:   input.UnitPrice,
		PointsPerKg: e.pointsPerKg,
		CreatedAt:   e.clock.Now().UTC(),
		SyncStatus:  jobstore.SyncPending,
	}
	if err := collection.Validate(); err != nil {
		return jobstore.SpecialCollection{}, Outcome{}, err
	}
	outcome, err := e.submit(ctx, mutation.SpecialCollectionPayload(collection))
	if err != nil {
		return jobstore.SpecialCollection{}, Outcome{}, err
	}
	if outcome.Synced {
		collection.SyncStatus = jobstore.Synced
	}
	return collection, outcome, nil
}

func (e *Engine) submit(ctx context.Context, payload mutation.Payload) (Outcome, error) {
	// The id only names a direct commit. Queued tasks are committed
	// under their task id by the reconciler.
	committed, err := mutation.New(uuid.NewString(), payload, e.clock.Now().UTC())
	if err != nil {
		return Outcome{}, err
	}
	entity := payload.Entity()

	changed, err := e.store.Apply(payload.Event(jobstore.SyncPending))
	if err != nil {
		return Outcome{}, err
	}
	if !changed {
		e.logger.Debug("action already applied", "op", string(payload.Op()), "subject", entity.ID)
		return Outcome{}, nil
	}

	if e.network.Online() {
		_, commitErr := e.backend.Commit(ctx, committed)
		if commitErr == nil {
			if _, err := e.store.Apply(jobstore.MutationAcknowledged{Kind: entity.Kind, ID: entity.ID}); err != nil {
				return Outcome{}, err
			}
			e.logger.Info("mutation committed",
				"op", string(payload.Op()),
				"subject", entity.ID,
				"mutation_id", committed.ID,
			)
			return Outcome{Changed: true, Synced: true}, nil
		}
		e.logger.Warn("commit failed, queueing for reconnect",
			"op", string(payload.Op()),
			"subject", entity.ID,
			"error", commitErr,
		)
	}

	task := e.queue.Enqueue(payload.Op(), entity.ID, committed.Payload)
	e.logger.Info("mutation queued",
		"op", string(payload.Op()),
		"subject", entity.ID,
		"task_id", task.ID,
	)
	return Outcome{Changed: true, TaskID: task.ID}, nil
}
