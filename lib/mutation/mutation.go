// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package mutation is the wire format shared by the offline queue, the
// job store, and the backend. A [Payload] is encoded once with
// lib/codec and the same bytes are queued, replayed into the store,
// and committed.
package mutation

import (
	"fmt"
	"time"

	"github.com/bureau-foundation/fieldverify/lib/backend"
	"github.com/bureau-foundation/fieldverify/lib/codec"
	"github.com/bureau-foundation/fieldverify/lib/jobstore"
	"github.com/bureau-foundation/fieldverify/lib/offlinequeue"
)

// Method is how a job was completed.
type Method string

const (
	MethodQR    Method = "qr"
	MethodProof Method = "proof"
)

// Payload is a decoded mutation body.
type Payload interface {
	// Op is the queue op code for this payload.
	Op() offlinequeue.OpCode

	// Entity names what the mutation changes.
	Entity() jobstore.EntityRef

	// Event is the store transition this mutation applies, carrying
	// the given sync marker.
	Event(sync jobstore.SyncStatus) jobstore.Event
}

// CompleteJob completes a job by QR match or photo proof.
type CompleteJob struct {
	JobID         string    `cbor:"job_id"`
	Method        Method    `cbor:"method"`
	Token         string    `cbor:"token,omitempty"`
	ProofImageRef string    `cbor:"proof_image_ref,omitempty"`
	CompletedAt   time.Time `cbor:"completed_at"`
}

func (CompleteJob) Op() offlinequeue.OpCode { return offlinequeue.OpCompleteJob }

func (p CompleteJob) Entity() jobstore.EntityRef {
	return jobstore.EntityRef{Kind: jobstore.KindJob, ID: p.JobID}
}

func (p CompleteJob) Event(sync jobstore.SyncStatus) jobstore.Event {
	if p.Method == MethodProof {
		return jobstore.ProofConfirmed{
			JobID:       p.JobID,
			ImageRef:    p.ProofImageRef,
			ConfirmedAt: p.CompletedAt,
			Sync:        sync,
		}
	}
	return jobstore.QRMatched{
		JobID:     p.JobID,
		Token:     p.Token,
		MatchedAt: p.CompletedAt,
		Sync:      sync,
	}
}

// AddSpecialCollection records a weigh-in. Derived values (total,
// points) are not sent; the backend recomputes them.
type AddSpecialCollection struct {
	ID          string    `cbor:"id"`
	ClientRef   string    `cbor:"client_ref"`
	WasteType   string    `cbor:"waste_type"`
	WeightKg    float64   `cbor:"weight_kg"`
	UnitPrice   float64   `cbor:"unit_price"`
	PointsPerKg float64   `cbor:"points_per_kg"`
	CreatedAt   time.Time `cbor:"created_at"`
}

// SpecialCollectionPayload converts a collection to its wire form.
func SpecialCollectionPayload(collection jobstore.SpecialCollection) AddSpecialCollection {
	return AddSpecialCollection{
		ID:          collection.ID,
		ClientRef:   collection.ClientRef,
		WasteType:   collection.WasteType,
		WeightKg:    collection.WeightKg,
		UnitPrice:   collection.UnitPrice,
		PointsPerKg: collection.PointsPerKg,
		CreatedAt:   collection.CreatedAt,
	}
}

func (AddSpecialCollection) Op() offlinequeue.OpCode { return offlinequeue.OpAddSpecialCollection }

func (p AddSpecialCollection) Entity() jobstore.EntityRef {
	return jobstore.EntityRef{Kind: jobstore.KindSpecialCollection, ID: p.ID}
}

func (p AddSpecialCollection) Event(sync jobstore.SyncStatus) jobstore.Event {
	return jobstore.SpecialCollectionAdded{Collection: jobstore.SpecialCollection{
		ID:          p.ID,
		ClientRef:   p.ClientRef,
		WasteType:   p.WasteType,
		WeightKg:    p.WeightKg,
		UnitPrice:   p.UnitPrice,
		PointsPerKg: p.PointsPerKg,
		CreatedAt:   p.CreatedAt,
		SyncStatus:  sync,
	}}
}

// Marshal encodes payload.
func Marshal(payload Payload) ([]byte, error) {
	body, err := codec.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("mutation: encoding %s: %w", payload.Op(), err)
	}
	return body, nil
}

// Decode parses body according to op.
func Decode(op offlinequeue.OpCode, body []byte) (Payload, error) {
	switch op {
	case offlinequeue.OpCompleteJob:
		var payload CompleteJob
		if err := codec.Unmarshal(body, &payload); err != nil {
			return nil, fmt.Errorf("mutation: decoding %s: %w", op, err)
		}
		if payload.Method != MethodQR && payload.Method != MethodProof {
			return nil, fmt.Errorf("mutation: %s: unknown method %q", op, payload.Method)
		}
		return payload, nil
	case offlinequeue.OpAddSpecialCollection:
		var payload AddSpecialCollection
		if err := codec.Unmarshal(body, &payload); err != nil {
			return nil, fmt.Errorf("mutation: decoding %s: %w", op, err)
		}
		return payload, nil
	default:
		return nil, fmt.Errorf("mutation: unknown op code %q", op)
	}
}

// FromTask decodes a queued task into its payload, checking that the
// task subject names the same entity.
func FromTask(task offlinequeue.Task) (Payload, error) {
	payload, err := Decode(task.Op, task.Payload)
	if err != nil {
		return nil, fmt.Errorf("task %s: %w", task.ID, err)
	}
	if entity := payload.Entity(); entity.ID != task.Subject {
		return nil, fmt.Errorf("mutation: task %s subject %q does not match payload %s %q",
			task.ID, task.Subject, entity.Kind, entity.ID)
	}
	return payload, nil
}

// ToBackend wraps a queued task as a backend mutation. The task id is
// the mutation id, so replays of the same task are deduplicated.
func ToBackend(task offlinequeue.Task) backend.Mutation {
	return backend.Mutation{
		ID:        task.ID,
		Op:        string(task.Op),
		Subject:   task.Subject,
		Payload:   codec.RawMessage(task.Payload),
		CreatedAt: task.CreatedAt,
	}
}

// New builds a backend mutation for payload committed directly, without
// passing through the queue.
func New(id string, payload Payload, createdAt time.Time) (backend.Mutation, error) {
	body, err := Marshal(payload)
	if err != nil {
		return backend.Mutation{}, err
	}
	return backend.Mutation{
		ID:        id,
		Op:        string(payload.Op()),
		Subject:   payload.Entity().ID,
		Payload:   body,
		CreatedAt: createdAt,
	}, nil
}
