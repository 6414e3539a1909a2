// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package backend

import (
	"context"
	"time"

	"github.com/bureau-foundation/fieldverify/lib/codec"
)

// Mutation is one state change submitted by a device.
type Mutation struct {
	ID        string           `cbor:"id"`
	Op        string           `cbor:"op"`
	Subject   string           `cbor:"subject"`
	Payload   codec.RawMessage `cbor:"payload"`
	CreatedAt time.Time        `cbor:"created_at"`
}

// Ack is the backend's acceptance of a mutation.
type Ack struct {
	ID string `cbor:"id"`

	// Duplicate is set when the backend had already accepted a
	// mutation with this ID.
	Duplicate bool `cbor:"duplicate,omitempty"`

	AcceptedAt time.Time `cbor:"accepted_at,omitzero"`
}

// Committer submits mutations. Implementations must treat a repeated
// mutation ID as the same mutation.
type Committer interface {
	Commit(ctx context.Context, mutation Mutation) (Ack, error)
}
