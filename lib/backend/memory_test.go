// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package backend

import (
	"context"
	"errors"
	"testing"
)

func TestMemoryFailNext(t *testing.T) {
	memory := NewMemory(nil)
	ctx := context.Background()
	offline := errors.New("offline")
	memory.FailNext(2, offline)

	for attempt := range 2 {
		if _, err := memory.Commit(ctx, Mutation{ID: "m-1"}); !errors.Is(err, offline) {
			t.Fatalf("attempt %d: error = %v, want injected failure", attempt, err)
		}
	}
	if _, err := memory.Commit(ctx, Mutation{ID: "m-1"}); err != nil {
		t.Fatalf("third attempt: %v", err)
	}
}

func TestMemoryFailWith(t *testing.T) {
	memory := NewMemory(nil)
	ctx := context.Background()
	down := errors.New("down")
	memory.FailWith(down)
	for range 5 {
		if _, err := memory.Commit(ctx, Mutation{ID: "m-1"}); !errors.Is(err, down) {
			t.Fatalf("error = %v, want down", err)
		}
	}
	memory.FailWith(nil)
	ack, err := memory.Commit(ctx, Mutation{ID: "m-1"})
	if err != nil || ack.Duplicate {
		t.Fatalf("after clearing: ack=%+v err=%v", ack, err)
	}
	if len(memory.Accepted()) != 1 {
		t.Errorf("accepted %d, want 1", len(memory.Accepted()))
	}
}

func TestMemoryCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewMemory(nil).Commit(ctx, Mutation{ID: "m-1"}); !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}
