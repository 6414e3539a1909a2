// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package jobstore

import (
	"errors"
	"math"
	"testing"
	"time"
)

var morning = time.Date(2026, 3, 2, 8, 30, 0, 0, time.UTC)

func seedState(t *testing.T) State {
	t.Helper()
	state, err := NewState([]Job{
		NewJob("job-1", "Marché central", "12 rue des Lilas", "plastic", "USER-001", morning, false),
		NewJob("job-2", "École Jean Moulin", "3 avenue du Port", "glass", "USER-002", morning.AddDate(0, 0, 1), true),
	})
	if err != nil {
		t.Fatalf("NewState: %v", err)
	}
	return state
}

func TestNewStateRejectsDuplicates(t *testing.T) {
	job := NewJob("job-1", "a", "b", "c", "T", morning, false)
	if _, err := NewState([]Job{job, job}); !errors.Is(err, ErrDuplicateID) {
		t.Fatalf("NewState(duplicate) error = %v, want ErrDuplicateID", err)
	}
}

func TestQRMatchedCompletes(t *testing.T) {
	state := seedState(t)
	next, changed, err := Reduce(state, QRMatched{JobID: "job-1", Token: "USER-001", MatchedAt: morning, Sync: Synced})
	if err != nil {
		t.Fatalf("Reduce: %v", err)
	}
	if !changed {
		t.Fatal("changed = false for a pending job")
	}
	job, _ := next.Job("job-1")
	if job.Status != StatusCompleted {
		t.Errorf("Status = %q, want completed", job.Status)
	}
	if job.SyncStatus != Synced {
		t.Errorf("SyncStatus = %q, want synced", job.SyncStatus)
	}
	if job.QRMatch == nil || job.QRMatch.Token != "USER-001" {
		t.Errorf("QRMatch = %+v, want token USER-001", job.QRMatch)
	}
	if job.ProofImageRef != "" {
		t.Errorf("ProofImageRef = %q, want empty for QR completion", job.ProofImageRef)
	}

	original, _ := state.Job("job-1")
	if original.Status != StatusPending {
		t.Error("Reduce modified its input state")
	}
}

func TestQRMatchIsExactEquality(t *testing.T) {
	state := seedState(t)
	for _, token := range []string{"user-001", "USER-00", "USER-0011", " USER-001", ""} {
		_, changed, err := Reduce(state, QRMatched{JobID: "job-1", Token: token, MatchedAt: morning})
		if !errors.Is(err, ErrTokenMismatch) {
			t.Errorf("token %q: error = %v, want ErrTokenMismatch", token, err)
		}
		if changed {
			t.Errorf("token %q: changed = true", token)
		}
	}
}

func TestUnknownJob(t *testing.T) {
	state := seedState(t)
	if _, _, err := Reduce(state, QRMatched{JobID: "nope", Token: "x"}); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("QRMatched error = %v, want ErrJobNotFound", err)
	}
	if _, _, err := Reduce(state, ProofConfirmed{JobID: "nope", ImageRef: "blake3:00"}); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("ProofConfirmed error = %v, want ErrJobNotFound", err)
	}
}

func TestProofConfirmedRequiresRef(t *testing.T) {
	state := seedState(t)
	if _, _, err := Reduce(state, ProofConfirmed{JobID: "job-2"}); !errors.Is(err, ErrMissingProof) {
		t.Fatalf("error = %v, want ErrMissingProof", err)
	}
	next, _, err := Reduce(state, ProofConfirmed{JobID: "job-2", ImageRef: "blake3:ab", ConfirmedAt: morning})
	if err != nil {
		t.Fatalf("Reduce: %v", err)
	}
	job, _ := next.Job("job-2")
	if job.ProofImageRef != "blake3:ab" || job.QRMatch != nil {
		t.Errorf("job = %+v, want proof ref and no QR match", job)
	}
	if job.SyncStatus != SyncPending {
		t.Errorf("SyncStatus = %q, want pending when Sync is unset", job.SyncStatus)
	}
}

func TestCompletedIsTerminal(t *testing.T) {
	state := seedState(t)
	state, _, err := Reduce(state, QRMatched{JobID: "job-1", Token: "USER-001", MatchedAt: morning, Sync: SyncPending})
	if err != nil {
		t.Fatalf("Reduce: %v", err)
	}

	events := []Event{
		QRMatched{JobID: "job-1", Token: "USER-001", MatchedAt: morning.Add(time.Hour), Sync: Synced},
		QRMatched{JobID: "job-1", Token: "WRONG", MatchedAt: morning.Add(time.Hour)},
		ProofConfirmed{JobID: "job-1", ImageRef: "blake3:ff", ConfirmedAt: morning.Add(time.Hour)},
	}
	for _, event := range events {
		next, changed, err := Reduce(state, event)
		if err != nil {
			t.Errorf("%T on completed job: error = %v, want nil", event, err)
		}
		if changed {
			t.Errorf("%T on completed job: changed = true", event)
		}
		job, _ := next.Job("job-1")
		if job.Status != StatusCompleted || job.ProofImageRef != "" || !job.CompletedAt.Equal(morning) {
			t.Errorf("%T altered completed job: %+v", event, job)
		}
	}
}

func TestReplayIsIdempotent(t *testing.T) {
	event := QRMatched{JobID: "job-1", Token: "USER-001", MatchedAt: morning, Sync: SyncPending}
	once, _, err := Reduce(seedState(t), event)
	if err != nil {
		t.Fatalf("Reduce: %v", err)
	}
	twice, changed, err := Reduce(once, event)
	if err != nil {
		t.Fatalf("Reduce replay: %v", err)
	}
	if changed {
		t.Error("replay reported a change")
	}
	first, _ := once.Job("job-1")
	second, _ := twice.Job("job-1")
	if first.Status != second.Status || first.SyncStatus != second.SyncStatus ||
		!first.CompletedAt.Equal(second.CompletedAt) || *first.QRMatch != *second.QRMatch {
		t.Errorf("replay changed job: %+v vs %+v", first, second)
	}
}

func TestSpecialCollectionDerivedValues(t *testing.T) {
	collection := SpecialCollection{
		ID: "sc-1", ClientRef: "client-9", WasteType: "metal",
		WeightKg: 10, UnitPrice: 500, PointsPerKg: DefaultPointsPerKg, CreatedAt: morning,
	}
	if got := collection.Total(); got != 5000 {
		t.Errorf("Total() = %v, want 5000", got)
	}
	if got := collection.Points(); got != 20 {
		t.Errorf("Points() = %d, want 20", got)
	}

	collection.WeightKg = 2.74
	if got := collection.Points(); got != 5 {
		t.Errorf("Points() for 2.74 kg = %d, want floor(5.48) = 5", got)
	}
}

func TestSpecialCollectionValidation(t *testing.T) {
	valid := SpecialCollection{ID: "sc-1", ClientRef: "c", WasteType: "w", WeightKg: 0, UnitPrice: 0}
	if err := valid.Validate(); err != nil {
		t.Errorf("zero weight rejected: %v", err)
	}
	for name, weight := range map[string]float64{"negative": -1, "nan": math.NaN(), "inf": math.Inf(1)} {
		invalid := valid
		invalid.WeightKg = weight
		if err := invalid.Validate(); err == nil {
			t.Errorf("%s weight accepted", name)
		}
	}
}

func TestSpecialCollectionAddedOnce(t *testing.T) {
	collection := SpecialCollection{ID: "sc-1", ClientRef: "c", WasteType: "w", WeightKg: 3, UnitPrice: 100, PointsPerKg: 2}
	state, changed, err := Reduce(seedState(t), SpecialCollectionAdded{Collection: collection})
	if err != nil || !changed {
		t.Fatalf("first add: changed=%v err=%v", changed, err)
	}
	state, changed, err = Reduce(state, SpecialCollectionAdded{Collection: collection})
	if err != nil || changed {
		t.Fatalf("replayed add: changed=%v err=%v", changed, err)
	}
	if got := len(state.Collections()); got != 1 {
		t.Fatalf("collections = %d, want 1", got)
	}
	if state.Collections()[0].SyncStatus != SyncPending {
		t.Errorf("SyncStatus = %q, want pending default", state.Collections()[0].SyncStatus)
	}
}

func TestAcknowledgeAndPendingSynced(t *testing.T) {
	state := seedState(t)
	state, _, _ = Reduce(state, QRMatched{JobID: "job-1", Token: "USER-001", MatchedAt: morning, Sync: SyncPending})
	state, _, _ = Reduce(state, ProofConfirmed{JobID: "job-2", ImageRef: "blake3:01", ConfirmedAt: morning, Sync: SyncPending})
	state, _, _ = Reduce(state, SpecialCollectionAdded{Collection: SpecialCollection{
		ID: "sc-1", ClientRef: "c", WasteType: "w", WeightKg: 1, UnitPrice: 1, SyncStatus: SyncPending,
	}})

	state, changed, err := Reduce(state, MutationAcknowledged{Kind: KindJob, ID: "job-1"})
	if err != nil || !changed {
		t.Fatalf("acknowledge job-1: changed=%v err=%v", changed, err)
	}
	if job, _ := state.Job("job-1"); job.SyncStatus != Synced {
		t.Errorf("job-1 SyncStatus = %q, want synced", job.SyncStatus)
	}
	if job, _ := state.Job("job-2"); job.SyncStatus != SyncPending {
		t.Errorf("job-2 SyncStatus = %q, want still pending", job.SyncStatus)
	}

	state, changed, err = Reduce(state, PendingSynced{})
	if err != nil || !changed {
		t.Fatalf("PendingSynced: changed=%v err=%v", changed, err)
	}
	for _, job := range state.Jobs() {
		if job.SyncStatus != Synced {
			t.Errorf("%s SyncStatus = %q after PendingSynced", job.ID, job.SyncStatus)
		}
	}
	if state.Collections()[0].SyncStatus != Synced {
		t.Error("special collection still pending after PendingSynced")
	}

	if _, changed, _ := Reduce(state, PendingSynced{}); changed {
		t.Error("second PendingSynced reported a change")
	}
}
