// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package proof

import (
	"errors"
	"testing"
)

func mustReduce(t *testing.T, state State, event Event) State {
	t.Helper()
	next, err := Reduce(state, event)
	if err != nil {
		t.Fatalf("Reduce(%T): %v", event, err)
	}
	return next
}

func TestOnlineCaptureAwaitsVerdict(t *testing.T) {
	state := mustReduce(t, State{}, Captured{PhotoRef: "blake3:01", Online: true})
	if state.Phase != PhaseAnalyzing || state.Verdict != nil {
		t.Fatalf("state = %+v, want analyzing without verdict", state)
	}
	if !state.CanConfirm() {
		t.Error("confirm disabled while analysis is pending")
	}

	state = mustReduce(t, state, VerdictReceived{Generation: state.Generation, Verdict: Verdict{IsClean: false, Comment: "bags left on curb"}})
	if state.Phase != PhaseReviewed || !state.Flagged() {
		t.Errorf("state = %+v, want reviewed and flagged", state)
	}
	if !state.CanConfirm() {
		t.Error("negative verdict blocked confirmation")
	}
}

func TestOfflineCaptureSynthesizesVerdict(t *testing.T) {
	state := mustReduce(t, State{}, Captured{PhotoRef: "blake3:01", Online: false})
	if state.Phase != PhaseReviewed || state.Verdict == nil || *state.Verdict != VerdictOffline {
		t.Fatalf("state = %+v, want offline verdict", state)
	}
	if state.Verdict.Comment != "offline — manual review" || !state.Verdict.IsClean {
		t.Errorf("offline verdict = %+v", *state.Verdict)
	}
}

func TestStaleVerdictIsIgnored(t *testing.T) {
	state := mustReduce(t, State{}, Captured{PhotoRef: "blake3:01", Online: true})
	first := state.Generation
	state = mustReduce(t, state, Retaken{})
	state = mustReduce(t, state, Captured{PhotoRef: "blake3:02", Online: true})

	state = mustReduce(t, state, VerdictReceived{Generation: first, Verdict: Verdict{IsClean: false}})
	if state.Phase != PhaseAnalyzing || state.Verdict != nil {
		t.Errorf("verdict for a retaken photo applied: %+v", state)
	}
}

func TestRetakeClearsPhotoAndVerdict(t *testing.T) {
	state := mustReduce(t, State{}, Captured{PhotoRef: "blake3:01", Online: false})
	state = mustReduce(t, state, Retaken{})
	if state.Phase != PhaseIdle || state.PhotoRef != "" || state.Verdict != nil {
		t.Errorf("state after retake = %+v", state)
	}
	if state.CanConfirm() {
		t.Error("confirm enabled without a photo")
	}
}

func TestConfirmRules(t *testing.T) {
	if _, err := Reduce(State{}, Confirmed{}); !errors.Is(err, ErrNotConfirmable) {
		t.Errorf("confirm without photo = %v, want ErrNotConfirmable", err)
	}

	pending := mustReduce(t, State{}, Captured{PhotoRef: "blake3:01", Online: true})
	confirmed := mustReduce(t, pending, Confirmed{})
	if confirmed.Phase != PhaseConfirmed || confirmed.Verdict == nil || *confirmed.Verdict != VerdictAIUnavailable {
		t.Errorf("confirm while pending = %+v, want fallback verdict", confirmed)
	}

	for _, event := range []Event{Captured{PhotoRef: "blake3:02"}, Retaken{}, Confirmed{}} {
		if _, err := Reduce(confirmed, event); !errors.Is(err, ErrConfirmed) {
			t.Errorf("%T after confirmation = %v, want ErrConfirmed", event, err)
		}
	}
	if next := mustReduce(t, confirmed, VerdictReceived{Generation: confirmed.Generation, Verdict: Verdict{}}); *next.Verdict != VerdictAIUnavailable {
		t.Error("late verdict changed a confirmed session")
	}
}

func TestCaptureTwiceRequiresRetake(t *testing.T) {
	state := mustReduce(t, State{}, Captured{PhotoRef: "blake3:01", Online: false})
	if _, err := Reduce(state, Captured{PhotoRef: "blake3:02"}); !errors.Is(err, ErrAlreadyCaptured) {
		t.Errorf("second capture = %v, want ErrAlreadyCaptured", err)
	}
}
