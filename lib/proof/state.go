// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package proof gates photo-proof job completion on a cleanliness
// verdict.
//
// The session state machine is the pure function [Reduce]. A photo
// captured online moves to PhaseAnalyzing until the AI verdict
// arrives; offline, a manual-review verdict is synthesized on the
// spot. Confirmation is available as soon as a photo exists, whether
// the verdict is pending, clean, or not clean: a negative verdict
// only flags the confirmation, the worker decides.
package proof

import (
	"errors"
	"fmt"
)

// Phase is where a proof session stands.
type Phase string

const (
	// PhaseIdle: no photo yet (or it was retaken).
	PhaseIdle Phase = "idle"

	// PhaseAnalyzing: photo stored, AI verdict pending.
	PhaseAnalyzing Phase = "analyzing"

	// PhaseReviewed: photo stored with a verdict.
	PhaseReviewed Phase = "reviewed"

	// PhaseConfirmed: job completed with the photo. Terminal.
	PhaseConfirmed Phase = "confirmed"
)

// Verdict is the cleanliness assessment of a photo.
type Verdict struct {
	IsClean bool   `json:"isClean"`
	Comment string `json:"comment"`
}

var (
	// VerdictAIUnavailable stands in when the AI call fails or the
	// worker confirms before it returns.
	VerdictAIUnavailable = Verdict{IsClean: true, Comment: "AI unavailable"}

	// VerdictOffline is synthesized when the photo is captured without
	// connectivity.
	VerdictOffline = Verdict{IsClean: true, Comment: "offline — manual review"}
)

var (
	// ErrNotConfirmable is returned when confirming without a photo.
	ErrNotConfirmable = errors.New("proof: nothing to confirm")

	// ErrAlreadyCaptured is returned when capturing over an existing
	// photo without retaking first.
	ErrAlreadyCaptured = errors.New("proof: photo already captured")

	// ErrConfirmed is returned for any change after confirmation.
	ErrConfirmed = errors.New("proof: session already confirmed")

	// ErrJobCompleted is returned by Confirm when the job had been
	// completed some other way, such as a QR scan.
	ErrJobCompleted = errors.New("proof: job already completed")
)

// State is a proof session snapshot.
type State struct {
	Phase    Phase
	PhotoRef string

	// Verdict is nil while analyzing and when idle.
	Verdict *Verdict

	// Generation increases with every capture. Verdicts carry the
	// generation they were computed for, so a verdict for a retaken
	// photo is discarded.
	Generation int
}

// CanConfirm reports whether the confirm action is enabled.
func (s State) CanConfirm() bool {
	return s.PhotoRef != "" && (s.Phase == PhaseAnalyzing || s.Phase == PhaseReviewed)
}

// Flagged reports whether confirmation should be shown as going
// against a negative verdict.
func (s State) Flagged() bool {
	return s.Verdict != nil && !s.Verdict.IsClean
}

// Event is a proof session input.
type Event interface{ proofEvent() }

// Captured records a stored photo. Online selects AI analysis over
// the offline verdict.
type Captured struct {
	PhotoRef string
	Online   bool
}

// VerdictReceived delivers the AI result for a capture generation.
type VerdictReceived struct {
	Generation int
	Verdict    Verdict
}

// Retaken discards the photo and verdict.
type Retaken struct{}

// Confirmed finalizes the session.
type Confirmed struct{}

func (Captured) proofEvent()        {}
func (VerdictReceived) proofEvent() {}
func (Retaken) proofEvent()         {}
func (Confirmed) proofEvent()       {}

// Reduce applies event to state.
func Reduce(state State, event Event) (State, error) {
	if state.Phase == "" {
		state.Phase = PhaseIdle
	}
	if state.Phase == PhaseConfirmed {
		if _, stale := event.(VerdictReceived); stale {
			return state, nil
		}
		return state, ErrConfirmed
	}

	switch event := event.(type) {
	case Captured:
		if state.Phase != PhaseIdle {
			return state, ErrAlreadyCaptured
		}
		if event.PhotoRef == "" {
			return state, errors.New("proof: capture without photo reference")
		}
		next := State{PhotoRef: event.PhotoRef, Generation: state.Generation + 1}
		if event.Online {
			next.Phase = PhaseAnalyzing
		} else {
			verdict := VerdictOffline
			next.Phase = PhaseReviewed
			next.Verdict = &verdict
		}
		return next, nil

	case VerdictReceived:
		if state.Phase != PhaseAnalyzing || event.Generation != state.Generation {
			return state, nil
		}
		verdict := event.Verdict
		state.Phase = PhaseReviewed
		state.Verdict = &verdict
		return state, nil

	case Retaken:
		return State{Phase: PhaseIdle, Generation: state.Generation}, nil

	case Confirmed:
		if !state.CanConfirm() {
			return state, ErrNotConfirmable
		}
		if state.Verdict == nil {
			verdict := VerdictAIUnavailable
			state.Verdict = &verdict
		}
		state.Phase = PhaseConfirmed
		return state, nil

	default:
		return state, fmt.Errorf("proof: unknown event %T", event)
	}
}
