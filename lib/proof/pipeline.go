// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package proof

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/bureau-foundation/fieldverify/lib/engine"
	"github.com/bureau-foundation/fieldverify/lib/jobstore"
	"github.com/bureau-foundation/fieldverify/lib/proofstore"
)

// Validator judges whether a photo shows a clean site.
type Validator interface {
	ValidateCleanliness(ctx context.Context, image []byte) (Verdict, error)
}

// PhotoStore keeps captured photos per job. *proofstore.Store
// implements it.
type PhotoStore interface {
	Put(jobID string, image []byte) (proofstore.Record, error)
	Delete(ref, jobID string) error
}

// JobReader looks up stored jobs. *jobstore.Store implements it.
type JobReader interface {
	Job(id string) (jobstore.Job, bool)
}

// Completer completes a job with a photo. *engine.Engine implements
// it.
type Completer interface {
	CompleteWithProof(ctx context.Context, jobID, imageRef string) (engine.Outcome, error)
}

// Network reports connectivity.
type Network interface {
	Online() bool
}

// Config wires a Pipeline.
type Config struct {
	Photos    PhotoStore
	Validator Validator
	Completer Completer
	Network   Network

	// Jobs, if set, keeps Confirm from deleting a photo that an
	// already completed job references.
	Jobs JobReader

	// OnChange, if set, receives every state change of every session.
	// It is called outside session locks, possibly from the analysis
	// goroutine.
	OnChange func(jobID string, state State)

	Logger *slog.Logger
}

// Pipeline opens proof sessions.
type Pipeline struct {
	config Config
}

// NewPipeline validates config.
func NewPipeline(config Config) (*Pipeline, error) {
	var missing []error
	if config.Photos == nil {
		missing = append(missing, errors.New("Photos is required"))
	}
	if config.Validator == nil {
		missing = append(missing, errors.New("Validator is required"))
	}
	if config.Completer == nil {
		missing = append(missing, errors.New("Completer is required"))
	}
	if config.Network == nil {
		missing = append(missing, errors.New("Network is required"))
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("proof: %w", errors.Join(missing...))
	}
	if config.Logger == nil {
		config.Logger = slog.New(slog.DiscardHandler)
	}
	return &Pipeline{config: config}, nil
}

// Start opens a session for jobID.
func (p *Pipeline) Start(jobID string) *Session {
	return &Session{
		config:  p.config,
		jobID:   jobID,
		logger:  p.config.Logger.With("job_id", jobID),
		state:   State{Phase: PhaseIdle},
		changed: make(chan struct{}),
	}
}

// Session is one job's proof flow. Capture, Retake, and Confirm are
// serialized; verdicts arrive asynchronously.
type Session struct {
	config Config
	jobID  string
	logger *slog.Logger

	// opMu serializes worker actions.
	opMu sync.Mutex

	mu      sync.Mutex
	state   State
	cancel  context.CancelFunc
	changed chan struct{}
}

// State returns the current snapshot.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// apply reduces event and notifies on change.
func (s *Session) apply(event Event) (State, error) {
	s.mu.Lock()
	previous := s.state
	next, err := Reduce(s.state, event)
	if err != nil {
		s.mu.Unlock()
		return previous, err
	}
	changed := next.Phase != previous.Phase || next.Generation != previous.Generation ||
		next.PhotoRef != previous.PhotoRef || next.Verdict != previous.Verdict
	s.state = next
	if changed {
		close(s.changed)
		s.changed = make(chan struct{})
	}
	s.mu.Unlock()

	if changed && s.config.OnChange != nil {
		s.config.OnChange(s.jobID, next)
	}
	return next, nil
}

// Capture stores image and starts (online) or synthesizes (offline)
// the verdict. ctx bounds the store write only; the AI call runs until
// it returns, the photo is retaken, or Close.
func (s *Session) Capture(ctx context.Context, image []byte) (State, error) {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	if err := ctx.Err(); err != nil {
		return s.State(), err
	}
	if current := s.State(); current.Phase != PhaseIdle {
		if current.Phase == PhaseConfirmed {
			return current, ErrConfirmed
		}
		return current, ErrAlreadyCaptured
	}

	record, err := s.config.Photos.Put(s.jobID, image)
	if err != nil {
		return s.State(), fmt.Errorf("proof: storing photo: %w", err)
	}

	online := s.config.Network.Online()
	state, err := s.apply(Captured{PhotoRef: record.Ref, Online: online})
	if err != nil {
		return state, err
	}

	if !online {
		s.logger.Info("photo captured offline, manual review", "photo_ref", record.Ref)
		return state, nil
	}

	analysisCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()
	go s.analyze(analysisCtx, state.Generation, image)
	return state, nil
}

func (s *Session) analyze(ctx context.Context, generation int, image []byte) {
	verdict, err := s.config.Validator.ValidateCleanliness(ctx, image)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		s.logger.Warn("AI verdict unavailable, passing optimistically", "error", err)
		verdict = VerdictAIUnavailable
	}
	// A stale generation is ignored by Reduce.
	s.apply(VerdictReceived{Generation: generation, Verdict: verdict})
}

// WaitVerdict blocks until the session leaves PhaseAnalyzing or ctx
// ends, and returns the state.
func (s *Session) WaitVerdict(ctx context.Context) (State, error) {
	for {
		s.mu.Lock()
		state, changed := s.state, s.changed
		s.mu.Unlock()
		if state.Phase != PhaseAnalyzing {
			return state, nil
		}
		select {
		case <-changed:
		case <-ctx.Done():
			return state, ctx.Err()
		}
	}
}

// Retake discards the photo and its verdict. An analysis in flight is
// cancelled and its result ignored.
func (s *Session) Retake() (State, error) {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	previous := s.State()
	state, err := s.apply(Retaken{})
	if err != nil {
		return state, err
	}
	s.stopAnalysis()
	if previous.PhotoRef != "" {
		s.deletePhoto(previous.PhotoRef, "retaken")
	}
	return state, nil
}

// Confirm completes the job with the photo. Confirming while the
// verdict is pending applies VerdictAIUnavailable. On a completion
// error the session stays confirmable. If the job was already
// completed the photo is discarded, the session returns to
// PhaseIdle, and ErrJobCompleted is returned.
func (s *Session) Confirm(ctx context.Context) (State, engine.Outcome, error) {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	current := s.State()
	if current.Phase == PhaseConfirmed {
		return current, engine.Outcome{}, ErrConfirmed
	}
	if !current.CanConfirm() {
		return current, engine.Outcome{}, ErrNotConfirmable
	}

	outcome, err := s.config.Completer.CompleteWithProof(ctx, s.jobID, current.PhotoRef)
	if err != nil {
		return s.State(), engine.Outcome{}, fmt.Errorf("proof: completing job: %w", err)
	}
	if !outcome.Changed {
		state, err := s.apply(Retaken{})
		if err != nil {
			return state, outcome, err
		}
		s.stopAnalysis()
		if !s.referenced(current.PhotoRef) {
			s.deletePhoto(current.PhotoRef, "unused")
		}
		s.logger.Info("job already completed, photo discarded", "photo_ref", current.PhotoRef)
		return state, outcome, ErrJobCompleted
	}

	state, err := s.apply(Confirmed{})
	if err != nil {
		return state, outcome, err
	}
	s.stopAnalysis()
	s.logger.Info("proof confirmed",
		"photo_ref", state.PhotoRef,
		"clean", state.Verdict.IsClean,
		"comment", state.Verdict.Comment,
		"queued", outcome.Queued(),
	)
	return state, outcome, nil
}

// referenced reports whether the stored job already points at ref.
func (s *Session) referenced(ref string) bool {
	if s.config.Jobs == nil {
		return false
	}
	job, ok := s.config.Jobs.Job(s.jobID)
	return ok && job.ProofImageRef == ref
}

func (s *Session) deletePhoto(ref, reason string) {
	if err := s.config.Photos.Delete(ref, s.jobID); err != nil {
		s.logger.Warn("deleting photo failed", "photo_ref", ref, "reason", reason, "error", err)
	}
}

// Close cancels any analysis in flight.
func (s *Session) Close() {
	s.stopAnalysis()
}

func (s *Session) stopAnalysis() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}
