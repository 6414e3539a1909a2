// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package qrscan

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"time"

	"github.com/bureau-foundation/fieldverify/lib/clock"
	"github.com/bureau-foundation/fieldverify/lib/engine"
)

const (
	// DefaultFrameInterval is one display refresh at 60 Hz.
	DefaultFrameInterval = time.Second / 60

	// DefaultMismatchCooldown pauses decoding after a wrong code so a
	// camera held on it does not repeat the notice every frame.
	DefaultMismatchCooldown = 2 * time.Second
)

// ErrCameraUnavailable is returned when the stream cannot be opened
// (permission denied, no camera) and reported as the session result
// when every track ends mid-scan.
var ErrCameraUnavailable = errors.New("qrscan: camera unavailable")

// Completer completes a job after a successful match. *engine.Engine
// implements it.
type Completer interface {
	CompleteByQR(ctx context.Context, jobID, token string) (engine.Outcome, error)
}

// Haptics plays device feedback.
type Haptics interface {
	Success()
}

// MismatchNotice is shown when a decoded code is not the job's.
type MismatchNotice struct {
	JobID    string
	Expected string
	Received string
	Attempt  int
}

// Config wires a Scanner.
type Config struct {
	Camera    Camera
	Decoder   Decoder
	Completer Completer

	// Haptics is optional.
	Haptics Haptics

	// OnMismatch is called, outside any lock, for every mismatch.
	OnMismatch func(MismatchNotice)

	// Facing defaults to FacingRear.
	Facing Facing

	FrameInterval    time.Duration
	MismatchCooldown time.Duration

	Clock  clock.Clock
	Logger *slog.Logger
}

// Scanner starts scan sessions.
type Scanner struct {
	config Config
}

// New validates config and returns a Scanner.
func New(config Config) (*Scanner, error) {
	var missing []error
	if config.Camera == nil {
		missing = append(missing, errors.New("Camera is required"))
	}
	if config.Decoder == nil {
		missing = append(missing, errors.New("Decoder is required"))
	}
	if config.Completer == nil {
		missing = append(missing, errors.New("Completer is required"))
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("qrscan: %w", errors.Join(missing...))
	}
	if config.Facing == "" {
		config.Facing = FacingRear
	}
	if config.FrameInterval <= 0 {
		config.FrameInterval = DefaultFrameInterval
	}
	if config.MismatchCooldown <= 0 {
		config.MismatchCooldown = DefaultMismatchCooldown
	}
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	if config.Logger == nil {
		config.Logger = slog.New(slog.DiscardHandler)
	}
	return &Scanner{config: config}, nil
}

// Result is how a session ended.
type Result struct {
	// Matched is true when the expected token was decoded.
	Matched bool

	// Outcome is the engine's report for a match.
	Outcome engine.Outcome

	// Attempts counts decoded codes, matching or not.
	Attempts int

	// Err is set when the match could not be applied or the camera
	// failed. A session stopped by the caller has neither Matched nor
	// Err.
	Err error
}

// Start opens the camera and begins decoding for jobID. ctx bounds
// stream acquisition and the completion call; cancelling it later
// does not stop the session (call Stop).
func (s *Scanner) Start(ctx context.Context, jobID, expectedToken string) (*Session, error) {
	stream, err := s.config.Camera.Open(ctx, s.config.Facing)
	if err != nil {
		stopTracks(stream)
		s.config.Logger.Warn("camera unavailable", "job_id", jobID, "error", err)
		return nil, fmt.Errorf("%w: %w", ErrCameraUnavailable, err)
	}

	session := &Session{
		scanner:  s,
		ctx:      context.WithoutCancel(ctx),
		jobID:    jobID,
		expected: expectedToken,
		stream:   stream,
		active:   true,
		done:     make(chan struct{}),
		logger:   s.config.Logger.With("job_id", jobID),
	}
	session.mu.Lock()
	session.scheduleLocked(s.config.FrameInterval)
	session.mu.Unlock()
	session.logger.Debug("scan session started")
	return session, nil
}

// Session is one in-progress scan.
type Session struct {
	scanner  *Scanner
	ctx      context.Context
	jobID    string
	expected string
	logger   *slog.Logger

	mu       sync.Mutex
	stream   Stream
	timer    *clock.Timer
	frame    *image.RGBA
	active   bool
	matched  bool
	released bool
	attempts int

	done   chan struct{}
	result Result
}

// JobID is the job being verified.
func (s *Session) JobID() string { return s.jobID }

// Done is closed when the session has ended and its result is set.
func (s *Session) Done() <-chan struct{} { return s.done }

// Result returns how the session ended. Valid after Done is closed.
func (s *Session) Result() Result {
	<-s.done
	return s.result
}

// Stop ends the session: every track is stopped and the pending tick
// cancelled. Safe to call any number of times from any goroutine. A
// match already being applied still completes and sets the result.
func (s *Session) Stop() {
	s.mu.Lock()
	wasActive := s.active
	s.active = false
	s.releaseLocked()
	finish := wasActive && !s.matched
	attempts := s.attempts
	s.mu.Unlock()

	if finish {
		s.logger.Debug("scan session stopped", "attempts", attempts)
		s.finish(Result{Attempts: attempts})
	}
}

// releaseLocked stops tracks and the tick timer. Idempotent.
func (s *Session) releaseLocked() {
	if s.released {
		return
	}
	s.released = true
	s.timer.Stop()
	s.timer = nil
	stopTracks(s.stream)
	s.frame = nil
}

func (s *Session) finish(result Result) {
	s.result = result
	close(s.done)
}

func (s *Session) scheduleLocked(delay time.Duration) {
	s.timer = s.scanner.config.Clock.AfterFunc(delay, s.tick)
}

// tick runs one decode attempt. Exactly one tick is scheduled at a
// time; each one schedules its successor unless the session ended.
func (s *Session) tick() {
	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		return
	}
	s.timer = nil
	config := s.scanner.config

	if !anyLive(s.stream) {
		s.active = false
		s.releaseLocked()
		attempts := s.attempts
		s.mu.Unlock()
		s.logger.Warn("camera stream ended")
		s.finish(Result{Attempts: attempts, Err: fmt.Errorf("%w: stream ended", ErrCameraUnavailable)})
		return
	}
	if !s.stream.Ready() {
		s.scheduleLocked(config.FrameInterval)
		s.mu.Unlock()
		return
	}

	bounds := s.stream.Bounds()
	if s.frame == nil || s.frame.Rect != bounds {
		s.frame = image.NewRGBA(bounds)
	}
	frame := s.frame
	if err := s.stream.CopyFrame(frame); err != nil {
		s.scheduleLocked(config.FrameInterval)
		s.mu.Unlock()
		s.logger.Debug("frame copy failed", "error", err)
		return
	}
	s.mu.Unlock()

	// No other tick runs until this one schedules its successor, so
	// frame is not shared while decoding.
	payload, found := config.Decoder.Decode(frame)

	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		return
	}
	if !found {
		s.scheduleLocked(config.FrameInterval)
		s.mu.Unlock()
		return
	}
	s.attempts++
	attempts := s.attempts

	if payload != s.expected {
		s.scheduleLocked(config.MismatchCooldown)
		s.mu.Unlock()
		s.logger.Info("QR mismatch", "received", payload, "attempt", attempts)
		if config.OnMismatch != nil {
			config.OnMismatch(MismatchNotice{
				JobID:    s.jobID,
				Expected: s.expected,
				Received: payload,
				Attempt:  attempts,
			})
		}
		return
	}

	s.active = false
	s.matched = true
	s.releaseLocked()
	s.mu.Unlock()

	if config.Haptics != nil {
		config.Haptics.Success()
	}
	outcome, err := config.Completer.CompleteByQR(s.ctx, s.jobID, payload)
	if err != nil {
		s.logger.Error("completing matched job failed", "error", err)
	} else {
		s.logger.Info("QR matched", "attempt", attempts, "queued", outcome.Queued())
	}
	s.finish(Result{Matched: true, Outcome: outcome, Attempts: attempts, Err: err})
}
