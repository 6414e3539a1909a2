// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package qrscan

import (
	"context"
	"errors"
	"image"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bureau-foundation/fieldverify/lib/clock"
	"github.com/bureau-foundation/fieldverify/lib/engine"
)

var epoch = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

type fakeTrack struct{ stopped atomic.Bool }

func (t *fakeTrack) Stop()      { t.stopped.Store(true) }
func (t *fakeTrack) Live() bool { return !t.stopped.Load() }

type fakeStream struct {
	tracks []*fakeTrack
	ready  atomic.Bool
}

func newFakeStream(tracks int) *fakeStream {
	stream := &fakeStream{}
	for range tracks {
		stream.tracks = append(stream.tracks, &fakeTrack{})
	}
	stream.ready.Store(true)
	return stream
}

func (s *fakeStream) Tracks() []Track {
	tracks := make([]Track, len(s.tracks))
	for index, track := range s.tracks {
		tracks[index] = track
	}
	return tracks
}

func (s *fakeStream) Ready() bool                 { return s.ready.Load() }
func (s *fakeStream) Bounds() image.Rectangle     { return image.Rect(0, 0, 8, 8) }
func (s *fakeStream) CopyFrame(*image.RGBA) error { return nil }

func (s *fakeStream) liveTracks() int {
	live := 0
	for _, track := range s.tracks {
		if track.Live() {
			live++
		}
	}
	return live
}

type fakeCamera struct {
	stream *fakeStream
	err    error
	facing Facing
}

func (c *fakeCamera) Open(_ context.Context, facing Facing) (Stream, error) {
	c.facing = facing
	if c.stream == nil {
		return nil, c.err
	}
	return c.stream, c.err
}

// scriptedDecoder returns script entries in order, then repeats the
// last one. An empty entry means no code in the frame.
type scriptedDecoder struct {
	mu     sync.Mutex
	script []string
	calls  int
}

func (d *scriptedDecoder) Decode(*image.RGBA) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	index := min(d.calls, len(d.script)-1)
	d.calls++
	payload := d.script[index]
	return payload, payload != ""
}

func (d *scriptedDecoder) Calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

type recordingCompleter struct {
	mu     sync.Mutex
	tokens []string
	err    error
}

func (c *recordingCompleter) CompleteByQR(_ context.Context, jobID, token string) (engine.Outcome, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tokens = append(c.tokens, jobID+"="+token)
	if c.err != nil {
		return engine.Outcome{}, c.err
	}
	return engine.Outcome{Changed: true, Synced: true}, nil
}

type countingHaptics struct{ count atomic.Int32 }

func (h *countingHaptics) Success() { h.count.Add(1) }

type harness struct {
	clock     *clock.FakeClock
	stream    *fakeStream
	camera    *fakeCamera
	decoder   *scriptedDecoder
	completer *recordingCompleter
	haptics   *countingHaptics
	notices   []MismatchNotice
	scanner   *Scanner
}

func newHarness(t *testing.T, script ...string) *harness {
	t.Helper()
	h := &harness{
		clock:     clock.Fake(epoch),
		stream:    newFakeStream(2),
		decoder:   &scriptedDecoder{script: script},
		completer: &recordingCompleter{},
		haptics:   &countingHaptics{},
	}
	h.camera = &fakeCamera{stream: h.stream}
	scanner, err := New(Config{
		Camera:     h.camera,
		Decoder:    h.decoder,
		Completer:  h.completer,
		Haptics:    h.haptics,
		OnMismatch: func(notice MismatchNotice) { h.notices = append(h.notices, notice) },
		Clock:      h.clock,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	h.scanner = scanner
	return h
}

func (h *harness) frames(n int) {
	for range n {
		h.clock.Advance(DefaultFrameInterval)
	}
}

func (h *harness) requireReleased(t *testing.T) {
	t.Helper()
	if live := h.stream.liveTracks(); live != 0 {
		t.Errorf("%d tracks still live", live)
	}
	if pending := h.clock.PendingCount(); pending != 0 {
		t.Errorf("%d decode ticks still scheduled", pending)
	}
}

func TestMatchCompletesAndEndsSession(t *testing.T) {
	h := newHarness(t, "", "", "USER-001")
	session, err := h.scanner.Start(context.Background(), "job-1", "USER-001")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if h.camera.facing != FacingRear {
		t.Errorf("facing = %q, want rear", h.camera.facing)
	}

	h.frames(3)

	select {
	case <-session.Done():
	default:
		t.Fatal("session still running after matching frame")
	}
	result := session.Result()
	if !result.Matched || result.Err != nil || result.Attempts != 1 {
		t.Errorf("result = %+v", result)
	}
	if len(h.completer.tokens) != 1 || h.completer.tokens[0] != "job-1=USER-001" {
		t.Errorf("completions = %v", h.completer.tokens)
	}
	if h.haptics.count.Load() != 1 {
		t.Errorf("haptic success played %d times, want 1", h.haptics.count.Load())
	}
	h.requireReleased(t)

	h.frames(10)
	if calls := h.decoder.Calls(); calls != 3 {
		t.Errorf("decoder called %d times, want 3 (no ticks after match)", calls)
	}
	session.Stop()
}

func TestMismatchNoticeAndCooldown(t *testing.T) {
	h := newHarness(t, "USER-999", "USER-999", "USER-001")
	session, err := h.scanner.Start(context.Background(), "job-1", "USER-001")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer session.Stop()

	h.frames(1)
	if len(h.notices) != 1 {
		t.Fatalf("notices = %d, want 1", len(h.notices))
	}
	notice := h.notices[0]
	if notice.Expected != "USER-001" || notice.Received != "USER-999" || notice.Attempt != 1 {
		t.Errorf("notice = %+v", notice)
	}

	// No decoding during the cooldown.
	h.clock.Advance(DefaultMismatchCooldown - time.Millisecond)
	if calls := h.decoder.Calls(); calls != 1 {
		t.Errorf("decoder called %d times during cooldown, want 1", calls)
	}
	h.clock.Advance(time.Millisecond)
	if calls := h.decoder.Calls(); calls != 2 {
		t.Errorf("decoder called %d times after cooldown, want 2", calls)
	}
	if len(h.notices) != 2 {
		t.Errorf("notices = %d, want 2", len(h.notices))
	}

	h.clock.Advance(DefaultMismatchCooldown)
	result := session.Result()
	if !result.Matched || result.Attempts != 3 {
		t.Errorf("result = %+v, want match on attempt 3", result)
	}
}

func TestMatchIsCaseSensitive(t *testing.T) {
	h := newHarness(t, "user-001")
	session, err := h.scanner.Start(context.Background(), "job-1", "USER-001")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	h.frames(1)
	if len(h.notices) != 1 || len(h.completer.tokens) != 0 {
		t.Errorf("lowercase token: notices=%d completions=%v", len(h.notices), h.completer.tokens)
	}
	session.Stop()
}

func TestNoAttemptCap(t *testing.T) {
	h := newHarness(t, "WRONG")
	session, err := h.scanner.Start(context.Background(), "job-1", "USER-001")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	h.frames(1)
	for range 50 {
		h.clock.Advance(DefaultMismatchCooldown)
	}
	if len(h.notices) != 51 {
		t.Errorf("notices = %d, want 51", len(h.notices))
	}
	select {
	case <-session.Done():
		t.Fatal("session ended on its own after repeated mismatches")
	default:
	}
	session.Stop()
	h.requireReleased(t)
}

func TestStopReleasesEverything(t *testing.T) {
	h := newHarness(t, "")
	session, err := h.scanner.Start(context.Background(), "job-1", "USER-001")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	h.frames(5)
	if h.clock.PendingCount() != 1 {
		t.Fatalf("pending ticks = %d, want exactly 1 while scanning", h.clock.PendingCount())
	}

	session.Stop()
	session.Stop()
	h.requireReleased(t)

	result := session.Result()
	if result.Matched || result.Err != nil {
		t.Errorf("result = %+v, want a plain cancellation", result)
	}
	calls := h.decoder.Calls()
	h.frames(10)
	if h.decoder.Calls() != calls {
		t.Error("decoder ran after Stop")
	}
}

func TestStopDuringCooldown(t *testing.T) {
	h := newHarness(t, "WRONG")
	session, err := h.scanner.Start(context.Background(), "job-1", "USER-001")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	h.frames(1)
	session.Stop()
	h.requireReleased(t)
}

func TestNotReadyStreamSkipsDecode(t *testing.T) {
	h := newHarness(t, "USER-001")
	h.stream.ready.Store(false)
	session, err := h.scanner.Start(context.Background(), "job-1", "USER-001")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	h.frames(10)
	if h.decoder.Calls() != 0 {
		t.Errorf("decoder called %d times on an empty buffer", h.decoder.Calls())
	}
	h.stream.ready.Store(true)
	h.frames(1)
	if !session.Result().Matched {
		t.Error("no match once the stream was ready")
	}
}

func TestCameraUnavailable(t *testing.T) {
	h := newHarness(t, "")
	denied := errors.New("permission denied")
	h.camera.err = denied

	session, err := h.scanner.Start(context.Background(), "job-1", "USER-001")
	if !errors.Is(err, ErrCameraUnavailable) || !errors.Is(err, denied) {
		t.Fatalf("Start error = %v, want ErrCameraUnavailable wrapping the cause", err)
	}
	if session != nil {
		t.Error("Start returned a session on failure")
	}
	// The partially opened stream is released.
	h.requireReleased(t)
}

func TestStreamEndingFinishesSession(t *testing.T) {
	h := newHarness(t, "")
	session, err := h.scanner.Start(context.Background(), "job-1", "USER-001")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	h.frames(2)
	for _, track := range h.stream.tracks {
		track.Stop()
	}
	h.frames(1)
	result := session.Result()
	if !errors.Is(result.Err, ErrCameraUnavailable) {
		t.Errorf("result.Err = %v, want ErrCameraUnavailable", result.Err)
	}
	h.requireReleased(t)
	session.Stop()
}

func TestCompletionErrorIsReported(t *testing.T) {
	h := newHarness(t, "USER-001")
	h.completer.err = errors.New("job not found")
	session, err := h.scanner.Start(context.Background(), "job-1", "USER-001")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	h.frames(1)
	result := session.Result()
	if !result.Matched || result.Err == nil {
		t.Errorf("result = %+v, want a match carrying the completion error", result)
	}
	h.requireReleased(t)
}

func TestNewRequiresCollaborators(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatal("New with empty config succeeded")
	}
}
