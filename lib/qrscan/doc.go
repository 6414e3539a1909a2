// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package qrscan matches a live camera feed against a job's expected
// QR token.
//
// [Scanner.Start] opens a rear-facing stream and schedules decode
// ticks one at a time on the clock, one per display frame. Each tick
// first checks that its [Session] is still active, then copies the
// current frame into an off-screen buffer and hands it to the
// [Decoder]. A decoded payload equal to the expected token (exact,
// case-sensitive) fires the success haptic, completes the job, and ends
// the session. Any other payload produces a [MismatchNotice] and
// pauses decoding for the cooldown before the next tick. There is no
// attempt limit.
//
// [Session.Stop] stops every track and cancels the pending tick. It is
// idempotent and runs on every exit path, so a finished session never
// leaves a live track or a scheduled tick behind.
package qrscan
