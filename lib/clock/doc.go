// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time source so that frame
// scheduling, cooldowns, and connectivity probes can be driven
// deterministically in tests.
//
// Components take a [Clock] field instead of calling the time package:
//
//	scanner := qrscan.New(qrscan.Config{Clock: clock.Real(), ...})
//
// Tests substitute a [FakeClock] and move time explicitly:
//
//	fake := clock.Fake(time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC))
//	session, _ := scanner.Start(ctx, "job-7", "USER-001")
//	fake.Advance(16 * time.Millisecond) // runs exactly one decode tick
//
// # Advance Semantics
//
// [FakeClock.Advance] fires timers one at a time in deadline order and
// sets the fake time to each timer's deadline before firing it. A
// callback that reschedules itself therefore keeps firing until its
// next deadline passes the advance target, which is how a per-frame
// loop behaves on a real display.
package clock
