// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"fmt"
	"time"
)

// TB is the part of testing.TB the helpers use.
type TB interface {
	Helper()
	Fatalf(format string, args ...any)
}

// RequireReceive returns the next value from ch, failing the test if
// none arrives within timeout or ch is closed.
func RequireReceive[T any](t TB, ch <-chan T, timeout time.Duration, what string, args ...any) T {
	t.Helper()
	select {
	case value, ok := <-ch:
		if !ok {
			t.Fatalf("channel closed while %s", fmt.Sprintf(what, args...))
		}
		return value
	case <-time.After(timeout):
		t.Fatalf("timed out after %v while %s", timeout, fmt.Sprintf(what, args...))
	}
	panic("unreachable")
}

// RequireClosed fails the test unless ch is closed (or signalled)
// within timeout.
func RequireClosed(t TB, ch <-chan struct{}, timeout time.Duration, what string, args ...any) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(timeout):
		t.Fatalf("timed out after %v while %s", timeout, fmt.Sprintf(what, args...))
	}
}
