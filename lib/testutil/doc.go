// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil holds test helpers shared across fieldverify
// packages. [RequireReceive] and [RequireClosed] are the only places
// tests wait on the wall clock; everything else runs on clock.Fake.
package testutil
