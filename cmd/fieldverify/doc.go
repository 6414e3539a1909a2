// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// fieldverify is the device-side CLI for recording collection job
// completions.
//
// Usage:
//
//	fieldverify <command> [flags]
//
// Commands: seed, jobs, badge, scan, proof submit, proof verify, special,
// queue, sync, watch, version. Configuration is read from the file named
// by --config or FIELDVERIFY_CONFIG (see lib/config).
package main
