// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package backend commits device mutations to the fieldverify backend.
//
// A [Mutation] is an opaque CBOR payload plus the metadata the backend
// needs to route and deduplicate it. The mutation ID is sent as the
// Idempotency-Key header: replaying a mutation the backend already
// holds yields an [Ack] with Duplicate set instead of a second write,
// which is what makes at-least-once queue delivery safe.
//
// [Client] speaks HTTP. [Memory] is an in-process [Committer] for
// tests and for the CLI's dry-run mode.
package backend
