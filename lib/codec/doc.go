// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec is the single CBOR configuration used for everything
// fieldverify writes to disk or sends to the backend: offline queue
// payloads, backend mutation bodies, and job snapshots.
//
// Encoding uses RFC 8949 core deterministic rules, so the same
// mutation always produces the same bytes. That matters for the
// offline queue: a task replayed after a crash carries byte-identical
// payload to its first delivery attempt, and the backend can compare
// bodies under one idempotency key.
//
// Struct tags follow the json convention (`json:"job_id"`); fxamacker
// falls back to json tags when no cbor tag is present, so wire types
// serve both JSON output in the CLI and CBOR storage.
package codec
