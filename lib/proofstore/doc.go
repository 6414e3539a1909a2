// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package proofstore keeps proof photos on the device until the
// backend has them.
//
// Photos are content-addressed: a reference is "blake3:" followed by
// the hex BLAKE3-256 digest of the original image bytes. Raw frames
// (anything that is not already JPEG or PNG) are LZ4-compressed. When
// back-office recipients are configured the stored body is sealed to
// them with age, so a lost device does not leak customer premises
// photos.
//
// Each record carries an attestation tag: a BLAKE3 keyed MAC over the
// content digest, job id, capture time and the BLAKE3 digest of the
// stored body, under a key derived with HKDF-SHA256 from the device
// secret and the job id. [Store.Verify] recomputes the tag and rehashes
// the body, so a photo swapped, edited or re-attributed to another job
// after capture is detected. Sealed bodies verify without decryption.
//
// On-disk layout: <dir>/<jobID>/<hex>.proof, each file holding a
// magic, a CBOR header, and the body. The same image taken for two
// jobs is stored once per job, so deleting one job's copy leaves the
// other's attestation intact.
package proofstore
