// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides YAML configuration loading for the fieldverify
// device engine.
//
// Configuration is loaded from a single file specified by either the
// FIELDVERIFY_CONFIG environment variable (via [Load]) or a --config
// flag (via [LoadFile]). There is no automatic file search.
//
// The file may carry development and production sections that override
// base values when [Config].Environment matches. Production without an
// explicit section disables dry-run commits so a misconfigured device
// never silently drops mutations into the in-memory backend.
//
// Path and credential fields accept ${VAR} and ${VAR:-default}
// expansion; ${FIELDVERIFY_ROOT} refers to the expanded paths.root.
//
// This package depends on no other fieldverify packages.
package config
