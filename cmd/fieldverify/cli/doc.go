// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package cli provides the command-line framework for the fieldverify
// CLI.
//
// The central type is [Command], a named subcommand with optional
// nested [Command.Subcommands], a [pflag.FlagSet] factory, and a Run
// function. [Command.Execute] handles flag parsing, subcommand routing,
// and help output with examples. Unknown subcommands and flags get a
// "did you mean" suggestion when the edit distance is at most 3.
//
// [FlagsFromParams] binds struct fields tagged flag/desc/default to a
// flag set, so each command declares its inputs as one params struct.
package cli
