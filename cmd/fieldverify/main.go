// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"errors"
	"os"

	"github.com/bureau-foundation/fieldverify/cmd/fieldverify/commands"
	"github.com/bureau-foundation/fieldverify/lib/process"
)

func main() {
	if err := commands.Root(os.Stdout).Execute(os.Args[1:]); err != nil {
		// Commands that print their own outcome return an ExitError;
		// don't add an "error:" line for those.
		var coder interface{ ExitCode() int }
		if errors.As(err, &coder) {
			os.Exit(coder.ExitCode())
		}
		process.Fatal(err)
	}
}
