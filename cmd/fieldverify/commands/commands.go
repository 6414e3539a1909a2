// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package commands builds the fieldverify CLI command tree.
//
// Every command opens the device state described by the configuration
// file (job snapshots and the offline queue in one SQLite database,
// proof photos in a directory), performs one worker action or
// maintenance task, and writes the job snapshot back on exit.
package commands

import (
	"fmt"
	"io"

	"github.com/bureau-foundation/fieldverify/cmd/fieldverify/cli"
	"github.com/bureau-foundation/fieldverify/lib/version"
)

// Root builds the complete command tree. Command output goes to
// stdout; logs go to stderr.
func Root(stdout io.Writer) *cli.Command {
	return &cli.Command{
		Name: "fieldverify",
		Description: `fieldverify: field verification and offline synchronization.

Records completion of collection jobs by QR scan or photo proof, queues
mutations while the device is offline, and replays them in order when
connectivity returns.`,
		Subcommands: []*cli.Command{
			seedCommand(stdout),
			jobsCommand(stdout),
			badgeCommand(stdout),
			scanCommand(stdout),
			proofCommand(stdout),
			specialCommand(stdout),
			queueCommand(stdout),
			syncCommand(stdout),
			watchCommand(stdout),
			{
				Name:    "version",
				Summary: "Print version information",
				Run: func(args []string) error {
					fmt.Fprintf(stdout, "fieldverify %s\n", version.Info())
					return nil
				},
			},
		},
		Examples: []cli.Example{
			{Description: "Load today's route", Command: "fieldverify seed --file route.jsonc"},
			{Description: "Complete a job by scanning its code", Command: "fieldverify scan --job job-1 --image frame.png"},
			{Description: "Replay queued mutations", Command: "fieldverify sync"},
		},
	}
}
