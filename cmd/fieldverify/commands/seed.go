// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/fieldverify/cmd/fieldverify/cli"
	"github.com/bureau-foundation/fieldverify/lib/jobstore"
	"github.com/bureau-foundation/fieldverify/lib/seed"
)

type seedParams struct {
	deviceParams
	File string `flag:"file,f" desc:"JSONC schedule file (required)"`
}

func seedCommand(stdout io.Writer) *cli.Command {
	var params seedParams
	return &cli.Command{
		Name:    "seed",
		Summary: "Replace the job schedule from a JSONC file",
		Description: `Replace the device's job schedule from a JSONC file.

The offline queue must be empty: queued mutations refer to the jobs
they were recorded against. Run "fieldverify sync" first.`,
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("seed", &params)
		},
		Run: func(args []string) error {
			if params.File == "" {
				return errors.New("--file is required")
			}
			jobs, err := seed.ReadFile(params.File, time.Local)
			if err != nil {
				return err
			}
			state, err := jobstore.NewState(jobs)
			if err != nil {
				return err
			}
			return withDevice("seed", params.deviceParams, true, func(ctx context.Context, d *device) error {
				waiting, err := d.queue.Len(ctx)
				if err != nil {
					return err
				}
				if waiting > 0 {
					return fmt.Errorf("%d queued mutations have not been delivered; run \"fieldverify sync\" first", waiting)
				}
				// close saves d.store, so replace it rather than
				// writing the snapshot directly.
				d.store = jobstore.NewStore(state, d.logger)
				fmt.Fprintf(stdout, "seeded %d jobs from %s\n", len(jobs), params.File)
				return nil
			})
		},
	}
}
