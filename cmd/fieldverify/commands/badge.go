// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"errors"
	"fmt"
	"image/png"
	"io"
	"os"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/fieldverify/cmd/fieldverify/cli"
	"github.com/bureau-foundation/fieldverify/lib/jobstore"
	"github.com/bureau-foundation/fieldverify/lib/qrscan"
)

type badgeParams struct {
	deviceParams
	Job  string `flag:"job,j" desc:"job whose expected token is encoded (required)"`
	Out  string `flag:"out,o" desc:"PNG file to write (required)"`
	Size int    `flag:"size" desc:"image width and height in pixels" default:"512"`
}

func badgeCommand(stdout io.Writer) *cli.Command {
	var params badgeParams
	return &cli.Command{
		Name:    "badge",
		Summary: "Write a job's QR badge as a PNG",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("badge", &params)
		},
		Run: func(args []string) error {
			if params.Job == "" || params.Out == "" {
				return errors.New("--job and --out are required")
			}
			return withDevice("badge", params.deviceParams, true, func(ctx context.Context, d *device) error {
				job, ok := d.store.Job(params.Job)
				if !ok {
					return fmt.Errorf("%w: %s", jobstore.ErrJobNotFound, params.Job)
				}
				badge, err := qrscan.Render(job.ExpectedToken, params.Size)
				if err != nil {
					return err
				}
				file, err := os.Create(params.Out)
				if err != nil {
					return err
				}
				if err := png.Encode(file, badge); err != nil {
					file.Close()
					return fmt.Errorf("encoding %s: %w", params.Out, err)
				}
				if err := file.Close(); err != nil {
					return err
				}
				fmt.Fprintf(stdout, "wrote %s badge to %s\n", job.ID, params.Out)
				return nil
			})
		},
	}
}
