// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/fieldverify/cmd/fieldverify/cli"
	"github.com/bureau-foundation/fieldverify/lib/engine"
	"github.com/bureau-foundation/fieldverify/lib/jobstore"
	"github.com/bureau-foundation/fieldverify/lib/qrscan"
)

// exitNoMatch is the exit code of a scan that never matched.
const exitNoMatch = 2

type scanParams struct {
	connectivityParams
	Job     string        `flag:"job,j" desc:"job to complete (required)"`
	Image   string        `flag:"image,i" desc:"PNG or JPEG frame standing in for the camera (required)"`
	Timeout time.Duration `flag:"timeout" desc:"give up when no matching code is seen in this long" default:"10s"`
}

func scanCommand(stdout io.Writer) *cli.Command {
	var params scanParams
	return &cli.Command{
		Name:    "scan",
		Summary: "Complete a job by scanning its QR code",
		Description: `Complete a job by scanning its QR code.

The image stands in for the camera: every frame the scanner reads is
that image. A decoded code must equal the job's expected token
exactly. Mismatches are reported and scanning continues after the
cooldown until the timeout.`,
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("scan", &params)
		},
		Examples: []cli.Example{
			{Description: "Scan while out of coverage", Command: "fieldverify scan --job job-1 --image frame.png --offline"},
		},
		Run: func(args []string) error {
			if params.Job == "" || params.Image == "" {
				return errors.New("--job and --image are required")
			}
			frame, err := readImage(params.Image)
			if err != nil {
				return err
			}
			return withDevice("scan", params.deviceParams, params.Offline, func(ctx context.Context, d *device) error {
				job, ok := d.store.Job(params.Job)
				if !ok {
					return fmt.Errorf("%w: %s", jobstore.ErrJobNotFound, params.Job)
				}
				if job.Completed() {
					fmt.Fprintf(stdout, "%s is already completed\n", job.ID)
					return nil
				}

				scanner, err := qrscan.New(qrscan.Config{
					Camera:    qrscan.StillCamera{Image: frame},
					Decoder:   qrscan.NewZXing(true),
					Completer: d.engine,
					OnMismatch: func(notice qrscan.MismatchNotice) {
						fmt.Fprintf(stdout, "code %q does not match %s (attempt %d)\n",
							notice.Received, notice.JobID, notice.Attempt)
					},
					Facing:           qrscan.Facing(d.config.Scan.Facing),
					FrameInterval:    d.config.Scan.FrameInterval,
					MismatchCooldown: d.config.Scan.MismatchCooldown,
					Clock:            d.clock,
					Logger:           d.logger,
				})
				if err != nil {
					return err
				}

				session, err := scanner.Start(ctx, job.ID, job.ExpectedToken)
				if err != nil {
					return err
				}
				select {
				case <-session.Done():
				case <-d.clock.After(params.Timeout):
					session.Stop()
				case <-ctx.Done():
					session.Stop()
				}

				result := session.Result()
				switch {
				case result.Err != nil:
					return result.Err
				case !result.Matched:
					fmt.Fprintf(stdout, "%s not completed after %d codes\n", job.ID, result.Attempts)
					return &cli.ExitError{Code: exitNoMatch}
				}
				writeOutcome(stdout, job.ID, result.Outcome)
				return nil
			})
		},
	}
}

func readImage(path string) (image.Image, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	frame, _, err := image.Decode(file)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	return frame, nil
}

func writeOutcome(w io.Writer, subject string, outcome engine.Outcome) {
	switch {
	case !outcome.Changed:
		fmt.Fprintf(w, "%s unchanged\n", subject)
	case outcome.Synced:
		fmt.Fprintf(w, "%s completed and synced\n", subject)
	default:
		fmt.Fprintf(w, "%s completed offline, queued as %s\n", subject, outcome.TaskID)
	}
}
