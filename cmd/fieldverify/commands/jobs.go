// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/fieldverify/cmd/fieldverify/cli"
	"github.com/bureau-foundation/fieldverify/lib/jobstore"
	"github.com/bureau-foundation/fieldverify/lib/seed"
)

type jobsParams struct {
	deviceParams
	Date string `flag:"date" desc:"show jobs scheduled on YYYY-MM-DD (default: today)"`
	All  bool   `flag:"all" desc:"show every job regardless of date"`
}

func jobsCommand(stdout io.Writer) *cli.Command {
	var params jobsParams
	return &cli.Command{
		Name:    "jobs",
		Summary: "List scheduled jobs and their sync state",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("jobs", &params)
		},
		Examples: []cli.Example{
			{Command: "fieldverify jobs --date 2026-10-14"},
		},
		Run: func(args []string) error {
			return withDevice("jobs", params.deviceParams, false, func(ctx context.Context, d *device) error {
				var jobs []jobstore.Job
				if params.All {
					jobs = d.store.Jobs()
				} else {
					day := d.clock.Now()
					if params.Date != "" {
						parsed, err := time.ParseInLocation(seed.DateLayout, params.Date, time.Local)
						if err != nil {
							return fmt.Errorf("--date %q is not YYYY-MM-DD", params.Date)
						}
						day = parsed
					}
					jobs = d.store.JobsOn(day)
				}
				writeJobs(stdout, jobs)
				return nil
			})
		},
	}
}

func writeJobs(w io.Writer, jobs []jobstore.Job) {
	if len(jobs) == 0 {
		fmt.Fprintln(w, "no jobs")
		return
	}
	rows := make([][]cell, 0, len(jobs))
	for _, job := range jobs {
		urgent := plain("")
		if job.Urgent {
			urgent = cell{text: "urgent", style: urgentStyle}
		}
		var proof string
		switch {
		case job.QRMatch != nil:
			proof = "qr"
		case job.ProofImageRef != "":
			proof = "photo"
		}
		rows = append(rows, []cell{
			plain(job.ID),
			plain(job.ScheduledDate.Format(seed.DateLayout)),
			statusCell(job.Status),
			syncCell(job.SyncStatus),
			plain(proof),
			urgent,
			plain(job.WasteType),
			plain(job.Location + ", " + job.Address),
		})
	}
	renderTable(w, []string{"ID", "DATE", "STATUS", "SYNC", "PROOF", "", "WASTE", "LOCATION"}, rows)
}
