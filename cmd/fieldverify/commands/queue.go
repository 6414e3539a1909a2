// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/fieldverify/cmd/fieldverify/cli"
	"github.com/bureau-foundation/fieldverify/lib/codec"
)

type queueParams struct {
	deviceParams
	Payloads bool `flag:"payloads,p" desc:"print each payload in CBOR diagnostic notation"`
}

func queueCommand(stdout io.Writer) *cli.Command {
	var params queueParams
	return &cli.Command{
		Name:    "queue",
		Summary: "List mutations waiting for delivery",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("queue", &params)
		},
		Run: func(args []string) error {
			return withDevice("queue", params.deviceParams, true, func(ctx context.Context, d *device) error {
				tasks, err := d.queue.List(ctx)
				if err != nil {
					return err
				}
				if len(tasks) == 0 {
					fmt.Fprintln(stdout, "queue is empty")
					return nil
				}
				rows := make([][]cell, 0, len(tasks))
				for _, task := range tasks {
					rows = append(rows, []cell{
						plain(fmt.Sprintf("%d", task.Sequence)),
						plain(task.ID),
						plain(string(task.Op)),
						plain(task.Subject),
						cell{text: task.CreatedAt.Format("2006-01-02 15:04:05"), style: faintStyle},
					})
				}
				renderTable(stdout, []string{"SEQ", "TASK", "OP", "SUBJECT", "QUEUED"}, rows)

				if params.Payloads {
					for _, task := range tasks {
						diagnostic, err := codec.Diagnose(task.Payload)
						if err != nil {
							diagnostic = fmt.Sprintf("<undecodable: %v>", err)
						}
						fmt.Fprintf(stdout, "\n%s:\n  %s\n", task.ID, diagnostic)
					}
				}
				return nil
			})
		},
	}
}
