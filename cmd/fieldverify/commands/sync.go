// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/fieldverify/cmd/fieldverify/cli"
	"github.com/bureau-foundation/fieldverify/lib/netmon"
)

func syncCommand(stdout io.Writer) *cli.Command {
	var params deviceParams
	return &cli.Command{
		Name:    "sync",
		Summary: "Deliver queued mutations in order",
		Description: `Deliver queued mutations to the backend in the order they were recorded.

Delivery stops at the first failure; the failed mutation and everything
after it stay queued for the next sync.`,
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("sync", &params)
		},
		Run: func(args []string) error {
			return withDevice("sync", params, false, func(ctx context.Context, d *device) error {
				if !d.monitor.Online() {
					waiting, err := d.queue.Len(ctx)
					if err != nil {
						return err
					}
					return fmt.Errorf("backend unreachable; %d mutations remain queued", waiting)
				}
				result, err := d.reconciler.Reconcile(ctx)
				fmt.Fprintf(stdout, "delivered %d, %d remaining\n", result.Delivered, result.Remaining)
				return err
			})
		},
	}
}

func watchCommand(stdout io.Writer) *cli.Command {
	var params deviceParams
	return &cli.Command{
		Name:    "watch",
		Summary: "Probe connectivity and sync on every reconnect",
		Description: `Probe network.probe_url every network.interval and deliver the
offline queue each time the device comes back online. Runs until
interrupted.`,
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("watch", &params)
		},
		Run: func(args []string) error {
			return withDevice("watch", params, false, func(ctx context.Context, d *device) error {
				if d.probe == nil {
					return fmt.Errorf("network.probe_url is not configured")
				}
				detach := d.reconciler.Attach(ctx, d.monitor)
				defer detach()
				unsubscribe := d.monitor.Subscribe(func(transition netmon.Transition) {
					state := "offline"
					if transition.Online {
						state = "online"
					}
					fmt.Fprintf(stdout, "%s %s\n", transition.At.Format("15:04:05"), state)
				})
				defer unsubscribe()

				if d.monitor.Online() {
					if result, err := d.reconciler.Reconcile(ctx); err != nil {
						d.logger.Warn("initial sync stopped", "error", err, "remaining", result.Remaining)
					}
				}
				d.monitor.Run(ctx, d.probe, d.config.Network.Interval)
				return nil
			})
		},
	}
}
