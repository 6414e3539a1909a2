// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/fieldverify/cmd/fieldverify/cli"
	"github.com/bureau-foundation/fieldverify/lib/engine"
)

type specialParams struct {
	connectivityParams
	Client    string  `flag:"client" desc:"marketplace client reference"`
	WasteType string  `flag:"waste-type" desc:"waste category"`
	Weight    float64 `flag:"weight" desc:"weight in kg"`
	UnitPrice float64 `flag:"unit-price" desc:"price per kg"`
	List      bool    `flag:"list" desc:"list recorded collections instead of adding one"`
}

func specialCommand(stdout io.Writer) *cli.Command {
	var params specialParams
	return &cli.Command{
		Name:    "special",
		Summary: "Record an ad hoc weigh-in",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("special", &params)
		},
		Examples: []cli.Example{
			{Command: "fieldverify special --client c-17 --waste-type metal --weight 12.5 --unit-price 0.8"},
		},
		Run: func(args []string) error {
			return withDevice("special", params.deviceParams, params.Offline, func(ctx context.Context, d *device) error {
				if params.List {
					writeCollections(stdout, d)
					return nil
				}
				collection, outcome, err := d.engine.AddSpecialCollection(ctx, engine.SpecialCollectionInput{
					ClientRef: params.Client,
					WasteType: params.WasteType,
					WeightKg:  params.Weight,
					UnitPrice: params.UnitPrice,
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(stdout, "collection %s: total %.2f, %d points\n",
					collection.ID, collection.Total(), collection.Points())
				if outcome.Queued() {
					fmt.Fprintf(stdout, "queued as %s\n", outcome.TaskID)
				} else {
					fmt.Fprintln(stdout, "synced")
				}
				return nil
			})
		},
	}
}

func writeCollections(w io.Writer, d *device) {
	collections := d.store.Collections()
	if len(collections) == 0 {
		fmt.Fprintln(w, "no special collections")
		return
	}
	rows := make([][]cell, 0, len(collections))
	for _, collection := range collections {
		rows = append(rows, []cell{
			plain(collection.ID),
			plain(collection.ClientRef),
			plain(collection.WasteType),
			plain(fmt.Sprintf("%.2f", collection.WeightKg)),
			plain(fmt.Sprintf("%.2f", collection.Total())),
			plain(fmt.Sprintf("%d", collection.Points())),
			syncCell(collection.SyncStatus),
		})
	}
	renderTable(w, []string{"ID", "CLIENT", "WASTE", "KG", "TOTAL", "POINTS", "SYNC"}, rows)
}
