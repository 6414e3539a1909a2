// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/bureau-foundation/fieldverify/cmd/fieldverify/cli"
	"github.com/bureau-foundation/fieldverify/lib/backend"
	"github.com/bureau-foundation/fieldverify/lib/clock"
	"github.com/bureau-foundation/fieldverify/lib/config"
	"github.com/bureau-foundation/fieldverify/lib/engine"
	"github.com/bureau-foundation/fieldverify/lib/jobstore"
	"github.com/bureau-foundation/fieldverify/lib/netmon"
	"github.com/bureau-foundation/fieldverify/lib/offlinequeue"
	"github.com/bureau-foundation/fieldverify/lib/reconcile"
	"github.com/bureau-foundation/fieldverify/lib/sqlitepool"

	"zombiezen.com/go/sqlite"
)

// deviceParams are the flags every device command accepts.
type deviceParams struct {
	ConfigPath string `flag:"config,c" desc:"configuration file (default: $FIELDVERIFY_CONFIG)"`
	Verbose    bool   `flag:"verbose,v" desc:"log at debug level"`
}

// connectivityParams add the offline override to action commands.
type connectivityParams struct {
	deviceParams
	Offline bool `flag:"offline" desc:"act as if the network were unreachable"`
}

// device is the opened on-device state.
type device struct {
	config     *config.Config
	clock      clock.Clock
	logger     *slog.Logger
	pool       *sqlitepool.Pool
	snapshots  *jobstore.Snapshotter
	store      *jobstore.Store
	queue      *offlinequeue.Queue
	backend    backend.Committer
	monitor    *netmon.Monitor
	probe      netmon.Probe
	engine     *engine.Engine
	reconciler *reconcile.Reconciler
}

// commandContext returns a context cancelled on SIGINT or SIGTERM.
func commandContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func loadConfig(params deviceParams) (*config.Config, error) {
	var cfg *config.Config
	var err error
	if params.ConfigPath != "" {
		cfg, err = config.LoadFile(params.ConfigPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if err := cfg.EnsurePaths(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// openDevice loads configuration and opens every stateful component.
// When offline is set the network monitor starts offline and is never
// probed.
func openDevice(ctx context.Context, name string, params deviceParams, offline bool) (_ *device, err error) {
	cfg, err := loadConfig(params)
	if err != nil {
		return nil, err
	}
	logger := cli.NewCommandLogger(params.Verbose).With("command", name)
	realClock := clock.Real()

	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:   cfg.Paths.StateDB,
		Logger: logger,
		OnConnect: func(conn *sqlite.Conn) error {
			if err := jobstore.InstallSnapshotSchema(conn); err != nil {
				return err
			}
			return offlinequeue.InstallSchema(conn)
		},
	})
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			pool.Close()
		}
	}()

	snapshots := jobstore.NewSnapshotter(pool)
	state, err := snapshots.Load(ctx)
	if err != nil {
		return nil, err
	}
	store := jobstore.NewStore(state, logger)

	queue, err := offlinequeue.Open(ctx, pool, offlinequeue.Options{Clock: realClock, Logger: logger})
	if err != nil {
		return nil, err
	}

	committer, err := openBackend(cfg, realClock, logger)
	if err != nil {
		return nil, err
	}

	var probe netmon.Probe
	online := !offline
	if !offline && cfg.Network.ProbeURL != "" {
		probe = netmon.HTTPProbe{URL: cfg.Network.ProbeURL, Timeout: cfg.Network.Timeout}
		online = probe.Check(ctx)
	}
	monitor := netmon.New(online, realClock, logger)

	eng, err := engine.New(engine.Config{
		Store:       store,
		Queue:       queue,
		Backend:     committer,
		Network:     monitor,
		PointsPerKg: cfg.Pricing.PointsPerKg,
		Clock:       realClock,
		Logger:      logger,
	})
	if err != nil {
		return nil, err
	}

	return &device{
		config:     cfg,
		clock:      realClock,
		logger:     logger,
		pool:       pool,
		snapshots:  snapshots,
		store:      store,
		queue:      queue,
		backend:    committer,
		monitor:    monitor,
		probe:      probe,
		engine:     eng,
		reconciler: reconcile.New(store, queue, committer, logger),
	}, nil
}

func openBackend(cfg *config.Config, c clock.Clock, logger *slog.Logger) (backend.Committer, error) {
	if cfg.DryRunEnabled() {
		logger.Debug("dry run: committing to in-process backend")
		return backend.NewMemory(c), nil
	}
	return backend.NewClient(backend.ClientConfig{
		BaseURL:    cfg.Backend.URL,
		HTTPClient: &http.Client{Timeout: cfg.Backend.Timeout},
		Logger:     logger,
	})
}

// close persists the job snapshot and closes the database.
func (d *device) close() error {
	saveErr := d.snapshots.Save(context.Background(), d.store.Snapshot())
	if saveErr != nil {
		d.logger.Error("saving job snapshot failed", "error", saveErr)
	}
	return errors.Join(saveErr, d.pool.Close())
}

// withDevice opens the device, runs fn, and closes the device.
func withDevice(name string, params deviceParams, offline bool, fn func(ctx context.Context, d *device) error) (err error) {
	ctx, cancel := commandContext()
	defer cancel()

	d, err := openDevice(ctx, name, params, offline)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := d.close(); closeErr != nil {
			err = errors.Join(err, closeErr)
		}
	}()
	return fn(ctx, d)
}
