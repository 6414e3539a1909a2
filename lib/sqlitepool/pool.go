// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sqlitepool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

// Config describes a database to open.
type Config struct {
	// Path of the database file. The parent directory must exist.
	// "file::memory:?mode=memory&cache=shared" gives an in-memory
	// database shared across the pool's connections.
	Path string

	// PoolSize defaults to 2: one writer and one reader is all a
	// single field device needs.
	PoolSize int

	// Logger defaults to a discard logger.
	Logger *slog.Logger

	// OnConnect runs once per connection after the pragmas.
	OnConnect func(conn *sqlite.Conn) error
}

var pragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA synchronous=FULL",
	"PRAGMA busy_timeout=5000",
	"PRAGMA foreign_keys=ON",
	"PRAGMA temp_store=MEMORY",
}

// Pool is a fixed set of connections. Safe for concurrent use; the
// connections it hands out are not.
type Pool struct {
	inner  *sqlitex.Pool
	logger *slog.Logger
	path   string
}

// Open creates the pool. Connections are prepared lazily on first Take.
func Open(cfg Config) (*Pool, error) {
	if cfg.Path == "" {
		return nil, errors.New("sqlitepool: Path is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	size := cfg.PoolSize
	if size <= 0 {
		size = 2
	}

	inner, err := sqlitex.NewPool(cfg.Path, sqlitex.PoolOptions{
		PoolSize: size,
		PrepareConn: func(conn *sqlite.Conn) error {
			for _, pragma := range pragmas {
				if err := sqlitex.ExecuteTransient(conn, pragma, nil); err != nil {
					return fmt.Errorf("sqlitepool: %s: %w", pragma, err)
				}
			}
			if cfg.OnConnect != nil {
				if err := cfg.OnConnect(conn); err != nil {
					return fmt.Errorf("sqlitepool: OnConnect: %w", err)
				}
			}
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("sqlitepool: opening %s: %w", cfg.Path, err)
	}
	logger.Debug("sqlite pool opened", "path", cfg.Path, "pool_size", size)
	return &Pool{inner: inner, logger: logger, path: cfg.Path}, nil
}

// Take borrows a connection, blocking until one is free or ctx ends.
func (p *Pool) Take(ctx context.Context) (*sqlite.Conn, error) {
	conn, err := p.inner.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("sqlitepool: take: %w", err)
	}
	return conn, nil
}

// Put returns a connection. Put(nil) is a no-op.
func (p *Pool) Put(conn *sqlite.Conn) {
	p.inner.Put(conn)
}

// Close waits for borrowed connections and closes them all.
func (p *Pool) Close() error {
	if err := p.inner.Close(); err != nil {
		p.logger.Error("sqlite pool close failed", "path", p.path, "error", err)
		return fmt.Errorf("sqlitepool: closing %s: %w", p.path, err)
	}
	return nil
}
