package main

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/syssam/graphsync/dialect"
	"github.com/syssam/graphsync/dialect/mssql"
	"github.com/syssam/graphsync/dialect/postgres"
	"github.com/syssam/graphsync/dialect/sql"
)

// openAdapter returns the adapter of cfg.Dialect. Without a DSN the adapter
// can only compile statements. The returned closer releases the connection.
var openAdapter = func(cfg *Config, logger *slog.Logger) (dialect.Adapter, io.Closer, error) {
	newAdapter, err := adapterFor(cfg.Dialect)
	if err != nil {
		return nil, nil, err
	}
	if cfg.DSN == "" {
		return newAdapter(nil), closer(func() error { return nil }), nil
	}
	drv, err := sql.Open(cfg.Dialect, cfg.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("open %s: %w", cfg.Dialect, err)
	}
	if cfg.Debug {
		return newAdapter(sql.NewDebugDriver(drv, logger)), drv, nil
	}
	stats := sql.NewStatsDriver(drv,
		sql.WithSlowThreshold(cfg.SlowQuery),
		sql.WithSlowQueryLog(logger),
	)
	return newAdapter(stats), closer(func() error {
		logger.Debug("query stats", "stats", stats.Stats().Snapshot().String())
		return drv.Close()
	}), nil
}

func adapterFor(name string) (func(dialect.Driver) dialect.Adapter, error) {
	switch name {
	case dialect.Postgres:
		return func(drv dialect.Driver) dialect.Adapter { return postgres.New(drv) }, nil
	case dialect.MSSQL:
		return func(drv dialect.Driver) dialect.Adapter { return mssql.New(drv) }, nil
	default:
		return nil, fmt.Errorf("unsupported dialect %q", name)
	}
}

type closer func() error

func (c closer) Close() error { return c() }
