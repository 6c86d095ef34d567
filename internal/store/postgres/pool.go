// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// querier is the slice of pgxpool.Pool the stores use; pgxmock satisfies
// it in tests.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// PoolConfig controls the shared connection pool.
type PoolConfig struct {
	DSN             string
	MaxConns        int32
	MaxConnLifetime time.Duration
}

// NewPool opens a pgx connection pool from config.
func NewPool(ctx context.Context, cfg PoolConfig) (*pgxpool.Pool, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return pool, nil
}

// Schema is the DDL for every table the stores expect. Idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS listings (
	id          UUID PRIMARY KEY,
	source_id   TEXT NOT NULL UNIQUE,
	active      BOOLEAN NOT NULL DEFAULT TRUE,
	first_seen  TIMESTAMPTZ NOT NULL,
	last_seen   TIMESTAMPTZ NOT NULL,
	record      JSONB NOT NULL
);

CREATE TABLE IF NOT EXISTS listing_images (
	origin_url  TEXT PRIMARY KEY,
	blob_uri    TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS listing_image_attachments (
	listing_id  UUID NOT NULL,
	blob_uri    TEXT NOT NULL,
	is_primary  BOOLEAN NOT NULL DEFAULT FALSE,
	PRIMARY KEY (listing_id, blob_uri)
);

CREATE TABLE IF NOT EXISTS sync_runs (
	id           UUID PRIMARY KEY,
	started_at   TIMESTAMPTZ NOT NULL,
	finished_at  TIMESTAMPTZ,
	status       TEXT NOT NULL,
	status_text  TEXT NOT NULL DEFAULT '',
	stats        JSONB NOT NULL
);

CREATE TABLE IF NOT EXISTS sync_lease (
	id          INT PRIMARY KEY,
	holder      TEXT NOT NULL,
	expires_at  TIMESTAMPTZ NOT NULL
);
`

// EnsureSchema applies the DDL.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
