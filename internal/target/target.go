// Package target writes to the Postgres-family database: idempotent
// schema/table creation, bulk COPY, and the durability promotion that
// hands tables off to the external indexing step. It is the only package
// that imports pgx.
package target

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"migrator/internal/migrate"
	"migrator/internal/schema"
)

// Config holds the target connection settings.
type Config struct {
	DSN string

	// MaxConns must be at least table-concurrency x chunk-concurrency;
	// a smaller pool can deadlock with every connection held by a task
	// waiting on another task's connection.
	MaxConns int32
}

// Client implements migrate.Target against a live Postgres server.
type Client struct {
	pool *pgxpool.Pool
}

var _ migrate.Target = (*Client)(nil)

// Connect opens the target connection pool and verifies connectivity.
func Connect(ctx context.Context, cfg Config) (*Client, func(), error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("parse target dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("create target pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("ping target: %w", err)
	}
	return &Client{pool: pool}, pool.Close, nil
}

// EnsureSchema creates the target schema if it does not exist. Existing
// schemas (and anything in them) are never dropped.
func (c *Client) EnsureSchema(ctx context.Context, name string) error {
	_, err := c.pool.Exec(ctx, "CREATE SCHEMA IF NOT EXISTS "+pgIdent(name))
	if err != nil {
		return fmt.Errorf("create schema %s: %w", name, err)
	}
	return nil
}

// EnsureTable creates the target table if absent: unlogged, no secondary
// indexes, primary key carried over from the source. Creation is
// idempotent; an existing table is left exactly as it is.
func (c *Client) EnsureTable(ctx context.Context, spec schema.TableSpec) error {
	_, err := c.pool.Exec(ctx, BuildCreateTable(spec))
	if err != nil {
		return fmt.Errorf("create table %s.%s: %w", spec.TargetSchema, spec.TargetTable(), err)
	}
	return nil
}

// CopyRows bulk-copies one batch via the COPY protocol. Unique violations
// get their own error class so the report can call out re-runs against
// already-loaded tables.
func (c *Client) CopyRows(ctx context.Context, spec schema.TableSpec, columns []string, rows [][]any) (int64, error) {
	n, err := c.pool.CopyFrom(
		ctx,
		pgx.Identifier{spec.TargetSchema, spec.TargetTable()},
		columns,
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return n, &migrate.DuplicateKeyError{Table: spec.TargetTable(), Err: err}
		}
		return n, fmt.Errorf("copy into %s.%s: %w", spec.TargetSchema, spec.TargetTable(), err)
	}
	return n, nil
}

// Finalize promotes the table from unlogged to logged storage. After this
// the table is crash-safe and ready for the external index/FK step.
func (c *Client) Finalize(ctx context.Context, spec schema.TableSpec) error {
	_, err := c.pool.Exec(ctx, fmt.Sprintf(
		"ALTER TABLE %s.%s SET LOGGED",
		pgIdent(spec.TargetSchema), pgIdent(spec.TargetTable()),
	))
	if err != nil {
		return fmt.Errorf("set logged %s.%s: %w", spec.TargetSchema, spec.TargetTable(), err)
	}
	return nil
}
