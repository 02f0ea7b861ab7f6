// Package source reads from the MySQL-family database being migrated:
// table discovery, catalog introspection, year bounds for the chunk
// planner, and row streaming. It is the only package that imports the
// MySQL driver.
package source

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"

	"migrator/internal/migrate"
	"migrator/internal/plan"
	"migrator/internal/schema"
)

// Config holds the source connection settings and discovery rule for one
// database registry entry.
type Config struct {
	DSN           string   // go-sql-driver DSN; parseTime is forced on
	TablePattern  string   // SHOW TABLES LIKE pattern, e.g. "T_%"
	IncludeTables []string // explicit table list; wins over the pattern
}

// Client implements migrate.Source against a live MySQL/MariaDB server.
type Client struct {
	db       *sql.DB
	database string
	cfg      Config
}

var _ migrate.Source = (*Client)(nil)

// Connect opens the source connection pool and verifies connectivity.
// A failed ping is the fatal class: nothing can proceed without the
// source catalog.
func Connect(ctx context.Context, cfg Config) (*Client, func(), error) {
	dsnCfg, err := mysql.ParseDSN(cfg.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("parse source dsn: %w", err)
	}
	// Temporal columns must arrive as time.Time so zero dates are
	// detectable and COPY encoding is unambiguous.
	dsnCfg.ParseTime = true

	db, err := sql.Open("mysql", dsnCfg.FormatDSN())
	if err != nil {
		return nil, nil, fmt.Errorf("open source: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, nil, unavailable("ping", err)
	}
	closeFn := func() { _ = db.Close() }
	return &Client{db: db, database: dsnCfg.DBName, cfg: cfg}, closeFn, nil
}

// Tables discovers the table set: the configured include list when
// present, otherwise SHOW TABLES (optionally LIKE the configured pattern).
func (c *Client) Tables(ctx context.Context) ([]string, error) {
	if len(c.cfg.IncludeTables) > 0 {
		return append([]string(nil), c.cfg.IncludeTables...), nil
	}

	query := "SHOW TABLES"
	var args []any
	if c.cfg.TablePattern != "" {
		query = "SHOW TABLES LIKE ?"
		args = append(args, c.cfg.TablePattern)
	}
	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, unavailable("list tables", err)
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan table name: %w", err)
		}
		tables = append(tables, name)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("list tables", err)
	}
	return tables, nil
}

// Introspect reads a table's column metadata and approximate row count
// from the catalog. The estimate only drives the chunking threshold, so
// information_schema's statistics are accurate enough.
func (c *Client) Introspect(ctx context.Context, table string) (schema.TableSpec, error) {
	const colQuery = `
		SELECT column_name, column_type, is_nullable, column_key
		FROM information_schema.columns
		WHERE table_schema = DATABASE() AND table_name = ?
		ORDER BY ordinal_position`

	rows, err := c.db.QueryContext(ctx, colQuery, table)
	if err != nil {
		return schema.TableSpec{}, unavailable("introspect "+table, err)
	}
	defer rows.Close()

	spec := schema.TableSpec{Name: table, SourceSchema: c.database}
	for rows.Next() {
		var name, colType, nullable, key string
		if err := rows.Scan(&name, &colType, &nullable, &key); err != nil {
			return schema.TableSpec{}, fmt.Errorf("scan column metadata: %w", err)
		}
		spec.Columns = append(spec.Columns, schema.Column{
			Name:       name,
			SourceType: colType,
			Nullable:   nullable == "YES",
			PrimaryKey: key == "PRI",
		})
	}
	if err := rows.Err(); err != nil {
		return schema.TableSpec{}, unavailable("introspect "+table, err)
	}
	if len(spec.Columns) == 0 {
		return schema.TableSpec{}, &migrate.TableNotFoundError{Table: table}
	}

	const countQuery = `
		SELECT COALESCE(table_rows, 0)
		FROM information_schema.tables
		WHERE table_schema = DATABASE() AND table_name = ?`
	if err := c.db.QueryRowContext(ctx, countQuery, table).Scan(&spec.EstimatedRows); err != nil {
		return schema.TableSpec{}, unavailable("row estimate for "+table, err)
	}
	return spec, nil
}

// unavailable classifies a catalog or connectivity failure as the fatal
// class. Every statement Introspect and Tables issue runs against the same
// connection, so any of them failing means the source is gone.
func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", migrate.ErrSourceUnavailable, op, err)
}

// YearBounds reports the min and max calendar year of a column, skipping
// NULLs and MySQL zero dates (which report year 0).
func (c *Client) YearBounds(ctx context.Context, table, column string) (int, int, bool, error) {
	query := fmt.Sprintf(
		"SELECT MIN(YEAR(%[1]s)), MAX(YEAR(%[1]s)) FROM %[2]s WHERE %[1]s IS NOT NULL AND YEAR(%[1]s) > 0",
		ident(column), ident(table),
	)
	var min, max sql.NullInt64
	if err := c.db.QueryRowContext(ctx, query).Scan(&min, &max); err != nil {
		return 0, 0, false, fmt.Errorf("year bounds: %w", err)
	}
	if !min.Valid || !max.Valid {
		return 0, 0, false, nil
	}
	return int(min.Int64), int(max.Int64), true, nil
}

// Stream sends every row of the range (nil = whole table) on out and
// closes it. Values arrive raw; conversion happens in the loader. Sends
// select on ctx so an abandoned consumer never strands the producer.
func (c *Client) Stream(ctx context.Context, spec schema.TableSpec, rng *plan.Range, out chan<- []any) error {
	defer close(out)

	query, args := buildSelect(spec, rng)
	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("select %s: %w", spec.Name, err)
	}
	defer rows.Close()

	n := len(spec.Columns)
	for rows.Next() {
		vals := make([]any, n)
		ptrs := make([]any, n)
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return fmt.Errorf("scan %s: %w", spec.Name, err)
		}
		select {
		case out <- vals:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("read %s: %w", spec.Name, err)
	}
	return nil
}

// buildSelect renders the streaming query for one range. The NULL range
// also sweeps up zero dates, which no year window covers, so the ranges
// jointly cover every row.
func buildSelect(spec schema.TableSpec, rng *plan.Range) (string, []any) {
	cols := make([]string, len(spec.Columns))
	for i, c := range spec.Columns {
		cols[i] = ident(c.Name)
	}
	query := fmt.Sprintf("SELECT %s FROM %s", strings.Join(cols, ", "), ident(spec.Name))
	if rng == nil {
		return query, nil
	}

	pcol := ident(rng.Column)
	if rng.Null {
		return query + fmt.Sprintf(" WHERE %[1]s IS NULL OR YEAR(%[1]s) = 0", pcol), nil
	}
	return query + fmt.Sprintf(" WHERE %[1]s >= ? AND %[1]s < ?", pcol), []any{rng.Start, rng.End}
}

// ident quotes a MySQL identifier with backticks.
func ident(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}
