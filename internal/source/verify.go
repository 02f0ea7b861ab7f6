package source

import (
	"context"
	"fmt"
	"strings"

	"migrator/internal/schema"
	"migrator/internal/verify"
)

// Count returns the exact row count of a source table.
func (c *Client) Count(ctx context.Context, spec schema.TableSpec) (int64, error) {
	var n int64
	err := c.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+ident(spec.Name)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", spec.Name, err)
	}
	return n, nil
}

// KeyChecksum streams the primary key columns in key order and digests
// them. Comparable with the target's checksum for the same table.
func (c *Client) KeyChecksum(ctx context.Context, spec schema.TableSpec) (uint64, int64, error) {
	pk := spec.PrimaryKey()
	if len(pk) == 0 {
		return 0, 0, fmt.Errorf("%s has no primary key", spec.Name)
	}
	// Source identifiers keep their original case; the PK list is the
	// lowercase target form, so map back through the column list.
	cols := make([]string, len(pk))
	for i, name := range pk {
		col, _ := spec.Column(name)
		cols[i] = ident(col.Name)
	}

	query := fmt.Sprintf("SELECT %[1]s FROM %[2]s ORDER BY %[1]s",
		strings.Join(cols, ", "), ident(spec.Name))
	rows, err := c.db.QueryContext(ctx, query)
	if err != nil {
		return 0, 0, fmt.Errorf("checksum %s: %w", spec.Name, err)
	}
	defer rows.Close()

	var hasher verify.RowHasher
	n := len(cols)
	for rows.Next() {
		vals := make([]any, n)
		ptrs := make([]any, n)
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return 0, 0, fmt.Errorf("checksum scan %s: %w", spec.Name, err)
		}
		hasher.Add(vals)
	}
	if err := rows.Err(); err != nil {
		return 0, 0, fmt.Errorf("checksum read %s: %w", spec.Name, err)
	}
	sum, count := hasher.Sum()
	return sum, count, nil
}
