package target

import (
	"context"
	"fmt"
	"strings"

	"migrator/internal/schema"
	"migrator/internal/verify"
)

// Count returns the exact row count of a target table.
func (c *Client) Count(ctx context.Context, spec schema.TableSpec) (int64, error) {
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s.%s",
		pgIdent(spec.TargetSchema), pgIdent(spec.TargetTable()))
	var n int64
	if err := c.pool.QueryRow(ctx, query).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", spec.TargetTable(), err)
	}
	return n, nil
}

// KeyChecksum streams the primary key columns in key order and digests
// them. Comparable with the source's checksum for the same table.
func (c *Client) KeyChecksum(ctx context.Context, spec schema.TableSpec) (uint64, int64, error) {
	pk := spec.PrimaryKey()
	if len(pk) == 0 {
		return 0, 0, fmt.Errorf("%s has no primary key", spec.TargetTable())
	}
	cols := mapIdent(pk)

	query := fmt.Sprintf("SELECT %[1]s FROM %[2]s.%[3]s ORDER BY %[1]s",
		strings.Join(cols, ", "), pgIdent(spec.TargetSchema), pgIdent(spec.TargetTable()))
	rows, err := c.pool.Query(ctx, query)
	if err != nil {
		return 0, 0, fmt.Errorf("checksum %s: %w", spec.TargetTable(), err)
	}
	defer rows.Close()

	var hasher verify.RowHasher
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return 0, 0, fmt.Errorf("checksum scan %s: %w", spec.TargetTable(), err)
		}
		hasher.Add(vals)
	}
	if err := rows.Err(); err != nil {
		return 0, 0, fmt.Errorf("checksum read %s: %w", spec.TargetTable(), err)
	}
	sum, count := hasher.Sum()
	return sum, count, nil
}
