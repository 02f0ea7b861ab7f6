// Package verify compares source and target after a migration run: exact
// row counts per finalized table, and optionally a checksum over the
// primary key columns streamed in key order from both sides. Count first,
// cheap; checksum second, thorough.
package verify

import (
	"context"
	"fmt"
	"time"

	"github.com/zeebo/xxh3"

	"migrator/internal/migrate"
	"migrator/internal/schema"
)

// Endpoint is one side of the comparison. Implemented by the source and
// target clients.
type Endpoint interface {
	// Count returns the exact row count of the table.
	Count(ctx context.Context, spec schema.TableSpec) (int64, error)

	// KeyChecksum streams the primary key columns in key order and
	// returns their digest plus the number of rows hashed.
	KeyChecksum(ctx context.Context, spec schema.TableSpec) (uint64, int64, error)
}

// Issue is one detected divergence between source and target.
type Issue struct {
	Table  string
	Detail string
}

func (i Issue) String() string { return fmt.Sprintf("%s: %s", i.Table, i.Detail) }

// Tables verifies every finalized table in outcomes. Non-finalized tables
// are skipped: they are already reported failed. The returned error covers
// verification machinery failures only; divergences come back as issues.
func Tables(ctx context.Context, src, tgt Endpoint, outcomes []*migrate.TableOutcome, checksum bool) ([]Issue, error) {
	var issues []Issue
	for _, oc := range outcomes {
		if !oc.Finalized {
			continue
		}
		spec := oc.Spec

		srcCount, err := src.Count(ctx, spec)
		if err != nil {
			return issues, fmt.Errorf("count source %s: %w", spec.Name, err)
		}
		tgtCount, err := tgt.Count(ctx, spec)
		if err != nil {
			return issues, fmt.Errorf("count target %s: %w", spec.TargetTable(), err)
		}
		if srcCount != tgtCount {
			issues = append(issues, Issue{
				Table:  spec.TargetTable(),
				Detail: fmt.Sprintf("row count mismatch: source=%d target=%d", srcCount, tgtCount),
			})
			continue
		}

		if !checksum || len(spec.PrimaryKey()) == 0 {
			continue
		}
		srcSum, srcRows, err := src.KeyChecksum(ctx, spec)
		if err != nil {
			return issues, fmt.Errorf("checksum source %s: %w", spec.Name, err)
		}
		tgtSum, tgtRows, err := tgt.KeyChecksum(ctx, spec)
		if err != nil {
			return issues, fmt.Errorf("checksum target %s: %w", spec.TargetTable(), err)
		}
		if srcSum != tgtSum || srcRows != tgtRows {
			issues = append(issues, Issue{
				Table: spec.TargetTable(),
				Detail: fmt.Sprintf("key checksum mismatch: source=%016x/%d target=%016x/%d",
					srcSum, srcRows, tgtSum, tgtRows),
			})
		}
	}
	return issues, nil
}

// RowHasher accumulates a streaming digest over rows of key values. Both
// endpoints must feed it the same canonical forms in the same order for
// digests to be comparable.
type RowHasher struct {
	h    xxh3.Hasher
	rows int64
}

// Add hashes one row of key values.
func (r *RowHasher) Add(vals []any) {
	for _, v := range vals {
		_, _ = r.h.WriteString(CanonicalValue(v))
		_, _ = r.h.Write([]byte{0x1f})
	}
	_, _ = r.h.Write([]byte{'\n'})
	r.rows++
}

// Sum returns the digest and the number of rows hashed.
func (r *RowHasher) Sum() (uint64, int64) { return r.h.Sum64(), r.rows }

// CanonicalValue renders a key value identically regardless of which
// driver produced it: MySQL hands back []byte for text-protocol values
// where pgx hands back int64/string, and both must hash the same.
func CanonicalValue(v any) string {
	switch t := v.(type) {
	case nil:
		return "\\N"
	case []byte:
		return string(t)
	case string:
		return t
	case time.Time:
		return t.UTC().Format(time.RFC3339Nano)
	default:
		return fmt.Sprint(t)
	}
}
