// Package plan decides how a table is split into load units. Small tables
// load as one unit; large tables split by calendar year on a date or
// timestamp column so each chunk is bounded by annual data volume. The
// year bounds query is inverted via a function type so the planner stays
// free of database dependencies.
package plan

import (
	"context"
	"fmt"
	"strings"
	"time"

	"migrator/internal/schema"
)

// Range is one disjoint slice of a table's rows. Either a half-open
// [Start, End) window on the partition column, or the reserved NULL range.
type Range struct {
	Column string // partition column the predicate applies to
	Start  time.Time
	End    time.Time
	Null   bool
}

// Label names the range for logs and task identity, e.g. "2019" or "null".
func (r Range) Label() string {
	if r.Null {
		return "null"
	}
	return fmt.Sprintf("%d", r.Start.Year())
}

// ChunkPlan describes the load units for one table. A zero Column means the
// table loads unchunked as a single unit; otherwise Ranges holds one window
// per calendar year plus the reserved NULL range, in order.
type ChunkPlan struct {
	Column string
	Ranges []Range
}

// Chunked reports whether the table is split into per-range load units.
func (p ChunkPlan) Chunked() bool { return p.Column != "" }

// Tasks returns the number of load units the plan produces.
func (p ChunkPlan) Tasks() int {
	if !p.Chunked() {
		return 1
	}
	return len(p.Ranges)
}

// YearBoundsFunc reports the minimum and maximum calendar year observed in
// a column, ignoring NULLs. ok is false when the column holds no non-NULL
// values (the table still loads, unchunked).
type YearBoundsFunc func(ctx context.Context, table, column string) (min, max int, ok bool, err error)

// preferredColumns is the priority order for picking a partition column.
// Creation timestamps come first: they are immutable, densely populated,
// and spread rows across years in most schemas.
var preferredColumns = []string{
	"created_at",
	"creation_date",
	"created",
	"create_time",
	"updated_at",
	"modified_date",
}

// PartitionColumn selects the column used for year-range chunking: a
// conventionally named timestamp first, then any timestamp/datetime
// column, then any date column. Empty when the table has no temporal
// column at all.
func PartitionColumn(spec schema.TableSpec) string {
	for _, want := range preferredColumns {
		if c, ok := spec.Column(want); ok && temporalKind(c) != "" {
			return c.Name
		}
	}
	for _, c := range spec.Columns {
		if temporalKind(c) == "timestamp" {
			return c.Name
		}
	}
	for _, c := range spec.Columns {
		if temporalKind(c) == "date" {
			return c.Name
		}
	}
	return ""
}

func temporalKind(c schema.Column) string {
	src := strings.ToLower(c.SourceType)
	switch {
	case strings.HasPrefix(src, "datetime"), strings.HasPrefix(src, "timestamp"):
		return "timestamp"
	case strings.HasPrefix(src, "date"):
		return "date"
	}
	return ""
}

// Build computes the chunk plan for one table. Tables at or under the
// threshold, or without a usable partition column, load as a single unit.
// Otherwise one range per calendar year from min to max inclusive is
// emitted, plus the reserved range for rows with a NULL partition column.
func Build(ctx context.Context, spec schema.TableSpec, threshold int64, bounds YearBoundsFunc) (ChunkPlan, error) {
	if spec.EstimatedRows <= threshold {
		return ChunkPlan{}, nil
	}
	column := PartitionColumn(spec)
	if column == "" {
		return ChunkPlan{}, nil
	}

	minYear, maxYear, ok, err := bounds(ctx, spec.Name, column)
	if err != nil {
		return ChunkPlan{}, fmt.Errorf("year bounds for %s.%s: %w", spec.Name, column, err)
	}
	if !ok || minYear > maxYear {
		return ChunkPlan{}, nil
	}

	ranges := YearRanges(minYear, maxYear)
	for i := range ranges {
		ranges[i].Column = column
	}
	return ChunkPlan{Column: column, Ranges: ranges}, nil
}

// YearRanges returns contiguous, non-overlapping [Jan 1, Jan 1) windows for
// every year from min to max inclusive, followed by the NULL range. The
// windows jointly cover the column's observed domain.
func YearRanges(min, max int) []Range {
	ranges := make([]Range, 0, max-min+2)
	for y := min; y <= max; y++ {
		ranges = append(ranges, Range{
			Start: time.Date(y, time.January, 1, 0, 0, 0, 0, time.UTC),
			End:   time.Date(y+1, time.January, 1, 0, 0, 0, 0, time.UTC),
		})
	}
	return append(ranges, Range{Null: true})
}
