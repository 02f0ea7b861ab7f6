package migrate

import (
	"context"
	"log"
	"time"

	"migrator/internal/schema"
)

// CopyFn abstracts the target's bulk-copy capability. In production it is
// backed by pgx CopyFrom; tests substitute a fake to verify batching and
// failure behavior without a database.
type CopyFn func(ctx context.Context, columns []string, rows [][]any) (int64, error)

// LoadBatches drains raw source rows from 'in', applies each column's
// conversion function, groups converted rows into batches of batchSize,
// and calls copyFn per non-empty batch. It returns the total rows reported
// by copyFn and the first error encountered.
//
// A conversion failure fails the whole task immediately; no partial-batch
// retry is attempted. Returns when 'in' closes or ctx is canceled.
func LoadBatches(
	ctx context.Context,
	spec schema.TableSpec,
	in <-chan []any,
	batchSize int,
	copyFn CopyFn,
) (int64, error) {
	columns := spec.TargetColumns()

	var (
		total       int64
		batches     int64
		batch       = make([][]any, 0, batchSize)
		start       = time.Now()
		lastFlushTS = start
	)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		n, err := copyFn(ctx, columns, batch)
		total += n
		// Reuse the backing array across batches.
		batch = batch[:0]
		if err != nil {
			return err
		}

		batches++
		now := time.Now()
		sinceLast := now.Sub(lastFlushTS)
		rps := float64(0)
		if sinceLast > 0 {
			rps = float64(n) / sinceLast.Seconds()
		}
		log.Printf("%s: batch #%d rps=%.0f copied=%d total=%d elapsed=%s",
			spec.TargetTable(), batches, rps, n, total,
			now.Sub(start).Truncate(time.Millisecond))
		lastFlushTS = now
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return total, ctx.Err()

		case raw, ok := <-in:
			if !ok {
				// Channel closed: flush the remainder.
				if err := flush(); err != nil {
					return total, err
				}
				return total, nil
			}
			row, err := convertRow(spec, raw)
			if err != nil {
				return total, err
			}
			batch = append(batch, row)
			if len(batch) >= batchSize {
				if err := flush(); err != nil {
					return total, err
				}
			}
		}
	}
}

// convertRow applies each column's ConvertFunc to the raw values, in
// column order. Columns without a conversion pass through unchanged.
func convertRow(spec schema.TableSpec, raw []any) ([]any, error) {
	row := make([]any, len(spec.Columns))
	for i, col := range spec.Columns {
		var v any
		if i < len(raw) {
			v = raw[i]
		}
		if col.Convert == nil {
			row[i] = v
			continue
		}
		converted, err := col.Convert(v)
		if err != nil {
			return nil, &RowConversionError{Table: spec.Name, Column: col.Name, Err: err}
		}
		row[i] = converted
	}
	return row, nil
}
