// Package migrate drives the bulk migration: it plans each requested
// table, schedules load tasks on two bounded worker tiers, streams rows
// from the source into the target via bulk copy, and promotes fully
// loaded tables to durable storage.
//
// The scheduler is a two-tier fan-out/join: an outer pool admits up to
// TableConcurrency tables; a chunked table fans its ranges out onto a
// shared inner pool of ChunkConcurrency slots and joins them behind a
// barrier before finalizing. Total concurrently running load tasks never
// exceed TableConcurrency x ChunkConcurrency.
//
// The package depends only on the Source and Target interfaces, never on
// database drivers, so the whole scheduling and failure policy is covered
// by unit tests with fakes.
package migrate

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"migrator/internal/config"
	"migrator/internal/metrics"
	"migrator/internal/plan"
	"migrator/internal/schema"
)

// Source is the read side: table discovery, introspection, year bounds
// for the planner, and row streaming. Implemented by internal/source.
type Source interface {
	// Tables discovers the table set when the request has no explicit list.
	Tables(ctx context.Context) ([]string, error)

	// Introspect returns the table's columns and row-count estimate.
	// Connection failures wrap ErrSourceUnavailable; a missing table
	// yields *TableNotFoundError.
	Introspect(ctx context.Context, table string) (schema.TableSpec, error)

	// YearBounds reports the min/max calendar year of a column, ignoring
	// NULLs. ok is false when the column has no non-NULL values.
	YearBounds(ctx context.Context, table, column string) (min, max int, ok bool, err error)

	// Stream sends raw rows for the given range (nil = whole table) on
	// out and closes it when done. Sends must select on ctx.Done so a
	// consumer abandoning the channel cannot strand the producer.
	Stream(ctx context.Context, spec schema.TableSpec, rng *plan.Range, out chan<- []any) error
}

// Target is the write side: idempotent DDL, bulk copy, and the durability
// promotion. Implemented by internal/target.
type Target interface {
	EnsureSchema(ctx context.Context, name string) error
	EnsureTable(ctx context.Context, spec schema.TableSpec) error
	CopyRows(ctx context.Context, spec schema.TableSpec, columns []string, rows [][]any) (int64, error)
	Finalize(ctx context.Context, spec schema.TableSpec) error
}

// Orchestrator owns one migration invocation.
type Orchestrator struct {
	src Source
	tgt Target
	req config.Request
	db  config.Database
}

// New builds an Orchestrator for one request against one registry entry.
func New(src Source, tgt Target, req config.Request, db config.Database) *Orchestrator {
	return &Orchestrator{src: src, tgt: tgt, req: req, db: db}
}

// Run executes the migration to completion and returns one outcome per
// requested table. The returned error is non-nil only for fatal
// conditions (source unavailable, target schema unusable); table- and
// task-scoped failures are recorded on the outcomes instead.
//
// Cancellation stops admission of new tasks immediately; in-flight
// batches finish or abort, and tables that were mid-load are reported
// failed, never finalized.
func (o *Orchestrator) Run(ctx context.Context) ([]*TableOutcome, error) {
	tables := o.req.Tables
	if len(tables) == 0 {
		var err error
		tables, err = o.src.Tables(ctx)
		if err != nil {
			return nil, fmt.Errorf("discover tables: %w", err)
		}
	}
	if len(tables) == 0 {
		return nil, nil
	}

	if err := o.tgt.EnsureSchema(ctx, o.db.TargetSchema); err != nil {
		return nil, fmt.Errorf("ensure schema %s: %w", o.db.TargetSchema, err)
	}

	// Planning phase, sequential: introspect, resolve types, create the
	// target table, and compute the chunk plan for every table before any
	// data moves. Table creation up front keeps the parallel phase free
	// of DDL.
	outcomes := make([]*TableOutcome, 0, len(tables))
	for _, table := range tables {
		oc, err := o.planTable(ctx, table)
		if err != nil {
			// Only the fatal class propagates; everything else is already
			// recorded on the outcome.
			return nil, err
		}
		outcomes = append(outcomes, oc)
	}

	o.runAll(ctx, outcomes)
	return outcomes, nil
}

// planTable prepares one table end to end. Table-scoped failures are
// recorded on the returned outcome; only fatal errors are returned.
func (o *Orchestrator) planTable(ctx context.Context, table string) (*TableOutcome, error) {
	oc := &TableOutcome{Table: table}

	fail := func(err error) (*TableOutcome, error) {
		// An interrupt mid-planning shows up as a query error wrapping the
		// fatal class; report it as cancellation so the run still ends
		// with a summary of what did and did not happen.
		if ctx.Err() != nil {
			err = ctx.Err()
		} else if errors.Is(err, ErrSourceUnavailable) {
			return nil, err
		}
		oc.Errs = append(oc.Errs, err)
		log.Printf("%s: planning failed (%s): %v", table, ErrorClass(err), err)
		return oc, nil
	}

	spec, err := o.src.Introspect(ctx, table)
	if err != nil {
		return fail(err)
	}
	spec.TargetSchema = o.db.TargetSchema
	if err := spec.ResolveTypes(o.db.OverridesFor(table)); err != nil {
		return fail(err)
	}
	if err := o.tgt.EnsureTable(ctx, spec); err != nil {
		return fail(fmt.Errorf("create %s.%s: %w", spec.TargetSchema, spec.TargetTable(), err))
	}

	cp, err := plan.Build(ctx, spec, o.req.ChunkThreshold, o.src.YearBounds)
	if err != nil {
		return fail(err)
	}

	oc.Spec = spec
	oc.Plan = cp
	if cp.Chunked() {
		for i := range cp.Ranges {
			oc.Tasks = append(oc.Tasks, &LoadTask{Table: table, Range: &cp.Ranges[i]})
		}
		log.Printf("%s: ~%d rows, chunked by %s into %d ranges", table, spec.EstimatedRows, cp.Column, len(cp.Ranges))
	} else {
		oc.Tasks = []*LoadTask{{Table: table}}
		log.Printf("%s: ~%d rows, single load", table, spec.EstimatedRows)
	}
	return oc, nil
}

// runAll schedules every plannable table on the outer pool and blocks
// until all of them reach a terminal state.
func (o *Orchestrator) runAll(ctx context.Context, outcomes []*TableOutcome) {
	outer := semaphore.NewWeighted(int64(o.req.TableConcurrency))
	inner := semaphore.NewWeighted(int64(o.req.ChunkConcurrency))

	var wg sync.WaitGroup
	for _, oc := range outcomes {
		if len(oc.Errs) > 0 {
			// Planning already failed this table; count it so the metrics
			// agree with the report.
			metrics.RecordTable(o.req.Database, "failed")
			continue
		}
		// After cancellation no new table is admitted; its tasks go
		// straight to failed so the report shows them.
		if ctx.Err() != nil {
			failPending(oc, ctx.Err())
			metrics.RecordTable(o.req.Database, "failed")
			continue
		}
		if err := outer.Acquire(ctx, 1); err != nil {
			failPending(oc, err)
			metrics.RecordTable(o.req.Database, "failed")
			continue
		}
		wg.Add(1)
		go func(oc *TableOutcome) {
			defer wg.Done()
			defer outer.Release(1)
			o.runTable(ctx, inner, oc)
		}(oc)
	}
	wg.Wait()
}

// runTable executes one table's tasks and, when every task succeeded,
// promotes the table to durable storage. The table holds its outer-pool
// slot for the whole duration; chunk tasks compete for the shared inner
// pool across all concurrently chunked tables.
func (o *Orchestrator) runTable(ctx context.Context, inner *semaphore.Weighted, oc *TableOutcome) {
	if !oc.Plan.Chunked() {
		// A small table runs directly on the outer-pool worker.
		o.runTask(ctx, oc.Spec, oc.Tasks[0])
	} else {
		var barrier sync.WaitGroup
		for _, task := range oc.Tasks {
			if ctx.Err() != nil {
				task.Fail(ctx.Err())
				continue
			}
			if err := inner.Acquire(ctx, 1); err != nil {
				task.Fail(err)
				continue
			}
			barrier.Add(1)
			go func(t *LoadTask) {
				defer barrier.Done()
				defer inner.Release(1)
				o.runTask(ctx, oc.Spec, t)
			}(task)
		}
		// A failed chunk does not cancel its siblings; they run to their
		// own completion before the table's fate is decided.
		barrier.Wait()
	}

	if ctx.Err() != nil || !oc.allSucceeded() {
		metrics.RecordTable(o.req.Database, "failed")
		return
	}
	if err := o.tgt.Finalize(ctx, oc.Spec); err != nil {
		oc.Errs = append(oc.Errs, fmt.Errorf("finalize %s: %w", oc.Spec.TargetTable(), err))
		metrics.RecordTable(o.req.Database, "failed")
		return
	}
	oc.Finalized = true
	metrics.RecordTable(o.req.Database, "finalized")
	log.Printf("%s: finalized, %d rows", oc.Spec.TargetTable(), oc.RowsCopied())
}

// runTask streams one range from source to target. The producer gets a
// child context so that a copy failure on the consumer side releases it
// promptly instead of stranding it on a full channel.
func (o *Orchestrator) runTask(ctx context.Context, spec schema.TableSpec, t *LoadTask) {
	t.start()
	start := time.Now()

	lctx, cancel := context.WithCancel(ctx)
	defer cancel()

	raw := make(chan []any, streamBuffer(o.req.BatchSize))
	streamErr := make(chan error, 1)
	go func() {
		streamErr <- o.src.Stream(lctx, spec, t.Range, raw)
	}()

	copyFn := func(ctx context.Context, columns []string, rows [][]any) (int64, error) {
		return o.tgt.CopyRows(ctx, spec, columns, rows)
	}
	rows, err := LoadBatches(lctx, spec, raw, o.req.BatchSize, copyFn)

	cancel()
	serr := <-streamErr
	if err == nil {
		err = serr
	}

	if err != nil {
		t.Fail(err)
		metrics.RecordChunk(o.req.Database, "failed", time.Since(start))
		log.Printf("%s: failed after %d rows (%s): %v", t.Label(), rows, ErrorClass(err), err)
		return
	}
	t.Succeed(rows)
	metrics.RecordChunk(o.req.Database, "succeeded", time.Since(start))
	metrics.RecordRows(o.req.Database, rows)
}

// streamBuffer sizes the producer/consumer channel: enough to keep the
// copy busy, never more than one batch.
func streamBuffer(batchSize int) int {
	const limit = 1024
	if batchSize < limit {
		return batchSize
	}
	return limit
}

func failPending(oc *TableOutcome, err error) {
	for _, t := range oc.Tasks {
		if t.State() == TaskPending {
			t.Fail(err)
		}
	}
}
