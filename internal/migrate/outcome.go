package migrate

import (
	"migrator/internal/plan"
	"migrator/internal/schema"
)

// TableOutcome aggregates everything that happened to one table: its plan,
// the terminal state of each load task, whether finalization ran, and any
// table-scoped errors. Workers write task results before the table's
// barrier; the reporter reads after.
type TableOutcome struct {
	Table string // source table name; set even when introspection failed
	Spec  schema.TableSpec
	Plan  plan.ChunkPlan
	Tasks []*LoadTask

	// Finalized is true only when every task succeeded and the durability
	// promotion committed.
	Finalized bool

	// Errs holds table-scoped errors (introspection, planning, creation,
	// finalization). Task-scoped errors live on the tasks themselves.
	Errs []error
}

// Failed reports whether the table ended in a failed state.
func (o *TableOutcome) Failed() bool {
	if len(o.Errs) > 0 {
		return true
	}
	for _, t := range o.Tasks {
		if t.State() != TaskSucceeded {
			return true
		}
	}
	return false
}

// RowsCopied sums the rows reported by this table's successful tasks.
func (o *TableOutcome) RowsCopied() int64 {
	var n int64
	for _, t := range o.Tasks {
		n += t.Rows
	}
	return n
}

// FirstError returns the most relevant error for reporting: a table-scoped
// error first, otherwise the first failed task's error.
func (o *TableOutcome) FirstError() error {
	if len(o.Errs) > 0 {
		return o.Errs[0]
	}
	for _, t := range o.Tasks {
		if t.State() == TaskFailed {
			return t.Err
		}
	}
	return nil
}

func (o *TableOutcome) allSucceeded() bool {
	if len(o.Errs) > 0 || len(o.Tasks) == 0 {
		return false
	}
	for _, t := range o.Tasks {
		if t.State() != TaskSucceeded {
			return false
		}
	}
	return true
}
