package migrate

import (
	"sync/atomic"

	"migrator/internal/plan"
)

// TaskState is the lifecycle of one load task. The only transition path is
// Pending -> Running -> Succeeded | Failed, performed once by the owning
// worker.
type TaskState int32

const (
	TaskPending TaskState = iota
	TaskRunning
	TaskSucceeded
	TaskFailed
)

func (s TaskState) String() string {
	switch s {
	case TaskPending:
		return "pending"
	case TaskRunning:
		return "running"
	case TaskSucceeded:
		return "succeeded"
	case TaskFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// LoadTask is one unit of work: a table plus an optional chunk range.
// Rows and Err are written only by the owning worker and read only after
// the table's barrier fires.
type LoadTask struct {
	Table string
	Range *plan.Range // nil for an unchunked whole-table load

	state atomic.Int32
	Rows  int64
	Err   error
}

// Label identifies the task in logs: "T_DEAL" or "T_DEAL[2019]".
func (t *LoadTask) Label() string {
	if t.Range == nil {
		return t.Table
	}
	return t.Table + "[" + t.Range.Label() + "]"
}

// State returns the task's current lifecycle state.
func (t *LoadTask) State() TaskState { return TaskState(t.state.Load()) }

func (t *LoadTask) start() { t.state.Store(int32(TaskRunning)) }

// Succeed records the copied row count and moves the task to its terminal
// succeeded state.
func (t *LoadTask) Succeed(rows int64) {
	t.Rows = rows
	t.state.Store(int32(TaskSucceeded))
}

// Fail records the error and moves the task to its terminal failed state.
func (t *LoadTask) Fail(err error) {
	t.Err = err
	t.state.Store(int32(TaskFailed))
}
