// Package metrics provides a small, backend-agnostic abstraction for
// recording operational metrics from the migrator.
//
// It exposes a narrow interface (Backend) for counters and duration
// observations, with a global pluggable backend defaulting to a no-op so
// metrics are always safe to call. Concrete systems live in subpackages
// (prompush pushes to a Prometheus Pushgateway); the rest of the codebase
// depends only on this package.
package metrics

import "time"

// Labels are string key/value pairs attached to a metric.
type Labels map[string]string

// Backend is the minimal interface for metrics backends.
type Backend interface {
	// IncCounter increments a counter by delta.
	IncCounter(name string, delta float64, labels Labels)
	// ObserveDuration records a duration-style observation in seconds.
	ObserveDuration(name string, seconds float64, labels Labels)
	// Flush pushes or flushes metrics, if the backend needs it.
	Flush() error
}

// nopBackend is used by default so metrics are optional.
type nopBackend struct{}

func (nopBackend) IncCounter(string, float64, Labels)      {}
func (nopBackend) ObserveDuration(string, float64, Labels) {}
func (nopBackend) Flush() error                            { return nil }

var backend Backend = nopBackend{}

// SetBackend installs a concrete backend. Passing nil keeps the existing one.
func SetBackend(b Backend) {
	if b == nil {
		return
	}
	backend = b
}

// Flush delegates to the current backend.
func Flush() error { return backend.Flush() }

// RecordTable counts a table reaching a terminal status
// ("finalized" or "failed").
func RecordTable(job, status string) {
	backend.IncCounter("migrate_tables_total", 1, Labels{
		"job":    job,
		"status": status,
	})
}

// RecordChunk records one load task's duration and terminal status.
func RecordChunk(job, status string, d time.Duration) {
	lbls := Labels{"job": job, "status": status}
	backend.IncCounter("migrate_chunks_total", 1, lbls)
	backend.ObserveDuration("migrate_chunk_duration_seconds", d.Seconds(), lbls)
}

// RecordRows counts rows copied into the target.
func RecordRows(job string, delta int64) {
	if delta <= 0 {
		return
	}
	backend.IncCounter("migrate_rows_copied_total", float64(delta), Labels{"job": job})
}
