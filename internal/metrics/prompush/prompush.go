// Package prompush implements a Prometheus Pushgateway backend for the
// metrics package.
//
// A migration run is a batch job, so pushing to a gateway fits better
// than exposing a scrape endpoint that disappears when the process exits.
// All Prometheus-specific dependencies stay in this package; the rest of
// the program depends only on metrics.Backend.
package prompush

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"

	"migrator/internal/metrics"
)

// Backend is a Prometheus Pushgateway metrics backend.
type Backend struct {
	gatewayURL string
	jobName    string
	reg        *prometheus.Registry

	tableCounter  *prometheus.CounterVec // migrate_tables_total
	chunkCounter  *prometheus.CounterVec // migrate_chunks_total
	chunkDuration *prometheus.SummaryVec // migrate_chunk_duration_seconds
	rowCounter    *prometheus.CounterVec // migrate_rows_copied_total
}

var _ metrics.Backend = (*Backend)(nil)

// NewBackend constructs a Pushgateway backend. jobName is the Pushgateway
// "job" grouping key (typically the database identifier).
func NewBackend(jobName, gatewayURL string) (*Backend, error) {
	if gatewayURL == "" {
		return nil, fmt.Errorf("prompush: gateway URL is required")
	}
	if jobName == "" {
		jobName = "migrate"
	}

	reg := prometheus.NewRegistry()

	tableCounter := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "migrate_tables_total",
			Help: "Tables reaching a terminal status, partitioned by status.",
		},
		[]string{"status"},
	)
	chunkCounter := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "migrate_chunks_total",
			Help: "Load tasks reaching a terminal status, partitioned by status.",
		},
		[]string{"status"},
	)
	chunkDuration := prometheus.NewSummaryVec(
		prometheus.SummaryOpts{
			Name:       "migrate_chunk_duration_seconds",
			Help:       "Duration of load tasks in seconds, partitioned by status.",
			Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
		},
		[]string{"status"},
	)
	rowCounter := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "migrate_rows_copied_total",
			Help: "Rows copied into the target.",
		},
		nil,
	)

	reg.MustRegister(tableCounter, chunkCounter, chunkDuration, rowCounter)

	return &Backend{
		gatewayURL:    gatewayURL,
		jobName:       jobName,
		reg:           reg,
		tableCounter:  tableCounter,
		chunkCounter:  chunkCounter,
		chunkDuration: chunkDuration,
		rowCounter:    rowCounter,
	}, nil
}

// IncCounter implements metrics.Backend. Unknown metric names are dropped
// rather than registered on the fly; the set of migrator metrics is fixed.
func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	switch name {
	case "migrate_tables_total":
		if b.tableCounter == nil {
			return
		}
		b.tableCounter.WithLabelValues(labels["status"]).Add(delta)
	case "migrate_chunks_total":
		if b.chunkCounter == nil {
			return
		}
		b.chunkCounter.WithLabelValues(labels["status"]).Add(delta)
	case "migrate_rows_copied_total":
		if b.rowCounter == nil {
			return
		}
		b.rowCounter.WithLabelValues().Add(delta)
	}
}

// ObserveDuration implements metrics.Backend.
func (b *Backend) ObserveDuration(name string, seconds float64, labels metrics.Labels) {
	if name != "migrate_chunk_duration_seconds" || b.chunkDuration == nil {
		return
	}
	b.chunkDuration.WithLabelValues(labels["status"]).Observe(seconds)
}

// Flush pushes the collected metrics to the Pushgateway.
func (b *Backend) Flush() error {
	if err := push.New(b.gatewayURL, b.jobName).Gatherer(b.reg).Push(); err != nil {
		return fmt.Errorf("prompush: push to %s: %w", b.gatewayURL, err)
	}
	return nil
}
