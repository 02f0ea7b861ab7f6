package prompush

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"migrator/internal/metrics"
)

// readCounterValue reads the current value of a Counter for assertions.
func readCounterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()

	m := &dto.Metric{}
	if err := c.Write(m); err != nil {
		t.Fatalf("Counter.Write() error = %v", err)
	}
	if m.GetCounter() == nil {
		t.Fatalf("metric did not contain Counter value")
	}
	return m.GetCounter().GetValue()
}

func TestNewBackend(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		jobName     string
		gatewayURL  string
		wantErr     bool
		wantJobName string
	}{
		{
			name:       "missing gateway URL returns error",
			jobName:    "reports",
			gatewayURL: "",
			wantErr:    true,
		},
		{
			name:        "empty job name uses default",
			jobName:     "",
			gatewayURL:  "http://pushgateway:9091",
			wantJobName: "migrate",
		},
		{
			name:        "explicit job name is preserved",
			jobName:     "reports",
			gatewayURL:  "http://pushgateway:9091",
			wantJobName: "reports",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			b, err := NewBackend(tt.jobName, tt.gatewayURL)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("NewBackend(%q, %q) error = nil, want non-nil", tt.jobName, tt.gatewayURL)
				}
				return
			}
			if err != nil {
				t.Fatalf("NewBackend() error = %v", err)
			}
			if b.jobName != tt.wantJobName {
				t.Fatalf("backend.jobName = %q, want %q", b.jobName, tt.wantJobName)
			}

			// Label cardinality sanity: these must not panic.
			b.tableCounter.WithLabelValues("finalized").Add(1)
			b.chunkCounter.WithLabelValues("failed").Add(1)
			b.chunkDuration.WithLabelValues("succeeded").Observe(0.5)
			b.rowCounter.WithLabelValues().Add(1)
		})
	}
}

func TestIncCounterRouting(t *testing.T) {
	t.Parallel()

	b, err := NewBackend("reports", "http://example.com")
	if err != nil {
		t.Fatal(err)
	}

	b.IncCounter("migrate_tables_total", 2, metrics.Labels{"status": "finalized"})
	b.IncCounter("migrate_chunks_total", 3, metrics.Labels{"status": "failed"})
	b.IncCounter("migrate_rows_copied_total", 100, nil)
	b.IncCounter("unknown_metric", 10, metrics.Labels{"foo": "bar"})

	if got := readCounterValue(t, b.tableCounter.WithLabelValues("finalized")); got != 2 {
		t.Errorf("tableCounter = %v, want 2", got)
	}
	if got := readCounterValue(t, b.chunkCounter.WithLabelValues("failed")); got != 3 {
		t.Errorf("chunkCounter = %v, want 3", got)
	}
	if got := readCounterValue(t, b.rowCounter.WithLabelValues()); got != 100 {
		t.Errorf("rowCounter = %v, want 100", got)
	}
	// A label combination that was never incremented stays at zero.
	if got := readCounterValue(t, b.tableCounter.WithLabelValues("failed")); got != 0 {
		t.Errorf("tableCounter[failed] = %v, want 0", got)
	}
}

func TestIncCounterNilMetrics(t *testing.T) {
	t.Parallel()

	b := &Backend{} // zero-value backend with nil collectors

	b.IncCounter("migrate_tables_total", 1, metrics.Labels{"status": "finalized"})
	b.IncCounter("migrate_chunks_total", 1, metrics.Labels{"status": "failed"})
	b.IncCounter("migrate_rows_copied_total", 1, nil)
	b.ObserveDuration("migrate_chunk_duration_seconds", 1, metrics.Labels{"status": "failed"})
}

func TestFlushPushesToGateway(t *testing.T) {
	t.Parallel()

	var (
		gotPath string
		gotBody []byte
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	b, err := NewBackend("reports", srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	b.IncCounter("migrate_rows_copied_total", 42, nil)

	if err := b.Flush(); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	if !strings.Contains(gotPath, "/metrics/job/reports") {
		t.Errorf("push path = %q, want job grouping for reports", gotPath)
	}
	if len(gotBody) == 0 {
		t.Error("push body empty, want encoded metric families")
	}
}

func TestFlushReportsGatewayFailure(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "no thanks", http.StatusBadGateway)
	}))
	defer srv.Close()

	b, err := NewBackend("reports", srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	if err := b.Flush(); err == nil {
		t.Error("Flush() = nil, want error on gateway failure")
	}
}
