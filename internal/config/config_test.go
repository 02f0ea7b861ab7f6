package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func TestRequestValidate(t *testing.T) {
	t.Parallel()

	if err := NewRequest("reports").Validate(); err != nil {
		t.Errorf("default request invalid: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Request)
		want   string
	}{
		{"missing database", func(r *Request) { r.Database = " " }, "database"},
		{"zero table concurrency", func(r *Request) { r.TableConcurrency = 0 }, "table concurrency"},
		{"negative chunk concurrency", func(r *Request) { r.ChunkConcurrency = -1 }, "chunk concurrency"},
		{"zero batch", func(r *Request) { r.BatchSize = 0 }, "batch size"},
		{"zero threshold", func(r *Request) { r.ChunkThreshold = 0 }, "chunk threshold"},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			req := NewRequest("reports")
			tc.mutate(&req)
			err := req.Validate()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Errorf("Validate() = %v, want mention of %q", err, tc.want)
			}
		})
	}
}

func TestMaxLoadTasks(t *testing.T) {
	t.Parallel()

	req := NewRequest("reports")
	if got := req.MaxLoadTasks(); got != DefaultTableConcurrency*DefaultChunkConcurrency {
		t.Errorf("MaxLoadTasks() = %d", got)
	}
}

func TestLoadRegistry(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "databases.json")
	const doc = `{
		"reports": {
			"source_dsn_env": "REPORTS_SRC",
			"target_dsn_env": "REPORTS_TGT",
			"target_schema": "reports",
			"table_pattern": "T\\_%",
			"type_overrides": {"t_deal": {"flags": "bigint"}}
		}
	}`
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatal(err)
	}

	reg, err := LoadRegistry(path)
	if err != nil {
		t.Fatal(err)
	}
	db, err := reg.Lookup("reports")
	if err != nil {
		t.Fatal(err)
	}
	if db.TargetSchema != "reports" || db.TablePattern != `T\_%` {
		t.Errorf("entry = %+v", db)
	}

	want := map[string]string{"flags": "bigint"}
	if got := db.OverridesFor("T_DEAL"); !reflect.DeepEqual(got, want) {
		t.Errorf("OverridesFor(T_DEAL) = %v, want %v", got, want)
	}
	if got := db.OverridesFor("T_USERS"); got != nil {
		t.Errorf("OverridesFor(T_USERS) = %v, want nil", got)
	}

	if _, err := reg.Lookup("nope"); err == nil || !strings.Contains(err.Error(), "reports") {
		t.Errorf("Lookup(nope) = %v, want error naming known keys", err)
	}
}

func TestLoadRegistryRejectsUnknownFields(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "databases.json")
	const doc = `{"reports": {"source_dsn_env": "A", "target_dsn_env": "B", "target_schema": "s", "tabel_pattern": "oops"}}`
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadRegistry(path); err == nil {
		t.Error("misspelled field accepted, want decode error")
	}
}

func TestLoadRegistryValidatesEntries(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "databases.json")
	const doc = `{"reports": {"source_dsn_env": "A", "target_dsn_env": "B"}}`
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadRegistry(path); err == nil || !strings.Contains(err.Error(), "target_schema") {
		t.Errorf("LoadRegistry = %v, want target_schema error", err)
	}
}

func TestDSNFromEnv(t *testing.T) {
	db := Database{SourceDSNEnv: "TEST_MIGRATOR_SRC_DSN", TargetDSNEnv: "TEST_MIGRATOR_TGT_DSN"}

	t.Setenv("TEST_MIGRATOR_SRC_DSN", "user:pw@tcp(localhost:3306)/reports")
	dsn, err := db.SourceDSN()
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(dsn, "localhost:3306") {
		t.Errorf("SourceDSN = %q", dsn)
	}

	if _, err := db.TargetDSN(); err == nil || !strings.Contains(err.Error(), "TEST_MIGRATOR_TGT_DSN") {
		t.Errorf("TargetDSN with unset env = %v, want error naming the variable", err)
	}
}
