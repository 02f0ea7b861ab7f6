// Package config defines the immutable migration request and the
// per-database registry. The registry replaces the ad-hoc environment
// lookup tables of the tool this program supersedes: each database the
// migrator knows about gets one typed record (DSN environment variable
// names, target schema, table discovery rule, type overrides), resolved
// once at startup and carried through the call graph. No package-level
// mutable state exists.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
)

// Defaults for the tunables carried by a Request.
const (
	DefaultTableConcurrency = 2
	DefaultChunkConcurrency = 4
	DefaultBatchSize        = 100_000
	DefaultChunkThreshold   = 1_000_000
)

// Request captures one migration invocation: which database, which tables,
// and the concurrency/batching tunables. It is immutable once built and is
// passed by value everywhere.
type Request struct {
	Database string // registry key selecting the source database

	// Tables is the explicit table list. Empty means discover tables via
	// the registry entry's include list or pattern.
	Tables []string

	TableConcurrency int   // max concurrently active tables
	ChunkConcurrency int   // max concurrently running chunk tasks, system-wide
	BatchSize        int   // rows per COPY operation
	ChunkThreshold   int64 // estimated row count above which a table is chunked
}

// NewRequest returns a Request for database with all tunables at their
// defaults.
func NewRequest(database string) Request {
	return Request{
		Database:         database,
		TableConcurrency: DefaultTableConcurrency,
		ChunkConcurrency: DefaultChunkConcurrency,
		BatchSize:        DefaultBatchSize,
		ChunkThreshold:   DefaultChunkThreshold,
	}
}

// Validate reports the first problem with the request's tunables.
func (r Request) Validate() error {
	if strings.TrimSpace(r.Database) == "" {
		return fmt.Errorf("database is required")
	}
	if r.TableConcurrency < 1 {
		return fmt.Errorf("table concurrency must be >= 1, got %d", r.TableConcurrency)
	}
	if r.ChunkConcurrency < 1 {
		return fmt.Errorf("chunk concurrency must be >= 1, got %d", r.ChunkConcurrency)
	}
	if r.BatchSize < 1 {
		return fmt.Errorf("batch size must be >= 1, got %d", r.BatchSize)
	}
	if r.ChunkThreshold < 1 {
		return fmt.Errorf("chunk threshold must be >= 1, got %d", r.ChunkThreshold)
	}
	return nil
}

// MaxLoadTasks is the upper bound on concurrently running load tasks. The
// target pool must hold at least this many connections or tasks could
// deadlock waiting on connections held by other blocked tasks.
func (r Request) MaxLoadTasks() int {
	return r.TableConcurrency * r.ChunkConcurrency
}

// Database is one registry entry: everything database-specific the
// migrator needs, as data. DSNs are indirected through environment
// variable names so the registry file never holds credentials.
type Database struct {
	// SourceDSNEnv names the environment variable holding the MySQL DSN
	// (go-sql-driver format). The migrator appends parseTime=true.
	SourceDSNEnv string `json:"source_dsn_env"`

	// TargetDSNEnv names the environment variable holding the Postgres DSN.
	TargetDSNEnv string `json:"target_dsn_env"`

	// TargetSchema is the Postgres schema tables are created in.
	TargetSchema string `json:"target_schema"`

	// TablePattern is a SHOW TABLES LIKE pattern for discovery, e.g. "T_%".
	// Ignored when IncludeTables is set.
	TablePattern string `json:"table_pattern,omitempty"`

	// IncludeTables pins discovery to an explicit list.
	IncludeTables []string `json:"include_tables,omitempty"`

	// TypeOverrides maps lowercase table name -> lowercase column name ->
	// explicit Postgres type, overriding the static type mapping.
	TypeOverrides map[string]map[string]string `json:"type_overrides,omitempty"`
}

// Validate reports the first problem with the entry.
func (d Database) Validate() error {
	if d.SourceDSNEnv == "" {
		return fmt.Errorf("source_dsn_env is required")
	}
	if d.TargetDSNEnv == "" {
		return fmt.Errorf("target_dsn_env is required")
	}
	if d.TargetSchema == "" {
		return fmt.Errorf("target_schema is required")
	}
	return nil
}

// SourceDSN resolves the source connection string from the environment.
func (d Database) SourceDSN() (string, error) {
	return dsnFromEnv(d.SourceDSNEnv)
}

// TargetDSN resolves the target connection string from the environment.
func (d Database) TargetDSN() (string, error) {
	return dsnFromEnv(d.TargetDSNEnv)
}

func dsnFromEnv(key string) (string, error) {
	v := os.Getenv(key)
	if v == "" {
		return "", fmt.Errorf("environment variable %s not set", key)
	}
	return v, nil
}

// OverridesFor returns the column type overrides for one table, keyed by
// lowercase column name. Nil when the table has none.
func (d Database) OverridesFor(table string) map[string]string {
	if d.TypeOverrides == nil {
		return nil
	}
	return d.TypeOverrides[strings.ToLower(table)]
}

// Registry maps database identifiers to their configuration records.
type Registry map[string]Database

// LoadRegistry decodes a registry JSON file and validates every entry.
func LoadRegistry(path string) (Registry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open registry: %w", err)
	}
	defer f.Close()

	var reg Registry
	dec := json.NewDecoder(f)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&reg); err != nil {
		return nil, fmt.Errorf("decode registry %s: %w", path, err)
	}
	for name, db := range reg {
		if err := db.Validate(); err != nil {
			return nil, fmt.Errorf("registry entry %q: %w", name, err)
		}
	}
	return reg, nil
}

// Lookup returns the entry for key, or an error naming the known keys.
func (r Registry) Lookup(key string) (Database, error) {
	db, ok := r[key]
	if !ok {
		return Database{}, fmt.Errorf("unknown database %q (known: %s)", key, strings.Join(r.Keys(), ", "))
	}
	return db, nil
}

// Keys returns the registry's database identifiers, sorted.
func (r Registry) Keys() []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
