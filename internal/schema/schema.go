// Package schema holds the shared table model produced by source
// introspection and consumed by the planner, loader, and target writer.
// A TableSpec is built once per table and read-only afterward.
package schema

import (
	"strings"

	"migrator/internal/typemap"
)

// Column describes one source column and, once ResolveTypes has run, its
// Postgres target type and value conversion.
type Column struct {
	Name       string
	SourceType string // raw MySQL column type, e.g. "bit(1)", "varchar(64)"
	TargetType string // mapped Postgres type, lowercase
	Nullable   bool
	PrimaryKey bool
	Convert    typemap.ConvertFunc
}

// TargetName returns the column name as created on the target. The source
// uses uppercase identifiers; the target is all lowercase, matching what
// the downstream CDC connector expects.
func (c Column) TargetName() string { return strings.ToLower(c.Name) }

// TableSpec is the per-table migration unit: source identity, target
// placement, columns, and the row-count estimate driving chunking.
type TableSpec struct {
	Name          string // source table name, original case
	SourceSchema  string // source database name
	TargetSchema  string // target Postgres schema
	Columns       []Column
	EstimatedRows int64
}

// TargetTable returns the lowercase table name used on the target.
func (s TableSpec) TargetTable() string { return strings.ToLower(s.Name) }

// TargetColumns returns the ordered lowercase column names for COPY.
func (s TableSpec) TargetColumns() []string {
	cols := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		cols[i] = c.TargetName()
	}
	return cols
}

// PrimaryKey returns the lowercase names of the primary key columns, in
// column order. Empty when the source table has no primary key.
func (s TableSpec) PrimaryKey() []string {
	var pk []string
	for _, c := range s.Columns {
		if c.PrimaryKey {
			pk = append(pk, c.TargetName())
		}
	}
	return pk
}

// Column looks up a column by its source name, case-insensitively.
func (s TableSpec) Column(name string) (Column, bool) {
	for _, c := range s.Columns {
		if strings.EqualFold(c.Name, name) {
			return c, true
		}
	}
	return Column{}, false
}

// ResolveTypes fills TargetType and Convert for every column via the type
// mapper. overrides maps lowercase column names to explicit target types
// from the database registry. The first unmappable column aborts the whole
// table; partial resolution is never left behind.
func (s *TableSpec) ResolveTypes(overrides map[string]string) error {
	resolved := make([]Column, len(s.Columns))
	for i, c := range s.Columns {
		target, conv, err := typemap.Map(c.Name, c.SourceType, overrides[strings.ToLower(c.Name)])
		if err != nil {
			return err
		}
		c.TargetType = target
		c.Convert = conv
		resolved[i] = c
	}
	s.Columns = resolved
	return nil
}
