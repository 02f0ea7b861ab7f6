package target

import (
	"fmt"
	"strings"

	"migrator/internal/schema"
)

// BuildCreateTable renders the idempotent CREATE statement for a table:
// UNLOGGED for load throughput and crash-unsafe speed until finalization,
// IF NOT EXISTS so a re-run never touches existing data or schema, no
// secondary indexes or foreign keys (those belong to the external DDL
// step). Identifiers are lowercased for the target.
func BuildCreateTable(spec schema.TableSpec) string {
	defs := make([]string, 0, len(spec.Columns)+1)
	for _, col := range spec.Columns {
		def := pgIdent(col.TargetName()) + " " + col.TargetType
		if !col.Nullable {
			def += " NOT NULL"
		}
		defs = append(defs, def)
	}
	if pk := spec.PrimaryKey(); len(pk) > 0 {
		defs = append(defs, "PRIMARY KEY ("+strings.Join(mapIdent(pk), ", ")+")")
	}

	return fmt.Sprintf(
		"CREATE UNLOGGED TABLE IF NOT EXISTS %s.%s (\n\t%s\n)",
		pgIdent(spec.TargetSchema),
		pgIdent(spec.TargetTable()),
		strings.Join(defs, ",\n\t"),
	)
}

// pgIdent safely quotes a single identifier segment for Postgres.
func pgIdent(id string) string { return `"` + strings.ReplaceAll(id, `"`, `""`) + `"` }

// mapIdent maps a list of column names to their quoted forms.
func mapIdent(cols []string) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = pgIdent(c)
	}
	return out
}
