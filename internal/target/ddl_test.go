package target

import (
	"strings"
	"testing"

	"migrator/internal/schema"
)

func TestBuildCreateTable(t *testing.T) {
	t.Parallel()

	spec := schema.TableSpec{
		Name:         "T_DEAL",
		TargetSchema: "reports",
		Columns: []schema.Column{
			{Name: "ID", TargetType: "bigint", PrimaryKey: true},
			{Name: "TENANT_ID", TargetType: "bigint", PrimaryKey: true},
			{Name: "TITLE", TargetType: "varchar(128)", Nullable: true},
			{Name: "AMOUNT", TargetType: "numeric(12,4)", Nullable: true},
		},
	}

	ddl := BuildCreateTable(spec)

	for _, want := range []string{
		`CREATE UNLOGGED TABLE IF NOT EXISTS "reports"."t_deal"`,
		`"id" bigint NOT NULL`,
		`"tenant_id" bigint NOT NULL`,
		`"title" varchar(128)`,
		`"amount" numeric(12,4)`,
		`PRIMARY KEY ("id", "tenant_id")`,
	} {
		if !strings.Contains(ddl, want) {
			t.Errorf("DDL missing %q:\n%s", want, ddl)
		}
	}
	if strings.Contains(ddl, `"title" varchar(128) NOT NULL`) {
		t.Errorf("nullable column rendered NOT NULL:\n%s", ddl)
	}
}

func TestBuildCreateTableNoPrimaryKey(t *testing.T) {
	t.Parallel()

	spec := schema.TableSpec{
		Name:         "T_LOG",
		TargetSchema: "reports",
		Columns: []schema.Column{
			{Name: "MESSAGE", TargetType: "text", Nullable: true},
		},
	}
	if ddl := BuildCreateTable(spec); strings.Contains(ddl, "PRIMARY KEY") {
		t.Errorf("keyless table rendered a PRIMARY KEY:\n%s", ddl)
	}
}

func TestPGIdentQuoting(t *testing.T) {
	t.Parallel()

	if got := pgIdent(`odd"name`); got != `"odd""name"` {
		t.Errorf(`pgIdent = %s`, got)
	}
}
