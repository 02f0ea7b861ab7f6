package migrate

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"migrator/internal/typemap"
)

func TestErrorClass(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"source unavailable", fmt.Errorf("%w: dial tcp", ErrSourceUnavailable), "source unavailable"},
		{"table not found", &TableNotFoundError{Table: "T_GONE"}, "table not found"},
		{"type mapping", &typemap.MappingError{Column: "shape", SourceType: "geometry"}, "type mapping"},
		{"row conversion", &RowConversionError{Table: "T_DEAL", Column: "AMOUNT", Err: errors.New("bad")}, "row conversion"},
		{"wrapped row conversion", fmt.Errorf("load: %w", &RowConversionError{Err: errors.New("bad")}), "row conversion"},
		{"duplicate key", &DuplicateKeyError{Table: "t_deal", Err: errors.New("23505")}, "duplicate key"},
		{"cancelled", context.Canceled, "cancelled"},
		{"anything else", errors.New("broken pipe"), "load"},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := ErrorClass(tc.err); got != tc.want {
				t.Errorf("ErrorClass(%v) = %q, want %q", tc.err, got, tc.want)
			}
		})
	}
}
