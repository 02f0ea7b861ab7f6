package migrate

import (
	"context"
	"errors"
	"fmt"

	"migrator/internal/typemap"
)

// ErrSourceUnavailable marks source connectivity failures. It is the only
// fatal class: without the source, no table can proceed, so the whole
// invocation aborts. Wrap it with %w so errors.Is sees it.
var ErrSourceUnavailable = errors.New("source database unavailable")

// TableNotFoundError reports a requested table missing from the source.
// Table-scoped: that table is marked failed, others proceed.
type TableNotFoundError struct {
	Table string
}

func (e *TableNotFoundError) Error() string {
	return fmt.Sprintf("table %s not found in source", e.Table)
}

// RowConversionError reports a value the column's conversion function
// rejected. Task-scoped: the owning load task fails, sibling chunks run to
// completion, the table is not finalized.
type RowConversionError struct {
	Table  string
	Column string
	Err    error
}

func (e *RowConversionError) Error() string {
	return fmt.Sprintf("convert %s.%s: %v", e.Table, e.Column, e.Err)
}

func (e *RowConversionError) Unwrap() error { return e.Err }

// DuplicateKeyError reports a unique violation during COPY. The COPY
// protocol cannot express ON CONFLICT, so a re-run against an
// already-loaded table surfaces here; the task fails and existing target
// rows are left untouched.
type DuplicateKeyError struct {
	Table string
	Err   error
}

func (e *DuplicateKeyError) Error() string {
	return fmt.Sprintf("duplicate key loading %s: %v", e.Table, e.Err)
}

func (e *DuplicateKeyError) Unwrap() error { return e.Err }

// ErrorClass names the taxonomy bucket for an error, for the end-of-run
// report.
func ErrorClass(err error) string {
	var (
		mapping    *typemap.MappingError
		notFound   *TableNotFoundError
		conversion *RowConversionError
		duplicate  *DuplicateKeyError
	)
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrSourceUnavailable):
		return "source unavailable"
	case errors.As(err, &notFound):
		return "table not found"
	case errors.As(err, &mapping):
		return "type mapping"
	case errors.As(err, &conversion):
		return "row conversion"
	case errors.As(err, &duplicate):
		return "duplicate key"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "load"
	}
}
