// Package typemap maps MySQL/MariaDB column types onto their Postgres
// equivalents and supplies a per-column value conversion function.
//
// The mapping is a static table plus a handful of special cases
// (tinyint(1)/bit(1) become boolean, unsigned int widens to bigint,
// precision is preserved for decimal and varchar). Per-column overrides
// from the database registry take precedence over the table.
//
// The package is pure: it never touches a database connection and can be
// exercised entirely in unit tests.
package typemap

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
)

// ConvertFunc converts one source value into a value the Postgres COPY
// encoder accepts for the mapped column type. nil passes through as nil.
type ConvertFunc func(v any) (any, error)

// MappingError reports a source column type with no Postgres mapping.
// It is table-scoped: planning for the owning table fails, other tables
// are unaffected.
type MappingError struct {
	Column     string
	SourceType string
}

func (e *MappingError) Error() string {
	return fmt.Sprintf("no target type mapping for column %q (%s)", e.Column, e.SourceType)
}

// baseTypes maps a lowercased MySQL base type (the part before any
// precision parenthesis) to its Postgres counterpart.
var baseTypes = map[string]string{
	"tinyint":    "smallint",
	"smallint":   "smallint",
	"mediumint":  "integer",
	"int":        "integer",
	"integer":    "integer",
	"bigint":     "bigint",
	"decimal":    "numeric",
	"numeric":    "numeric",
	"float":      "real",
	"double":     "double precision",
	"bit":        "bit",
	"date":       "date",
	"datetime":   "timestamp",
	"timestamp":  "timestamptz",
	"time":       "time",
	"year":       "smallint",
	"char":       "varchar",
	"varchar":    "varchar",
	"tinytext":   "text",
	"text":       "text",
	"mediumtext": "text",
	"longtext":   "text",
	"binary":     "bytea",
	"varbinary":  "bytea",
	"tinyblob":   "bytea",
	"blob":       "bytea",
	"mediumblob": "bytea",
	"longblob":   "bytea",
	"enum":       "varchar",
	"set":        "varchar",
	"json":       "jsonb",
}

// Map resolves the Postgres type and conversion function for one source
// column. override, when non-empty, names the target type directly; the
// conversion function is still derived from the source type so value
// semantics (bit bytes, zero dates) survive an override.
func Map(column, sourceType, override string) (string, ConvertFunc, error) {
	src := strings.ToLower(strings.TrimSpace(sourceType))
	base := src
	if i := strings.IndexByte(base, '('); i >= 0 {
		base = base[:i]
	}
	base = strings.TrimSpace(base)

	target, err := targetType(column, src, base)
	if err != nil {
		return "", nil, err
	}
	if override != "" {
		target = strings.ToLower(strings.TrimSpace(override))
	}
	return target, converterFor(target, src), nil
}

func targetType(column, src, base string) (string, error) {
	// Single-bit flags become booleans regardless of declared width hints.
	if strings.HasPrefix(src, "tinyint(1)") || strings.HasPrefix(src, "bit(1)") {
		return "boolean", nil
	}
	if strings.Contains(src, "unsigned") {
		switch base {
		case "int", "integer", "mediumint":
			return "bigint", nil
		case "bigint":
			// No wider integer exists; numeric keeps the full domain.
			return "numeric(20)", nil
		}
	}

	mapped, ok := baseTypes[base]
	if !ok {
		return "", &MappingError{Column: column, SourceType: src}
	}

	// Preserve declared precision where Postgres honors it. Postgres bare
	// "bit" means bit(1), so a multi-bit column must keep its width.
	if i := strings.IndexByte(src, '('); i >= 0 {
		if j := strings.IndexByte(src, ')'); j > i {
			switch base {
			case "decimal", "numeric", "varchar", "char", "bit":
				return mapped + src[i:j+1], nil
			}
		}
	}
	return mapped, nil
}

// converterFor picks the value conversion for a target type. The MySQL
// driver hands back []byte for most text-protocol values and time.Time
// for temporal columns (parseTime=true), so converters accept both.
func converterFor(target, src string) ConvertFunc {
	base := target
	if i := strings.IndexByte(base, '('); i >= 0 {
		base = base[:i]
	}
	switch base {
	case "boolean":
		return toBool
	case "smallint", "integer", "bigint":
		if strings.HasPrefix(src, "bit") {
			return bitToInt
		}
		return toInt
	case "real", "double precision":
		return toFloat
	case "numeric":
		return toNumeric
	case "bit":
		return toBits(precision(target))
	case "date", "timestamp", "timestamptz":
		return toTimestamp
	case "time":
		return toTimeOfDay
	case "bytea":
		return toBytes
	default:
		return toText
	}
}

func toBool(v any) (any, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case bool:
		return t, nil
	case []byte:
		// bit(1) arrives as a single byte; tinyint(1) as ASCII digits.
		if len(t) == 1 && (t[0] == 0x00 || t[0] == 0x01) {
			return t[0] != 0x00, nil
		}
		s := string(t)
		return s != "0" && s != "", nil
	case int64:
		return t != 0, nil
	case string:
		return t != "0" && t != "", nil
	}
	return nil, fmt.Errorf("cannot convert %T to boolean", v)
}

// precision parses the width from a parenthesized target type, e.g. 8 from
// "bit(8)". Returns 1 when the type carries no width.
func precision(target string) int {
	i := strings.IndexByte(target, '(')
	j := strings.IndexByte(target, ')')
	if i < 0 || j <= i {
		return 1
	}
	n, err := strconv.Atoi(target[i+1 : j])
	if err != nil || n < 1 {
		return 1
	}
	return n
}

// toBits converts the driver's big-endian bit bytes into pgtype.Bits.
// MySQL right-aligns the value in its bytes; Postgres packs bit strings
// MSB-first, so the value is shifted left to the declared width.
func toBits(width int) ConvertFunc {
	nbytes := (width + 7) / 8
	return func(v any) (any, error) {
		var n uint64
		switch t := v.(type) {
		case nil:
			return nil, nil
		case []byte:
			if len(t) > 8 {
				return nil, fmt.Errorf("bit value %d bytes wide, max 8", len(t))
			}
			for _, b := range t {
				n = n<<8 | uint64(b)
			}
		case int64:
			n = uint64(t)
		default:
			return nil, fmt.Errorf("cannot convert %T to bit", v)
		}
		if width < 64 && n >= 1<<uint(width) {
			return nil, fmt.Errorf("bit value %d exceeds bit(%d)", n, width)
		}
		n <<= uint(nbytes*8 - width)
		buf := make([]byte, nbytes)
		for i := nbytes - 1; i >= 0; i-- {
			buf[i] = byte(n)
			n >>= 8
		}
		return pgtype.Bits{Bytes: buf, Len: int32(width), Valid: true}, nil
	}
}

// bitToInt decodes the driver's big-endian bit bytes for bit columns that
// were overridden to an integer target.
func bitToInt(v any) (any, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case int64:
		return t, nil
	case []byte:
		if len(t) > 8 {
			return nil, fmt.Errorf("bit value %d bytes wide, max 8", len(t))
		}
		var n int64
		for _, b := range t {
			n = n<<8 | int64(b)
		}
		return n, nil
	}
	return nil, fmt.Errorf("cannot convert %T to integer", v)
}

func toInt(v any) (any, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case int64:
		return t, nil
	case []byte:
		n, err := strconv.ParseInt(string(t), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse integer %q: %w", t, err)
		}
		return n, nil
	case string:
		n, err := strconv.ParseInt(t, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse integer %q: %w", t, err)
		}
		return n, nil
	}
	return nil, fmt.Errorf("cannot convert %T to integer", v)
}

func toFloat(v any) (any, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case float64:
		return t, nil
	case []byte:
		f, err := strconv.ParseFloat(string(t), 64)
		if err != nil {
			return nil, fmt.Errorf("parse float %q: %w", t, err)
		}
		return f, nil
	case string:
		f, err := strconv.ParseFloat(t, 64)
		if err != nil {
			return nil, fmt.Errorf("parse float %q: %w", t, err)
		}
		return f, nil
	}
	return nil, fmt.Errorf("cannot convert %T to float", v)
}

// toNumeric keeps arbitrary-precision decimals lossless by parsing the
// textual value into pgtype.Numeric instead of going through float64.
func toNumeric(v any) (any, error) {
	var s string
	switch t := v.(type) {
	case nil:
		return nil, nil
	case []byte:
		s = string(t)
	case string:
		s = t
	case int64:
		s = strconv.FormatInt(t, 10)
	case float64:
		s = strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return nil, fmt.Errorf("cannot convert %T to numeric", v)
	}
	var n pgtype.Numeric
	if err := n.Scan(s); err != nil {
		return nil, fmt.Errorf("parse numeric %q: %w", s, err)
	}
	return n, nil
}

// toTimestamp handles both parseTime=true (time.Time) and raw textual
// values. MySQL zero dates have no Postgres representation and become NULL,
// matching the behavior of the tool this replaces.
func toTimestamp(v any) (any, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case time.Time:
		if t.IsZero() {
			return nil, nil
		}
		return t, nil
	case []byte:
		return parseTimestamp(string(t))
	case string:
		return parseTimestamp(t)
	}
	return nil, fmt.Errorf("cannot convert %T to timestamp", v)
}

var timestampLayouts = []string{
	"2006-01-02 15:04:05.999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func parseTimestamp(s string) (any, error) {
	if strings.HasPrefix(s, "0000-00-00") {
		return nil, nil
	}
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts, nil
		}
	}
	return nil, fmt.Errorf("parse timestamp %q", s)
}

// toTimeOfDay converts MySQL TIME text into pgtype.Time (microseconds
// since midnight), which the binary COPY encoder accepts directly.
func toTimeOfDay(v any) (any, error) {
	var s string
	switch t := v.(type) {
	case nil:
		return nil, nil
	case []byte:
		s = string(t)
	case string:
		s = t
	default:
		return nil, fmt.Errorf("cannot convert %T to time", v)
	}
	if strings.HasPrefix(s, "-") {
		// Postgres time of day has no sign; clamp to midnight.
		return pgtype.Time{Valid: true}, nil
	}
	var h, m int
	var sec float64
	if _, err := fmt.Sscanf(s, "%d:%d:%f", &h, &m, &sec); err != nil {
		return nil, fmt.Errorf("parse time %q: %w", s, err)
	}
	us := int64(h)*3600e6 + int64(m)*60e6 + int64(sec*1e6)
	return pgtype.Time{Microseconds: us, Valid: true}, nil
}

func toBytes(v any) (any, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case []byte:
		return t, nil
	case string:
		return []byte(t), nil
	}
	return nil, fmt.Errorf("cannot convert %T to bytea", v)
}

// toText strips NUL bytes, which Postgres text types reject.
func toText(v any) (any, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case []byte:
		return strings.ReplaceAll(string(t), "\x00", ""), nil
	case string:
		return strings.ReplaceAll(t, "\x00", ""), nil
	default:
		return fmt.Sprint(t), nil
	}
}
