package typemap

import (
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
)

func TestMapTargetTypes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		sourceType string
		override   string
		want       string
	}{
		{"tinyint flag", "tinyint(1)", "", "boolean"},
		{"bit flag", "bit(1)", "", "boolean"},
		{"bit field keeps width", "bit(8)", "", "bit(8)"},
		{"tinyint wide", "tinyint(4)", "", "smallint"},
		{"plain int", "int(11)", "", "integer"},
		{"unsigned int widens", "int(10) unsigned", "", "bigint"},
		{"unsigned bigint", "bigint(20) unsigned", "", "numeric(20)"},
		{"decimal precision kept", "decimal(12,4)", "", "numeric(12,4)"},
		{"varchar length kept", "varchar(64)", "", "varchar(64)"},
		{"char becomes varchar", "char(8)", "", "varchar(8)"},
		{"datetime", "datetime", "", "timestamp"},
		{"datetime fractional", "datetime(6)", "", "timestamp"},
		{"timestamp gets zone", "timestamp", "", "timestamptz"},
		{"enum", "enum('a','b')", "", "varchar"},
		{"blob", "longblob", "", "bytea"},
		{"json", "json", "", "jsonb"},
		{"year", "year(4)", "", "smallint"},
		{"override wins", "int(11)", "bigint", "bigint"},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, conv, err := Map("c", tc.sourceType, tc.override)
			if err != nil {
				t.Fatalf("Map(%q) error: %v", tc.sourceType, err)
			}
			if got != tc.want {
				t.Errorf("Map(%q) = %q, want %q", tc.sourceType, got, tc.want)
			}
			if conv == nil {
				t.Errorf("Map(%q) returned nil converter", tc.sourceType)
			}
		})
	}
}

func TestMapUnknownType(t *testing.T) {
	t.Parallel()

	_, _, err := Map("geom", "geometry", "")
	var me *MappingError
	if !errors.As(err, &me) {
		t.Fatalf("Map(geometry) error = %v, want *MappingError", err)
	}
	if me.Column != "geom" {
		t.Errorf("MappingError.Column = %q, want %q", me.Column, "geom")
	}
}

func TestBoolConversion(t *testing.T) {
	t.Parallel()

	_, conv, err := Map("active", "bit(1)", "")
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		in   any
		want any
	}{
		{"nil", nil, nil},
		{"bit zero byte", []byte{0x00}, false},
		{"bit one byte", []byte{0x01}, true},
		{"ascii zero", []byte("0"), false},
		{"ascii one", []byte("1"), true},
		{"int64", int64(1), true},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			got, err := conv(tc.in)
			if err != nil {
				t.Fatalf("convert(%v) error: %v", tc.in, err)
			}
			if got != tc.want {
				t.Errorf("convert(%v) = %v, want %v", tc.in, got, tc.want)
			}
		})
	}
}

func TestBitFieldConversion(t *testing.T) {
	t.Parallel()

	target, conv, err := Map("flags", "bit(8)", "")
	if err != nil {
		t.Fatal(err)
	}
	if target != "bit(8)" {
		t.Fatalf("target = %q, want bit(8)", target)
	}

	got, err := conv([]byte{0xAB})
	if err != nil {
		t.Fatal(err)
	}
	want := pgtype.Bits{Bytes: []byte{0xAB}, Len: 8, Valid: true}
	b, ok := got.(pgtype.Bits)
	if !ok {
		t.Fatalf("convert returned %T, want pgtype.Bits", got)
	}
	if b.Len != want.Len || !b.Valid || len(b.Bytes) != 1 || b.Bytes[0] != 0xAB {
		t.Errorf("convert(0xAB) = %+v, want %+v", b, want)
	}

	if got, err := conv(nil); err != nil || got != nil {
		t.Errorf("convert(nil) = %v, %v, want nil, nil", got, err)
	}
}

func TestBitFieldConversionShiftsToWidth(t *testing.T) {
	t.Parallel()

	// MySQL right-aligns bit values; Postgres wants them MSB-first, so
	// b'0101' in a bit(4) column packs into the high nibble.
	_, conv, err := Map("nibble", "bit(4)", "")
	if err != nil {
		t.Fatal(err)
	}
	got, err := conv([]byte{0x05})
	if err != nil {
		t.Fatal(err)
	}
	b := got.(pgtype.Bits)
	if b.Len != 4 || len(b.Bytes) != 1 || b.Bytes[0] != 0x50 {
		t.Errorf("convert(0x05) = %+v, want bits 0101 in the high nibble", b)
	}

	if _, err := conv([]byte{0x1F}); err == nil {
		t.Error("value wider than bit(4) accepted, want error")
	}
}

func TestTimestampConversion(t *testing.T) {
	t.Parallel()

	_, conv, err := Map("created_at", "datetime", "")
	if err != nil {
		t.Fatal(err)
	}

	t.Run("zero time becomes null", func(t *testing.T) {
		got, err := conv(time.Time{})
		if err != nil {
			t.Fatal(err)
		}
		if got != nil {
			t.Errorf("convert(zero time) = %v, want nil", got)
		}
	})
	t.Run("zero date text becomes null", func(t *testing.T) {
		got, err := conv([]byte("0000-00-00 00:00:00"))
		if err != nil {
			t.Fatal(err)
		}
		if got != nil {
			t.Errorf("convert(zero date) = %v, want nil", got)
		}
	})
	t.Run("time passes through", func(t *testing.T) {
		in := time.Date(2019, time.March, 4, 5, 6, 7, 0, time.UTC)
		got, err := conv(in)
		if err != nil {
			t.Fatal(err)
		}
		if got != in {
			t.Errorf("convert(%v) = %v", in, got)
		}
	})
	t.Run("text parses", func(t *testing.T) {
		got, err := conv([]byte("2021-07-15 12:30:45"))
		if err != nil {
			t.Fatal(err)
		}
		want := time.Date(2021, time.July, 15, 12, 30, 45, 0, time.UTC)
		if got != want {
			t.Errorf("convert = %v, want %v", got, want)
		}
	})
	t.Run("garbage fails", func(t *testing.T) {
		if _, err := conv([]byte("not a date")); err == nil {
			t.Error("convert(garbage) succeeded, want error")
		}
	})
}

func TestNumericConversion(t *testing.T) {
	t.Parallel()

	_, conv, err := Map("amount", "decimal(18,6)", "")
	if err != nil {
		t.Fatal(err)
	}

	got, err := conv([]byte("12345.678901"))
	if err != nil {
		t.Fatal(err)
	}
	n, ok := got.(pgtype.Numeric)
	if !ok {
		t.Fatalf("convert returned %T, want pgtype.Numeric", got)
	}
	if !n.Valid {
		t.Error("numeric not valid")
	}

	if got, err := conv(nil); err != nil || got != nil {
		t.Errorf("convert(nil) = %v, %v, want nil, nil", got, err)
	}
	if _, err := conv([]byte("12,34")); err == nil {
		t.Error("convert(malformed) succeeded, want error")
	}
}

func TestTimeOfDayConversion(t *testing.T) {
	t.Parallel()

	_, conv, err := Map("start_time", "time", "")
	if err != nil {
		t.Fatal(err)
	}

	got, err := conv([]byte("01:02:03"))
	if err != nil {
		t.Fatal(err)
	}
	want := pgtype.Time{Microseconds: (1*3600 + 2*60 + 3) * 1e6, Valid: true}
	if got != want {
		t.Errorf("convert(01:02:03) = %v, want %v", got, want)
	}

	got, err = conv([]byte("-12:00:00"))
	if err != nil {
		t.Fatal(err)
	}
	if got != (pgtype.Time{Valid: true}) {
		t.Errorf("convert(negative) = %v, want midnight", got)
	}
}

func TestTextStripsNUL(t *testing.T) {
	t.Parallel()

	_, conv, err := Map("notes", "text", "")
	if err != nil {
		t.Fatal(err)
	}
	got, err := conv([]byte("abc\x00def"))
	if err != nil {
		t.Fatal(err)
	}
	if got != "abcdef" {
		t.Errorf("convert = %q, want %q", got, "abcdef")
	}
}

func TestOverrideKeepsSourceSemantics(t *testing.T) {
	t.Parallel()

	// An override changes the DDL type, not how values are read: a bit(1)
	// overridden to smallint must still decode the driver's single byte.
	target, conv, err := Map("flags", "bit(1)", "smallint")
	if err != nil {
		t.Fatal(err)
	}
	if target != "smallint" {
		t.Fatalf("target = %q, want smallint", target)
	}
	got, err := conv([]byte{0x01})
	if err != nil {
		t.Fatal(err)
	}
	if got != int64(1) {
		t.Errorf("convert(0x01) = %v, want 1", got)
	}
}
