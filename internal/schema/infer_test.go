package schema

import (
	"encoding/json"
	"testing"
	"time"
)

func anys(vs ...string) []any {
	out := make([]any, len(vs))
	for i, v := range vs {
		out[i] = v
	}
	return out
}

// TestInferColumn_Types verifies the detection order: dates before booleans
// before numbers before text.
func TestInferColumn_Types(t *testing.T) {
	t.Parallel()

	long := make([]byte, ShortTextMax+1)
	for i := range long {
		long[i] = 'x'
	}

	tests := []struct {
		name     string
		samples  []any
		want     ColumnType
		wantWide bool
	}{
		{"iso dates", anys("2024-01-02", "2023-12-31"), TypeDate, false},
		{"time promotes to timestamp", anys("2024-01-02", "2024-01-03 10:11:12"), TypeTimestamp, false},
		{"yyyymmdd is a date not an integer", anys("20240105", "20231231"), TypeDate, false},
		{"us slash dates", anys("01/02/2024", "12/31/2023"), TypeDate, false},
		{"booleans", anys("true", "False", "yes", "no"), TypeBoolean, false},
		{"zero one is boolean", anys("0", "1", "1"), TypeBoolean, false},
		{"integers", anys("1", "2", "3", "42"), TypeInteger, false},
		{"wide integers", anys("1", "9999999999"), TypeInteger, true},
		{"integers tolerate stragglers", anys("1", "2", "3", "4", "5", "6", "7", "8", "9", "n/a"), TypeInteger, false},
		{"too many stragglers falls to text", anys("1", "2", "x", "y"), TypeShortText, false},
		{"floats", anys("1.5", "2", "3.25"), TypeFloat, false},
		{"nan is text", anys("nan", "inf", "1.0"), TypeShortText, false},
		{"short text", anys("alpha", "beta"), TypeShortText, false},
		{"long text", []any{string(long)}, TypeLongText, false},
		{"all blank defaults to short text", anys("", "  "), TypeShortText, false},
		{"typed json numbers", []any{json.Number("1"), json.Number("7")}, TypeInteger, false},
		{"typed floats", []any{1.5, 2.0}, TypeFloat, false},
		{"typed times", []any{time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)}, TypeDate, false},
		{"typed bools", []any{true, false}, TypeBoolean, false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := InferColumn("c", tt.samples)
			if got.Type != tt.want {
				t.Fatalf("InferColumn(%v).Type = %s, want %s", tt.samples, got.Type, tt.want)
			}
			if got.Wide != tt.wantWide {
				t.Fatalf("InferColumn(%v).Wide = %v, want %v", tt.samples, got.Wide, tt.wantWide)
			}
			if !got.Nullable {
				t.Fatalf("InferColumn must default to nullable")
			}
		})
	}
}

func TestParseBoolLoose(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in     any
		want   bool
		wantOK bool
	}{
		{"TRUE", true, true},
		{" yes ", true, true},
		{"1", true, true},
		{"0", false, true},
		{"no", false, true},
		{true, true, true},
		{"maybe", false, false},
		{"", false, false},
	}
	for _, tt := range tests {
		got, ok := ParseBoolLoose(tt.in)
		if got != tt.want || ok != tt.wantOK {
			t.Fatalf("ParseBoolLoose(%v) = (%v,%v), want (%v,%v)", tt.in, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestIsDateLike(t *testing.T) {
	t.Parallel()

	yes := []string{"2024-01-02", "02/01/2024", "02-01-2024", "2024-01-02 10:00:00", "2024/01/02", "20240102"}
	no := []string{"2024", "12345678", "hello", "", "1.5"}

	for _, s := range yes {
		if !IsDateLike(s) {
			t.Fatalf("IsDateLike(%q) = false, want true", s)
		}
	}
	for _, s := range no {
		if IsDateLike(s) {
			t.Fatalf("IsDateLike(%q) = true, want false", s)
		}
	}
}

func TestParseTime_AcceptsEveryDateLikeShape(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"2024-01-15", "2024-01-15T00:00:00"},
		{"15/03/2024", "2024-03-15T00:00:00"},
		{"03/15/2024", "2024-03-15T00:00:00"},
		{"01/02/2024", "2024-01-02T00:00:00"},
		{"12-31-2023", "2023-12-31T00:00:00"},
		{"31-12-2023", "2023-12-31T00:00:00"},
		{"2024-01-15 10:30:00.5", "2024-01-15T10:30:00"},
		{"2024-01-15T10:30", "2024-01-15T10:30:00"},
		{"2024/01/15 10:30", "2024-01-15T10:30:00"},
		{"20240115", "2024-01-15T00:00:00"},
	}
	for _, tt := range tests {
		if !IsDateLike(tt.in) {
			t.Fatalf("IsDateLike(%q) = false", tt.in)
		}
		got, ok := ParseTime(tt.in)
		if !ok || got.Format("2006-01-02T15:04:05") != tt.want {
			t.Fatalf("ParseTime(%q) = %v, %v, want %s", tt.in, got, ok, tt.want)
		}
	}
}

func TestInferColumn_DayFirstDates(t *testing.T) {
	t.Parallel()

	col := InferColumn("when", anys("15/03/2024", "20/04/2024", "01/02/2024", "28/12/2023"))
	if col.Type != TypeDate || !col.DayFirst {
		t.Fatalf("InferColumn = %+v, want day-first date", col)
	}
	v, err := Coerce(col, "01/02/2024")
	if err != nil {
		t.Fatalf("Coerce: %v", err)
	}
	if got := v.(time.Time).Format("2006-01-02"); got != "2024-02-01" {
		t.Fatalf("Coerce(01/02/2024) = %s, want 2024-02-01", got)
	}

	if col := InferColumn("when", anys("03/15/2024", "01/02/2024")); col.DayFirst {
		t.Fatalf("month-first column marked day-first")
	}
}
