package schema

import (
	"fmt"
	"strings"
	"time"
)

// maxRecordedErrors caps TransformResult.Errors; Failures keeps counting.
const maxRecordedErrors = 50

// CellError records one value that could not be coerced to its column type.
type CellError struct {
	Row    int
	Column string
	Value  any
	Err    error
}

func (e CellError) Error() string {
	return fmt.Sprintf("row %d column %s: %v", e.Row, e.Column, e.Err)
}

// TransformResult is the outcome of coercing a batch of rows.
type TransformResult struct {
	// Columns is the insert column order (surrogate identity excluded).
	Columns []string
	Rows    [][]any

	// Failures counts degraded cells. Errors holds the first few of them.
	Failures int
	Errors   []CellError
}

// TransformOptions tunes TransformWith.
type TransformOptions struct {
	// KeepText stores a date or timestamp cell that does not parse as its
	// trimmed text instead of NULL. Only engines that accept text in typed
	// columns can take it.
	KeepText bool
}

// Transform coerces every row to the column types of t. A cell that fails
// coercion becomes NULL, or the type's zero value for non-nullable columns;
// the row itself is always kept.
func Transform(t *TableSchema, rows []map[string]any) TransformResult {
	return TransformWith(t, rows, TransformOptions{})
}

// TransformWith is Transform with options.
func TransformWith(t *TableSchema, rows []map[string]any, opts TransformOptions) TransformResult {
	res := TransformResult{Columns: t.InsertColumns()}
	defs := make([]ColumnDefinition, 0, len(res.Columns))
	for _, c := range t.Columns {
		if !c.Surrogate {
			defs = append(defs, c)
		}
	}

	res.Rows = make([][]any, 0, len(rows))
	for i, raw := range rows {
		out := make([]any, len(defs))
		for j, c := range defs {
			v, err := Coerce(c, raw[c.Name])
			if err != nil {
				res.Failures++
				if len(res.Errors) < maxRecordedErrors {
					res.Errors = append(res.Errors, CellError{Row: i, Column: c.Name, Value: raw[c.Name], Err: err})
				}
				switch {
				case opts.KeepText && c.Nullable && c.Type.isTemporal() && !isBlank(raw[c.Name]):
					v = strings.TrimSpace(stringValue(raw[c.Name]))
				case c.Nullable:
					v = nil
				default:
					v = zeroValue(c.Type)
				}
			}
			out[j] = v
		}
		res.Rows = append(res.Rows, out)
	}
	return res
}

// Coerce converts a raw cell into the Go value stored for column c: int64,
// float64, bool, time.Time, string, or nil for blanks.
func Coerce(c ColumnDefinition, v any) (any, error) {
	if isBlank(v) {
		if !c.Nullable {
			return nil, fmt.Errorf("missing value for non-nullable %s", c.Type)
		}
		return nil, nil
	}
	switch c.Type {
	case TypeInteger:
		if i, ok := parseInt(v); ok {
			return i, nil
		}
		// "3.0" style integers from spreadsheets.
		if f, ok := parseFloat(v); ok && f == float64(int64(f)) {
			return int64(f), nil
		}
	case TypeFloat:
		if f, ok := parseFloat(v); ok {
			return f, nil
		}
	case TypeBoolean:
		if b, ok := ParseBoolLoose(v); ok {
			return b, nil
		}
	case TypeDate, TypeTimestamp:
		if ts, ok := parseTimeOrder(v, c.DayFirst); ok {
			if c.Type == TypeDate {
				y, m, d := ts.Date()
				return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil
			}
			return ts, nil
		}
	default:
		return strings.TrimSpace(stringValue(v)), nil
	}
	return nil, fmt.Errorf("cannot coerce %q to %s", stringValue(v), c.Type)
}

// timeLayouts cover the unambiguous shapes of IsDateLike. Fractional
// seconds after a seconds field parse without a layout of their own.
var timeLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	time.RFC3339Nano,
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05 -0700",
	"2006-01-02 15:04:05 MST",
	"2006/01/02",
	"2006/01/02 15:04:05",
	"2006/01/02 15:04",
	"20060102",
}

var (
	monthFirstLayouts = []string{"01/02/2006", "01-02-2006"}
	dayFirstLayouts   = []string{"02/01/2006", "02-01-2006"}
)

// ParseTime parses the date shapes recognized by IsDateLike. nn/nn/yyyy and
// nn-nn-yyyy dates are read month first, then day first.
func ParseTime(v any) (time.Time, bool) {
	return parseTimeOrder(v, false)
}

// parseTimeOrder is ParseTime with the preferred order for ambiguous short
// dates; the other order is still tried.
func parseTimeOrder(v any, dayFirst bool) (time.Time, bool) {
	if t, ok := v.(time.Time); ok {
		return t.UTC(), true
	}
	s := strings.TrimSpace(stringValue(v))
	short := [][]string{monthFirstLayouts, dayFirstLayouts}
	if dayFirst {
		short[0], short[1] = short[1], short[0]
	}
	for _, layouts := range [][]string{timeLayouts, short[0], short[1]} {
		for _, lay := range layouts {
			if t, err := time.Parse(lay, s); err == nil {
				return t.UTC(), true
			}
		}
	}
	return time.Time{}, false
}

func zeroValue(t ColumnType) any {
	switch t {
	case TypeInteger:
		return int64(0)
	case TypeFloat:
		return float64(0)
	case TypeBoolean:
		return false
	case TypeDate, TypeTimestamp:
		return time.Time{}
	default:
		return ""
	}
}
