package schema

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// DefaultSampleSize is the number of leading rows used for type inference.
const DefaultSampleSize = 100

// numericShare is the share of non-null sampled values that must parse for a
// column to be typed as date, integer, or float. Stragglers coerce to NULL.
const numericShare = 0.8

// shortDateRE matches the day/month-ambiguous nn/nn/yyyy and nn-nn-yyyy forms.
var shortDateRE = regexp.MustCompile(`^(\d{2})[/-]\d{2}[/-]\d{4}$`)

var datePatterns = []*regexp.Regexp{
	regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`),
	regexp.MustCompile(`^\d{2}/\d{2}/\d{4}$`),
	regexp.MustCompile(`^\d{2}-\d{2}-\d{4}$`),
	regexp.MustCompile(`^\d{4}-\d{2}-\d{2}[ T]\d{2}:\d{2}(:\d{2})?`),
	regexp.MustCompile(`^\d{4}/\d{2}/\d{2}`),
	// YYYYMMDD with a plausible month and day.
	regexp.MustCompile(`^(19|20)\d{2}(0[1-9]|1[0-2])(0[1-9]|[12]\d|3[01])$`),
}

// IsDateLike reports whether v looks like a calendar date or timestamp.
func IsDateLike(v any) bool {
	switch v.(type) {
	case time.Time:
		return true
	case nil, bool, int, int64, float64:
		return false
	}
	s := strings.TrimSpace(stringValue(v))
	if s == "" {
		return false
	}
	for _, re := range datePatterns {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}

// leadsWithDay reports whether v is an nn/nn/yyyy or nn-nn-yyyy date whose
// first field cannot be a month.
func leadsWithDay(v any) bool {
	m := shortDateRE.FindStringSubmatch(strings.TrimSpace(stringValue(v)))
	if m == nil {
		return false
	}
	n, _ := strconv.Atoi(m[1])
	return n > 12
}

func hasClock(v any) bool {
	if t, ok := v.(time.Time); ok {
		h, m, s := t.Clock()
		return h != 0 || m != 0 || s != 0 || t.Nanosecond() != 0
	}
	return strings.Contains(stringValue(v), ":")
}

// ParseBoolLoose accepts common truthy and falsy encodings.
func ParseBoolLoose(v any) (bool, bool) {
	if b, ok := v.(bool); ok {
		return b, true
	}
	switch strings.ToLower(strings.TrimSpace(stringValue(v))) {
	case "1", "true", "yes":
		return true, true
	case "0", "false", "no":
		return false, true
	default:
		return false, false
	}
}

func parseInt(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		if n == math.Trunc(n) && !math.IsInf(n, 0) && math.Abs(n) < 1<<53 {
			return int64(n), true
		}
		return 0, false
	case bool, time.Time, nil:
		return 0, false
	}
	s := strings.TrimSpace(stringValue(v))
	if strings.Contains(s, ".") {
		return 0, false
	}
	i, err := strconv.ParseInt(s, 10, 64)
	return i, err == nil
}

func parseFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, !math.IsNaN(n) && !math.IsInf(n, 0)
	case bool, time.Time, nil:
		return 0, false
	}
	s := strings.TrimSpace(stringValue(v))
	if s == "" {
		return 0, false
	}
	// ParseFloat accepts "nan" and "inf"; those are text here.
	switch c := s[len(s)-1]; {
	case c >= '0' && c <= '9', c == '.':
	default:
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	return f, err == nil
}

// InferColumn infers a column definition from sampled values. Identity and
// index flags are decided at table level by Infer.
//
// Detection order:
//   - date/timestamp: at least 80% of non-null values match a date pattern; any
//     time component promotes the column to timestamp.
//   - boolean: every value is a boolean token.
//   - integer: at least 80% parse as integers and are not date-shaped.
//   - float: at least 80% parse as floats and are not date-shaped.
//   - short_text up to ShortTextMax characters, otherwise long_text.
func InferColumn(name string, samples []any) ColumnDefinition {
	col := ColumnDefinition{Name: name, Type: TypeShortText, Nullable: true}

	values := make([]any, 0, len(samples))
	for _, v := range samples {
		if isBlank(v) {
			continue
		}
		values = append(values, v)
		if n := len([]rune(stringValue(v))); n > col.MaxLength {
			col.MaxLength = n
		}
	}
	if len(values) == 0 {
		return col
	}
	need := int(math.Ceil(numericShare * float64(len(values))))

	var dates, clocks, bools, ints, floats int
	wide, dayFirst := false, false
	for _, v := range values {
		if IsDateLike(v) {
			dates++
			if hasClock(v) {
				clocks++
			}
			if leadsWithDay(v) {
				dayFirst = true
			}
			continue
		}
		if _, ok := ParseBoolLoose(v); ok {
			bools++
		}
		if i, ok := parseInt(v); ok {
			ints++
			if i < math.MinInt32 || i > math.MaxInt32 {
				wide = true
			}
		}
		if _, ok := parseFloat(v); ok {
			floats++
		}
	}

	switch {
	case dates >= need:
		col.Type = TypeDate
		col.DayFirst = dayFirst
		if clocks > 0 {
			col.Type = TypeTimestamp
		}
	case bools == len(values):
		col.Type = TypeBoolean
	case ints >= need:
		col.Type = TypeInteger
		col.Wide = wide
	case floats >= need:
		col.Type = TypeFloat
	case col.MaxLength > ShortTextMax:
		col.Type = TypeLongText
	}
	return col
}

func isBlank(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	}
	return false
}

// stringValue renders a raw cell as text.
func stringValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case []byte:
		return string(t)
	case time.Time:
		return t.Format(time.RFC3339)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}
