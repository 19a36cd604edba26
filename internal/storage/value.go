package storage

import (
	"fmt"
	"strings"
	"time"
)

// NormalizeValue converts a driver-scanned value into the small set of Go
// types callers see in Result rows: nil, string, int64, float64, bool, and
// time.Time.
//
// Backends must not assume a particular driver representation; this helper
// keeps results consistent across backends.
func NormalizeValue(v any) any {
	switch t := v.(type) {
	case nil, string, int64, float64, bool, time.Time:
		return v
	case []byte:
		return string(t)
	case int:
		return int64(t)
	case int32:
		return int64(t)
	case int16:
		return int64(t)
	case int8:
		return int64(t)
	case uint8:
		return int64(t)
	case uint16:
		return int64(t)
	case uint32:
		return int64(t)
	case float32:
		return float64(t)
	default:
		return fmt.Sprint(v)
	}
}

// KeyString renders a value as a canonical string suitable for map keys and
// display (e.g. "Germany" or "8429529").
func KeyString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case int64:
		return fmt.Sprintf("%d", t)
	case []byte:
		return strings.TrimSpace(string(t))
	case int:
		return fmt.Sprintf("%d", t)
	case time.Time:
		if h, m, s := t.Clock(); h == 0 && m == 0 && s == 0 {
			return t.Format("2006-01-02")
		}
		return t.Format("2006-01-02 15:04:05")
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}
