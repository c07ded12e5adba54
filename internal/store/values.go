package store

import (
	"fmt"
	"strconv"
	"time"
)

// Drivers disagree on the Go types they hand back for a column
// (sqlite may return text as []byte, postgres numerics as int32,
// and so on). These helpers normalise scanned values.

// String converts a scanned value to a string; nil becomes "".
func String(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	case time.Time:
		return t.Format(time.RFC3339Nano)
	default:
		return fmt.Sprint(t)
	}
}

// Int64 converts a scanned value to an int64. ok is false for nil
// or values that are not integral.
func Int64(v any) (n int64, ok bool) {
	switch t := v.(type) {
	case int64:
		return t, true
	case int:
		return int64(t), true
	case int32:
		return int64(t), true
	case float64:
		if t != float64(int64(t)) {
			return 0, false
		}
		return int64(t), true
	case string:
		n, err := strconv.ParseInt(t, 10, 64)
		return n, err == nil
	case []byte:
		n, err := strconv.ParseInt(string(t), 10, 64)
		return n, err == nil
	default:
		return 0, false
	}
}

// Float64 converts a scanned value to a float64.
func Float64(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int64:
		return float64(t), true
	case int:
		return float64(t), true
	case int32:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(t, 64)
		return f, err == nil
	case []byte:
		f, err := strconv.ParseFloat(string(t), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// Bytes converts a scanned value to a byte slice.
func Bytes(v any) []byte {
	switch t := v.(type) {
	case []byte:
		return t
	case string:
		return []byte(t)
	default:
		return nil
	}
}
