package provider

import (
	"fmt"
	"strconv"
	"strings"
)

// ExtractFloat normalizes a numeric value from various API response formats.
//
// CBIS sends coordinates as strings ("56.04"), sometimes with a decimal
// comma; REST feeds send JSON numbers. This handles both.
//
// Returns the scalar float64 value, and ok=false if not extractable.
func ExtractFloat(val interface{}) (float64, bool) {
	if val == nil {
		return 0, false
	}

	switch v := val.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case string:
		s := strings.ReplaceAll(strings.TrimSpace(v), ",", ".")
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f, true
		}
		return 0, false
	default:
		return 0, false
	}
}

// ExtractString renders a decoded JSON scalar as a string ("" for nil).
func ExtractString(val interface{}) string {
	switch v := val.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		return fmt.Sprint(v)
	}
}

// Coordinate returns a pointer to the parsed coordinate. Providers use a
// literal zero as "unknown", so zero and unparseable values yield nil.
func Coordinate(val interface{}) *float64 {
	f, ok := ExtractFloat(val)
	if !ok || f == 0 {
		return nil
	}
	return &f
}
