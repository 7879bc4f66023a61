// Package sanitize coerces form input into values safe to store.
package sanitize

import (
	"math"
	"strconv"
	"strings"
)

// NumericOrZero maps any input to a finite float64. Empty, missing, non-numeric
// and NaN/Inf values become 0 so a bad field can never poison a stored row.
func NumericOrZero(value any) float64 {
	var f float64
	switch v := value.(type) {
	case nil:
		return 0
	case float64:
		f = v
	case float32:
		f = float64(v)
	case int:
		f = float64(v)
	case int32:
		f = float64(v)
	case int64:
		f = float64(v)
	case string:
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			return 0
		}
		parsed, err := strconv.ParseFloat(trimmed, 64)
		if err != nil {
			return 0
		}
		f = parsed
	case *string:
		if v == nil {
			return 0
		}
		return NumericOrZero(*v)
	case *float64:
		if v == nil {
			return 0
		}
		f = *v
	default:
		return 0
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

// IsNumeric reports whether s parses as a finite number.
func IsNumeric(s string) bool {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return false
	}
	f, err := strconv.ParseFloat(trimmed, 64)
	return err == nil && !math.IsNaN(f) && !math.IsInf(f, 0)
}

// NullableString trims s and returns nil when nothing is left.
func NullableString(s string) *string {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

// TrimmedOr trims s and falls back when it is blank.
func TrimmedOr(s, fallback string) string {
	if trimmed := strings.TrimSpace(s); trimmed != "" {
		return trimmed
	}
	return fallback
}

// Deref returns the pointed-to string or "".
func Deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
