package stores

import "time"

// Document field coercion shared by every consumer of Storage.  Backends that
// round-trip documents through JSON deliver numbers as float64 and timestamps
// as RFC3339 strings; the in-memory backend keeps native Go values.  These
// helpers accept both so callers never depend on the backend in use.

// AsString reads a string field.
func AsString(v any) string {
	s, _ := v.(string)
	return s
}

// AsInt reads an integer field.
func AsInt(v any) int {
	switch t := v.(type) {
	case int:
		return t
	case int64:
		return int(t)
	case float64:
		return int(t)
	}
	return 0
}

// AsFloat reads a float field.
func AsFloat(v any) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case int:
		return float64(t)
	}
	return 0
}

// AsTime reads a timestamp field.
func AsTime(v any) time.Time {
	switch t := v.(type) {
	case time.Time:
		return t
	case string:
		if parsed, err := time.Parse(time.RFC3339Nano, t); err == nil {
			return parsed
		}
	}
	return time.Time{}
}

// AsBool reads a boolean field.
func AsBool(v any) bool {
	b, _ := v.(bool)
	return b
}
