package tools

import (
	"fmt"
	"strconv"
)

// Parameter values arrive as decoded JSON from the voice engine, so numbers
// are float64 and the engine occasionally sends numerics as strings. These
// helpers coerce without being strict about which the engine picked.

// StringParam returns the string value for key, converting numerics.
func StringParam(params map[string]any, key string) string {
	switch v := params[key].(type) {
	case string:
		return v
	case float64:
		if v == float64(int64(v)) {
			return strconv.FormatInt(int64(v), 10)
		}
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		return ""
	}
}

// IntParam returns the int value for key, or fallback when absent or
// unparseable.
func IntParam(params map[string]any, key string, fallback int) int {
	switch v := params[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case string:
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

// BoolParam returns the bool value for key, or fallback when absent.
func BoolParam(params map[string]any, key string, fallback bool) bool {
	switch v := params[key].(type) {
	case bool:
		return v
	case string:
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

// StringSliceParam returns the string slice value for key.
func StringSliceParam(params map[string]any, key string) []string {
	raw, ok := params[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		out = append(out, fmt.Sprint(item))
	}
	return out
}
