package models

import (
	"strconv"
	"strings"
)

// Input is the caller-supplied payload of a task. After a round trip through
// JSON, numbers come back as float64 and lists as []any; the accessors below
// accept either form.
type Input map[string]any

// String returns the value at key as a string, or "" if absent.
func (in Input) String(key string) string {
	switch v := in[key].(type) {
	case string:
		return v
	case nil:
		return ""
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case bool:
		return strconv.FormatBool(v)
	default:
		return ""
	}
}

// Int returns the value at key as an int, or def if absent or not numeric.
func (in Input) Int(key string, def int) int {
	switch v := in[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case string:
		if i, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return i
		}
	}
	return def
}

// Bool returns the value at key as a bool.
func (in Input) Bool(key string) bool {
	switch v := in[key].(type) {
	case bool:
		return v
	case string:
		return ParseBool(v)
	}
	return false
}

// Strings returns the value at key as a string slice. Non-string elements are skipped.
func (in Input) Strings(key string) []string {
	switch v := in[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// ParseBool accepts the form values browsers and scripts send for a checked box.
func ParseBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "1", "yes", "on":
		return true
	}
	return false
}
