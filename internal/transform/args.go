package transform

import (
	"fmt"
	"strconv"
)

// Args is the per-chain-element configuration map. Schemas are owned by
// the individual transforms; Args only provides tolerant typed access.
type Args map[string]any

// Str returns a string argument or the fallback when absent.
func (a Args) Str(key, fallback string) string {
	v, ok := a[key]
	if !ok || v == nil {
		return fallback
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// Int returns an integer argument or the fallback when absent or unparseable.
func (a Args) Int(key string, fallback int) int {
	v, ok := a[key]
	if !ok || v == nil {
		return fallback
	}
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	case string:
		if parsed, err := strconv.Atoi(n); err == nil {
			return parsed
		}
	}
	return fallback
}

// Float returns a float argument or the fallback.
func (a Args) Float(key string, fallback float64) float64 {
	v, ok := a[key]
	if !ok || v == nil {
		return fallback
	}
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case string:
		if parsed, err := strconv.ParseFloat(n, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

// Bool returns a boolean argument or the fallback.
func (a Args) Bool(key string, fallback bool) bool {
	v, ok := a[key]
	if !ok || v == nil {
		return fallback
	}
	switch b := v.(type) {
	case bool:
		return b
	case string:
		if parsed, err := strconv.ParseBool(b); err == nil {
			return parsed
		}
	}
	return fallback
}

// Map returns a nested map argument, or nil.
func (a Args) Map(key string) map[string]any {
	v, ok := a[key]
	if !ok {
		return nil
	}
	if m, ok := v.(map[string]any); ok {
		return m
	}
	return nil
}

// Slice returns a list argument, or nil.
func (a Args) Slice(key string) []any {
	v, ok := a[key]
	if !ok {
		return nil
	}
	if s, ok := v.([]any); ok {
		return s
	}
	return nil
}
