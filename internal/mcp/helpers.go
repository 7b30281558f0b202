package mcp

import "fmt"

func getStringArg(args map[string]interface{}, key string) string {
	val, ok := args[key]
	if !ok {
		return ""
	}
	switch v := val.(type) {
	case string:
		return v
	default:
		return fmt.Sprintf("%v", v)
	}
}

func getIntArg(args map[string]interface{}, key string, fallback int) int {
	val, ok := args[key]
	if !ok {
		return fallback
	}
	switch v := val.(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return fallback
	}
}

func getFloatArg(args map[string]interface{}, key string, fallback float64) float64 {
	val, ok := args[key]
	if !ok {
		return fallback
	}
	switch v := val.(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	default:
		return fallback
	}
}

// hasArg reports whether the key was supplied at all, so zero values can be
// distinguished from omissions.
func hasArg(args map[string]interface{}, key string) bool {
	_, ok := args[key]
	return ok
}
