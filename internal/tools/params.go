package tools

import (
	"encoding/json"
	"fmt"
)

// Argument names shared by the monitor tools.
const (
	ParamContext   = "context"
	ParamContexts  = "contexts"
	ParamKind      = "kind"
	ParamNamespace = "namespace"
	ParamSelector  = "labelSelector"
	ParamLimit     = "limit"
	ParamActive    = "active"
	ParamSummary   = "summary"
)

// StringSlice returns the string elements of an array argument. Non-string
// elements are skipped and a missing argument yields nil.
func StringSlice(args map[string]interface{}, key string) []string {
	raw, ok := args[key].([]interface{})
	if !ok {
		if typed, ok := args[key].([]string); ok {
			return typed
		}
		return nil
	}

	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Int returns an integer argument. JSON numbers arrive as float64.
func Int(args map[string]interface{}, key string) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case int64:
		return int(v)
	default:
		return 0
	}
}

// Bool returns a boolean argument, false when absent.
func Bool(args map[string]interface{}, key string) bool {
	v, _ := args[key].(bool)
	return v
}

// JSONResult marshals v into an indented text result.
func JSONResult(v any) (string, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal result: %w", err)
	}
	return string(data), nil
}
