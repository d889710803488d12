// Package mcpserver exposes the indexing, search, memory, session, agent,
// and VCS surfaces as MCP tools over stdio. Domain tools implement the
// internal tools interface and are bridged onto the MCP server generically,
// so rate limiting and span emission apply uniformly.
package mcpserver

import (
	"encoding/json"
)

// Tool arguments arrive as decoded JSON, so numbers are float64 and lists
// are []any. These helpers normalise them.

func argString(args map[string]any, key string) string {
	v, _ := args[key].(string)
	return v
}

func argInt(args map[string]any, key string, def int) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return def
}

func argInt64(args map[string]any, key string, def int64) int64 {
	switch v := args[key].(type) {
	case float64:
		return int64(v)
	case int64:
		return v
	case int:
		return int64(v)
	}
	return def
}

func argBool(args map[string]any, key string) bool {
	v, _ := args[key].(bool)
	return v
}

func argFloat(args map[string]any, key string) (float32, bool) {
	if v, ok := args[key].(float64); ok {
		return float32(v), true
	}
	return 0, false
}

func argStrings(args map[string]any, key string) []string {
	raw, ok := args[key].([]any)
	if !ok {
		// Tolerate a JSON-encoded list in a string argument.
		if s := argString(args, key); s != "" {
			var out []string
			if err := json.Unmarshal([]byte(s), &out); err == nil {
				return out
			}
		}
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// schema builders shared by the tool definitions.

func prop(typ, description string) map[string]any {
	return map[string]any{"type": typ, "description": description}
}

func arrayProp(description string) map[string]any {
	return map[string]any{
		"type":        "array",
		"items":       map[string]any{"type": "string"},
		"description": description,
	}
}

func objectSchema(required []string, props map[string]any) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}
