package config

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// applyEnv overlays MCP__ environment variables onto cfg. Keys map onto the
// YAML tree with __ as the section separator: MCP__SERVER__AUTH_ENABLED=true
// sets server.auth_enabled. Values are parsed with YAML scalar rules, so
// booleans, numbers and durations work without quoting.
func applyEnv(cfg *Config, environ []string) error {
	tree := map[string]any{}

	for _, kv := range environ {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(key, EnvPrefix) {
			continue
		}
		path := strings.Split(strings.TrimPrefix(key, EnvPrefix), "__")
		for i, p := range path {
			path[i] = strings.ToLower(p)
		}
		if err := setPath(tree, path, value); err != nil {
			return fmt.Errorf("config: env %s: %w", key, err)
		}
	}

	if len(tree) == 0 {
		return nil
	}

	// Round-trip through YAML so scalar coercion and struct tags apply.
	data, err := yaml.Marshal(tree)
	if err != nil {
		return fmt.Errorf("config: merge env overlay: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("config: apply env overlay: %w", err)
	}
	return nil
}

func setPath(tree map[string]any, path []string, value string) error {
	if len(path) == 0 || path[0] == "" {
		return fmt.Errorf("empty key segment")
	}
	if len(path) == 1 {
		var parsed any
		if err := yaml.Unmarshal([]byte(value), &parsed); err != nil {
			parsed = value
		}
		tree[path[0]] = parsed
		return nil
	}

	child, ok := tree[path[0]].(map[string]any)
	if !ok {
		if _, exists := tree[path[0]]; exists {
			return fmt.Errorf("key %q is both a value and a section", path[0])
		}
		child = map[string]any{}
		tree[path[0]] = child
	}
	return setPath(child, path[1:], value)
}
