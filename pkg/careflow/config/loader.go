package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// FromFile loads configuration from a file, auto-detecting format by extension.
// Supported extensions: .yaml, .yml, .json
func FromFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		return FromYAML(data)
	case ".json":
		return FromJSON(data)
	default:
		return Config{}, fmt.Errorf("unsupported config file extension: %s", ext)
	}
}

// FromYAML parses YAML data into a Config.
func FromYAML(data []byte) (Config, error) {
	var m map[string]any
	if err := yaml.Unmarshal(data, &m); err != nil {
		return Config{}, fmt.Errorf("parse yaml: %w", err)
	}
	return New(m), nil
}

// FromJSON parses JSON data into a Config.
func FromJSON(data []byte) (Config, error) {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return Config{}, fmt.Errorf("parse json: %w", err)
	}
	return New(m), nil
}

// WithEnv overlays environment variables that start with prefix onto c and
// returns the result. A double underscore separates nesting levels and
// names are lowercased, so CAREFLOW_SESSION__MAX_TURNS=20 sets
// session.max_turns. Values are decoded as YAML scalars ("20" is an int,
// "true" a bool).
func (c Config) WithEnv(prefix string) Config {
	return c.withEnviron(prefix, os.Environ())
}

func (c Config) withEnviron(prefix string, environ []string) Config {
	out := deepCopy(c.data)
	for _, kv := range environ {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(name, prefix) {
			continue
		}
		path := strings.ToLower(strings.TrimPrefix(name, prefix))
		if path == "" {
			continue
		}
		setPath(out, strings.Split(path, "__"), parseScalar(value))
	}
	return New(out)
}

func parseScalar(s string) any {
	var v any
	if err := yaml.Unmarshal([]byte(s), &v); err != nil || v == nil {
		return s
	}
	switch v.(type) {
	case string, int, float64, bool:
		return v
	}
	return s
}

func setPath(m map[string]any, path []string, value any) {
	for _, p := range path[:len(path)-1] {
		next, ok := asMap(m[p])
		if !ok {
			next = make(map[string]any)
		}
		m[p] = next
		m = next
	}
	m[path[len(path)-1]] = value
}

func deepCopy(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if sub, ok := asMap(v); ok {
			out[k] = deepCopy(sub)
			continue
		}
		out[k] = v
	}
	return out
}
