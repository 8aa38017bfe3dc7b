package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/randalmurphal/careflow/pkg/careflow/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
session:
  max_turns: 12
  ttl: 30m
checkpoint:
  backend: sqlite
  dsn: ./careflow.db
classifier:
  fallback_intent: general
  fallback_risk: medium
confidence:
  threshold: 0.7
router:
  default_workflow: triage
  routes:
    dosha: questionnaire
    doctor: scheduling
  rules:
    - when: "intent == 'doctor' and risk == 'high'"
      workflow: triage
emergency_keywords: [chest pain, stroke]
`

func loadSample(t *testing.T) config.Config {
	t.Helper()
	cfg, err := config.FromYAML([]byte(sampleYAML))
	require.NoError(t, err)
	return cfg
}

func TestDottedAccessors(t *testing.T) {
	cfg := loadSample(t)

	assert.Equal(t, 12, cfg.Int("session.max_turns", 10))
	assert.Equal(t, 30*time.Minute, cfg.Duration("session.ttl", time.Hour))
	assert.Equal(t, "sqlite", cfg.String("checkpoint.backend", "memory"))
	assert.Equal(t, 0.7, cfg.Float("confidence.threshold", 0.5))
	assert.Equal(t, []string{"chest pain", "stroke"}, cfg.StringSlice("emergency_keywords", nil))
	assert.Equal(t, map[string]string{"dosha": "questionnaire", "doctor": "scheduling"},
		cfg.StringMap("router.routes", nil))

	assert.True(t, cfg.Has("router.default_workflow"))
	assert.False(t, cfg.Has("router.missing"))
	assert.False(t, cfg.Has("session.max_turns.deeper"))
}

func TestDefaults(t *testing.T) {
	cfg := config.New(nil)

	tests := []struct {
		name string
		got  any
		want any
	}{
		{"string", cfg.String("a.b", "x"), "x"},
		{"int", cfg.Int("a", 3), 3},
		{"float", cfg.Float("a", 1.5), 1.5},
		{"bool", cfg.Bool("a", true), true},
		{"duration", cfg.Duration("a", time.Second), time.Second},
		{"slice", cfg.StringSlice("a", []string{"z"}), []string{"z"}},
		{"map", cfg.StringMap("a", nil), map[string]string(nil)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.got)
		})
	}
}

func TestTypeCoercion(t *testing.T) {
	cfg := config.New(map[string]any{
		"int_float":   3.0,
		"frac":        2.5,
		"secs":        90,
		"secs_float":  1.5,
		"bad_dur":     "soon",
		"mixed_slice": []any{"a", 1},
		"not_bool":    "yes",
		"dotted.key":  "literal",
	})

	assert.Equal(t, 3, cfg.Int("int_float", 0))
	assert.Equal(t, 0, cfg.Int("frac", 0))
	assert.Equal(t, 90*time.Second, cfg.Duration("secs", 0))
	assert.Equal(t, 1500*time.Millisecond, cfg.Duration("secs_float", 0))
	assert.Equal(t, time.Minute, cfg.Duration("bad_dur", time.Minute))
	assert.Nil(t, cfg.StringSlice("mixed_slice", nil))
	assert.False(t, cfg.Bool("not_bool", false))
	assert.Equal(t, "literal", cfg.String("dotted.key", ""))
}

func TestSubAndSlice(t *testing.T) {
	cfg := loadSample(t)

	classifier := cfg.Sub("classifier")
	assert.Equal(t, "general", classifier.String("fallback_intent", ""))
	assert.Empty(t, cfg.Sub("nothing").Raw())

	rules := cfg.Slice("router.rules")
	require.Len(t, rules, 1)
	assert.Equal(t, "triage", rules[0].String("workflow", ""))
	assert.Nil(t, cfg.Slice("session"))
}

func TestWithEnv(t *testing.T) {
	cfg := loadSample(t)
	t.Setenv("CAREFLOW_SESSION__MAX_TURNS", "20")
	t.Setenv("CAREFLOW_CHECKPOINT__BACKEND", "redis")
	t.Setenv("CAREFLOW_LOG__LEVEL", "debug")
	t.Setenv("CAREFLOW_FEATURE", "true")
	t.Setenv("OTHER_SESSION__MAX_TURNS", "99")

	overlaid := cfg.WithEnv("CAREFLOW_")

	assert.Equal(t, 20, overlaid.Int("session.max_turns", 0))
	assert.Equal(t, 30*time.Minute, overlaid.Duration("session.ttl", 0), "siblings survive")
	assert.Equal(t, "redis", overlaid.String("checkpoint.backend", ""))
	assert.Equal(t, "debug", overlaid.String("log.level", ""))
	assert.True(t, overlaid.Bool("feature", false))

	// The receiver is untouched.
	assert.Equal(t, 12, cfg.Int("session.max_turns", 0))
}

func TestFromFile(t *testing.T) {
	dir := t.TempDir()

	yamlPath := filepath.Join(dir, "careflow.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte(sampleYAML), 0o600))
	cfg, err := config.FromFile(yamlPath)
	require.NoError(t, err)
	assert.Equal(t, "triage", cfg.String("router.default_workflow", ""))

	jsonPath := filepath.Join(dir, "careflow.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte(`{"session":{"max_turns":4}}`), 0o600))
	cfg, err = config.FromFile(jsonPath)
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.Int("session.max_turns", 0))

	_, err = config.FromFile(filepath.Join(dir, "careflow.toml"))
	assert.Error(t, err)

	badPath := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(badPath, []byte("a: [unclosed"), 0o600))
	_, err = config.FromFile(badPath)
	assert.ErrorContains(t, err, "parse yaml")
}
