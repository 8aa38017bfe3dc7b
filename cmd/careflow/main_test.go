package main

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/careflow/pkg/careflow/config"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "careflow.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

// run executes the CLI in-process, like a separate invocation would.
func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetArgs(append([]string{"--env-file", ""}, args...))
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetIn(strings.NewReader(stdin))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestTurn_ResumesAcrossInvocations(t *testing.T) {
	mr := miniredis.RunT(t)
	cfgPath := writeConfig(t, `
llm:
  provider: mock
redis:
  url: redis://`+mr.Addr()+`/0
checkpoint:
  backend: redis
  ttl: 1h
log:
  level: warn
`)

	out, err := run(t, "", "-c", cfgPath, "turn", "-s", "p1", "I", "feel", "unwell")
	require.NoError(t, err)
	assert.Contains(t, out, "session: p1")
	assert.Contains(t, out, "[triage/suspended]")
	assert.Contains(t, out, "Can you tell me more about your symptoms?")
	assert.True(t, mr.Exists("session:p1"))

	out, err = run(t, "", "-c", cfgPath, "turn", "-s", "p1", "--json", "a headache")
	require.NoError(t, err)
	assert.Contains(t, out, `"resumed": true`)
	assert.Contains(t, out, "When did these symptoms start?")

	out, err = run(t, "", "-c", cfgPath, "end", "-s", "p1")
	require.NoError(t, err)
	assert.Equal(t, "session p1 ended\n", out)
	assert.False(t, mr.Exists("session:p1"))
}

func TestChat(t *testing.T) {
	cfgPath := writeConfig(t, "llm: {provider: mock}\nlog: {level: error}\n")

	out, err := run(t, "I have a cough\n\nit started monday\n/end\n", "-c", cfgPath, "chat", "-s", "c1")
	require.NoError(t, err)
	assert.Contains(t, out, "Can you tell me more about your symptoms?")
	assert.Contains(t, out, "When did these symptoms start?")
	assert.Contains(t, out, "session c1 ended")
}

func TestChat_GeneratesSession(t *testing.T) {
	cfgPath := writeConfig(t, "llm: {provider: mock}\nlog: {level: error}\n")

	out, err := run(t, "hello\n/quit\n", "-c", cfgPath, "chat")
	require.NoError(t, err)
	assert.Contains(t, out, "(session ")
}

func TestEnd_RequiresSession(t *testing.T) {
	_, err := run(t, "", "end")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--session")
}

func TestNewApp_Backends(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{name: "memory", yaml: "llm: {provider: mock}"},
		{name: "sqlite", yaml: "llm: {provider: mock}\ncheckpoint: {backend: sqlite, dsn: " + filepath.Join(dir, "cp.db") + "}"},
		{name: "unknown backend", yaml: "llm: {provider: mock}\ncheckpoint: {backend: etcd}", wantErr: "checkpoint.backend"},
		{name: "postgres without dsn", yaml: "llm: {provider: mock}\ncheckpoint: {backend: postgres}", wantErr: "checkpoint.dsn"},
		{name: "redis sessions without url", yaml: "llm: {provider: mock}\nsession: {backend: redis}", wantErr: "redis.url"},
		{name: "unknown provider", yaml: "llm: {provider: telepathy}", wantErr: "unknown llm provider"},
		{name: "bad threshold", yaml: "llm: {provider: mock}\nconfidence: {threshold: 2}", wantErr: "confidence.threshold"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := config.FromYAML([]byte(tt.yaml))
			require.NoError(t, err)
			a, err := newApp(context.Background(), cfg, io.Discard)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.NoError(t, a.Close())
		})
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	cfg := config.New(map[string]any{"log": map[string]any{"level": "debug", "format": "json"}})
	logger, err := newLogger(cfg, &buf)
	require.NoError(t, err)
	logger.Debug("hello", "k", "v")
	assert.Contains(t, buf.String(), `"msg":"hello"`)

	_, err = newLogger(config.New(map[string]any{"log": map[string]any{"format": "xml"}}), &buf)
	assert.Error(t, err)
	_, err = newLogger(config.New(map[string]any{"log": map[string]any{"level": "loud"}}), &buf)
	assert.Error(t, err)
}

func TestDataLines(t *testing.T) {
	lines := dataLines(map[string]string{"b": "2", "a": strings.Repeat("x", 100)})
	require.Len(t, lines, 2)
	assert.Equal(t, "a: "+strings.Repeat("x", 77)+"...", lines[0])
	assert.Equal(t, "b: 2", lines[1])
}
