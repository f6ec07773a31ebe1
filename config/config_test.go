package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/tracewatch/errors"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "nats://localhost:4222", cfg.NATS.URL)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "tracewatch.spans", cfg.Ingest.Subject)
	assert.Equal(t, 5*time.Second, cfg.Scheduler.BufferWindow)
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := writeConfigFile(t, `{
		"nats": {"url": "nats://nats.internal:4222", "reconnect_wait": "500ms"},
		"http": {"addr": ":9090"},
		"scheduler": {"buffer_window": "10s"}
	}`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "nats://nats.internal:4222", cfg.NATS.URL)
	assert.Equal(t, 500*time.Millisecond, cfg.NATS.ReconnectWait)
	assert.Equal(t, ":9090", cfg.HTTP.Addr)
	assert.Equal(t, 10*time.Second, cfg.Scheduler.BufferWindow)

	// Untouched fields keep their defaults
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 1*time.Second, cfg.Scheduler.SweepInterval)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	require.Error(t, err)
	assert.True(t, errors.IsFatal(err))
}

func TestLoadMalformedFile(t *testing.T) {
	path := writeConfigFile(t, "{not json")
	_, err := Load(path)
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("TRACEWATCH_NATS_URL", "nats://env:4222")
	t.Setenv("TRACEWATCH_HTTP_ADDR", ":7070")
	t.Setenv("TRACEWATCH_LOG_LEVEL", "debug")
	t.Setenv("TRACEWATCH_SPAN_SUBJECT", "otel.spans")
	t.Setenv("TRACEWATCH_MAX_RULES", "500")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "nats://env:4222", cfg.NATS.URL)
	assert.Equal(t, ":7070", cfg.HTTP.Addr)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "otel.spans", cfg.Ingest.Subject)
	assert.Equal(t, 500, cfg.Engine.MaxRules)
}

func TestEnvOverridesBeatFile(t *testing.T) {
	path := writeConfigFile(t, `{"nats": {"url": "nats://file:4222"}}`)
	t.Setenv("TRACEWATCH_NATS_URL", "nats://env:4222")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "nats://env:4222", cfg.NATS.URL)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty nats url", func(c *Config) { c.NATS.URL = "" }},
		{"empty http addr", func(c *Config) { c.HTTP.Addr = "" }},
		{"bad log level", func(c *Config) { c.Log.Level = "verbose" }},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }},
		{"negative max rules", func(c *Config) { c.Engine.MaxRules = -1 }},
		{"negative buffer window", func(c *Config) { c.Scheduler.BufferWindow = -time.Second }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	assert.NoError(t, Default().Validate())
}
