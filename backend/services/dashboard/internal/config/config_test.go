package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "dashboard.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{"REDIS_ADDR", "AUDIT_POSTGRES_DSN", "OPERATOR_USERNAME", "OPERATOR_PASSWORD", "PARKING_STREAM_URL"} {
		t.Setenv(key, "")
	}
}

func TestLoadDefaultsAndDerivedStreamURL(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, `
backend:
  baseUrl: http://parking.local:8000/
`)
	cfg, err := LoadFrom(path)
	require.NoError(t, err)

	assert.Equal(t, "http://parking.local:8000", cfg.Backend.BaseURL)
	assert.Equal(t, "ws://parking.local:8000/ws/stats", cfg.Backend.StreamURL)
	assert.Equal(t, ":8090", cfg.HTTPAddress())
	assert.Equal(t, "PL", cfg.DefaultCountry)
	assert.Equal(t, time.Second, cfg.Stream.InitialBackoff)
	assert.Equal(t, 30*time.Second, cfg.Stream.MaxBackoff)
	assert.Equal(t, 200, cfg.Journal.Capacity)
	assert.False(t, cfg.RedisEnabled())
	assert.False(t, cfg.AuditEnabled())
	assert.False(t, cfg.AutoLogin())
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeFile(t, `
http:
  port: "9000"
backend:
  baseUrl: https://parking.example.com/api
stream:
  maxBackoff: 1m
`)
	clearEnv(t)
	t.Setenv("DASHBOARD_HTTP_PORT", ":7000")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("STREAM_INITIAL_BACKOFF", "250ms")
	t.Setenv("DEFAULT_COUNTRY", " de ")

	cfg, err := LoadFrom(path)
	require.NoError(t, err)

	assert.Equal(t, ":7000", cfg.HTTPAddress())
	assert.Equal(t, "wss://parking.example.com/api/ws/stats", cfg.Backend.StreamURL)
	assert.Equal(t, 250*time.Millisecond, cfg.Stream.InitialBackoff)
	assert.Equal(t, time.Minute, cfg.Stream.MaxBackoff)
	assert.True(t, cfg.RedisEnabled())
	assert.Equal(t, "DE", cfg.DefaultCountry)
}

func TestExplicitStreamURLIsKept(t *testing.T) {
	cfg := Default()
	cfg.Backend.BaseURL = "http://parking.local"
	cfg.Backend.StreamURL = "ws://stream.local/feed"
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "ws://stream.local/feed", cfg.Backend.StreamURL)
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]func(*Config){
		"missing base url": func(c *Config) { c.Backend.BaseURL = "" },
		"bad scheme":       func(c *Config) { c.Backend.BaseURL = "ftp://parking.local" },
		"backoff order": func(c *Config) {
			c.Stream.InitialBackoff = time.Minute
			c.Stream.MaxBackoff = time.Second
		},
		"half operator": func(c *Config) { c.Operator.Username = "op" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			cfg.Backend.BaseURL = "http://parking.local"
			mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
