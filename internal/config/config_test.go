package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 256, cfg.WebSocket.SendBuffer)
	assert.Equal(t, 60*time.Second, cfg.WebSocket.SweepInterval)
	assert.Equal(t, int64(4096), cfg.WebSocket.MaxMessageSize)
	assert.Equal(t, 1024, cfg.WebSocket.EventQueueSize)
	assert.Equal(t, 5*time.Minute, cfg.Auth.CacheTTL)
	assert.False(t, cfg.Audit.Enabled)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("TASKBOARD_SERVER_PORT", "9100")
	t.Setenv("TASKBOARD_WEBSOCKET_SEND_BUFFER", "64")
	t.Setenv("TASKBOARD_AUTH_JWT_SECRET", "s3cret")
	t.Setenv("TASKBOARD_LOG_LEVEL", "debug")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, 64, cfg.WebSocket.SendBuffer)
	assert.Equal(t, "s3cret", cfg.Auth.JWTSecret)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestConfigFileOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := []byte(`
server:
  port: 9200
websocket:
  sweep_interval: 15s
audit:
  enabled: true
  path: /tmp/audit.db
`)
	require.NoError(t, os.WriteFile(path, content, 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9200, cfg.Server.Port)
	assert.Equal(t, 15*time.Second, cfg.WebSocket.SweepInterval)
	assert.True(t, cfg.Audit.Enabled)
	// Untouched keys keep their defaults.
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero port", func(c *Config) { c.Server.Port = 0 }},
		{"port out of range", func(c *Config) { c.Server.Port = 70000 }},
		{"empty host", func(c *Config) { c.Server.Host = "" }},
		{"zero send buffer", func(c *Config) { c.WebSocket.SendBuffer = 0 }},
		{"zero sweep interval", func(c *Config) { c.WebSocket.SweepInterval = 0 }},
		{"zero max message size", func(c *Config) { c.WebSocket.MaxMessageSize = 0 }},
		{"zero event queue", func(c *Config) { c.WebSocket.EventQueueSize = 0 }},
		{"rate without burst", func(c *Config) { c.WebSocket.MessageRate = 5; c.WebSocket.MessageBurst = 0 }},
		{"audit without path", func(c *Config) { c.Audit.Enabled = true; c.Audit.Path = "" }},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestDefaultIsValid(t *testing.T) {
	assert.NoError(t, Default().Validate())
}
