package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.HTTP.Host)
	assert.Equal(t, 8080, cfg.HTTP.Port)
	assert.Equal(t, 30*time.Second, cfg.HTTP.ReadTimeout)
	assert.Equal(t, 30*time.Second, cfg.HTTP.WriteTimeout)
	assert.Equal(t, "./checkmate.db", cfg.Database.Path)
	assert.Equal(t, 100, cfg.WebSocket.RateLimit)
	assert.Equal(t, time.Minute, cfg.WebSocket.RateWindow)
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("CHECKMATE_HTTP_HOST", "127.0.0.1")
	t.Setenv("CHECKMATE_HTTP_PORT", "9090")
	t.Setenv("CHECKMATE_DATABASE_PATH", "/var/lib/checkmate/data.db")
	t.Setenv("CHECKMATE_WEBSOCKET_RATE_LIMIT", "10")
	t.Setenv("CHECKMATE_WEBSOCKET_RATE_WINDOW", "5s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", cfg.HTTP.Host)
	assert.Equal(t, 9090, cfg.HTTP.Port)
	assert.Equal(t, "/var/lib/checkmate/data.db", cfg.Database.Path)
	assert.Equal(t, 10, cfg.WebSocket.RateLimit)
	assert.Equal(t, 5*time.Second, cfg.WebSocket.RateWindow)
	assert.Equal(t, "127.0.0.1:9090", cfg.Addr())
}

func TestLoad_InvalidPort(t *testing.T) {
	t.Setenv("CHECKMATE_HTTP_PORT", "70000")

	_, err := Load()
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := Config{
		HTTP: HTTPConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Database:  DatabaseConfig{Path: "./checkmate.db"},
		WebSocket: WebSocketConfig{RateLimit: 100, RateWindow: time.Minute},
	}
	require.NoError(t, valid.Validate())

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero port", func(c *Config) { c.HTTP.Port = 0 }},
		{"empty host", func(c *Config) { c.HTTP.Host = "" }},
		{"zero read timeout", func(c *Config) { c.HTTP.ReadTimeout = 0 }},
		{"zero write timeout", func(c *Config) { c.HTTP.WriteTimeout = 0 }},
		{"empty database path", func(c *Config) { c.Database.Path = "" }},
		{"zero rate limit", func(c *Config) { c.WebSocket.RateLimit = 0 }},
		{"zero rate window", func(c *Config) { c.WebSocket.RateWindow = 0 }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := valid
			tc.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
