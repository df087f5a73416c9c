package config

import (
	"fmt"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all runtime settings, loaded from the environment with sane
// defaults for local development.
type Config struct {
	HTTP      HTTPConfig      `env-prefix:"CHECKMATE_HTTP_"`
	Database  DatabaseConfig  `env-prefix:"CHECKMATE_DATABASE_"`
	WebSocket WebSocketConfig `env-prefix:"CHECKMATE_WEBSOCKET_"`
}

type HTTPConfig struct {
	Host         string        `env:"HOST" env-default:"0.0.0.0"`
	Port         int           `env:"PORT" env-default:"8080"`
	ReadTimeout  time.Duration `env:"READ_TIMEOUT" env-default:"30s"`
	WriteTimeout time.Duration `env:"WRITE_TIMEOUT" env-default:"30s"`
}

type DatabaseConfig struct {
	Path string `env:"PATH" env-default:"./checkmate.db"`
}

type WebSocketConfig struct {
	RateLimit  int           `env:"RATE_LIMIT" env-default:"100"`
	RateWindow time.Duration `env:"RATE_WINDOW" env-default:"1m"`
}

// Load reads configuration from the environment and validates it.
func Load() (*Config, error) {
	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("read environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations that would fail at runtime.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if c.HTTP.Host == "" {
		return fmt.Errorf("http host cannot be empty")
	}
	if c.HTTP.ReadTimeout <= 0 {
		return fmt.Errorf("http read timeout must be positive")
	}
	if c.HTTP.WriteTimeout <= 0 {
		return fmt.Errorf("http write timeout must be positive")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database path cannot be empty")
	}
	if c.WebSocket.RateLimit <= 0 {
		return fmt.Errorf("websocket rate limit must be positive")
	}
	if c.WebSocket.RateWindow <= 0 {
		return fmt.Errorf("websocket rate window must be positive")
	}
	return nil
}

// Addr returns the host:port the HTTP server binds to.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.HTTP.Host, c.HTTP.Port)
}
