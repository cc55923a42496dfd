// Package config loads the broker's configuration from environment
// variables (optionally preloaded from a .env file). Loading is a cmd/
// concern only — every core package receives an already-populated Config
// value, never reads the environment itself.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

// Config holds every setting the broker consumes.
type Config struct {
	Host string `env:"COURIER_HOST" envDefault:"0.0.0.0"`
	Port int    `env:"COURIER_PORT" envDefault:"8080"`

	HeartbeatInterval     time.Duration `env:"COURIER_HEARTBEAT_INTERVAL" envDefault:"30s"`
	MaxClientsPerChannel  int           `env:"COURIER_MAX_CLIENTS_PER_CHANNEL" envDefault:"0"` // 0 = unlimited
	PreDeclaredChannels   string        `env:"COURIER_CHANNELS" envDefault:"global"`            // comma-separated
	ShutdownTimeout       time.Duration `env:"COURIER_SHUTDOWN_TIMEOUT" envDefault:"30s"`
	CleanupInterval       time.Duration `env:"COURIER_CLEANUP_INTERVAL" envDefault:"60s"`

	RequireAuth   bool   `env:"COURIER_REQUIRE_AUTH" envDefault:"false"`
	JWTSecret     string `env:"COURIER_JWT_SECRET" envDefault:""`
	JWTAlgorithm  string `env:"COURIER_JWT_ALGORITHM" envDefault:"HS256"`

	MaxConnections       int     `env:"COURIER_MAX_CONNECTIONS" envDefault:"10000"`
	ConnRateLimitPerSec  float64 `env:"COURIER_CONN_RATE_PER_SEC" envDefault:"50"`
	ConnRateLimitBurst   int     `env:"COURIER_CONN_RATE_BURST" envDefault:"100"`
	CPURejectThreshold   float64 `env:"COURIER_CPU_REJECT_THRESHOLD" envDefault:"85.0"`

	NATSURL string `env:"COURIER_NATS_URL" envDefault:""` // empty disables the ingestion bridge

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	Environment string `env:"ENVIRONMENT" envDefault:"development"`
}

// Addr returns the listen address in host:port form.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Channels parses PreDeclaredChannels into a slice, trimming whitespace
// and discarding empty entries.
func (c *Config) Channels() []string {
	var out []string
	for _, name := range strings.Split(c.PreDeclaredChannels, ",") {
		name = strings.TrimSpace(name)
		if name != "" {
			out = append(out, name)
		}
	}
	return out
}

// Load reads a .env file (if present) and then environment variables into
// a Config, validating the result.
func Load(logger *zerolog.Logger) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		if logger != nil {
			logger.Info().Msg("no .env file found, using environment variables only")
		}
	} else if logger != nil {
		logger.Info().Msg("loaded configuration from .env file")
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// Validate checks the configuration for internally inconsistent or
// out-of-range values.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("COURIER_PORT must be 1-65535, got %d", c.Port)
	}
	if c.MaxClientsPerChannel < 0 {
		return fmt.Errorf("COURIER_MAX_CLIENTS_PER_CHANNEL must be >= 0, got %d", c.MaxClientsPerChannel)
	}
	if c.RequireAuth && c.JWTSecret == "" {
		return fmt.Errorf("COURIER_JWT_SECRET is required when COURIER_REQUIRE_AUTH=true")
	}
	if c.CPURejectThreshold < 0 || c.CPURejectThreshold > 100 {
		return fmt.Errorf("COURIER_CPU_REJECT_THRESHOLD must be 0-100, got %.1f", c.CPURejectThreshold)
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true, "fatal": true}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("LOG_LEVEL must be one of debug/info/warn/error/fatal, got %q", c.LogLevel)
	}
	validLogFormats := map[string]bool{"json": true, "pretty": true}
	if !validLogFormats[c.LogFormat] {
		return fmt.Errorf("LOG_FORMAT must be one of json/pretty, got %q", c.LogFormat)
	}
	return nil
}

// LogFields logs the configuration via structured logging, matching the
// teacher's LogConfig convention.
func (c *Config) LogFields(logger zerolog.Logger) {
	logger.Info().
		Str("environment", c.Environment).
		Str("addr", c.Addr()).
		Dur("heartbeat_interval", c.HeartbeatInterval).
		Int("max_clients_per_channel", c.MaxClientsPerChannel).
		Strs("pre_declared_channels", c.Channels()).
		Bool("require_auth", c.RequireAuth).
		Int("max_connections", c.MaxConnections).
		Float64("cpu_reject_threshold", c.CPURejectThreshold).
		Bool("nats_bridge_enabled", c.NATSURL != "").
		Str("log_level", c.LogLevel).
		Str("log_format", c.LogFormat).
		Msg("configuration loaded")
}
