package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ahrav/go-evalset/internal/domain"
)

// Environment overrides.
const (
	EnvAPIKey       = "EVALSET_API_KEY"
	EnvDatabaseURL  = "EVALSET_DATABASE_URL"
	EnvRedisAddr    = "EVALSET_REDIS_ADDR"
	EnvTemporalHost = "EVALSET_TEMPORAL_HOST"
)

// Load reads the YAML file at path over DefaultConfig, applies environment
// overrides, and validates the result. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("%w: read %s: %w", domain.ErrInvalidConfig, path, err)
		}
		if err := decode(raw, cfg); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv(os.Getenv)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes raw YAML over DefaultConfig and validates it without reading
// the environment.
func Parse(raw []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := decode(raw, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(raw []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: %w", domain.ErrInvalidConfig, err)
	}
	return nil
}

// applyEnv overlays environment values. getenv is injected for tests.
func (c *Config) applyEnv(getenv func(string) string) {
	if c.Provider.APIKeyEnv != "" {
		if v := getenv(c.Provider.APIKeyEnv); v != "" {
			c.Provider.APIKey = v
		}
	}
	if v := getenv(EnvAPIKey); v != "" {
		c.Provider.APIKey = v
	}
	if v := getenv(EnvDatabaseURL); v != "" {
		c.Database.URL = v
	}
	if v := getenv(EnvRedisAddr); v != "" {
		c.Cache.RedisAddr = v
	}
	if v := getenv(EnvTemporalHost); v != "" {
		c.Temporal.HostPort = v
	}
}

// Validate checks field bounds and cross-section requirements. Errors wrap
// domain.ErrInvalidConfig.
func (c *Config) Validate() error {
	if err := domain.Validator().Struct(c); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrInvalidConfig, err)
	}
	usesPostgres := c.Corpus.Source == BackendPostgres || c.Output.Sink == BackendPostgres
	if usesPostgres && c.Database.URL == "" {
		return fmt.Errorf("%w: database.url is required for the postgres backend", domain.ErrInvalidConfig)
	}
	return nil
}

// NewLogger builds the process logger described by the log section.
func (l LogConfig) NewLogger(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: l.level()}
	if l.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func (l LogConfig) level() slog.Level {
	switch strings.ToLower(l.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
