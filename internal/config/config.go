// Package config loads evalset configuration from YAML with environment
// overrides. Every field has a default, so an empty file (or no file) yields a
// runnable configuration apart from the provider credentials.
package config

import (
	"time"

	"github.com/ahrav/go-evalset/internal/domain"
)

// Config is the complete evalset configuration.
type Config struct {
	Batch      BatchConfig      `yaml:"batch"`
	Generation GenerationConfig `yaml:"generation"`
	Provider   ProviderConfig   `yaml:"provider"`
	Retry      RetryConfig      `yaml:"retry"`
	RateLimit  RateLimitConfig  `yaml:"rate_limit"`
	Breaker    BreakerConfig    `yaml:"circuit_breaker"`
	Cache      CacheConfig      `yaml:"cache"`
	Corpus     CorpusConfig     `yaml:"corpus"`
	Output     OutputConfig     `yaml:"output"`
	Database   DatabaseConfig   `yaml:"database"`
	Temporal   TemporalConfig   `yaml:"temporal"`
	Log        LogConfig        `yaml:"log"`
}

// BatchConfig controls the orchestrator.
type BatchConfig struct {
	// Concurrency is K, the maximum number of generator calls in flight.
	Concurrency int `yaml:"concurrency" validate:"min=1"`

	// RequireItems makes an empty corpus a configuration error.
	RequireItems bool `yaml:"require_items"`

	// TaskTimeout bounds each generator call. Zero means no per-task bound.
	TaskTimeout time.Duration `yaml:"task_timeout" validate:"min=0"`
}

// GenerationConfig controls what is asked of the generator.
type GenerationConfig struct {
	PairsPerItem     int      `yaml:"pairs_per_item" validate:"min=1,max=20"`
	ExampleQuestions []string `yaml:"example_questions" validate:"dive,required"`

	// PromptFile optionally replaces the built-in prompt template.
	PromptFile string `yaml:"prompt_file"`
}

// Params returns the generation params for a run.
func (g GenerationConfig) Params() domain.GenerationParams {
	return domain.GenerationParams{
		PairsPerItem:     g.PairsPerItem,
		ExampleQuestions: g.ExampleQuestions,
	}
}

// ProviderConfig configures the OpenAI-compatible provider.
type ProviderConfig struct {
	Endpoint string `yaml:"endpoint" validate:"omitempty,url"`
	Model    string `yaml:"model" validate:"required"`

	// APIKey is never read from the file; it comes from EVALSET_API_KEY or
	// the variable named by APIKeyEnv.
	APIKey    string `yaml:"-"`
	APIKeyEnv string `yaml:"api_key_env"`

	Temperature float64           `yaml:"temperature" validate:"min=0,max=2"`
	MaxTokens   int               `yaml:"max_tokens" validate:"min=0"`
	HTTPTimeout time.Duration     `yaml:"http_timeout" validate:"min=0"`
	Headers     map[string]string `yaml:"headers"`
}

// RetryConfig configures the retry middleware.
type RetryConfig struct {
	Enabled         bool          `yaml:"enabled"`
	MaxAttempts     int           `yaml:"max_attempts" validate:"min=1"`
	MaxElapsedTime  time.Duration `yaml:"max_elapsed_time" validate:"min=0"`
	InitialInterval time.Duration `yaml:"initial_interval" validate:"gt=0"`
	MaxInterval     time.Duration `yaml:"max_interval" validate:"gtefield=InitialInterval"`
	Multiplier      float64       `yaml:"multiplier" validate:"min=1"`
}

// RateLimitConfig configures request pacing.
type RateLimitConfig struct {
	Enabled                 bool    `yaml:"enabled"`
	RequestsPerSecond       float64 `yaml:"requests_per_second" validate:"gt=0"`
	Burst                   int     `yaml:"burst" validate:"min=1"`
	GlobalRequestsPerSecond int     `yaml:"global_requests_per_second" validate:"min=0"`
}

// BreakerConfig configures the provider circuit breaker.
type BreakerConfig struct {
	Enabled          bool          `yaml:"enabled"`
	FailureThreshold int           `yaml:"failure_threshold" validate:"min=1"`
	SuccessThreshold int           `yaml:"success_threshold" validate:"min=1"`
	OpenTimeout      time.Duration `yaml:"open_timeout" validate:"gt=0"`
	HalfOpenProbes   int           `yaml:"half_open_probes" validate:"min=1"`
	Adaptive         bool          `yaml:"adaptive"`
}

// CacheConfig configures the Redis generation cache.
type CacheConfig struct {
	Enabled   bool          `yaml:"enabled"`
	RedisAddr string        `yaml:"redis_addr" validate:"required_if=Enabled true"`
	RedisDB   int           `yaml:"redis_db" validate:"min=0"`
	TTL       time.Duration `yaml:"ttl" validate:"min=0"`
	KeyPrefix string        `yaml:"key_prefix"`
}

// Corpus and output backends.
const (
	BackendFile     = string(domain.BackendFile)
	BackendPostgres = string(domain.BackendPostgres)
)

// CorpusConfig selects where corpus items are loaded from.
type CorpusConfig struct {
	Source string `yaml:"source" validate:"oneof=file postgres"`
	Path   string `yaml:"path" validate:"required_if=Source file"`
	Table  string `yaml:"table" validate:"required_if=Source postgres"`

	// Limit caps the number of items loaded. Zero loads all.
	Limit int `yaml:"limit" validate:"min=0"`
}

// Ref returns the corpus reference carried by dataset requests. An unset
// source means the file backend.
func (c CorpusConfig) Ref() domain.CorpusRef {
	src := domain.Backend(c.Source)
	if src == "" {
		src = domain.BackendFile
	}
	return domain.CorpusRef{Source: src, Path: c.Path, Table: c.Table, Limit: c.Limit}
}

// OutputConfig selects where the dataset is written.
type OutputConfig struct {
	Sink string `yaml:"sink" validate:"oneof=file postgres"`

	// Path is the records file. Workers write one file per run: a
	// "{run_id}" placeholder is replaced by the run ID, otherwise the ID is
	// inserted before the extension.
	Path         string `yaml:"path" validate:"required_if=Sink file"`
	FailuresPath string `yaml:"failures_path"`
	Table        string `yaml:"table" validate:"required_if=Sink postgres"`
}

// DatabaseConfig configures the Postgres pool.
type DatabaseConfig struct {
	URL      string `yaml:"url"`
	MaxConns int32  `yaml:"max_conns" validate:"min=0"`
}

// TemporalConfig configures the Temporal client and worker.
type TemporalConfig struct {
	HostPort  string `yaml:"host_port" validate:"required"`
	Namespace string `yaml:"namespace" validate:"required"`
	TaskQueue string `yaml:"task_queue" validate:"required"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=json text"`
}
