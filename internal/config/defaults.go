package config

import (
	"time"

	"github.com/ahrav/go-evalset/internal/domain"
)

// Provider defaults.
const (
	DefaultModel       = "gpt-4o-mini"
	DefaultAPIKeyEnv   = "OPENAI_API_KEY"
	DefaultTemperature = 0.3
	DefaultMaxTokens   = 1024
	DefaultHTTPTimeout = 60 * time.Second
)

// Retry defaults.
const (
	DefaultMaxAttempts       = 3
	DefaultMaxElapsedTime    = 45 * time.Second
	DefaultInitialInterval   = 250 * time.Millisecond
	DefaultMaxInterval       = 5 * time.Second
	DefaultBackoffMultiplier = 2.0
)

// Rate limiting and cache defaults.
const (
	DefaultRequestsPerSecond = 10
	DefaultBurst             = 20
	DefaultCacheTTL          = 24 * time.Hour
	DefaultCacheKeyPrefix    = "evalset:gen:"
)

// Circuit breaker defaults.
const (
	DefaultFailureThreshold = 5
	DefaultSuccessThreshold = 2
	DefaultOpenTimeout      = 30 * time.Second
	DefaultHalfOpenProbes   = 1
)

// Temporal defaults.
const (
	DefaultTemporalHost = "localhost:7233"
	DefaultNamespace    = "default"
	DefaultTaskQueue    = "evalset"
)

// DefaultConfig returns the configuration used for any value a file omits.
func DefaultConfig() *Config {
	return &Config{
		Batch: BatchConfig{
			Concurrency: domain.DefaultConcurrency,
		},
		Generation: GenerationConfig{
			PairsPerItem: domain.DefaultPairsPerItem,
		},
		Provider: ProviderConfig{
			Model:       DefaultModel,
			APIKeyEnv:   DefaultAPIKeyEnv,
			Temperature: DefaultTemperature,
			MaxTokens:   DefaultMaxTokens,
			HTTPTimeout: DefaultHTTPTimeout,
		},
		Retry: RetryConfig{
			Enabled:         true,
			MaxAttempts:     DefaultMaxAttempts,
			MaxElapsedTime:  DefaultMaxElapsedTime,
			InitialInterval: DefaultInitialInterval,
			MaxInterval:     DefaultMaxInterval,
			Multiplier:      DefaultBackoffMultiplier,
		},
		RateLimit: RateLimitConfig{
			Enabled:           true,
			RequestsPerSecond: DefaultRequestsPerSecond,
			Burst:             DefaultBurst,
		},
		Breaker: BreakerConfig{
			Enabled:          true,
			FailureThreshold: DefaultFailureThreshold,
			SuccessThreshold: DefaultSuccessThreshold,
			OpenTimeout:      DefaultOpenTimeout,
			HalfOpenProbes:   DefaultHalfOpenProbes,
		},
		Cache: CacheConfig{
			TTL:       DefaultCacheTTL,
			KeyPrefix: DefaultCacheKeyPrefix,
		},
		Corpus: CorpusConfig{
			Source: BackendFile,
			Path:   "corpus.jsonl",
		},
		Output: OutputConfig{
			Sink: BackendFile,
			Path: "dataset.json",
		},
		Database: DatabaseConfig{
			MaxConns: 4,
		},
		Temporal: TemporalConfig{
			HostPort:  DefaultTemporalHost,
			Namespace: DefaultNamespace,
			TaskQueue: DefaultTaskQueue,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}
