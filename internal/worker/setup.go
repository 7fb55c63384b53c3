// Package worker builds the runtime dependencies described by a Config and
// registers the dataset workflow and activities with a Temporal worker.
package worker

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/ahrav/go-evalset/internal/config"
	"github.com/ahrav/go-evalset/internal/corpus"
	"github.com/ahrav/go-evalset/internal/dataset"
	"github.com/ahrav/go-evalset/internal/domain"
	"github.com/ahrav/go-evalset/internal/llm"
	"github.com/ahrav/go-evalset/internal/llm/cache"
	"github.com/ahrav/go-evalset/internal/llm/circuitbreaker"
	"github.com/ahrav/go-evalset/internal/llm/ratelimit"
	"github.com/ahrav/go-evalset/internal/llm/retry"
	"github.com/ahrav/go-evalset/internal/prompt"
	"github.com/ahrav/go-evalset/internal/store/postgres"
)

// Pipeline is a provider generator wrapped in the configured middleware.
type Pipeline struct {
	Generator llm.Generator
	Cache     *cache.Middleware
	Retry     *retry.Middleware
	Breaker   *circuitbreaker.Middleware
	RateLimit *ratelimit.Middleware
}

// Close releases the pipeline's Redis connection, if any.
func (p *Pipeline) Close() error {
	if p.Cache == nil {
		return nil
	}
	return p.Cache.Close()
}

// NewGenerator builds the generator chain for cfg. From the outside in:
// cache, retry, circuit breaker, rate limit, logging, provider. A cache hit
// therefore costs no rate-limit token, every retry attempt is paced, and a
// rejection from an open breaker is retried after its cool-down.
func NewGenerator(ctx context.Context, cfg *config.Config) (*Pipeline, error) {
	tmpl := prompt.Default()
	if cfg.Generation.PromptFile != "" {
		var err error
		if tmpl, err = prompt.Load(cfg.Generation.PromptFile); err != nil {
			return nil, err
		}
	}

	provider, err := llm.NewOpenAIGenerator(llm.OpenAIConfig{
		Endpoint:    cfg.Provider.Endpoint,
		APIKey:      cfg.Provider.APIKey,
		Model:       cfg.Provider.Model,
		Temperature: cfg.Provider.Temperature,
		MaxTokens:   cfg.Provider.MaxTokens,
		HTTPTimeout: cfg.Provider.HTTPTimeout,
		Headers:     cfg.Provider.Headers,
	}, tmpl, nil)
	if err != nil {
		return nil, err
	}

	p := &Pipeline{}
	var mws []llm.Middleware

	if cfg.Cache.Enabled {
		p.Cache = cache.Connect(ctx, cache.Config{
			Addr:      cfg.Cache.RedisAddr,
			DB:        cfg.Cache.RedisDB,
			TTL:       cfg.Cache.TTL,
			KeyPrefix: cfg.Cache.KeyPrefix,
			Namespace: provider.Model() + ":" + provider.PromptHash(),
		})
		mws = append(mws, p.Cache.Wrap)
	}

	if cfg.Retry.Enabled {
		p.Retry, err = retry.New(retry.Config{
			MaxAttempts:     cfg.Retry.MaxAttempts,
			MaxElapsedTime:  cfg.Retry.MaxElapsedTime,
			InitialInterval: cfg.Retry.InitialInterval,
			MaxInterval:     cfg.Retry.MaxInterval,
			Multiplier:      cfg.Retry.Multiplier,
			UseJitter:       true,
		})
		if err != nil {
			_ = p.Close()
			return nil, err
		}
		mws = append(mws, p.Retry.Wrap)
	}

	if cfg.Breaker.Enabled {
		p.Breaker, err = circuitbreaker.New(circuitbreaker.Config{
			FailureThreshold: cfg.Breaker.FailureThreshold,
			SuccessThreshold: cfg.Breaker.SuccessThreshold,
			OpenTimeout:      cfg.Breaker.OpenTimeout,
			HalfOpenProbes:   cfg.Breaker.HalfOpenProbes,
			Adaptive:         cfg.Breaker.Adaptive,
		})
		if err != nil {
			_ = p.Close()
			return nil, err
		}
		mws = append(mws, p.Breaker.Wrap)
	}

	if cfg.RateLimit.Enabled {
		p.RateLimit, err = ratelimit.New(ratelimit.Config{
			RequestsPerSecond:       cfg.RateLimit.RequestsPerSecond,
			Burst:                   cfg.RateLimit.Burst,
			GlobalRequestsPerSecond: cfg.RateLimit.GlobalRequestsPerSecond,
			Key:                     provider.Model(),
		}, p.sharedRedis())
		if err != nil {
			_ = p.Close()
			return nil, err
		}
		mws = append(mws, p.RateLimit.Wrap)
	}

	mws = append(mws, llm.NewLoggingMiddleware(slog.Default()))
	p.Generator = llm.Chain(provider, mws...)

	slog.Default().With("component", "worker").InfoContext(ctx, "generator ready",
		"model", provider.Model(),
		"prompt", tmpl.Name,
		"cache", p.Cache != nil && p.Cache.Enabled(),
		"retry", p.Retry != nil,
		"circuit_breaker", p.Breaker != nil,
		"rate_limit", p.RateLimit != nil)
	return p, nil
}

func (p *Pipeline) sharedRedis() *redis.Client {
	if p.Cache == nil {
		return nil
	}
	return p.Cache.Client()
}

// OpenStore connects to Postgres when either the corpus or the output uses
// it. It returns nil otherwise.
func OpenStore(ctx context.Context, cfg *config.Config) (*postgres.Store, error) {
	if cfg.Corpus.Source != config.BackendPostgres && cfg.Output.Sink != config.BackendPostgres {
		return nil, nil
	}
	return postgres.Open(ctx, postgres.Config{
		URL:      cfg.Database.URL,
		MaxConns: cfg.Database.MaxConns,
	})
}

// errNoStore is returned when a postgres backend is selected without a store.
var errNoStore = fmt.Errorf("%w: postgres backend selected but no store is open", domain.ErrConfiguration)

// NewSourceFactory returns a factory resolving corpus references against the
// file system and, when store is non-nil, Postgres. Activities use it to load
// the corpus named by a request.
func NewSourceFactory(store *postgres.Store) corpus.SourceFactory {
	return func(ref domain.CorpusRef) (corpus.Source, error) {
		switch ref.Source {
		case domain.BackendPostgres:
			if store == nil {
				return nil, errNoStore
			}
			return store.ReviewSource(ref.Table, ref.Limit), nil
		case domain.BackendFile:
			return corpus.NewFileSource(ref.Path, ref.Limit), nil
		default:
			return nil, fmt.Errorf("%w: unknown corpus source %q", domain.ErrInvalidRequest, ref.Source)
		}
	}
}

// NewSource returns the corpus source selected by cfg.
func NewSource(cfg *config.Config, store *postgres.Store) (corpus.Source, error) {
	return NewSourceFactory(store)(cfg.Corpus.Ref())
}

// SinkScope controls how file sinks name their output.
type SinkScope int

const (
	// SharedOutput writes every run to the configured path. One-shot CLI
	// runs use it so the output lands exactly where it was asked for.
	SharedOutput SinkScope = iota

	// PerRunOutput gives each run its own files. Workers use it because
	// they serve many runs.
	PerRunOutput
)

// NewSinkFactory returns the dataset sink factory selected by cfg. Postgres
// sinks are always scoped by run ID; scope applies to file sinks.
func NewSinkFactory(cfg *config.Config, store *postgres.Store, scope SinkScope) (dataset.SinkFactory, error) {
	switch cfg.Output.Sink {
	case config.BackendPostgres:
		if store == nil {
			return nil, errNoStore
		}
		return store.SinkFactory(cfg.Output.Table), nil
	case config.BackendFile, "":
		if scope == PerRunOutput {
			return dataset.RunScopedFileSinkFactory(cfg.Output.Path, cfg.Output.FailuresPath), nil
		}
		return dataset.FileSinkFactory(cfg.Output.Path, cfg.Output.FailuresPath), nil
	default:
		return nil, fmt.Errorf("unknown output sink %q", cfg.Output.Sink)
	}
}
