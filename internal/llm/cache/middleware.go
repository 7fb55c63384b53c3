// Package cache provides Redis-backed caching of generator results. Entries
// are keyed by the item content and generation settings, never by item ID, so
// identical content is generated once. Redis being unavailable only disables
// caching; it never fails a generation.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ahrav/go-evalset/internal/domain"
	"github.com/ahrav/go-evalset/internal/llm"
)

const (
	defaultPoolSize   = 10
	connectionTimeout = 5 * time.Second
	defaultTTL        = 24 * time.Hour
	defaultKeyPrefix  = "evalset:gen:"
)

// Config controls caching. Namespace is folded into every key, so changing
// the model or the prompt template never serves stale pairs.
type Config struct {
	// Addr is the Redis address used when no client is supplied.
	Addr     string
	Password string
	DB       int

	// TTL is the lifetime of a cached generation.
	TTL time.Duration

	// KeyPrefix namespaces keys in a shared Redis.
	KeyPrefix string

	// Namespace scopes entries to one generator setup, e.g. model name and
	// prompt hash, so changing either misses the cache.
	Namespace string
}

// entry is the stored form of a cached generation.
type entry struct {
	Pairs      []domain.GeneratedPair `json:"pairs"`
	StoredAtMs int64                  `json:"stored_at_ms"`
}

// Middleware caches successful generations in Redis, keyed by item content
// and generation params. Failures are never cached. Redis errors degrade to
// a cache miss so the cache can never fail a generation.
// It is safe for concurrent use.
type Middleware struct {
	client    *redis.Client
	ttl       time.Duration
	keyPrefix string
	namespace string
	logger    *slog.Logger

	hits   atomic.Int64
	misses atomic.Int64
	errors atomic.Int64
}

// New creates caching middleware over client. A nil client yields
// pass-through middleware.
func New(cfg Config, client *redis.Client) *Middleware {
	if cfg.TTL <= 0 {
		cfg.TTL = defaultTTL
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = defaultKeyPrefix
	}
	return &Middleware{
		client:    client,
		ttl:       cfg.TTL,
		keyPrefix: cfg.KeyPrefix,
		namespace: cfg.Namespace,
		logger:    slog.Default().With("component", "cache"),
	}
}

// Connect creates a Redis client for cfg.Addr and verifies it with a ping.
// On failure caching is disabled: the returned middleware passes through and
// the client is closed.
func Connect(ctx context.Context, cfg Config) *Middleware {
	if cfg.Addr == "" {
		return New(cfg, nil)
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: defaultPoolSize,
	})

	pingCtx, cancel := context.WithTimeout(ctx, connectionTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		slog.Warn("Redis connection failed, cache disabled", "addr", cfg.Addr, "error", err)
		_ = client.Close()
		return New(cfg, nil)
	}
	return New(cfg, client)
}

// Enabled reports whether a Redis client is attached.
func (m *Middleware) Enabled() bool { return m.client != nil }

// Client returns the attached Redis client, or nil when caching is disabled.
func (m *Middleware) Client() *redis.Client { return m.client }

// Close releases the Redis client, if any.
func (m *Middleware) Close() error {
	if m.client == nil {
		return nil
	}
	return m.client.Close()
}

// Wrap returns next decorated with caching. It has the llm.Middleware signature.
func (m *Middleware) Wrap(next llm.Generator) llm.Generator {
	if m.client == nil {
		return next
	}
	return llm.GeneratorFunc(func(ctx context.Context, item domain.CorpusItem, params domain.GenerationParams) ([]domain.GeneratedPair, error) {
		key := m.key(item, params)

		if pairs, ok := m.get(ctx, key); ok {
			m.hits.Add(1)
			m.logger.DebugContext(ctx, "cache hit", "item_id", item.ID, "pairs", len(pairs))
			return pairs, nil
		}
		m.misses.Add(1)

		pairs, err := next.Generate(ctx, item, params)
		if err != nil {
			return nil, err
		}
		if len(pairs) > 0 {
			m.set(ctx, key, pairs)
		}
		return pairs, nil
	})
}

// get returns a cached entry. Misses, Redis errors, and corrupt entries all
// report ok=false; corrupt entries are deleted.
func (m *Middleware) get(ctx context.Context, key string) ([]domain.GeneratedPair, bool) {
	raw, err := m.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false
	}
	if err != nil {
		m.errors.Add(1)
		m.logger.WarnContext(ctx, "cache read failed", "error", err)
		return nil, false
	}

	var e entry
	if err := json.Unmarshal(raw, &e); err != nil || len(e.Pairs) == 0 {
		m.errors.Add(1)
		m.logger.WarnContext(ctx, "discarding corrupt cache entry", "key", key, "error", err)
		_ = m.client.Del(context.WithoutCancel(ctx), key).Err()
		return nil, false
	}
	return e.Pairs, true
}

func (m *Middleware) set(ctx context.Context, key string, pairs []domain.GeneratedPair) {
	raw, err := json.Marshal(entry{Pairs: pairs, StoredAtMs: time.Now().UnixMilli()})
	if err != nil {
		m.errors.Add(1)
		return
	}
	// The generation already succeeded; a cancelled caller should not lose the entry.
	if err := m.client.Set(context.WithoutCancel(ctx), key, raw, m.ttl).Err(); err != nil {
		m.errors.Add(1)
		m.logger.WarnContext(ctx, "cache write failed", "error", err)
	}
}

// Stats is a snapshot of cache activity.
type Stats struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
	Errors int64 `json:"errors"`
}

// Stats returns a snapshot of the cache counters.
func (m *Middleware) Stats() Stats {
	return Stats{Hits: m.hits.Load(), Misses: m.misses.Load(), Errors: m.errors.Load()}
}
