//go:build integration

package cache

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	redisContainer "github.com/testcontainers/testcontainers-go/modules/redis"

	"github.com/ahrav/go-evalset/internal/domain"
	"github.com/ahrav/go-evalset/internal/llm"
)

// setupRedisContainer starts a Redis container and returns a connected client.
func setupRedisContainer(t *testing.T) (string, *redis.Client) {
	t.Helper()
	ctx := context.Background()

	container, err := redisContainer.Run(ctx, "redis:7-alpine")
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate Redis container: %v", err)
		}
	})

	endpoint, err := container.Endpoint(ctx, "")
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: endpoint})
	_, err = client.Ping(ctx).Result()
	require.NoError(t, err)
	return endpoint, client
}

func TestCacheHit_RealRedis(t *testing.T) {
	_, client := setupRedisContainer(t)
	m := New(Config{TTL: time.Minute, Namespace: "test-model"}, client)
	t.Cleanup(func() { _ = m.Close() })

	var calls atomic.Int32
	gen := m.Wrap(counting(&calls))
	params := domain.DefaultGenerationParams()

	first, err := gen.Generate(context.Background(), review, params)
	require.NoError(t, err)

	// Same content under another id is served from cache.
	twin := domain.CorpusItem{ID: "r2", Fields: review.Fields}
	second, err := gen.Generate(context.Background(), twin, params)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.EqualValues(t, 1, calls.Load())
	assert.Equal(t, Stats{Hits: 1, Misses: 1}, m.Stats())

	ttl, err := client.TTL(context.Background(), m.key(review, params)).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, 50*time.Second)
}

func TestFailuresAreNotCached_RealRedis(t *testing.T) {
	_, client := setupRedisContainer(t)
	m := New(Config{}, client)

	var calls atomic.Int32
	failing := llm.GeneratorFunc(func(context.Context, domain.CorpusItem, domain.GenerationParams) ([]domain.GeneratedPair, error) {
		calls.Add(1)
		return nil, errors.New("provider down")
	})
	gen := m.Wrap(failing)

	for range 2 {
		_, err := gen.Generate(context.Background(), review, domain.DefaultGenerationParams())
		assert.Error(t, err)
	}
	assert.EqualValues(t, 2, calls.Load())
}

func TestCorruptEntryIsDiscarded_RealRedis(t *testing.T) {
	endpoint, client := setupRedisContainer(t)
	m := Connect(context.Background(), Config{Addr: endpoint})
	require.True(t, m.Enabled())
	t.Cleanup(func() { _ = m.Close() })

	params := domain.DefaultGenerationParams()
	key := m.key(review, params)
	require.NoError(t, client.Set(context.Background(), key, "not json", time.Minute).Err())

	var calls atomic.Int32
	_, err := m.Wrap(counting(&calls)).Generate(context.Background(), review, params)
	require.NoError(t, err)
	assert.EqualValues(t, 1, calls.Load())

	raw, err := client.Get(context.Background(), key).Result()
	require.NoError(t, err)
	assert.Contains(t, raw, `"pairs"`, "the corrupt entry is replaced by a fresh one")
}
