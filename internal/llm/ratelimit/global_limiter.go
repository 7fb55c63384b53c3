package ratelimit

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	llmerrors "github.com/ahrav/go-evalset/internal/llm/errors"
)

const (
	windowMs             = 1000
	minRetryAfterSeconds = 1
	maxRetryAfterSeconds = 3600
)

// fixedWindow counts requests per one-second window atomically.
// Returns {1, remaining} when allowed and {0, pttl} when denied.
var fixedWindow = redis.NewScript(`
	local key = KEYS[1]
	local window = tonumber(ARGV[1])
	local limit = tonumber(ARGV[2])

	local current = redis.call('GET', key)
	if current == false then
		redis.call('SET', key, 1, 'PX', window)
		return {1, limit - 1}
	end

	local count = tonumber(current)
	if count < limit then
		local newCount = redis.call('INCR', key)
		if redis.call('PTTL', key) == -1 then
			redis.call('PEXPIRE', key, window)
		end
		return {1, limit - newCount}
	end

	return {0, redis.call('PTTL', key)}
`)

// checkGlobal enforces the shared limit. Redis errors and malformed replies
// switch the middleware into degraded, local-only mode for this call.
func (m *Middleware) checkGlobal(ctx context.Context) error {
	if m.global == nil || m.globalLimit == 0 {
		return nil
	}

	result, err := fixedWindow.Run(ctx, m.global, []string{m.globalKey}, windowMs, m.globalLimit).Result()
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		m.degrade("global rate limit check failed", "error", err)
		return nil
	}

	res, ok := result.([]any)
	if !ok || len(res) < 2 {
		m.degrade("invalid Redis response format", "response", result)
		return nil
	}
	allowed, ok := res[0].(int64)
	if !ok {
		m.degrade("invalid Redis allowed value format", "allowed", res[0])
		return nil
	}
	m.degradedMode.Store(false)

	if allowed == 1 {
		return nil
	}

	retryAfterMs, ok := res[1].(int64)
	if !ok || retryAfterMs <= 0 {
		retryAfterMs = windowMs
	}
	secs := int((time.Duration(retryAfterMs)*time.Millisecond + time.Second - 1) / time.Second)
	secs = min(max(secs, minRetryAfterSeconds), maxRetryAfterSeconds)

	return &llmerrors.RateLimitError{Provider: "global", RetryAfter: secs}
}

func (m *Middleware) degrade(msg string, args ...any) {
	if !m.degradedMode.Swap(true) {
		m.logger.Warn(msg+", falling back to local limiting", args...)
	}
}
