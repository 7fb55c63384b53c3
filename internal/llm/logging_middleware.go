package llm

import (
	"context"
	"log/slog"
	"time"

	"github.com/ahrav/go-evalset/internal/domain"
	llmerrors "github.com/ahrav/go-evalset/internal/llm/errors"
)

// LoggingMiddleware records one structured log line per generator call with
// its latency and outcome. Item content is never logged; only its ID and size.
//
// Failures are logged at warn level with their failure kind and whether the
// retry middleware would try again. Successes are logged at debug level, so
// production logs stay quiet for healthy runs.
type LoggingMiddleware struct {
	logger *slog.Logger
}

// NewLoggingMiddleware creates logging middleware. A nil logger falls back to
// slog.Default().
func NewLoggingMiddleware(logger *slog.Logger) Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	lm := &LoggingMiddleware{logger: logger.With("component", "generator")}
	return lm.Middleware
}

// Middleware wraps next with request/response logging.
func (m *LoggingMiddleware) Middleware(next Generator) Generator {
	return GeneratorFunc(func(ctx context.Context, item domain.CorpusItem, params domain.GenerationParams) ([]domain.GeneratedPair, error) {
		start := time.Now()
		pairs, err := next.Generate(ctx, item, params)
		duration := time.Since(start)

		if err != nil {
			m.logger.WarnContext(ctx, "generation failed",
				"item_id", item.ID,
				"kind", llmerrors.Classify(err),
				"retryable", llmerrors.IsRetryable(err),
				"duration_ms", duration.Milliseconds(),
				"error", err)
			return nil, err
		}

		m.logger.DebugContext(ctx, "generation completed",
			"item_id", item.ID,
			"content_length", len(item.Text()),
			"pairs_requested", params.PairsPerItem,
			"pairs_returned", len(pairs),
			"duration_ms", duration.Milliseconds())
		return pairs, nil
	})
}
