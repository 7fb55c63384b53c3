package llm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-evalset/internal/domain"
	llmerrors "github.com/ahrav/go-evalset/internal/llm/errors"
)

var testItem = domain.CorpusItem{
	ID:     "rev-1",
	Fields: map[string]string{"review": "Battery lasts two days. Screen scratches easily."},
}

// completion wraps content the way the chat/completions API does.
func completion(t *testing.T, content string) []byte {
	t.Helper()
	b, err := json.Marshal(map[string]any{
		"choices": []map[string]any{{
			"message":       map[string]string{"role": "assistant", "content": content},
			"finish_reason": "stop",
		}},
	})
	require.NoError(t, err)
	return b
}

func newTestGenerator(t *testing.T, h http.HandlerFunc) *OpenAIGenerator {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	g, err := NewOpenAIGenerator(OpenAIConfig{
		Endpoint:    srv.URL + "/v1/",
		APIKey:      "sk-test",
		Model:       "gpt-4o-mini",
		Temperature: 0.2,
		MaxTokens:   512,
		Headers:     map[string]string{"X-Team": "search"},
	}, nil, srv.Client())
	require.NoError(t, err)
	return g
}

func TestOpenAIGenerator_Request(t *testing.T) {
	var got chatRequest
	g := newTestGenerator(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "search", r.Header.Get("X-Team"))

		body, err := io.ReadAll(r.Body)
		assert.NoError(t, err)
		assert.NoError(t, json.Unmarshal(body, &got))
		_, _ = w.Write(completion(t, `{"pairs":[{"question":"How long does the battery last?","answer":"Two days."}]}`))
	})

	pairs, err := g.Generate(context.Background(), testItem, domain.GenerationParams{PairsPerItem: 1})
	require.NoError(t, err)
	assert.Equal(t, []domain.GeneratedPair{{Question: "How long does the battery last?", Answer: "Two days."}}, pairs)

	assert.Equal(t, "gpt-4o-mini", got.Model)
	assert.Equal(t, 512, got.MaxTokens)
	assert.InDelta(t, 0.2, got.Temperature, 1e-9)
	assert.Equal(t, map[string]string{"type": "json_object"}, got.ResponseFormat)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, "user", got.Messages[1].Role)
	assert.Contains(t, got.Messages[1].Content, "Battery lasts two days.")
	assert.NotContains(t, got.Messages[1].Content, "rev-1")
}

func TestOpenAIGenerator_ResponseShaping(t *testing.T) {
	tests := []struct {
		name    string
		content string
		limit   int
		want    []domain.GeneratedPair
	}{
		{
			name:    "truncates to requested count",
			content: `{"pairs":[{"question":"a","answer":"1"},{"question":"b","answer":"2"},{"question":"c","answer":"3"}]}`,
			limit:   2,
			want:    []domain.GeneratedPair{{Question: "a", Answer: "1"}, {Question: "b", Answer: "2"}},
		},
		{
			name:    "drops empty pairs",
			content: `{"pairs":[{"question":" ","answer":"1"},{"question":"b","answer":""},{"question":" c ","answer":" 3 "}]}`,
			limit:   3,
			want:    []domain.GeneratedPair{{Question: "c", Answer: "3"}},
		},
		{
			name:    "code fenced json",
			content: "```json\n{\"pairs\":[{\"question\":\"a\",\"answer\":\"1\"}]}\n```",
			limit:   3,
			want:    []domain.GeneratedPair{{Question: "a", Answer: "1"}},
		},
		{
			name:    "no pairs is a valid empty result",
			content: `{"pairs":[]}`,
			limit:   3,
			want:    []domain.GeneratedPair{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := newTestGenerator(t, func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write(completion(t, tt.content))
			})
			pairs, err := g.Generate(context.Background(), testItem, domain.GenerationParams{PairsPerItem: tt.limit})
			require.NoError(t, err)
			assert.Equal(t, tt.want, pairs)
		})
	}
}

func TestOpenAIGenerator_InvalidResponse(t *testing.T) {
	tests := []struct {
		name string
		body func(t *testing.T) []byte
	}{
		{"not json", func(*testing.T) []byte { return []byte("<html>") }},
		{"no choices", func(*testing.T) []byte { return []byte(`{"choices":[]}`) }},
		{"content not json", func(t *testing.T) []byte { return completion(t, "Sure! Here are some questions.") }},
		{"all pairs empty", func(t *testing.T) []byte { return completion(t, `{"pairs":[{"question":"","answer":""}]}`) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := newTestGenerator(t, func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write(tt.body(t))
			})
			_, err := g.Generate(context.Background(), testItem, domain.DefaultGenerationParams())
			assert.ErrorIs(t, err, llmerrors.ErrInvalidResponse)
			assert.Equal(t, domain.FailureInvalidResponse, llmerrors.Classify(err))
			assert.False(t, llmerrors.IsRetryable(err))
		})
	}
}

func TestOpenAIGenerator_ProviderErrors(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		retryAfter string
		body       string
		wantKind   domain.FailureKind
		wantAfter  time.Duration
		wantMsg    string
		retryable  bool
	}{
		{
			name:       "rate limited",
			status:     http.StatusTooManyRequests,
			retryAfter: "7",
			body:       `{"error":{"message":"slow down","code":"rate_limit_exceeded"}}`,
			wantKind:   domain.FailureRateLimit,
			wantAfter:  7 * time.Second,
			wantMsg:    "slow down",
			retryable:  true,
		},
		{
			name:      "server error",
			status:    http.StatusBadGateway,
			body:      "upstream down",
			wantKind:  domain.FailureProvider,
			wantMsg:   "upstream down",
			retryable: true,
		},
		{
			name:     "bad key",
			status:   http.StatusUnauthorized,
			body:     `{"error":{"message":"invalid api key"}}`,
			wantKind: domain.FailureAuth,
			wantMsg:  "invalid api key",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := newTestGenerator(t, func(w http.ResponseWriter, _ *http.Request) {
				if tt.retryAfter != "" {
					w.Header().Set("Retry-After", tt.retryAfter)
				}
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			_, err := g.Generate(context.Background(), testItem, domain.DefaultGenerationParams())
			var pe *llmerrors.ProviderError
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, tt.status, pe.StatusCode)
			assert.Equal(t, tt.wantMsg, pe.Message)
			assert.Equal(t, tt.wantKind, llmerrors.Classify(err))
			assert.Equal(t, tt.wantAfter, llmerrors.RetryAfter(err))
			assert.Equal(t, tt.retryable, llmerrors.IsRetryable(err))
		})
	}
}

func TestOpenAIGenerator_ContextCancelled(t *testing.T) {
	g := newTestGenerator(t, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := g.Generate(ctx, testItem, domain.DefaultGenerationParams())
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestNewOpenAIGenerator(t *testing.T) {
	_, err := NewOpenAIGenerator(OpenAIConfig{}, nil, nil)
	assert.ErrorIs(t, err, domain.ErrConfiguration)

	g, err := NewOpenAIGenerator(OpenAIConfig{Model: "m"}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, defaultOpenAIEndpoint, g.cfg.Endpoint)
	assert.Equal(t, "m", g.Model())
	assert.NotEmpty(t, g.PromptHash())
}

func TestParseRetryAfter(t *testing.T) {
	assert.Equal(t, 0, parseRetryAfter(""))
	assert.Equal(t, 30, parseRetryAfter("30"))
	assert.Equal(t, 0, parseRetryAfter("-3"))
	assert.Equal(t, 0, parseRetryAfter("soon"))

	future := time.Now().Add(90 * time.Second).UTC().Format(http.TimeFormat)
	assert.InDelta(t, 90, parseRetryAfter(future), 2)
}
