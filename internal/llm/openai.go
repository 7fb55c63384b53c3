package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ahrav/go-evalset/internal/domain"
	llmerrors "github.com/ahrav/go-evalset/internal/llm/errors"
	"github.com/ahrav/go-evalset/internal/prompt"
)

// ProviderOpenAI names the OpenAI-compatible provider in errors and logs.
const ProviderOpenAI = "openai"

const defaultOpenAIEndpoint = "https://api.openai.com/v1"

// maxResponseBytes caps how much of a provider response is read.
const maxResponseBytes = 4 << 20

// OpenAIConfig configures an OpenAIGenerator. Endpoint defaults to the
// OpenAI API; any server speaking the same chat/completions protocol works.
type OpenAIConfig struct {
	// Endpoint is the API base URL. Defaults to the public OpenAI API.
	Endpoint string

	// APIKey is sent as a bearer token.
	APIKey string

	// Model is the chat model name.
	Model string

	Temperature float64
	MaxTokens   int

	// HTTPTimeout bounds each HTTP exchange. Zero leaves it to ctx.
	HTTPTimeout time.Duration

	// Headers are added to every request.
	Headers map[string]string
}

// OpenAIGenerator generates question/answer pairs through an
// OpenAI-compatible chat/completions API in JSON mode.
//
// Each call renders the prompt template for one item and asks for a JSON
// object holding a "pairs" array. HTTP failures become typed provider errors
// from internal/llm/errors. A response that does not decode, or that holds no
// usable pairs, is reported as an invalid response.
// It is safe for concurrent use.
type OpenAIGenerator struct {
	cfg    OpenAIConfig
	client *http.Client
	prompt *prompt.Template
}

// NewOpenAIGenerator creates a generator. A nil template uses prompt.Default()
// and a nil client uses a client with cfg.HTTPTimeout.
func NewOpenAIGenerator(cfg OpenAIConfig, tmpl *prompt.Template, client *http.Client) (*OpenAIGenerator, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("%w: provider model is required", domain.ErrInvalidConfig)
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = defaultOpenAIEndpoint
	}
	cfg.Endpoint = strings.TrimRight(cfg.Endpoint, "/")
	if tmpl == nil {
		tmpl = prompt.Default()
	}
	if client == nil {
		client = &http.Client{Timeout: cfg.HTTPTimeout}
	}
	return &OpenAIGenerator{cfg: cfg, client: client, prompt: tmpl}, nil
}

// Model returns the configured model name.
func (g *OpenAIGenerator) Model() string { return g.cfg.Model }

// PromptHash returns the hash of the prompt template in use.
func (g *OpenAIGenerator) PromptHash() string { return g.prompt.Hash() }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string            `json:"model"`
	Messages       []chatMessage     `json:"messages"`
	Temperature    float64           `json:"temperature"`
	MaxTokens      int               `json:"max_tokens,omitempty"`
	ResponseFormat map[string]string `json:"response_format"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

type pairsPayload struct {
	Pairs []domain.GeneratedPair `json:"pairs"`
}

// Generate implements Generator.
func (g *OpenAIGenerator) Generate(ctx context.Context, item domain.CorpusItem, params domain.GenerationParams) ([]domain.GeneratedPair, error) {
	system, user, err := g.prompt.Render(item, params)
	if err != nil {
		return nil, err
	}

	httpReq, err := g.build(ctx, system, user)
	if err != nil {
		return nil, err
	}

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%s request: %w", ProviderOpenAI, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, parseOpenAIError(resp, body)
	}

	return parsePairs(body, params.PairsPerItem)
}

func (g *OpenAIGenerator) build(ctx context.Context, system, user string) (*http.Request, error) {
	body := chatRequest{
		Model: g.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Temperature:    g.cfg.Temperature,
		MaxTokens:      g.cfg.MaxTokens,
		ResponseFormat: map[string]string{"type": "json_object"},
	}
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.Endpoint+"/chat/completions", bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if g.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.cfg.APIKey)
	}
	for k, v := range g.cfg.Headers {
		req.Header.Set(k, v)
	}
	return req, nil
}

// parsePairs extracts pairs from a chat completion body. Pairs with an empty
// question or answer are dropped and the rest truncated to limit.
func parsePairs(body []byte, limit int) ([]domain.GeneratedPair, error) {
	var resp chatResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: %w", llmerrors.ErrInvalidResponse, err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: no choices", llmerrors.ErrInvalidResponse)
	}

	content := stripCodeFence(resp.Choices[0].Message.Content)
	var payload pairsPayload
	if err := json.Unmarshal([]byte(content), &payload); err != nil {
		return nil, fmt.Errorf("%w: content is not a pairs object: %w", llmerrors.ErrInvalidResponse, err)
	}

	pairs := make([]domain.GeneratedPair, 0, len(payload.Pairs))
	for _, p := range payload.Pairs {
		p.Question = strings.TrimSpace(p.Question)
		p.Answer = strings.TrimSpace(p.Answer)
		if p.Question == "" || p.Answer == "" {
			continue
		}
		pairs = append(pairs, p)
		if limit > 0 && len(pairs) == limit {
			break
		}
	}
	if len(pairs) == 0 && len(payload.Pairs) > 0 {
		return nil, fmt.Errorf("%w: every pair was empty", llmerrors.ErrInvalidResponse)
	}
	return pairs, nil
}

// stripCodeFence removes a ```json fence some models wrap JSON output in.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// parseOpenAIError converts an error response to a ProviderError.
func parseOpenAIError(resp *http.Response, body []byte) error {
	var errResp struct {
		Error struct {
			Message string `json:"message"`
			Code    string `json:"code"`
		} `json:"error"`
	}

	msg := strings.TrimSpace(string(body))
	var code string
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
		msg = errResp.Error.Message
		code = errResp.Error.Code
	}

	pe := llmerrors.NewProviderError(ProviderOpenAI, resp.StatusCode, msg, parseRetryAfter(resp.Header.Get("Retry-After")))
	if code != "" {
		pe.Code = code
	}
	return pe
}

// parseRetryAfter reads a Retry-After header given in seconds or as an HTTP date.
func parseRetryAfter(v string) int {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return secs
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return int(d.Round(time.Second) / time.Second)
		}
	}
	return 0
}

var _ Generator = (*OpenAIGenerator)(nil)
