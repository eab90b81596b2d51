package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"forkchat/pkg/config"
	"forkchat/pkg/logger"
	"forkchat/pkg/telemetry"
)

// ErrMissingAPIKey is returned at construction when no upstream credential
// is configured. Distinct from runtime upstream failures.
var ErrMissingAPIKey = errors.New("model api key not configured")

// UpstreamError carries a non-success upstream response for display.
type UpstreamError struct {
	Status     int
	StatusText string
	Body       string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream error: %d %s: %s", e.Status, e.StatusText, e.Body)
}

// ChatMessage is one turn of the formatted conversation.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Params are the per-request generation parameters.
type Params struct {
	Temperature  float64
	MaxTokens    int
	ShowThinking bool
}

// Client streams chat completions from an OpenAI-compatible endpoint.
type Client struct {
	endpoint   string
	apiKey     string
	model      string
	httpClient *http.Client
}

// New builds a client from model config. A missing API key is a startup
// error, not a per-request one.
func New(cfg config.ModelConfig) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = "https://api.openai.com/v1"
	}
	model := cfg.Model
	if model == "" {
		model = "gpt-4o-mini"
	}
	timeout := cfg.Timeout.Duration()
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &Client{
		endpoint:   strings.TrimSuffix(endpoint, "/"),
		apiKey:     cfg.APIKey,
		model:      model,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	Temperature *float64      `json:"temperature,omitempty"`
	MaxTokens   *int          `json:"max_tokens,omitempty"`
	Stream      bool          `json:"stream"`
}

type chatStreamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content,omitempty"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
}

// Stream sends the conversation upstream with streaming enabled and invokes
// emit for every incremental text delta. The configured system prompt is
// injected ahead of the message list. Malformed or content-free chunks are
// dropped silently. Returns when the terminal marker arrives, the context
// is canceled, or emit reports an error.
func (c *Client) Stream(ctx context.Context, messages []ChatMessage, p Params, emit func(delta string) error) error {
	req := chatRequest{
		Model:    c.model,
		Messages: append([]ChatMessage{{Role: "system", Content: selectSystemPrompt(p.ShowThinking)}}, messages...),
		Stream:   true,
	}
	if p.Temperature > 0 {
		req.Temperature = &p.Temperature
	}
	if p.MaxTokens > 0 {
		req.MaxTokens = &p.MaxTokens
	}

	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal chat request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build chat request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("Cache-Control", "no-cache")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		telemetry.ModelRequestsTotal.WithLabelValues("transport_error").Inc()
		return fmt.Errorf("send chat request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		telemetry.ModelRequestsTotal.WithLabelValues("upstream_error").Inc()
		return &UpstreamError{Status: resp.StatusCode, StatusText: resp.Status, Body: string(b)}
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" || strings.HasPrefix(line, "data: [DONE]") {
			continue
		}
		line = strings.TrimPrefix(line, "data: ")

		var chunk chatStreamChunk
		if err := json.Unmarshal([]byte(line), &chunk); err != nil {
			logger.Debug("chat_chunk_dropped", "error", err)
			continue
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta.Content
		if delta == "" {
			continue
		}
		telemetry.ModelStreamDeltasTotal.Inc()
		if err := emit(delta); err != nil {
			return fmt.Errorf("emit delta: %w", err)
		}
	}
	if err := scanner.Err(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		telemetry.ModelRequestsTotal.WithLabelValues("stream_error").Inc()
		return fmt.Errorf("read chat stream: %w", err)
	}
	telemetry.ModelRequestsTotal.WithLabelValues("ok").Inc()
	return nil
}
