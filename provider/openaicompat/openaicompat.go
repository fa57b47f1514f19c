// Package openaicompat is a chat-completions client for any
// OpenAI-compatible API (OpenAI, OpenRouter, Groq, Ollama, vLLM, and
// friends). The travel agent uses it as its Model backend.
package openaicompat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/shyam-menon/travelmate"
)

// Client sends non-streaming chat completion requests.
type Client struct {
	apiKey      string
	model       string
	baseURL     string
	httpClient  *http.Client
	name        string
	logger      *slog.Logger
	temperature *float64
	maxTokens   *int
}

// Option configures a Client.
type Option func(*Client)

// WithName overrides the provider name used in error reporting (default
// "openai").
func WithName(name string) Option {
	return func(c *Client) { c.name = name }
}

// WithLogger sets the structured logger for request events.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTemperature sets the sampling temperature for every request.
func WithTemperature(t float64) Option {
	return func(c *Client) { c.temperature = &t }
}

// WithMaxTokens caps the completion length for every request.
func WithMaxTokens(n int) Option {
	return func(c *Client) { c.maxTokens = &n }
}

// New creates a client. baseURL is the API base (e.g.
// "https://api.openai.com/v1"); the /chat/completions path is appended
// automatically.
func New(apiKey, model, baseURL string, opts ...Option) *Client {
	c := &Client{
		apiKey:     apiKey,
		model:      model,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 120 * time.Second},
		name:       "openai",
		logger:     slog.New(discardHandler{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name returns the provider name.
func (c *Client) Name() string { return c.name }

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []message `json:"messages"`
	Temperature *float64  `json:"temperature,omitempty"`
	MaxTokens   *int      `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message message `json:"message"`
	} `json:"choices"`
}

// Complete sends a system prompt and a user prompt and returns the model's
// text reply.
func (c *Client) Complete(ctx context.Context, system, prompt string) (string, error) {
	var msgs []message
	if system != "" {
		msgs = append(msgs, message{Role: "system", Content: system})
	}
	msgs = append(msgs, message{Role: "user", Content: prompt})

	payload, err := json.Marshal(chatRequest{
		Model:       c.model,
		Messages:    msgs,
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	})
	if err != nil {
		return "", &travelmate.ErrProvider{Provider: c.name, Message: fmt.Sprintf("marshal request: %v", err)}
	}

	url := c.baseURL + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", &travelmate.ErrProvider{Provider: c.name, Message: fmt.Sprintf("create request: %v", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &travelmate.ErrProvider{Provider: c.name, Message: fmt.Sprintf("send request: %v", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", &travelmate.ErrHTTP{
			Status:     resp.StatusCode,
			Body:       string(body),
			RetryAfter: travelmate.ParseRetryAfter(resp.Header.Get("Retry-After")),
		}
	}

	var chatResp chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return "", &travelmate.ErrProvider{Provider: c.name, Message: fmt.Sprintf("decode response: %v", err)}
	}
	if len(chatResp.Choices) == 0 {
		return "", &travelmate.ErrProvider{Provider: c.name, Message: "empty choices in response"}
	}
	c.logger.Debug("chat completion", "provider", c.name, "model", c.model, "duration", time.Since(start))
	return chatResp.Choices[0].Message.Content, nil
}

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }
