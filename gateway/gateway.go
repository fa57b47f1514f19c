// Package gateway is the client for the partner-tool MCP gateway: flight
// search, weather, and currency conversion behind a single JSON-RPC 2.0
// tools/call endpoint. Machine-to-machine auth uses the OAuth2 client
// credentials grant; transient upstream failures (429, 503) are retried
// with exponential backoff.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"time"

	"golang.org/x/oauth2/clientcredentials"

	"github.com/shyam-menon/travelmate"
)

// Tool names exposed by the gateway.
const (
	ToolSearchFlights   = "FlightSearch___getFlights"
	ToolCurrentWeather  = "WeatherSearch___getCurrentWeather"
	ToolConvertCurrency = "ExchangeRate___convertCurrency"
)

// Client calls tools through the gateway MCP endpoint.
type Client struct {
	endpoint    string
	httpClient  *http.Client
	logger      *slog.Logger
	tracer      travelmate.Tracer
	maxAttempts int
	baseDelay   time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the structured logger for call and retry events.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithTracer sets the tracer for tool-call spans.
func WithTracer(t travelmate.Tracer) Option {
	return func(c *Client) { c.tracer = t }
}

// WithHTTPClient replaces the OAuth2-wrapped HTTP client, mainly for tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithMaxAttempts sets the retry budget for transient failures (default: 3).
func WithMaxAttempts(n int) Option {
	return func(c *Client) { c.maxAttempts = n }
}

// New creates a gateway client. creds drives the client-credentials token
// source; tokens are fetched and refreshed automatically on each call.
func New(endpoint string, creds *clientcredentials.Config, opts ...Option) *Client {
	c := &Client{
		endpoint:    endpoint,
		logger:      slog.New(discardHandler{}),
		maxAttempts: 3,
		baseDelay:   time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil && creds != nil {
		c.httpClient = creds.Client(context.Background())
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return c
}

type rpcRequest struct {
	JSONRPC string    `json:"jsonrpc"`
	ID      string    `json:"id"`
	Method  string    `json:"method"`
	Params  rpcParams `json:"params"`
}

type rpcParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// CallTool invokes the named gateway tool with the given arguments and
// returns the raw JSON-RPC result. Transient HTTP failures are retried;
// JSON-RPC level errors are not.
func (c *Client) CallTool(ctx context.Context, tool string, args any) (json.RawMessage, error) {
	rawArgs, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("gateway: marshal arguments: %w", err)
	}
	payload, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      "unified-" + tool,
		Method:  "tools/call",
		Params:  rpcParams{Name: tool, Arguments: rawArgs},
	})
	if err != nil {
		return nil, fmt.Errorf("gateway: marshal request: %w", err)
	}

	var span travelmate.Span
	if c.tracer != nil {
		ctx, span = c.tracer.Start(ctx, "gateway.tools/call", travelmate.StringAttr("tool", tool))
		defer span.End()
	}

	start := time.Now()
	result, err := retryCall(ctx, c.maxAttempts, c.baseDelay, c.logger, func() (json.RawMessage, error) {
		return c.callOnce(ctx, payload)
	})
	if err != nil {
		if span != nil {
			span.Error(err)
		}
		return nil, err
	}
	c.logger.Debug("gateway: tool call", "tool", tool, "duration", time.Since(start))
	return result, nil
}

func (c *Client) callOnce(ctx context.Context, payload []byte) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("gateway: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gateway: post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, &travelmate.ErrHTTP{
			Status:     resp.StatusCode,
			Body:       string(body),
			RetryAfter: travelmate.ParseRetryAfter(resp.Header.Get("Retry-After")),
		}
	}

	var rpcResp rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return nil, &travelmate.ErrProvider{Provider: "gateway", Message: fmt.Sprintf("decode response: %v", err)}
	}
	if rpcResp.Error != nil {
		return nil, &travelmate.ErrProvider{Provider: "gateway", Message: fmt.Sprintf("rpc %d: %s", rpcResp.Error.Code, rpcResp.Error.Message)}
	}
	return rpcResp.Result, nil
}

// SearchFlights queries flight options between two cities on a date
// (YYYY-MM-DD).
func (c *Client) SearchFlights(ctx context.Context, origin, destination, date string) (json.RawMessage, error) {
	return c.CallTool(ctx, ToolSearchFlights, map[string]string{
		"origin":      origin,
		"destination": destination,
		"date":        date,
	})
}

// CurrentWeather fetches current conditions for a city.
func (c *Client) CurrentWeather(ctx context.Context, city string) (json.RawMessage, error) {
	return c.CallTool(ctx, ToolCurrentWeather, map[string]string{"city": city})
}

// ConvertCurrency converts an amount between two ISO currency codes.
func (c *Client) ConvertCurrency(ctx context.Context, from, to string, amount float64) (json.RawMessage, error) {
	return c.CallTool(ctx, ToolConvertCurrency, map[string]any{
		"from":   from,
		"to":     to,
		"amount": amount,
	})
}

// retryCall calls fn up to maxAttempts times, sleeping between transient
// failures. Exponential backoff with jitter, floored by any Retry-After
// the server sent.
func retryCall[T any](ctx context.Context, maxAttempts int, base time.Duration, logger *slog.Logger, fn func() (T, error)) (T, error) {
	var zero T
	var last error
	for i := 0; i < maxAttempts; i++ {
		result, err := fn()
		if err == nil || !isTransient(err) {
			return result, err
		}
		last = err
		logger.Warn("gateway: retrying transient error",
			"status", statusOf(err),
			"attempt", i+1,
			"max_attempts", maxAttempts)
		if i < maxAttempts-1 {
			timer := time.NewTimer(retryDelay(base, i, err))
			select {
			case <-ctx.Done():
				timer.Stop()
				return zero, ctx.Err()
			case <-timer.C:
			}
		}
	}
	logger.Error("gateway: all retry attempts exhausted", "attempts", maxAttempts, "error", last)
	return zero, last
}

// isTransient reports whether err is a retryable HTTP error (429 or 503).
func isTransient(err error) bool {
	var e *travelmate.ErrHTTP
	return errors.As(err, &e) && (e.Status == 429 || e.Status == 503)
}

func statusOf(err error) int {
	var e *travelmate.ErrHTTP
	if errors.As(err, &e) {
		return e.Status
	}
	return 0
}

// retryDelay uses exponential backoff as a floor and the server's
// Retry-After as a minimum when larger.
func retryDelay(base time.Duration, i int, err error) time.Duration {
	exp := base * (1 << i)
	delay := exp + time.Duration(rand.Int63n(int64(exp)/2+1))
	var e *travelmate.ErrHTTP
	if errors.As(err, &e) && e.RetryAfter > delay {
		return e.RetryAfter
	}
	return delay
}

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }
