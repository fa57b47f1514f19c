package travelmate

import (
	"context"
	"log/slog"
)

// Agent is the opaque unit of work the Runner drives: a prompt goes in, a
// response comes out. Implementations may be slow, network-bound, and may
// signal mid-task that they cannot proceed without an external credential.
type Agent interface {
	// Name returns the agent's identifier, used in logs and spans.
	Name() string
	// Invoke runs the agent on the given task and returns its response.
	Invoke(ctx context.Context, task Task) (Response, error)
}

// Task is the input to an Agent invocation.
type Task struct {
	// Prompt is the natural language request from the caller.
	Prompt string
	// UserID identifies the requesting user, used for preference lookups.
	UserID string
	// AccessToken is the per-invocation bearer credential resolved through
	// the authorization flow. Empty on the first attempt; set on the retry.
	// Never stored globally, so concurrent runs cannot leak tokens across
	// requests.
	AccessToken string
}

// Response is the outcome of a single Agent invocation.
type Response struct {
	// Text is the natural language response payload.
	Text string
	// NeedsAuthorization is the structured signal that the task cannot
	// complete without an external credential. Preferred over prose
	// scanning; the Runner falls back to its Detector when this is unset.
	NeedsAuthorization bool
}

// TokenResolver performs the blocking identity exchange. Resolve returns a
// cached valid token immediately when one exists for the provider/scope
// pair. Otherwise it constructs an authorization URL, invokes onAuthURL
// with it, and blocks until the callback server reports completion for the
// matching session or the bounded wait elapses.
//
// Failures wrap ErrAuthorizationTimeout or ErrAuthorizationDenied so
// callers can distinguish the cause. Resolve runs on the background task,
// never on an HTTP serving goroutine.
type TokenResolver interface {
	Resolve(ctx context.Context, provider string, scopes []string, onAuthURL func(url string)) (string, error)
}

// AuthorizationCompleter is the identity-provider operation the callback
// server relays into: it matches sessionID to the blocked Resolve call and
// finishes the token exchange using the stored descriptor.
type AuthorizationCompleter interface {
	CompleteAuthorization(ctx context.Context, sessionID string, d TokenDescriptor) error
}

// nopLogger discards all log output. Used as the default when no logger is
// configured via options.
var nopLogger = slog.New(discardHandler{})

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }
