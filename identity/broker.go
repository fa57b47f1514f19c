// Package identity provides the in-process authorization broker that
// bridges the callback server and the blocked task runner. The broker
// issues authorization URLs carrying fresh session identifiers, parks
// Resolve callers on per-session channels, and releases them when the
// callback route relays the completed exchange.
package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/shyam-menon/travelmate"
)

// Package-level sentinel errors.
var (
	// ErrUnknownSession is returned by CompleteAuthorization when no
	// Resolve call is waiting for the given session identifier.
	ErrUnknownSession = errors.New("unknown authorization session")

	// ErrFlowInProgress is returned by Resolve when another authorization
	// flow is already outstanding. The single-slot mailbox design supports
	// one flow at a time; overlapping flows are rejected instead of
	// silently racing on the mailbox.
	ErrFlowInProgress = errors.New("authorization flow already in progress")
)

// ExchangeFunc turns a completed redirect into an access token. sessionID
// correlates the redirect with the pending flow; d is the descriptor the
// task side stored in the callback server before the flow began.
// expiresIn of zero disables caching of the returned token.
type ExchangeFunc func(ctx context.Context, sessionID string, d travelmate.TokenDescriptor) (token string, expiresIn time.Duration, err error)

// DescriptorExchange is the default exchange for single-host deployments:
// the stored descriptor already is the credential, so it is returned
// directly and never cached.
func DescriptorExchange(_ context.Context, _ string, d travelmate.TokenDescriptor) (string, time.Duration, error) {
	if d.Value == "" {
		return "", 0, fmt.Errorf("empty token descriptor: %w", travelmate.ErrAuthorizationDenied)
	}
	return d.Value, 0, nil
}

type waiter struct {
	ch       chan outcome
	cacheKey string
}

type outcome struct {
	token     string
	expiresIn time.Duration
	err       error
}

type cachedToken struct {
	value   string
	expires time.Time
}

// Broker implements travelmate.TokenResolver and
// travelmate.AuthorizationCompleter over an in-process session table.
// All methods are safe for concurrent use.
type Broker struct {
	authorizeURL string
	callbackURL  string
	exchange     ExchangeFunc
	waitTimeout  time.Duration
	logger       *slog.Logger
	now          func() time.Time

	mu      sync.Mutex
	waiters map[string]waiter
	cache   map[string]cachedToken
}

// Option configures a Broker.
type Option func(*Broker)

// WithLogger sets the structured logger for flow lifecycle events.
func WithLogger(l *slog.Logger) Option {
	return func(b *Broker) { b.logger = l }
}

// WithExchange replaces the default DescriptorExchange, e.g. with an
// OAuth2 code exchange or a remote identity service call.
func WithExchange(fn ExchangeFunc) Option {
	return func(b *Broker) { b.exchange = fn }
}

// WithWaitTimeout bounds how long Resolve blocks for the browser flow to
// complete (default: 40s).
func WithWaitTimeout(d time.Duration) Option {
	return func(b *Broker) { b.waitTimeout = d }
}

// NewBroker creates a broker. authorizeURL is the provider consent page the
// user's browser is sent to; callbackURL is where the provider redirects
// after consent (the callback server's /callback route).
func NewBroker(authorizeURL, callbackURL string, opts ...Option) *Broker {
	b := &Broker{
		authorizeURL: authorizeURL,
		callbackURL:  callbackURL,
		exchange:     DescriptorExchange,
		waitTimeout:  40 * time.Second,
		logger:       slog.New(discardHandler{}),
		now:          time.Now,
		waiters:      make(map[string]waiter),
		cache:        make(map[string]cachedToken),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Resolve implements travelmate.TokenResolver. A cached, unexpired token
// for the provider/scope pair returns immediately without blocking.
// Otherwise Resolve registers a session, hands the authorization URL to
// onAuthURL, and blocks until CompleteAuthorization fires for the session,
// the wait budget elapses (ErrAuthorizationTimeout), or ctx is cancelled.
func (b *Broker) Resolve(ctx context.Context, provider string, scopes []string, onAuthURL func(string)) (string, error) {
	key := cacheKey(provider, scopes)

	b.mu.Lock()
	if tok, ok := b.cache[key]; ok && b.now().Before(tok.expires) {
		b.mu.Unlock()
		b.logger.Debug("identity: cached token hit", "provider", provider)
		return tok.value, nil
	}
	if len(b.waiters) > 0 {
		b.mu.Unlock()
		return "", ErrFlowInProgress
	}
	sessionID := travelmate.NewID()
	w := waiter{ch: make(chan outcome, 1), cacheKey: key}
	b.waiters[sessionID] = w
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		delete(b.waiters, sessionID)
		b.mu.Unlock()
	}()

	authURL := b.buildAuthURL(sessionID, provider, scopes)
	b.logger.Info("identity: authorization flow started", "provider", provider, "session_id", sessionID)
	if onAuthURL != nil {
		onAuthURL(authURL)
	}

	timer := time.NewTimer(b.waitTimeout)
	defer timer.Stop()
	select {
	case out := <-w.ch:
		if out.err != nil {
			return "", fmt.Errorf("identity exchange: %w", out.err)
		}
		if out.expiresIn > 0 {
			b.mu.Lock()
			b.cache[key] = cachedToken{value: out.token, expires: b.now().Add(out.expiresIn)}
			b.mu.Unlock()
		}
		b.logger.Info("identity: authorization resolved", "provider", provider, "session_id", sessionID)
		return out.token, nil
	case <-timer.C:
		b.logger.Warn("identity: authorization wait elapsed", "provider", provider, "session_id", sessionID, "timeout", b.waitTimeout)
		return "", fmt.Errorf("waited %s for session %s: %w", b.waitTimeout, sessionID, travelmate.ErrAuthorizationTimeout)
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// CompleteAuthorization implements travelmate.AuthorizationCompleter. It
// runs the exchange and releases the waiter registered for sessionID. The
// exchange error is both returned (surfaced as 502 by the callback route)
// and delivered to the blocked Resolve call.
func (b *Broker) CompleteAuthorization(ctx context.Context, sessionID string, d travelmate.TokenDescriptor) error {
	b.mu.Lock()
	w, ok := b.waiters[sessionID]
	if ok {
		delete(b.waiters, sessionID)
	}
	b.mu.Unlock()
	if !ok {
		return fmt.Errorf("session %s: %w", sessionID, ErrUnknownSession)
	}

	token, expiresIn, err := b.exchange(ctx, sessionID, d)
	w.ch <- outcome{token: token, expiresIn: expiresIn, err: err}
	if err != nil {
		b.logger.Error("identity: exchange failed", "session_id", sessionID, "error", err)
		return fmt.Errorf("exchange for session %s: %w", sessionID, err)
	}
	return nil
}

// buildAuthURL assembles the consent URL the user must open.
func (b *Broker) buildAuthURL(sessionID, provider string, scopes []string) string {
	q := url.Values{}
	q.Set("session_id", sessionID)
	q.Set("provider", provider)
	if len(scopes) > 0 {
		q.Set("scope", strings.Join(scopes, " "))
	}
	if b.callbackURL != "" {
		q.Set("redirect_uri", b.callbackURL)
	}
	sep := "?"
	if strings.Contains(b.authorizeURL, "?") {
		sep = "&"
	}
	return b.authorizeURL + sep + q.Encode()
}

func cacheKey(provider string, scopes []string) string {
	return provider + "|" + strings.Join(scopes, " ")
}

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }

// Compile-time interface checks.
var (
	_ travelmate.TokenResolver          = (*Broker)(nil)
	_ travelmate.AuthorizationCompleter = (*Broker)(nil)
)
