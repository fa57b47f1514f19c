package travelmate

import (
	"errors"
	"fmt"
	"strconv"
	"time"
)

// Sentinel errors for the authorization flow. Wrap with %w so callers can
// match with errors.Is.
var (
	// ErrAuthorizationTimeout is returned when the bounded wait for the
	// browser authorization to complete elapses.
	ErrAuthorizationTimeout = errors.New("authorization timed out")

	// ErrAuthorizationDenied is returned when the identity provider reports
	// that the user declined or the exchange was rejected.
	ErrAuthorizationDenied = errors.New("authorization denied")

	// ErrNoPendingToken is returned by the callback route when the redirect
	// arrives before any token descriptor was stored. An ordering bug on the
	// caller side, not a user error.
	ErrNoPendingToken = errors.New("no pending token descriptor")

	// ErrUnauthorized is returned by clients when the upstream rejects the
	// bearer credential (HTTP 401).
	ErrUnauthorized = errors.New("unauthorized")
)

// ErrProvider reports a failure from an external collaborator (model backend,
// identity provider, gateway).
type ErrProvider struct {
	Provider string
	Message  string
}

func (e *ErrProvider) Error() string {
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

// ErrHTTP reports a non-2xx response from an upstream HTTP call.
// RetryAfter carries the parsed Retry-After header when present, used by the
// retry middleware to floor its backoff delay.
type ErrHTTP struct {
	Status     int
	Body       string
	RetryAfter time.Duration
}

func (e *ErrHTTP) Error() string {
	return fmt.Sprintf("http %d: %s", e.Status, e.Body)
}

// ParseRetryAfter parses a Retry-After header value. Supports the
// delta-seconds form and the HTTP-date form. Returns 0 when absent or
// unparseable.
func ParseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if t, err := time.Parse(time.RFC1123, v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}
