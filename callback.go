package travelmate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"
)

// Callback server routes.
const (
	PingPath     = "/ping"
	TokenPath    = "/token"
	CallbackPath = "/callback"
)

// DefaultCallbackPort is the local port the callback server binds when no
// address is configured.
const DefaultCallbackPort = 9090

const successPage = `<!DOCTYPE html>
<html>
<head>
    <title>Authorization Successful</title>
    <style>
        body {
            margin: 0; padding: 0; height: 100vh;
            display: flex; justify-content: center; align-items: center;
            font-family: Arial, sans-serif; background-color: #f5f5f5;
        }
        .container {
            text-align: center; padding: 2rem; background-color: white;
            border-radius: 8px; box-shadow: 0 2px 10px rgba(0, 0, 0, 0.1);
        }
        h1 { color: #28a745; margin: 0; }
    </style>
</head>
<body>
    <div class="container">
        <h1>Authorization Successful</h1>
        <p>You can now close this window and return to the application.</p>
    </div>
</body>
</html>
`

// CallbackServer is the long-lived local HTTP listener that receives the
// authorization provider's redirect and completes the pending identity
// exchange. Three routes: GET /ping (readiness), POST /token (stores the
// pending descriptor), GET /callback?session_id= (relays completion).
//
// The server is a dumb relay: completing the callback unblocks whichever
// Resolve call is parked inside the AuthorizationCompleter for that
// session. Bad requests return structured statuses and never crash the
// listener; failing to bind the port is a hard startup failure.
type CallbackServer struct {
	completer AuthorizationCompleter
	mailbox   *Mailbox
	logger    *slog.Logger
	tracer    Tracer

	// completeTimeout bounds the outbound completion call so a slow
	// identity provider cannot hold the HTTP worker indefinitely. Distinct
	// from the Runner's overall authorization wait.
	completeTimeout time.Duration

	srv *http.Server
	ln  net.Listener
}

// CallbackOption configures a CallbackServer.
type CallbackOption func(*CallbackServer)

// CallbackLogger sets the structured logger for request and relay events.
func CallbackLogger(l *slog.Logger) CallbackOption {
	return func(s *CallbackServer) { s.logger = l }
}

// CallbackTracer sets the tracer for callback route spans.
func CallbackTracer(t Tracer) CallbackOption {
	return func(s *CallbackServer) { s.tracer = t }
}

// CallbackCompleteTimeout bounds the identity-provider completion call made
// from the callback route (default: 10s).
func CallbackCompleteTimeout(d time.Duration) CallbackOption {
	return func(s *CallbackServer) { s.completeTimeout = d }
}

// NewCallbackServer creates a callback server relaying completions into
// completer.
func NewCallbackServer(completer AuthorizationCompleter, opts ...CallbackOption) *CallbackServer {
	s := &CallbackServer{
		completer:       completer,
		mailbox:         &Mailbox{},
		logger:          nopLogger,
		completeTimeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the route mux. Exposed so tests can drive the server
// through httptest without binding a port.
func (s *CallbackServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET "+PingPath, s.handlePing)
	mux.HandleFunc("POST "+TokenPath, s.handleToken)
	mux.HandleFunc("GET "+CallbackPath, s.handleCallback)
	return mux
}

// Start binds addr and serves in the background. Binding failure is
// returned immediately and is not retried. Use Shutdown to stop.
func (s *CallbackServer) Start(addr string) error {
	if addr == "" {
		addr = fmt.Sprintf("127.0.0.1:%d", DefaultCallbackPort)
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("callback: bind %s: %w", addr, err)
	}
	s.ln = ln
	s.srv = &http.Server{Handler: s.Handler()}
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("callback server stopped", "error", err)
		}
	}()
	s.logger.Info("callback server listening", "addr", ln.Addr().String())
	return nil
}

// Addr returns the bound listen address, or "" before Start.
func (s *CallbackServer) Addr() string {
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

// Shutdown gracefully stops the listener.
func (s *CallbackServer) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

func (s *CallbackServer) handlePing(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	io.WriteString(w, `{"status":"success"}`)
}

func (s *CallbackServer) handleToken(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid token payload", http.StatusBadRequest)
		return
	}
	s.mailbox.Store(TokenDescriptor{Value: body.Token})
	s.logger.Debug("callback: token descriptor stored")
	w.WriteHeader(http.StatusNoContent)
}

func (s *CallbackServer) handleCallback(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		// Validation failure: respond before touching the mailbox so a
		// malformed redirect cannot consume the pending descriptor.
		http.Error(w, "missing session_id query parameter", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	var span Span
	if s.tracer != nil {
		ctx, span = s.tracer.Start(ctx, "callback.complete", StringAttr("session_id", sessionID))
		defer span.End()
	}

	d, ok := s.mailbox.Take()
	if !ok {
		// Redirect arrived before any POST /token. Ordering bug on the
		// caller side; log it, do not retry.
		s.logger.Error("callback: redirect before token stored", "session_id", sessionID, "error", ErrNoPendingToken)
		if span != nil {
			span.Error(ErrNoPendingToken)
		}
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	ctx, cancel := context.WithTimeout(ctx, s.completeTimeout)
	defer cancel()
	start := time.Now()
	if err := s.completer.CompleteAuthorization(ctx, sessionID, d); err != nil {
		s.logger.Error("callback: completion failed", "session_id", sessionID, "error", err, "duration", time.Since(start))
		if span != nil {
			span.Error(err)
		}
		http.Error(w, "authorization completion failed", http.StatusBadGateway)
		return
	}

	s.logger.Info("callback: authorization completed", "session_id", sessionID, "duration", time.Since(start))
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	io.WriteString(w, successPage)
}

// CallbackURL returns the redirect URL the authorization provider should
// send the user's browser to.
func CallbackURL(baseURL string) string {
	return baseURL + CallbackPath
}

// PostToken stores the caller's token in a running callback server so the
// eventual redirect can complete the exchange. Short timeout; the server is
// local.
func PostToken(ctx context.Context, baseURL, token string) error {
	if token == "" {
		return nil
	}
	payload, err := json.Marshal(map[string]string{"token": token})
	if err != nil {
		return fmt.Errorf("callback: marshal token: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+TokenPath, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("callback: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("callback: post token: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		body, _ := io.ReadAll(resp.Body)
		return &ErrHTTP{Status: resp.StatusCode, Body: string(body)}
	}
	return nil
}

// WaitForReady polls GET /ping every two seconds until the server answers
// 200 or the budget elapses (default 40s when timeout is zero). Reports
// whether the server became ready.
func WaitForReady(ctx context.Context, baseURL string, timeout time.Duration) bool {
	if timeout <= 0 {
		timeout = 40 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
	for {
		if pingOnce(ctx, baseURL) {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
		}
	}
}

func pingOnce(ctx context.Context, baseURL string) bool {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+PingPath, nil)
	if err != nil {
		return false
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	return resp.StatusCode == http.StatusOK
}
