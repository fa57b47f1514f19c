package openaicompat

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shyam-menon/travelmate"
)

func TestComplete(t *testing.T) {
	var gotPath, gotAuth string
	var gotReq chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		json.NewDecoder(r.Body).Decode(&gotReq)
		io.WriteString(w, `{"choices":[{"message":{"role":"assistant","content":"Day 1: Colosseum"}}]}`)
	}))
	t.Cleanup(srv.Close)

	c := New("key", "gpt-test", srv.URL, WithHTTPClient(srv.Client()), WithTemperature(0.2))
	out, err := c.Complete(context.Background(), "You plan trips.", "Plan Rome")
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}

	if out != "Day 1: Colosseum" {
		t.Errorf("output = %q", out)
	}
	if gotPath != "/chat/completions" {
		t.Errorf("path = %q", gotPath)
	}
	if gotAuth != "Bearer key" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if len(gotReq.Messages) != 2 || gotReq.Messages[0].Role != "system" || gotReq.Messages[1].Content != "Plan Rome" {
		t.Errorf("messages = %+v", gotReq.Messages)
	}
	if gotReq.Temperature == nil || *gotReq.Temperature != 0.2 {
		t.Errorf("temperature = %v", gotReq.Temperature)
	}
}

func TestCompleteHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "7")
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	t.Cleanup(srv.Close)

	c := New("key", "m", srv.URL, WithHTTPClient(srv.Client()))
	_, err := c.Complete(context.Background(), "", "p")

	var httpErr *travelmate.ErrHTTP
	if !errors.As(err, &httpErr) || httpErr.Status != 429 {
		t.Fatalf("err = %v, want ErrHTTP 429", err)
	}
	if httpErr.RetryAfter.Seconds() != 7 {
		t.Errorf("RetryAfter = %v, want 7s", httpErr.RetryAfter)
	}
}

func TestCompleteEmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"choices":[]}`)
	}))
	t.Cleanup(srv.Close)

	c := New("key", "m", srv.URL, WithHTTPClient(srv.Client()))
	_, err := c.Complete(context.Background(), "", "p")

	var provErr *travelmate.ErrProvider
	if !errors.As(err, &provErr) {
		t.Fatalf("err = %v, want ErrProvider", err)
	}
}
