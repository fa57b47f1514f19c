package drive

import (
	"context"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shyam-menon/travelmate"
)

func TestItineraryFileName(t *testing.T) {
	now := time.Date(2026, 9, 10, 12, 0, 0, 0, time.UTC)
	got := ItineraryFileName("New York", now)
	want := "new_york_itinerary_20260910.txt"
	if got != want {
		t.Errorf("ItineraryFileName = %q, want %q", got, want)
	}
}

func TestUpload(t *testing.T) {
	var gotAuth, gotMeta, gotMedia string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
		if err != nil {
			t.Errorf("parse content type: %v", err)
		}
		mr := multipart.NewReader(r.Body, params["boundary"])
		parts := []*string{&gotMeta, &gotMedia}
		for _, dst := range parts {
			p, err := mr.NextPart()
			if err != nil {
				t.Fatalf("next part: %v", err)
			}
			b, _ := io.ReadAll(p)
			*dst = string(b)
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"id":"f1","name":"rome_itinerary_20260910.txt","webViewLink":"https://drive.example/f1"}`)
	}))
	t.Cleanup(srv.Close)

	c := New(WithUploadURL(srv.URL), WithHTTPClient(srv.Client()))
	f, err := c.Upload(context.Background(), "tok", "rome_itinerary_20260910.txt", "Day 1: Colosseum")
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}

	if gotAuth != "Bearer tok" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if !strings.Contains(gotMeta, `"name":"rome_itinerary_20260910.txt"`) {
		t.Errorf("metadata part = %q", gotMeta)
	}
	if gotMedia != "Day 1: Colosseum" {
		t.Errorf("media part = %q", gotMedia)
	}
	if f.ID != "f1" || f.ViewLink != "https://drive.example/f1" {
		t.Errorf("file = %+v", f)
	}
}

func TestUploadNoToken(t *testing.T) {
	c := New()
	_, err := c.Upload(context.Background(), "", "n", "c")
	if !errors.Is(err, travelmate.ErrUnauthorized) {
		t.Errorf("err = %v, want ErrUnauthorized", err)
	}
}

func TestUploadTokenRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
	}))
	t.Cleanup(srv.Close)

	c := New(WithUploadURL(srv.URL), WithHTTPClient(srv.Client()))
	_, err := c.Upload(context.Background(), "stale", "n", "c")
	if !errors.Is(err, travelmate.ErrUnauthorized) {
		t.Errorf("err = %v, want ErrUnauthorized", err)
	}
}

func TestUploadServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusForbidden)
	}))
	t.Cleanup(srv.Close)

	c := New(WithUploadURL(srv.URL), WithHTTPClient(srv.Client()))
	_, err := c.Upload(context.Background(), "tok", "n", "c")

	var httpErr *travelmate.ErrHTTP
	if !errors.As(err, &httpErr) || httpErr.Status != http.StatusForbidden {
		t.Errorf("err = %v, want ErrHTTP 403", err)
	}
}
