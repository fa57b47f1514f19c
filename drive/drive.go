// Package drive uploads generated itineraries to the user's file storage
// using the per-invocation bearer token resolved through the authorization
// flow. A missing or rejected token surfaces travelmate.ErrUnauthorized,
// which the agent converts into a needs-authorization outcome.
package drive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/shyam-menon/travelmate"
)

// DefaultUploadURL is the multipart upload endpoint of the Drive v3 API.
const DefaultUploadURL = "https://www.googleapis.com/upload/drive/v3/files"

// Scope required to create files in the user's drive.
const ScopeFile = "https://www.googleapis.com/auth/drive.file"

// File describes an uploaded file.
type File struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	ViewLink string `json:"webViewLink"`
}

// Client uploads files with a caller-supplied access token. The token is an
// argument to Upload, never client state, so one client serves concurrent
// runs without leaking credentials between them.
type Client struct {
	uploadURL  string
	httpClient *http.Client
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithUploadURL overrides the upload endpoint, mainly for tests.
func WithUploadURL(u string) Option {
	return func(c *Client) { c.uploadURL = u }
}

// WithLogger sets the structured logger for upload events.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// New creates a drive client.
func New(opts ...Option) *Client {
	c := &Client{
		uploadURL:  DefaultUploadURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     slog.New(discardHandler{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ItineraryFileName builds the upload name for a destination's itinerary:
// lowercase, spaces replaced, suffixed with the date (YYYYMMDD).
func ItineraryFileName(destination string, now time.Time) string {
	slug := strings.ReplaceAll(strings.ToLower(destination), " ", "_")
	return fmt.Sprintf("%s_itinerary_%s.txt", slug, now.Format("20060102"))
}

// Upload creates a plain-text file with the given name and content.
// Returns ErrUnauthorized when accessToken is empty or rejected upstream.
func (c *Client) Upload(ctx context.Context, accessToken, name, content string) (File, error) {
	if accessToken == "" {
		return File{}, fmt.Errorf("drive: no access token: %w", travelmate.ErrUnauthorized)
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	metaHeader := textproto.MIMEHeader{}
	metaHeader.Set("Content-Type", "application/json; charset=UTF-8")
	metaPart, err := mw.CreatePart(metaHeader)
	if err != nil {
		return File{}, fmt.Errorf("drive: metadata part: %w", err)
	}
	if err := json.NewEncoder(metaPart).Encode(map[string]string{"name": name}); err != nil {
		return File{}, fmt.Errorf("drive: encode metadata: %w", err)
	}

	mediaHeader := textproto.MIMEHeader{}
	mediaHeader.Set("Content-Type", "text/plain")
	mediaPart, err := mw.CreatePart(mediaHeader)
	if err != nil {
		return File{}, fmt.Errorf("drive: media part: %w", err)
	}
	if _, err := io.WriteString(mediaPart, content); err != nil {
		return File{}, fmt.Errorf("drive: write content: %w", err)
	}
	if err := mw.Close(); err != nil {
		return File{}, fmt.Errorf("drive: close multipart: %w", err)
	}

	url := c.uploadURL + "?uploadType=multipart&fields=id,name,webViewLink"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &body)
	if err != nil {
		return File{}, fmt.Errorf("drive: create request: %w", err)
	}
	req.Header.Set("Content-Type", "multipart/related; boundary="+mw.Boundary())
	req.Header.Set("Authorization", "Bearer "+accessToken)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return File{}, fmt.Errorf("drive: upload: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return File{}, fmt.Errorf("drive: token rejected: %w", travelmate.ErrUnauthorized)
	case resp.StatusCode != http.StatusOK:
		respBody, _ := io.ReadAll(resp.Body)
		return File{}, &travelmate.ErrHTTP{Status: resp.StatusCode, Body: string(respBody)}
	}

	var f File
	if err := json.NewDecoder(resp.Body).Decode(&f); err != nil {
		return File{}, fmt.Errorf("drive: decode response: %w", err)
	}
	c.logger.Info("drive: file uploaded", "name", f.Name, "file_id", f.ID, "duration", time.Since(start))
	return f, nil
}

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }
