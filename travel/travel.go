// Package travel implements the itinerary-planning agent. It composes a
// chat model, the partner-tool gateway, the drive uploader, and the
// preference store behind the travelmate.Agent interface.
//
// Saving to the drive needs the user's credential. When the prompt asks
// for a save and the task carries no access token, Invoke returns a
// structured needs-authorization response instead of failing, which makes
// the runner start the browser flow and retry.
package travel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shyam-menon/travelmate"
	"github.com/shyam-menon/travelmate/drive"
)

const systemPrompt = `You are a helpful travel planning assistant with the ability to save itineraries to the user's drive.
When users ask you to create travel plans, generate detailed itineraries and offer to save them.
Always format itineraries clearly with day-by-day breakdowns, times, and activities.`

// Model is the chat completion backend (provider/openaicompat satisfies it).
type Model interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
}

// Gateway exposes the partner tools used to enrich itineraries.
type Gateway interface {
	SearchFlights(ctx context.Context, origin, destination, date string) (json.RawMessage, error)
	CurrentWeather(ctx context.Context, city string) (json.RawMessage, error)
	ConvertCurrency(ctx context.Context, from, to string, amount float64) (json.RawMessage, error)
}

// Uploader stores the finished itinerary in the user's drive.
type Uploader interface {
	Upload(ctx context.Context, accessToken, name, content string) (drive.File, error)
}

// Agent plans trips. Implements travelmate.Agent.
type Agent struct {
	model    Model
	gateway  Gateway
	uploader Uploader
	store    travelmate.PreferenceStore
	logger   *slog.Logger
	now      func() time.Time
}

// Option configures an Agent.
type Option func(*Agent)

// WithGateway enables weather enrichment through the partner gateway.
func WithGateway(g Gateway) Option {
	return func(a *Agent) { a.gateway = g }
}

// WithUploader enables saving itineraries to the user's drive.
func WithUploader(u Uploader) Option {
	return func(a *Agent) { a.uploader = u }
}

// WithStore enables preference lookups and itinerary persistence.
func WithStore(s travelmate.PreferenceStore) Option {
	return func(a *Agent) { a.store = s }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Agent) { a.logger = l }
}

// New creates the travel agent over the given model.
func New(model Model, opts ...Option) *Agent {
	a := &Agent{
		model:  model,
		logger: slog.New(discardHandler{}),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Name implements travelmate.Agent.
func (a *Agent) Name() string { return "travelmate" }

// Invoke builds the itinerary and, when asked, saves it to the drive.
// A save request without a usable token yields a needs-authorization
// response rather than an error.
func (a *Agent) Invoke(ctx context.Context, task travelmate.Task) (travelmate.Response, error) {
	destination := parseDestination(task.Prompt)

	prompt := a.buildPrompt(ctx, task, destination)
	text, err := a.model.Complete(ctx, systemPrompt, prompt)
	if err != nil {
		return travelmate.Response{}, fmt.Errorf("travel: model: %w", err)
	}

	if a.store != nil && task.UserID != "" && destination != "" {
		err := a.store.SaveItinerary(ctx, travelmate.Itinerary{
			UserID:      task.UserID,
			Destination: destination,
			Content:     text,
		})
		if err != nil {
			// Persistence is best-effort; the reply is already built.
			a.logger.Warn("travel: itinerary not persisted", "user_id", task.UserID, "error", err)
		}
	}

	if !wantsSave(task.Prompt) || a.uploader == nil {
		return travelmate.Response{Text: text}, nil
	}

	if task.AccessToken == "" {
		a.logger.Info("travel: save requested without credential", "user_id", task.UserID)
		return travelmate.Response{
			Text:               "Drive authentication is required. Please wait while we set up the authorization.",
			NeedsAuthorization: true,
		}, nil
	}

	name := drive.ItineraryFileName(destinationOrDefault(destination), a.now())
	f, err := a.uploader.Upload(ctx, task.AccessToken, name, text)
	if err != nil {
		if isUnauthorized(err) {
			a.logger.Info("travel: drive rejected credential", "user_id", task.UserID)
			return travelmate.Response{
				Text:               "Drive authentication is required. The provided credential was rejected.",
				NeedsAuthorization: true,
			}, nil
		}
		return travelmate.Response{}, fmt.Errorf("travel: save itinerary: %w", err)
	}

	text += fmt.Sprintf("\n\nItinerary saved to your drive: %s", f.Name)
	if f.ViewLink != "" {
		text += fmt.Sprintf(" (%s)", f.ViewLink)
	}
	return travelmate.Response{Text: text}, nil
}

// buildPrompt assembles the model prompt from the user request, stored
// preferences, and live weather when available. Enrichment failures are
// logged and skipped; the agent still answers.
func (a *Agent) buildPrompt(ctx context.Context, task travelmate.Task, destination string) string {
	var b strings.Builder
	b.WriteString(task.Prompt)

	if a.store != nil && task.UserID != "" {
		prefs, err := a.store.Preferences(ctx, task.UserID)
		if err != nil {
			a.logger.Warn("travel: preferences unavailable", "user_id", task.UserID, "error", err)
		} else if len(prefs) > 0 {
			b.WriteString("\n\nKnown traveler preferences:")
			for _, p := range prefs {
				fmt.Fprintf(&b, "\n- %s: %s", p.Key, p.Value)
			}
		}
	}

	if a.gateway != nil && destination != "" {
		weather, err := a.gateway.CurrentWeather(ctx, destination)
		if err != nil {
			a.logger.Warn("travel: weather lookup failed", "city", destination, "error", err)
		} else {
			fmt.Fprintf(&b, "\n\nCurrent weather in %s: %s", destination, weather)
		}
	}

	return b.String()
}

// parseDestination pulls the destination out of prompts like
// "plan a trip to Rome and save it". Empty when no "to <place>" is found.
func parseDestination(prompt string) string {
	lower := strings.ToLower(prompt)
	idx := strings.Index(lower, " to ")
	if idx < 0 {
		return ""
	}
	rest := prompt[idx+4:]
	end := len(rest)
	for _, stop := range []string{" and ", ",", ".", " for ", " in ", "?", "!"} {
		if i := strings.Index(strings.ToLower(rest), stop); i >= 0 && i < end {
			end = i
		}
	}
	return strings.TrimSpace(rest[:end])
}

func destinationOrDefault(destination string) string {
	if destination == "" {
		return "trip"
	}
	return destination
}

// wantsSave reports whether the prompt asks to store the itinerary.
func wantsSave(prompt string) bool {
	lower := strings.ToLower(prompt)
	return strings.Contains(lower, "save") || strings.Contains(lower, "drive")
}

func isUnauthorized(err error) bool {
	return errors.Is(err, travelmate.ErrUnauthorized)
}

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }

var _ travelmate.Agent = (*Agent)(nil)
