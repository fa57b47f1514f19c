package travelmate

import "context"

// Preference is one remembered fact about a user (seat preference, budget,
// dietary needs). Keyed by user and preference key.
type Preference struct {
	UserID    string
	Key       string
	Value     string
	UpdatedAt int64
}

// Itinerary is a generated travel plan persisted for later retrieval.
type Itinerary struct {
	ID          string
	UserID      string
	Destination string
	Content     string
	CreatedAt   int64
}

// PreferenceStore abstracts persistence of user preferences and generated
// itineraries. Implementations: store/sqlite, store/postgres.
type PreferenceStore interface {
	// --- Preferences ---
	SavePreference(ctx context.Context, p Preference) error
	Preferences(ctx context.Context, userID string) ([]Preference, error)

	// --- Itineraries ---
	SaveItinerary(ctx context.Context, it Itinerary) error
	Itineraries(ctx context.Context, userID string, limit int) ([]Itinerary, error)

	// --- Lifecycle ---
	Init(ctx context.Context) error
	Close() error
}
