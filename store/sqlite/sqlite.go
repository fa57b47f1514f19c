// Package sqlite implements travelmate.PreferenceStore using pure-Go
// SQLite. Zero CGO required.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/shyam-menon/travelmate"

	_ "modernc.org/sqlite" // pure-Go SQLite driver
)

// StoreOption configures a SQLite Store.
type StoreOption func(*Store)

// WithLogger sets a structured logger for the store. When set, the store
// emits debug logs for every operation including timing and key
// parameters. If not set, no logs are emitted.
func WithLogger(l *slog.Logger) StoreOption {
	return func(s *Store) { s.logger = l }
}

// Store implements travelmate.PreferenceStore backed by a local SQLite
// file.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ travelmate.PreferenceStore = (*Store)(nil)

// nopLogger is a logger that discards all output.
var nopLogger = slog.New(discardHandler{})

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }

// New creates a Store using a local SQLite file at dbPath.
// It opens a single shared connection pool with SetMaxOpenConns(1) so that
// all goroutines serialize through one connection, eliminating SQLITE_BUSY
// errors caused by concurrent writers opening independent connections.
func New(dbPath string, opts ...StoreOption) *Store {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		// sql.Open only fails when the driver is not registered; with the
		// blank import above that never happens.
		panic(fmt.Sprintf("sqlite: open driver: %v", err))
	}
	db.SetMaxOpenConns(1)
	s := &Store{db: db, logger: nopLogger}
	for _, o := range opts {
		o(s)
	}
	s.logger.Debug("sqlite: store opened", "path", dbPath)
	return s
}

// Init creates all required tables.
func (s *Store) Init(ctx context.Context) error {
	start := time.Now()
	s.logger.Debug("sqlite: init started")
	tables := []string{
		`CREATE TABLE IF NOT EXISTS preferences (
			user_id TEXT NOT NULL,
			key TEXT NOT NULL,
			value TEXT NOT NULL,
			updated_at INTEGER NOT NULL,
			PRIMARY KEY (user_id, key)
		)`,
		`CREATE TABLE IF NOT EXISTS itineraries (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			destination TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_itineraries_user ON itineraries(user_id, created_at DESC)`,
	}
	for _, ddl := range tables {
		if _, err := s.db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("create table: %w", err)
		}
	}
	s.logger.Debug("sqlite: init done", "duration", time.Since(start))
	return nil
}

// SavePreference inserts or updates one preference for a user.
func (s *Store) SavePreference(ctx context.Context, p travelmate.Preference) error {
	start := time.Now()
	if p.UpdatedAt == 0 {
		p.UpdatedAt = travelmate.NowUnix()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO preferences (user_id, key, value, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		p.UserID, p.Key, p.Value, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save preference: %w", err)
	}
	s.logger.Debug("sqlite: preference saved", "user_id", p.UserID, "key", p.Key, "duration", time.Since(start))
	return nil
}

// Preferences returns all stored preferences for a user.
func (s *Store) Preferences(ctx context.Context, userID string) ([]travelmate.Preference, error) {
	start := time.Now()
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, key, value, updated_at FROM preferences
		WHERE user_id = ? ORDER BY key`, userID)
	if err != nil {
		return nil, fmt.Errorf("query preferences: %w", err)
	}
	defer rows.Close()

	var prefs []travelmate.Preference
	for rows.Next() {
		var p travelmate.Preference
		if err := rows.Scan(&p.UserID, &p.Key, &p.Value, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan preference: %w", err)
		}
		prefs = append(prefs, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate preferences: %w", err)
	}
	s.logger.Debug("sqlite: preferences loaded", "user_id", userID, "count", len(prefs), "duration", time.Since(start))
	return prefs, nil
}

// SaveItinerary persists a generated itinerary.
func (s *Store) SaveItinerary(ctx context.Context, it travelmate.Itinerary) error {
	start := time.Now()
	if it.ID == "" {
		it.ID = travelmate.NewID()
	}
	if it.CreatedAt == 0 {
		it.CreatedAt = travelmate.NowUnix()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO itineraries (id, user_id, destination, content, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		it.ID, it.UserID, it.Destination, it.Content, it.CreatedAt)
	if err != nil {
		return fmt.Errorf("save itinerary: %w", err)
	}
	s.logger.Debug("sqlite: itinerary saved", "user_id", it.UserID, "destination", it.Destination, "duration", time.Since(start))
	return nil
}

// Itineraries returns the user's itineraries, newest first. limit <= 0
// means no limit.
func (s *Store) Itineraries(ctx context.Context, userID string, limit int) ([]travelmate.Itinerary, error) {
	start := time.Now()
	if limit <= 0 {
		limit = -1 // SQLite: negative LIMIT disables the cap
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, destination, content, created_at FROM itineraries
		WHERE user_id = ? ORDER BY created_at DESC LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("query itineraries: %w", err)
	}
	defer rows.Close()

	var items []travelmate.Itinerary
	for rows.Next() {
		var it travelmate.Itinerary
		if err := rows.Scan(&it.ID, &it.UserID, &it.Destination, &it.Content, &it.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan itinerary: %w", err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate itineraries: %w", err)
	}
	s.logger.Debug("sqlite: itineraries loaded", "user_id", userID, "count", len(items), "duration", time.Since(start))
	return items, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}
