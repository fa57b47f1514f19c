// Package postgres implements travelmate.PreferenceStore using PostgreSQL.
//
// The Store accepts an externally-owned *pgxpool.Pool via constructor
// injection. The caller creates and closes the pool.
package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shyam-menon/travelmate"
)

// Option configures a PostgreSQL Store.
type Option func(*Store)

// WithLogger sets a structured logger for the store.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// Store implements travelmate.PreferenceStore backed by PostgreSQL.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

var _ travelmate.PreferenceStore = (*Store)(nil)

var nopLogger = slog.New(discardHandler{})

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }

// New creates a Store using an existing pgxpool.Pool.
// The caller owns the pool and is responsible for closing it.
func New(pool *pgxpool.Pool, opts ...Option) *Store {
	s := &Store{pool: pool, logger: nopLogger}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Init creates all required tables. Safe to call multiple times.
func (s *Store) Init(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS preferences (
			user_id TEXT NOT NULL,
			key TEXT NOT NULL,
			value TEXT NOT NULL,
			updated_at BIGINT NOT NULL,
			PRIMARY KEY (user_id, key)
		)`,
		`CREATE TABLE IF NOT EXISTS itineraries (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			destination TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_itineraries_user ON itineraries(user_id, created_at DESC)`,
	}
	for _, ddl := range stmts {
		if _, err := s.pool.Exec(ctx, ddl); err != nil {
			return fmt.Errorf("create table: %w", err)
		}
	}
	return nil
}

// SavePreference inserts or updates one preference for a user.
func (s *Store) SavePreference(ctx context.Context, p travelmate.Preference) error {
	start := time.Now()
	if p.UpdatedAt == 0 {
		p.UpdatedAt = travelmate.NowUnix()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO preferences (user_id, key, value, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`,
		p.UserID, p.Key, p.Value, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save preference: %w", err)
	}
	s.logger.Debug("postgres: preference saved", "user_id", p.UserID, "key", p.Key, "duration", time.Since(start))
	return nil
}

// Preferences returns all stored preferences for a user.
func (s *Store) Preferences(ctx context.Context, userID string) ([]travelmate.Preference, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT user_id, key, value, updated_at FROM preferences
		WHERE user_id = $1 ORDER BY key`, userID)
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
	_, err := s.pool.Exec(ctx, `
		INSERT INTO itineraries (id, user_id, destination, content, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		it.ID, it.UserID, it.Destination, it.Content, it.CreatedAt)
	if err != nil {
		return fmt.Errorf("save itinerary: %w", err)
	}
	s.logger.Debug("postgres: itinerary saved", "user_id", it.UserID, "destination", it.Destination, "duration", time.Since(start))
	return nil
}

// Itineraries returns the user's itineraries, newest first. limit <= 0
// means no limit.
func (s *Store) Itineraries(ctx context.Context, userID string, limit int) ([]travelmate.Itinerary, error) {
	q := `SELECT id, user_id, destination, content, created_at FROM itineraries
		WHERE user_id = $1 ORDER BY created_at DESC`
	args := []any{userID}
	if limit > 0 {
		q += ` LIMIT $2`
		args = append(args, limit)
	}
	rows, err := s.pool.Query(ctx, q, args...)
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
	return items, nil
}

// Close is a no-op; the pool is owned by the caller.
func (s *Store) Close() error { return nil }
