// Package database stores per-user watermark profiles.
package database

import (
	"context"
	"fmt"

	"github.com/kozaktomas/photo-variants/internal/config"
	"github.com/kozaktomas/photo-variants/internal/database/postgres"
	"github.com/kozaktomas/photo-variants/internal/database/sqlite"
	"github.com/kozaktomas/photo-variants/internal/watermark"
)

// ProfileReader provides read access to watermark profiles
type ProfileReader interface {
	// Get returns the profile of a user, or nil when the user has none
	Get(ctx context.Context, userID string) (*watermark.Profile, error)
}

// ProfileStore provides read and write access to watermark profiles
type ProfileStore interface {
	ProfileReader

	// Set creates or replaces the profile of a user, creating the user
	// record when needed
	Set(ctx context.Context, userID string, p watermark.Profile) error

	// Close releases the underlying connection
	Close() error
}

// Open returns the PostgreSQL store when DATABASE_URL is set, otherwise the
// local SQLite store.
func Open(ctx context.Context, cfg *config.DatabaseConfig) (ProfileStore, error) {
	if cfg.URL != "" {
		pool, err := postgres.NewPool(cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create PostgreSQL pool: %w", err)
		}
		if _, err := pool.Migrate(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		return postgres.NewProfileRepository(pool), nil
	}

	store, err := sqlite.Open(ctx, cfg.SQLitePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite store: %w", err)
	}
	return store, nil
}
