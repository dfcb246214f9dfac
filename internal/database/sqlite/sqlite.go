// Package sqlite is the local, single-file watermark profile store.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/kozaktomas/photo-variants/internal/watermark"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id        TEXT PRIMARY KEY,
	username  TEXT,
	createdAt INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS watermarks (
	userId    TEXT PRIMARY KEY REFERENCES users(id),
	filePath  TEXT NOT NULL,
	sha256    TEXT NOT NULL,
	placement TEXT NOT NULL,
	opacity   INTEGER NOT NULL,
	margin    INTEGER NOT NULL,
	updatedAt INTEGER NOT NULL
);`

// Store keeps profiles in a SQLite file.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at path and ensures the schema.
func Open(ctx context.Context, path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection serializes writers.
	db.SetMaxOpenConns(1)

	for _, stmt := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		schema,
	} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to prepare database: %w", err)
		}
	}

	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Get returns the profile of userID, or nil when there is none.
func (s *Store) Get(ctx context.Context, userID string) (*watermark.Profile, error) {
	var (
		p         watermark.Profile
		placement string
		updatedAt int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT filePath, sha256, placement, opacity, margin, updatedAt
		FROM watermarks WHERE userId = ?`, userID,
	).Scan(&p.OverlayPath, &p.SHA256, &placement, &p.Opacity, &p.Margin, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get watermark: %w", err)
	}
	p.Placement = watermark.Placement(placement)
	p.UpdatedAt = time.UnixMilli(updatedAt)
	return &p, nil
}

// Set upserts the profile of userID.
func (s *Store) Set(ctx context.Context, userID string, p watermark.Profile) error {
	if userID == "" {
		return errors.New("user id is required")
	}
	p = p.Normalize()
	now := time.Now().UnixMilli()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO users (id, createdAt) VALUES (?, ?) ON CONFLICT(id) DO NOTHING`,
		userID, now,
	); err != nil {
		return fmt.Errorf("ensure user: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO watermarks (userId, filePath, sha256, placement, opacity, margin, updatedAt)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(userId) DO UPDATE SET
			filePath = excluded.filePath,
			sha256 = excluded.sha256,
			placement = excluded.placement,
			opacity = excluded.opacity,
			margin = excluded.margin,
			updatedAt = excluded.updatedAt`,
		userID, p.OverlayPath, p.SHA256, string(p.Placement), p.Opacity, p.Margin, now,
	); err != nil {
		return fmt.Errorf("save watermark: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit watermark: %w", err)
	}
	return nil
}
