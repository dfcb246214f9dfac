package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/kozaktomas/photo-variants/internal/watermark"
)

// ProfileRepository provides PostgreSQL-backed watermark profile storage
type ProfileRepository struct {
	pool *Pool
}

// NewProfileRepository creates a new PostgreSQL profile repository
func NewProfileRepository(pool *Pool) *ProfileRepository {
	return &ProfileRepository{pool: pool}
}

// Get retrieves the profile of a user, returns nil if the user has none
func (r *ProfileRepository) Get(ctx context.Context, userID string) (*watermark.Profile, error) {
	query := `
		SELECT file_path, sha256, placement, opacity, margin, updated_at
		FROM watermarks
		WHERE user_id = $1
	`

	var p watermark.Profile
	var placement string
	err := r.pool.queryRow(ctx, query, userID).Scan(
		&p.OverlayPath,
		&p.SHA256,
		&placement,
		&p.Opacity,
		&p.Margin,
		&p.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get watermark: %w", err)
	}

	p.Placement = watermark.Placement(placement)
	return &p, nil
}

// Set stores the profile of a user, creating the user row if needed
func (r *ProfileRepository) Set(ctx context.Context, userID string, p watermark.Profile) error {
	if userID == "" {
		return errors.New("user id is required")
	}
	p = p.Normalize()

	tx, err := r.pool.beginTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO users (id) VALUES ($1) ON CONFLICT (id) DO NOTHING", userID,
	); err != nil {
		return fmt.Errorf("ensure user: %w", err)
	}

	query := `
		INSERT INTO watermarks (user_id, file_path, sha256, placement, opacity, margin, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		ON CONFLICT (user_id) DO UPDATE SET
			file_path = EXCLUDED.file_path,
			sha256 = EXCLUDED.sha256,
			placement = EXCLUDED.placement,
			opacity = EXCLUDED.opacity,
			margin = EXCLUDED.margin,
			updated_at = EXCLUDED.updated_at
	`
	if _, err := tx.ExecContext(ctx, query, userID, p.OverlayPath, p.SHA256, string(p.Placement), p.Opacity, p.Margin); err != nil {
		return fmt.Errorf("save watermark: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit watermark: %w", err)
	}
	return nil
}

// Close closes the underlying pool
func (r *ProfileRepository) Close() error {
	return r.pool.Close()
}
