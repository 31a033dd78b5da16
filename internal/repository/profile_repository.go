package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/guidexpert/counsellor-api/internal/models"
)

// ProfileRepository persists counsellor profile records.
type ProfileRepository struct {
	db *sqlx.DB
}

// NewProfileRepository constructs a ProfileRepository.
func NewProfileRepository(db *sqlx.DB) *ProfileRepository {
	return &ProfileRepository{db: db}
}

// FindByUserID returns the profile attached to a counsellor account.
func (r *ProfileRepository) FindByUserID(ctx context.Context, userID string) (*models.CounsellorProfile, error) {
	const query = `SELECT user_id, display_name, email, specialization, phone, slug, updated_at FROM counsellor_profiles WHERE user_id = $1`
	var profile models.CounsellorProfile
	if err := r.db.GetContext(ctx, &profile, query, userID); err != nil {
		return nil, err
	}
	return &profile, nil
}

// SlugTaken reports whether the slug is used by another counsellor.
func (r *ProfileRepository) SlugTaken(ctx context.Context, slug, excludeUserID string) (bool, error) {
	query := "SELECT 1 FROM counsellor_profiles WHERE slug = $1"
	args := []interface{}{slug}
	if excludeUserID != "" {
		query += " AND user_id <> $2"
		args = append(args, excludeUserID)
	}
	var exists int
	if err := r.db.GetContext(ctx, &exists, query+" LIMIT 1", args...); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check slug: %w", err)
	}
	return true, nil
}

// Upsert writes the profile, inserting on first save.
func (r *ProfileRepository) Upsert(ctx context.Context, profile *models.CounsellorProfile) error {
	profile.UpdatedAt = time.Now().UTC()
	const query = `INSERT INTO counsellor_profiles (user_id, display_name, email, specialization, phone, slug, updated_at)
        VALUES (:user_id, :display_name, :email, :specialization, :phone, :slug, :updated_at)
        ON CONFLICT (user_id) DO UPDATE SET display_name = :display_name, email = :email, specialization = :specialization, phone = :phone, slug = :slug, updated_at = :updated_at`
	if _, err := r.db.NamedExecContext(ctx, query, profile); err != nil {
		return fmt.Errorf("upsert counsellor profile: %w", err)
	}
	return nil
}
