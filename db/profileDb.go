package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"prepengine/models"
)

// PostgresProfileStore persists performance profiles as one JSONB document
// per user.
type PostgresProfileStore struct {
	db *sql.DB
}

func NewPostgresProfileStore(database *sql.DB) *PostgresProfileStore {
	return &PostgresProfileStore{db: database}
}

func (r *PostgresProfileStore) GetProfile(ctx context.Context, userID string) (*models.PerformanceProfile, error) {
	query := `
		SELECT profile
		FROM prepengine.user_profiles
		WHERE user_id = $1`

	var profileJSON []byte
	err := r.db.QueryRowContext(ctx, query, userID).Scan(&profileJSON)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get profile for %s: %w", userID, err)
	}

	profile := &models.PerformanceProfile{}
	if err := json.Unmarshal(profileJSON, profile); err != nil {
		return nil, fmt.Errorf("failed to unmarshal profile for %s: %w", userID, err)
	}
	return profile, nil
}

func (r *PostgresProfileStore) SaveProfile(ctx context.Context, profile *models.PerformanceProfile) error {
	profileJSON, err := json.Marshal(profile)
	if err != nil {
		return fmt.Errorf("failed to marshal profile: %w", err)
	}

	query := `
		INSERT INTO prepengine.user_profiles (user_id, profile, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO UPDATE
		SET profile = EXCLUDED.profile, updated_at = EXCLUDED.updated_at`

	if _, err := r.db.ExecContext(ctx, query, profile.UserID, profileJSON, profile.UpdatedAt); err != nil {
		return fmt.Errorf("failed to save profile for %s: %w", profile.UserID, err)
	}
	return nil
}
