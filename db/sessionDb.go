package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"prepengine/models"
)

// PostgresSessionStore persists test sessions as JSONB documents, with the
// status lifted into a column for cheap filtering.
type PostgresSessionStore struct {
	db *sql.DB
}

func NewPostgresSessionStore(database *sql.DB) *PostgresSessionStore {
	return &PostgresSessionStore{db: database}
}

func (r *PostgresSessionStore) GetSession(ctx context.Context, testID string) (*models.TestSession, error) {
	query := `
		SELECT session
		FROM prepengine.test_sessions
		WHERE test_id = $1`

	var sessionJSON []byte
	err := r.db.QueryRowContext(ctx, query, testID).Scan(&sessionJSON)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session %s: %w", testID, err)
	}

	session := &models.TestSession{}
	if err := json.Unmarshal(sessionJSON, session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session %s: %w", testID, err)
	}
	return session, nil
}

func (r *PostgresSessionStore) SaveSession(ctx context.Context, session *models.TestSession) error {
	sessionJSON, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	query := `
		INSERT INTO prepengine.test_sessions (test_id, user_id, status, session, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (test_id) DO UPDATE
		SET status = EXCLUDED.status, session = EXCLUDED.session`

	if _, err := r.db.ExecContext(ctx, query, session.ID, session.UserID, string(session.Status), sessionJSON, session.CreatedAt); err != nil {
		return fmt.Errorf("failed to save session %s: %w", session.ID, err)
	}
	return nil
}
