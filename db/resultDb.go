package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"prepengine/models"
)

// PostgresResultStore is append-only: one row per evaluated test.
type PostgresResultStore struct {
	db *sql.DB
}

func NewPostgresResultStore(database *sql.DB) *PostgresResultStore {
	return &PostgresResultStore{db: database}
}

func (r *PostgresResultStore) SaveResult(ctx context.Context, result *models.EvaluationResult) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}

	query := `
		INSERT INTO prepengine.test_results (test_id, user_id, result, completed_at)
		VALUES ($1, $2, $3, $4)`

	if _, err := r.db.ExecContext(ctx, query, result.TestID, result.UserID, resultJSON, result.CompletedAt); err != nil {
		return fmt.Errorf("failed to save result for test %s: %w", result.TestID, err)
	}
	return nil
}

// GetResultsForUser returns the user's evaluations, newest first, up to limit.
func (r *PostgresResultStore) GetResultsForUser(ctx context.Context, userID string, limit int) ([]*models.EvaluationResult, error) {
	query := `
		SELECT result
		FROM prepengine.test_results
		WHERE user_id = $1
		ORDER BY completed_at DESC
		LIMIT $2`

	rows, err := r.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get results for %s: %w", userID, err)
	}
	defer rows.Close()

	var results []*models.EvaluationResult
	for rows.Next() {
		var resultJSON []byte
		if err := rows.Scan(&resultJSON); err != nil {
			return nil, fmt.Errorf("failed to scan result row: %w", err)
		}
		result := &models.EvaluationResult{}
		if err := json.Unmarshal(resultJSON, result); err != nil {
			return nil, fmt.Errorf("failed to unmarshal result: %w", err)
		}
		results = append(results, result)
	}
	return results, rows.Err()
}
