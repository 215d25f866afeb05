package db

import (
	"context"
	"sync"

	"prepengine/models"
)

// MemorySessionStore backs dev mode, where no Postgres is available.
type MemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*models.TestSession
}

func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{sessions: make(map[string]*models.TestSession)}
}

func (m *MemorySessionStore) GetSession(_ context.Context, testID string) (*models.TestSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sessions[testID], nil
}

func (m *MemorySessionStore) SaveSession(_ context.Context, session *models.TestSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[session.ID] = session
	return nil
}

// MemoryResultStore keeps evaluation results in process memory.
type MemoryResultStore struct {
	mu      sync.RWMutex
	results []*models.EvaluationResult
}

func NewMemoryResultStore() *MemoryResultStore {
	return &MemoryResultStore{}
}

func (m *MemoryResultStore) SaveResult(_ context.Context, result *models.EvaluationResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results = append(m.results, result)
	return nil
}

func (m *MemoryResultStore) GetResultsForUser(_ context.Context, userID string, limit int) ([]*models.EvaluationResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*models.EvaluationResult
	for i := len(m.results) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		if m.results[i].UserID == userID {
			out = append(out, m.results[i])
		}
	}
	return out, nil
}
