package profile

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"prepengine/models"
)

// Store persists performance profiles. GetProfile returns (nil, nil) when the
// user has no profile yet.
type Store interface {
	GetProfile(ctx context.Context, userID string) (*models.PerformanceProfile, error)
	SaveProfile(ctx context.Context, profile *models.PerformanceProfile) error
}

// Service serializes all writes to a profile behind a per-user lock, so a
// fold from evaluation and a seen-ledger update from selection can never
// interleave.
type Service struct {
	store Store
	locks sync.Map // userID -> *sync.Mutex
}

func NewService(store Store) *Service {
	return &Service{store: store}
}

func (s *Service) userLock(userID string) *sync.Mutex {
	lock, _ := s.locks.LoadOrStore(userID, &sync.Mutex{})
	return lock.(*sync.Mutex)
}

// Update loads the user's profile (creating a fresh one on first contact),
// applies fn under the per-user lock and persists the result.
func (s *Service) Update(ctx context.Context, userID string, fn func(*models.PerformanceProfile) error) (*models.PerformanceProfile, error) {
	lock := s.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	profile, err := s.store.GetProfile(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load profile for %s: %w", userID, err)
	}
	if profile == nil {
		log.Printf("[INFO] Creating new performance profile for user %s", userID)
		profile = models.NewPerformanceProfile(userID)
	}

	if err := fn(profile); err != nil {
		return nil, err
	}
	profile.UpdatedAt = time.Now().UTC()

	if err := s.store.SaveProfile(ctx, profile); err != nil {
		return nil, fmt.Errorf("failed to save profile for %s: %w", userID, err)
	}
	return profile, nil
}

// Snapshot returns the stored profile, or an empty one for unknown users.
// Nothing is persisted.
func (s *Service) Snapshot(ctx context.Context, userID string) (*models.PerformanceProfile, error) {
	profile, err := s.store.GetProfile(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load profile for %s: %w", userID, err)
	}
	if profile == nil {
		return models.NewPerformanceProfile(userID), nil
	}
	return profile, nil
}

// MemoryStore is an in-process Store for dev mode and tests. Like the
// Postgres store, it serializes on every read and write: callers never share
// maps or slices with the stored copy, so a snapshot stays stable while later
// updates land.
type MemoryStore struct {
	mu       sync.RWMutex
	profiles map[string]*models.PerformanceProfile
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{profiles: make(map[string]*models.PerformanceProfile)}
}

func (m *MemoryStore) GetProfile(_ context.Context, userID string) (*models.PerformanceProfile, error) {
	m.mu.RLock()
	stored, ok := m.profiles[userID]
	m.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	return cloneProfile(stored)
}

func (m *MemoryStore) SaveProfile(_ context.Context, profile *models.PerformanceProfile) error {
	copied, err := cloneProfile(profile)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.profiles[profile.UserID] = copied
	return nil
}

func cloneProfile(p *models.PerformanceProfile) (*models.PerformanceProfile, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to clone profile for %s: %w", p.UserID, err)
	}
	clone := &models.PerformanceProfile{}
	if err := json.Unmarshal(data, clone); err != nil {
		return nil, fmt.Errorf("failed to clone profile for %s: %w", p.UserID, err)
	}
	return clone, nil
}
