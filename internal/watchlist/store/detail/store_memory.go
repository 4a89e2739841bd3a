package detail

import (
	"context"
	"sync"

	"stealwatch/internal/watchlist/models"
)

// MemoryStore is an in-memory detail projection for tests.
type MemoryStore struct {
	mu      sync.RWMutex
	details map[int64]*models.AlertDetail
}

func NewMemory() *MemoryStore {
	return &MemoryStore{details: make(map[int64]*models.AlertDetail)}
}

func (s *MemoryStore) Upsert(_ context.Context, d *models.AlertDetail) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *d
	s.details[d.AlertID] = &copied
	return nil
}

func (s *MemoryStore) Get(_ context.Context, alertID int64) (*models.AlertDetail, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.details[alertID]
	if !ok {
		return nil, nil
	}
	copied := *d
	return &copied, nil
}

// Has reports projection presence; used to wire the alert memory store's
// detail check in tests.
func (s *MemoryStore) Has(alertID int64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.details[alertID]
	return ok
}
