package store

import (
	"context"
	"sync"
	"time"

	"stealwatch/internal/auth/models"
	"stealwatch/pkg/platform/sentinel"
)

// MemoryStore is an in-memory user store for tests.
type MemoryStore struct {
	mu     sync.RWMutex
	nextID int64
	users  map[int64]*models.User
}

func NewMemory() *MemoryStore {
	return &MemoryStore{nextID: 1, users: make(map[int64]*models.User)}
}

func (s *MemoryStore) GetByUsername(_ context.Context, username string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if u.Username == username {
			cp := *u
			return &cp, nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (s *MemoryStore) Get(_ context.Context, id int64) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *MemoryStore) Create(_ context.Context, u *models.User) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.users {
		if existing.Username == u.Username {
			return nil, sentinel.ErrConflict
		}
	}
	created := *u
	created.ID = s.nextID
	created.Active = true
	if created.CreatedAt.IsZero() {
		created.CreatedAt = time.Now()
	}
	s.nextID++
	s.users[created.ID] = &created
	cp := created
	return &cp, nil
}

// SetActive toggles an account; tests use it to model disabled analysts.
func (s *MemoryStore) SetActive(id int64, active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[id]; ok {
		u.Active = active
	}
}

func (s *MemoryStore) TouchLastLogin(_ context.Context, id int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return sentinel.ErrNotFound
	}
	u.LastLogin = &at
	return nil
}
