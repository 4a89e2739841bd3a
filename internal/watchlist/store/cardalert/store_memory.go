package cardalert

import (
	"context"
	"sort"
	"sync"
	"time"

	"stealwatch/internal/watchlist/models"
	"stealwatch/internal/watchlist/ports"
	"stealwatch/pkg/platform/sentinel"
)

type pairKey struct {
	criterionID int64
	cardID      int64
}

// MemoryStore is an in-memory card alert store for tests.
type MemoryStore struct {
	mu     sync.RWMutex
	nextID int64
	alerts map[int64]*models.CardAlert
	pairs  map[pairKey]int64
}

func NewMemory() *MemoryStore {
	return &MemoryStore{
		nextID: 1,
		alerts: make(map[int64]*models.CardAlert),
		pairs:  make(map[pairKey]int64),
	}
}

func (s *MemoryStore) CreateIfAbsent(_ context.Context, alert *models.CardAlert) (*models.CardAlert, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := pairKey{alert.CardCriterionID, alert.CardID}
	if _, exists := s.pairs[key]; exists {
		return nil, false, nil
	}

	created := *alert
	created.ID = s.nextID
	created.Status = models.StatusNew
	if created.CreatedAt.IsZero() {
		created.CreatedAt = time.Now()
	}
	s.nextID++
	s.alerts[created.ID] = &created
	s.pairs[key] = created.ID
	out := created
	return &out, true, nil
}

func (s *MemoryStore) Get(_ context.Context, id int64) (*models.CardAlert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.alerts[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	copied := *a
	return &copied, nil
}

func (s *MemoryStore) List(_ context.Context, filter ports.AlertFilter) ([]*models.CardAlert, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*models.CardAlert
	for _, a := range s.alerts {
		if filter.Status != "" && a.Status != filter.Status {
			continue
		}
		if filter.Severity != "" && a.Severity != filter.Severity {
			continue
		}
		copied := *a
		matched = append(matched, &copied)
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID > matched[j].ID
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := len(matched)
	if filter.Offset > 0 {
		if filter.Offset >= len(matched) {
			return nil, total, nil
		}
		matched = matched[filter.Offset:]
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 1000
	}
	if len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, total, nil
}

func (s *MemoryStore) SetStatus(_ context.Context, id int64, status models.AlertStatus, reviewerID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.alerts[id]
	if !ok {
		return sentinel.ErrNotFound
	}
	now := time.Now()
	a.Status = status
	a.ReviewedAt = &now
	if reviewerID != 0 {
		a.ReviewedBy = &reviewerID
	} else {
		a.ReviewedBy = nil
	}
	return nil
}

// Alerted reports whether a (criterion, card) pair already has an alert.
func (s *MemoryStore) Alerted(criterionID, cardID int64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.pairs[pairKey{criterionID, cardID}]
	return ok
}

// Referenced reports whether any alert points at the given card criterion.
// Used to wire the criteria memory store's delete guard in tests.
func (s *MemoryStore) Referenced(cardCriterionID int64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.alerts {
		if a.CardCriterionID == cardCriterionID {
			return true
		}
	}
	return false
}
