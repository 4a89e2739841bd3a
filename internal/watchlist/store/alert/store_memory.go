package alert

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
	recordID    int64
}

// MemoryStore is an in-memory alert store for tests. The pairs map plays the
// role of the postgres UNIQUE constraint.
type MemoryStore struct {
	mu     sync.RWMutex
	nextID int64
	alerts map[int64]*models.Alert
	pairs  map[pairKey]int64

	// hasDetail reports whether a detail projection exists for an alert;
	// wired by tests that pair this store with a detail store.
	hasDetail func(alertID int64) bool
}

func NewMemory() *MemoryStore {
	return &MemoryStore{
		nextID: 1,
		alerts: make(map[int64]*models.Alert),
		pairs:  make(map[pairKey]int64),
	}
}

// SetDetailCheck wires the detail-presence lookup used by the reconciliation
// queries.
func (s *MemoryStore) SetDetailCheck(fn func(alertID int64) bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hasDetail = fn
}

func (s *MemoryStore) CreateIfAbsent(_ context.Context, alert *models.Alert) (*models.Alert, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := pairKey{alert.CriterionID, alert.RecordID}
	if _, exists := s.pairs[key]; exists {
		return nil, false, nil
	}

	created := *alert
	created.ID = s.nextID
	created.RecordType = models.RecordTypeCredential
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

func (s *MemoryStore) Get(_ context.Context, id int64) (*models.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.alerts[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	copied := *a
	return &copied, nil
}

func (s *MemoryStore) List(_ context.Context, filter ports.AlertFilter) ([]*models.Alert, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*models.Alert
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

func (s *MemoryStore) ListMissingDetails(_ context.Context, limit int) ([]*models.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit <= 0 {
		limit = 1000
	}

	var missing []*models.Alert
	for _, a := range s.alerts {
		if s.hasDetail != nil && s.hasDetail(a.ID) {
			continue
		}
		copied := *a
		missing = append(missing, &copied)
	}
	sort.Slice(missing, func(i, j int) bool {
		if missing[i].CreatedAt.Equal(missing[j].CreatedAt) {
			return missing[i].ID > missing[j].ID
		}
		return missing[i].CreatedAt.After(missing[j].CreatedAt)
	})
	if len(missing) > limit {
		missing = missing[:limit]
	}
	return missing, nil
}

// Alerted reports whether a (criterion, record) pair already has an alert.
// Plays the NOT EXISTS role when paired with the record memory store.
func (s *MemoryStore) Alerted(criterionID, recordID int64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.pairs[pairKey{criterionID, recordID}]
	return ok
}

// Referenced reports whether any alert points at the given criterion. Used to
// wire the criteria memory store's delete guard in tests.
func (s *MemoryStore) Referenced(criterionID int64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.alerts {
		if a.CriterionID == criterionID {
			return true
		}
	}
	return false
}

func (s *MemoryStore) CountByDetailPresence(_ context.Context) (int, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	total := len(s.alerts)
	withDetails := 0
	if s.hasDetail != nil {
		for id := range s.alerts {
			if s.hasDetail(id) {
				withDetails++
			}
		}
	}
	return total, withDetails, nil
}
