package criteria

import (
	"context"
	"sort"
	"sync"
	"time"

	"stealwatch/internal/watchlist/models"
	"stealwatch/pkg/platform/sentinel"
)

// MemoryStore is an in-memory criteria store for tests and local development.
type MemoryStore struct {
	mu       sync.RWMutex
	nextID   int64
	keywords map[int64]*models.Criterion
	cards    map[int64]*models.CardCriterion

	// referenced reports whether alerts still point at a criterion; wired by
	// tests that pair this store with an alert store.
	referenced     func(criterionID int64) bool
	cardReferenced func(cardCriterionID int64) bool
}

func NewMemory() *MemoryStore {
	return &MemoryStore{
		nextID:   1,
		keywords: make(map[int64]*models.Criterion),
		cards:    make(map[int64]*models.CardCriterion),
	}
}

// SetReferenceChecks wires alert-reference lookups used by Delete.
func (s *MemoryStore) SetReferenceChecks(keyword, card func(int64) bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.referenced = keyword
	s.cardReferenced = card
}

func (s *MemoryStore) ListActive(_ context.Context) ([]*models.Criterion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Criterion
	for _, c := range s.keywords {
		if c.Active {
			copied := *c
			out = append(out, &copied)
		}
	}
	sortCriteria(out)
	return out, nil
}

func (s *MemoryStore) List(_ context.Context) ([]*models.Criterion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Criterion
	for _, c := range s.keywords {
		copied := *c
		out = append(out, &copied)
	}
	sortCriteria(out)
	return out, nil
}

func (s *MemoryStore) ListActiveCard(_ context.Context) ([]*models.CardCriterion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.CardCriterion
	for _, c := range s.cards {
		if c.Active {
			copied := *c
			out = append(out, &copied)
		}
	}
	sortCardCriteria(out)
	return out, nil
}

func (s *MemoryStore) ListCard(_ context.Context) ([]*models.CardCriterion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.CardCriterion
	for _, c := range s.cards {
		copied := *c
		out = append(out, &copied)
	}
	sortCardCriteria(out)
	return out, nil
}

func (s *MemoryStore) Create(_ context.Context, c *models.Criterion) (*models.Criterion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	created := *c
	created.ID = s.nextID
	created.Active = true
	if created.CreatedAt.IsZero() {
		created.CreatedAt = time.Now()
	}
	s.nextID++
	s.keywords[created.ID] = &created
	out := created
	return &out, nil
}

func (s *MemoryStore) CreateCard(_ context.Context, c *models.CardCriterion) (*models.CardCriterion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.cards {
		if existing.BIN == c.BIN {
			return nil, sentinel.ErrConflict
		}
	}
	created := *c
	created.ID = s.nextID
	created.Active = true
	if created.CreatedAt.IsZero() {
		created.CreatedAt = time.Now()
	}
	s.nextID++
	s.cards[created.ID] = &created
	out := created
	return &out, nil
}

func (s *MemoryStore) Deactivate(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.keywords[id]
	if !ok {
		return sentinel.ErrNotFound
	}
	c.Active = false
	return nil
}

func (s *MemoryStore) DeactivateCard(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cards[id]
	if !ok {
		return sentinel.ErrNotFound
	}
	c.Active = false
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.keywords[id]; !ok {
		return sentinel.ErrNotFound
	}
	if s.referenced != nil && s.referenced(id) {
		return sentinel.ErrReferenced
	}
	delete(s.keywords, id)
	return nil
}

func (s *MemoryStore) DeleteCard(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.cards[id]; !ok {
		return sentinel.ErrNotFound
	}
	if s.cardReferenced != nil && s.cardReferenced(id) {
		return sentinel.ErrReferenced
	}
	delete(s.cards, id)
	return nil
}

// Stats in the memory store reports zero alert counts; tests pairing it with
// an alert store assert aggregation through the postgres implementation.
func (s *MemoryStore) Stats(ctx context.Context) ([]*models.CriterionStats, error) {
	list, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*models.CriterionStats, 0, len(list))
	for _, c := range list {
		out = append(out, &models.CriterionStats{Criterion: *c})
	}
	return out, nil
}

func (s *MemoryStore) CardStats(ctx context.Context) ([]*models.CardCriterionStats, error) {
	list, err := s.ListCard(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*models.CardCriterionStats, 0, len(list))
	for _, c := range list {
		out = append(out, &models.CardCriterionStats{CardCriterion: *c})
	}
	return out, nil
}

func sortCriteria(list []*models.Criterion) {
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
}

func sortCardCriteria(list []*models.CardCriterion) {
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
}
