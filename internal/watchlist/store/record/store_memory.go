package record

import (
	"context"
	"sort"
	"strings"
	"sync"

	"stealwatch/internal/watchlist/models"
	"stealwatch/pkg/platform/sentinel"
)

// MemoryStore is an in-memory record store for unit tests.
type MemoryStore struct {
	mu          sync.RWMutex
	credentials map[int64]*models.CredentialRecord
	cards       map[int64]*models.CardRecord
	hosts       map[int64]*models.HostMetadata

	credAlerted func(criterionID, recordID int64) bool
	cardAlerted func(criterionID, cardID int64) bool
}

func NewMemory() *MemoryStore {
	return &MemoryStore{
		credentials: make(map[int64]*models.CredentialRecord),
		cards:       make(map[int64]*models.CardRecord),
		hosts:       make(map[int64]*models.HostMetadata),
	}
}

// SetAlertedChecks wires the exclusion predicates normally expressed as
// NOT EXISTS subqueries against the alert tables.
func (s *MemoryStore) SetAlertedChecks(cred, card func(criterionID, recordID int64) bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.credAlerted = cred
	s.cardAlerted = card
}

func (s *MemoryStore) AddCredential(c *models.CredentialRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *c
	s.credentials[c.ID] = &cp
}

func (s *MemoryStore) AddCard(c *models.CardRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *c
	s.cards[c.ID] = &cp
}

func (s *MemoryStore) AddHost(h *models.HostMetadata) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *h
	s.hosts[h.ID] = &cp
}

func (s *MemoryStore) FindCredentialsByField(_ context.Context, fieldType models.FieldType, keyword string, criterionID int64, limit int) ([]*models.CredentialRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	needle := strings.ToLower(keyword)

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.CredentialRecord
	for _, c := range s.credentials {
		var haystack string
		switch fieldType {
		case models.FieldDomain:
			haystack = c.Domain
		case models.FieldUsername:
			haystack = c.Username
		case models.FieldURL:
			haystack = c.URL
		case models.FieldIP:
			if h, ok := s.hosts[c.HostID]; ok {
				haystack = h.IP
			}
		default:
			return nil, nil
		}
		if !strings.Contains(strings.ToLower(haystack), needle) {
			continue
		}
		if s.credAlerted != nil && s.credAlerted(criterionID, c.ID) {
			continue
		}
		cp := *c
		out = append(out, &cp)
	}
	sortNewestFirst(out, func(c *models.CredentialRecord) (int64, int64) { return c.CreatedAt.UnixNano(), c.ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) FindCardsByBIN(_ context.Context, bin string, criterionID int64, limit int) ([]*models.CardRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.CardRecord
	for _, c := range s.cards {
		if c.BIN() != bin {
			continue
		}
		if s.cardAlerted != nil && s.cardAlerted(criterionID, c.ID) {
			continue
		}
		cp := *c
		out = append(out, &cp)
	}
	sortNewestFirst(out, func(c *models.CardRecord) (int64, int64) { return c.CreatedAt.UnixNano(), c.ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) GetCredential(_ context.Context, id int64) (*models.CredentialRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.credentials[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *MemoryStore) GetHostMetadata(_ context.Context, hostID int64) (*models.HostMetadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.hosts[hostID]
	if !ok {
		return nil, nil
	}
	cp := *h
	return &cp, nil
}

func sortNewestFirst[T any](items []T, key func(T) (int64, int64)) {
	sort.SliceStable(items, func(i, j int) bool {
		ti, idi := key(items[i])
		tj, idj := key(items[j])
		if ti != tj {
			return ti > tj
		}
		return idi > idj
	})
}
