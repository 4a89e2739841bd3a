// Package criteria manages the analyst watch rules of both kinds: keyword
// criteria over credentials and BIN criteria over cards.
package criteria

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"stealwatch/internal/audit"
	"stealwatch/internal/binref"
	"stealwatch/internal/watchlist/models"
	"stealwatch/internal/watchlist/ports"
	dErrors "stealwatch/pkg/errors"
	"stealwatch/pkg/platform/sentinel"
)

type Service struct {
	store ports.CriteriaStore
	bins  *binref.Directory

	logger         *slog.Logger
	auditPublisher ports.AuditPublisher
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithAuditPublisher(publisher ports.AuditPublisher) Option {
	return func(s *Service) { s.auditPublisher = publisher }
}

func WithBINDirectory(bins *binref.Directory) Option {
	return func(s *Service) { s.bins = bins }
}

func New(store ports.CriteriaStore, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("criteria store is required")
	}
	svc := &Service{
		store:  store,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

func (s *Service) List(ctx context.Context) ([]*models.Criterion, error) {
	out, err := s.store.List(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list criteria")
	}
	return out, nil
}

func (s *Service) ListCard(ctx context.Context) ([]*models.CardCriterion, error) {
	out, err := s.store.ListCard(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list card criteria")
	}
	return out, nil
}

// Create registers a keyword criterion. New criteria start active; the next
// sweep picks them up without further action.
func (s *Service) Create(ctx context.Context, c *models.Criterion, actorID int64) (*models.Criterion, error) {
	c.Keyword = strings.TrimSpace(c.Keyword)
	if c.Keyword == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "keyword is required")
	}
	if !c.FieldType.IsValid() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "invalid field type: must be domain, username, ip or url")
	}
	if c.Severity == "" {
		c.Severity = models.SeverityMedium
	}
	if !c.Severity.IsValid() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "invalid severity")
	}
	c.Active = true
	c.CreatedBy = actorID

	created, err := s.store.Create(ctx, c)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create criterion")
	}

	ports.LogAudit(ctx, s.logger, s.auditPublisher, audit.Event{
		Action:      audit.ActionCriterionCreated,
		CriterionID: created.ID,
		Severity:    string(created.Severity),
		ActorID:     actorID,
	}, "criterion_id", created.ID, "keyword", created.Keyword, "field_type", string(created.FieldType))
	return created, nil
}

// CreateCard registers a BIN criterion. A missing bank name is filled from
// the issuer directory when the BIN is known.
func (s *Service) CreateCard(ctx context.Context, c *models.CardCriterion, actorID int64) (*models.CardCriterion, error) {
	c.BIN = strings.TrimSpace(c.BIN)
	if err := validateBIN(c.BIN); err != nil {
		return nil, err
	}
	if c.Severity == "" {
		c.Severity = models.SeverityHigh
	}
	if !c.Severity.IsValid() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "invalid severity")
	}
	if c.BankName == "" && s.bins != nil {
		if info, ok := s.bins.Lookup(c.BIN); ok {
			c.BankName = info.Issuer
			if c.Country == "" {
				c.Country = info.Country
			}
		}
	}
	c.Country = strings.ToUpper(c.Country)
	c.Active = true
	c.CreatedBy = actorID

	created, err := s.store.CreateCard(ctx, c)
	if err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeConflict, "bin already on the watchlist")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create card criterion")
	}

	ports.LogAudit(ctx, s.logger, s.auditPublisher, audit.Event{
		Action:      audit.ActionCriterionCreated,
		CriterionID: created.ID,
		Severity:    string(created.Severity),
		ActorID:     actorID,
	}, "criterion_id", created.ID, "bin", created.BIN)
	return created, nil
}

// Deactivate disables a criterion without touching its alert history.
func (s *Service) Deactivate(ctx context.Context, id int64) error {
	if err := s.store.Deactivate(ctx, id); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "criterion not found")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to deactivate criterion")
	}
	return nil
}

func (s *Service) DeactivateCard(ctx context.Context, id int64) error {
	if err := s.store.DeactivateCard(ctx, id); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "criterion not found")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to deactivate card criterion")
	}
	return nil
}

// Delete removes a criterion outright. Criteria with alert history cannot be
// deleted; callers get a conflict and should deactivate instead.
func (s *Service) Delete(ctx context.Context, id int64, actorID int64) error {
	return s.delete(ctx, id, actorID, s.store.Delete)
}

func (s *Service) DeleteCard(ctx context.Context, id int64, actorID int64) error {
	return s.delete(ctx, id, actorID, s.store.DeleteCard)
}

func (s *Service) delete(ctx context.Context, id, actorID int64, fn func(context.Context, int64) error) error {
	if err := fn(ctx, id); err != nil {
		switch {
		case errors.Is(err, sentinel.ErrNotFound):
			return dErrors.New(dErrors.CodeNotFound, "criterion not found")
		case errors.Is(err, sentinel.ErrReferenced):
			return dErrors.New(dErrors.CodeConflict, "criterion has alerts; deactivate it instead")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to delete criterion")
	}

	ports.LogAudit(ctx, s.logger, s.auditPublisher, audit.Event{
		Action:      audit.ActionCriterionRemoved,
		CriterionID: id,
		ActorID:     actorID,
	}, "criterion_id", id)
	return nil
}

// WatchlistStats bundles both stat sets for the dashboard.
type WatchlistStats struct {
	Keyword []*models.CriterionStats     `json:"watchlist"`
	Card    []*models.CardCriterionStats `json:"card_watchlist"`
}

// Stats aggregates per-criterion alert counts for both kinds, fetched
// concurrently.
func (s *Service) Stats(ctx context.Context) (*WatchlistStats, error) {
	var stats WatchlistStats
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		out, err := s.store.Stats(gctx)
		if err != nil {
			return err
		}
		stats.Keyword = out
		return nil
	})
	g.Go(func() error {
		out, err := s.store.CardStats(gctx)
		if err != nil {
			return err
		}
		stats.Card = out
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to aggregate watchlist stats")
	}
	return &stats, nil
}

func validateBIN(bin string) error {
	if len(bin) != models.BINLength {
		return dErrors.New(dErrors.CodeBadRequest, "bin must be exactly 6 digits")
	}
	for _, r := range bin {
		if r < '0' || r > '9' {
			return dErrors.New(dErrors.CodeBadRequest, "bin must be exactly 6 digits")
		}
	}
	return nil
}
