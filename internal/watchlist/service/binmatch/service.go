// Package binmatch runs the card sweep: every active BIN criterion is
// evaluated against the card corpus by exact six-digit prefix equality.
package binmatch

import (
	"context"
	"errors"
	"log/slog"

	"stealwatch/internal/audit"
	"stealwatch/internal/binref"
	"stealwatch/internal/platform/metrics"
	"stealwatch/internal/watchlist/models"
	"stealwatch/internal/watchlist/ports"
	dErrors "stealwatch/pkg/errors"
)

const defaultMatchLimit = 50

type Service struct {
	criteria ports.CriteriaStore
	records  ports.RecordStore
	alerts   ports.CardAlertStore
	bins     *binref.Directory

	matchLimit     int
	logger         *slog.Logger
	metrics        *metrics.Metrics
	auditPublisher ports.AuditPublisher
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithAuditPublisher(publisher ports.AuditPublisher) Option {
	return func(s *Service) { s.auditPublisher = publisher }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithMatchLimit(limit int) Option {
	return func(s *Service) {
		if limit > 0 {
			s.matchLimit = limit
		}
	}
}

// WithBINDirectory supplies the issuer reference used to fill in bank names
// on criteria created without one.
func WithBINDirectory(bins *binref.Directory) Option {
	return func(s *Service) { s.bins = bins }
}

func New(criteria ports.CriteriaStore, records ports.RecordStore, alerts ports.CardAlertStore, opts ...Option) (*Service, error) {
	if criteria == nil || records == nil || alerts == nil {
		return nil, errors.New("criteria, record and card alert stores are required")
	}
	svc := &Service{
		criteria:   criteria,
		records:    records,
		alerts:     alerts,
		matchLimit: defaultMatchLimit,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Sweep evaluates every active BIN criterion once and returns the number of
// card alerts created. Like the keyword sweep it is idempotent.
func (s *Service) Sweep(ctx context.Context) (int, error) {
	criteria, err := s.criteria.ListActiveCard(ctx)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list active card criteria")
	}

	created := 0
	for _, criterion := range criteria {
		n, err := s.sweepCriterion(ctx, criterion)
		created += n
		if err != nil {
			return created, err
		}
	}

	s.logger.InfoContext(ctx, "card sweep completed", "criteria", len(criteria), "alerts_created", created)
	return created, nil
}

func (s *Service) sweepCriterion(ctx context.Context, criterion *models.CardCriterion) (int, error) {
	if len(criterion.BIN) != models.BINLength {
		s.logger.WarnContext(ctx, "skipping card criterion with malformed bin",
			"criterion_id", criterion.ID, "bin", criterion.BIN)
		return 0, nil
	}

	cards, err := s.records.FindCardsByBIN(ctx, criterion.BIN, criterion.ID, s.matchLimit)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to search cards for criterion")
	}

	bankName := criterion.BankName
	if bankName == "" && s.bins != nil {
		if info, ok := s.bins.Lookup(criterion.BIN); ok {
			bankName = info.Issuer
		}
	}

	created := 0
	for _, card := range cards {
		alert := &models.CardAlert{
			CardCriterionID: criterion.ID,
			MatchedBIN:      criterion.BIN,
			CardNumber:      card.Number,
			CardID:          card.ID,
			BankName:        bankName,
			Severity:        criterion.Severity,
			Status:          models.StatusNew,
		}

		stored, inserted, err := s.alerts.CreateIfAbsent(ctx, alert)
		if err != nil {
			return created, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create card alert")
		}
		if !inserted {
			continue
		}
		created++
		s.metrics.IncrementAlertsCreated("card")

		ports.LogAudit(ctx, s.logger, s.auditPublisher, audit.Event{
			Action:      audit.ActionCardAlertCreated,
			AlertID:     stored.ID,
			CriterionID: criterion.ID,
			RecordID:    card.ID,
			Severity:    string(criterion.Severity),
		}, "alert_id", stored.ID, "bin", criterion.BIN)
	}
	return created, nil
}
