// Package matcher runs the keyword sweep: every active keyword criterion is
// evaluated against the credential corpus and each fresh match becomes an
// alert. Matching is case-insensitive substring containment on the
// criterion's field.
package matcher

import (
	"context"
	"errors"
	"log/slog"

	"stealwatch/internal/audit"
	"stealwatch/internal/platform/metrics"
	"stealwatch/internal/watchlist/models"
	"stealwatch/internal/watchlist/ports"
	dErrors "stealwatch/pkg/errors"
)

// Materializer writes the detail projection for a freshly created alert and
// reports whether a row was written.
type Materializer interface {
	Materialize(ctx context.Context, alert *models.Alert) (bool, error)
}

const defaultMatchLimit = 50

type Service struct {
	criteria     ports.CriteriaStore
	records      ports.RecordStore
	alerts       ports.AlertStore
	materializer Materializer

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

// WithMatchLimit bounds how many fresh matches a single criterion may yield
// per sweep. Remaining matches surface on subsequent sweeps.
func WithMatchLimit(limit int) Option {
	return func(s *Service) {
		if limit > 0 {
			s.matchLimit = limit
		}
	}
}

func New(criteria ports.CriteriaStore, records ports.RecordStore, alerts ports.AlertStore, materializer Materializer, opts ...Option) (*Service, error) {
	if criteria == nil || records == nil || alerts == nil {
		return nil, errors.New("criteria, record and alert stores are required")
	}
	svc := &Service{
		criteria:     criteria,
		records:      records,
		alerts:       alerts,
		materializer: materializer,
		matchLimit:   defaultMatchLimit,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Sweep evaluates every active keyword criterion once and returns the number
// of alerts created. Sweeps are idempotent: re-running over an unchanged
// corpus creates nothing, because already-alerted records are excluded at the
// store and duplicates are swallowed by the uniqueness gate.
func (s *Service) Sweep(ctx context.Context) (int, error) {
	criteria, err := s.criteria.ListActive(ctx)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list active criteria")
	}

	created := 0
	for _, criterion := range criteria {
		n, err := s.sweepCriterion(ctx, criterion)
		created += n
		if err != nil {
			return created, err
		}
	}

	s.logger.InfoContext(ctx, "keyword sweep completed", "criteria", len(criteria), "alerts_created", created)
	return created, nil
}

func (s *Service) sweepCriterion(ctx context.Context, criterion *models.Criterion) (int, error) {
	if !criterion.FieldType.IsValid() {
		// Criteria written by newer versions may carry field types this
		// build does not know. Skip them, never fail the sweep.
		s.logger.WarnContext(ctx, "skipping criterion with unknown field type",
			"criterion_id", criterion.ID, "field_type", string(criterion.FieldType))
		return 0, nil
	}

	records, err := s.records.FindCredentialsByField(ctx, criterion.FieldType, criterion.Keyword, criterion.ID, s.matchLimit)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to search credentials for criterion")
	}

	created := 0
	for _, record := range records {
		alert := &models.Alert{
			CriterionID:  criterion.ID,
			MatchedField: criterion.FieldType,
			MatchedValue: s.matchedValue(ctx, criterion.FieldType, record),
			RecordType:   models.RecordTypeCredential,
			RecordID:     record.ID,
			Severity:     criterion.Severity,
			Status:       models.StatusNew,
		}

		stored, inserted, err := s.alerts.CreateIfAbsent(ctx, alert)
		if err != nil {
			return created, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create alert")
		}
		if !inserted {
			// Another sweep got there first. The record is handled.
			continue
		}
		created++
		s.metrics.IncrementAlertsCreated("credential")

		ports.LogAudit(ctx, s.logger, s.auditPublisher, audit.Event{
			Action:      audit.ActionAlertCreated,
			AlertID:     stored.ID,
			CriterionID: criterion.ID,
			RecordID:    record.ID,
			Severity:    string(criterion.Severity),
		}, "alert_id", stored.ID, "keyword", criterion.Keyword)

		if s.materializer == nil {
			continue
		}
		if _, err := s.materializer.Materialize(ctx, stored); err != nil {
			// The alert stands; the reconciliation sweeper will backfill.
			s.logger.WarnContext(ctx, "detail projection pending for new alert",
				"alert_id", stored.ID, "error", err)
		}
	}
	return created, nil
}

// matchedValue snapshots the field content that triggered the match. For IP
// criteria the value lives on the host row, not the credential.
func (s *Service) matchedValue(ctx context.Context, fieldType models.FieldType, record *models.CredentialRecord) string {
	switch fieldType {
	case models.FieldDomain:
		return record.Domain
	case models.FieldUsername:
		return record.Username
	case models.FieldURL:
		return record.URL
	case models.FieldIP:
		host, err := s.records.GetHostMetadata(ctx, record.HostID)
		if err != nil || host == nil {
			return ""
		}
		return host.IP
	}
	return ""
}
