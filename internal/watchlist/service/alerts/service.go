// Package alerts serves the analyst-facing read and review surface: listing
// alerts with enrichment and moving them through their review lifecycle.
package alerts

import (
	"context"
	"errors"
	"log/slog"

	"stealwatch/internal/audit"
	"stealwatch/internal/watchlist/models"
	"stealwatch/internal/watchlist/ports"
	dErrors "stealwatch/pkg/errors"
	"stealwatch/pkg/platform/sentinel"
)

// AlertView is an alert with its enrichment attached. FromProjection reports
// whether the detail came from the precomputed projection or a live join.
type AlertView struct {
	*models.Alert
	Detail         *models.AlertDetail `json:"details,omitempty"`
	FromProjection bool                `json:"used_optimized_data"`
}

type Service struct {
	alerts     ports.AlertStore
	cardAlerts ports.CardAlertStore
	details    ports.DetailStore
	records    ports.RecordStore

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

func New(alerts ports.AlertStore, cardAlerts ports.CardAlertStore, details ports.DetailStore, records ports.RecordStore, opts ...Option) (*Service, error) {
	if alerts == nil || cardAlerts == nil || details == nil || records == nil {
		return nil, errors.New("alert, card alert, detail and record stores are required")
	}
	svc := &Service{
		alerts:     alerts,
		cardAlerts: cardAlerts,
		details:    details,
		records:    records,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// List returns one page of credential alerts, newest first, each enriched
// from the projection when a row exists and from a live join otherwise. A
// record that has disappeared from the corpus leaves the alert unenriched
// rather than dropping it.
func (s *Service) List(ctx context.Context, filter ports.AlertFilter) ([]*AlertView, int, error) {
	if filter.Status != "" && !filter.Status.IsValid() {
		return nil, 0, dErrors.New(dErrors.CodeBadRequest, "invalid status filter")
	}

	page, total, err := s.alerts.List(ctx, filter)
	if err != nil {
		return nil, 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list alerts")
	}

	views := make([]*AlertView, 0, len(page))
	for _, alert := range page {
		views = append(views, s.enrich(ctx, alert))
	}
	return views, total, nil
}

func (s *Service) enrich(ctx context.Context, alert *models.Alert) *AlertView {
	view := &AlertView{Alert: alert}

	detail, err := s.details.Get(ctx, alert.ID)
	if err != nil {
		s.logger.WarnContext(ctx, "failed to read detail projection, falling back to live join",
			"alert_id", alert.ID, "error", err)
	}
	if detail != nil {
		view.Detail = detail
		view.FromProjection = true
		return view
	}

	view.Detail = s.liveDetail(ctx, alert)
	return view
}

// liveDetail joins the credential and host rows on demand. Untruncated by
// design: the caps only apply to the stored projection.
func (s *Service) liveDetail(ctx context.Context, alert *models.Alert) *models.AlertDetail {
	cred, err := s.records.GetCredential(ctx, alert.RecordID)
	if err != nil {
		if !errors.Is(err, sentinel.ErrNotFound) {
			s.logger.WarnContext(ctx, "live join failed", "alert_id", alert.ID, "error", err)
		}
		return nil
	}

	detail := &models.AlertDetail{
		AlertID:      alert.ID,
		CredentialID: cred.ID,
		Domain:       optional(cred.Domain),
		URL:          optional(cred.URL),
		Username:     optional(cred.Username),
		Password:     optional(cred.Password),
		StealerType:  optional(cred.StealerType),
	}
	if cred.HostID == 0 {
		return detail
	}
	host, err := s.records.GetHostMetadata(ctx, cred.HostID)
	if err != nil || host == nil {
		return detail
	}
	detail.Country = optional(host.Country)
	detail.IP = optional(host.IP)
	detail.ComputerName = optional(host.ComputerName)
	detail.OSVersion = optional(host.OSVersion)
	detail.MachineUser = optional(host.MachineUser)
	return detail
}

func (s *Service) Get(ctx context.Context, id int64) (*AlertView, error) {
	alert, err := s.alerts.Get(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "alert not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to get alert")
	}
	return s.enrich(ctx, alert), nil
}

// ListCard returns one page of card alerts, newest first.
func (s *Service) ListCard(ctx context.Context, filter ports.AlertFilter) ([]*models.CardAlert, int, error) {
	if filter.Status != "" && !filter.Status.IsValid() {
		return nil, 0, dErrors.New(dErrors.CodeBadRequest, "invalid status filter")
	}
	page, total, err := s.cardAlerts.List(ctx, filter)
	if err != nil {
		return nil, 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list card alerts")
	}
	return page, total, nil
}

// Resolve marks a credential alert reviewed.
func (s *Service) Resolve(ctx context.Context, id int64, reviewerID int64) error {
	return s.setStatus(ctx, kindCredential, id, models.StatusReviewed, reviewerID)
}

// MarkFalsePositive dismisses a credential alert.
func (s *Service) MarkFalsePositive(ctx context.Context, id int64, reviewerID int64) error {
	return s.setStatus(ctx, kindCredential, id, models.StatusFalsePositive, reviewerID)
}

// ResolveCard marks a card alert reviewed.
func (s *Service) ResolveCard(ctx context.Context, id int64, reviewerID int64) error {
	return s.setStatus(ctx, kindCard, id, models.StatusReviewed, reviewerID)
}

// MarkCardFalsePositive dismisses a card alert.
func (s *Service) MarkCardFalsePositive(ctx context.Context, id int64, reviewerID int64) error {
	return s.setStatus(ctx, kindCard, id, models.StatusFalsePositive, reviewerID)
}

type alertKind string

const (
	kindCredential alertKind = "credential"
	kindCard       alertKind = "card"
)

func (s *Service) setStatus(ctx context.Context, kind alertKind, id int64, status models.AlertStatus, reviewerID int64) error {
	var err error
	switch kind {
	case kindCredential:
		err = s.alerts.SetStatus(ctx, id, status, reviewerID)
	case kindCard:
		err = s.cardAlerts.SetStatus(ctx, id, status, reviewerID)
	}
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "alert not found")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update alert status")
	}

	action := audit.ActionAlertReviewed
	if status == models.StatusFalsePositive {
		action = audit.ActionAlertDismissed
	}
	ports.LogAudit(ctx, s.logger, s.auditPublisher, audit.Event{
		Action:  action,
		AlertID: id,
		ActorID: reviewerID,
	}, "alert_id", id, "kind", string(kind), "status", string(status))
	return nil
}

func optional(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}
