// Package materializer builds the denormalized detail projection for
// credential alerts. The projection is an optimization: readers fall back to
// a live join when a row is missing, so every failure here degrades coverage
// without ever failing the alert that triggered it.
package materializer

import (
	"context"
	"errors"
	"log/slog"

	"stealwatch/internal/platform/metrics"
	"stealwatch/internal/watchlist/models"
	"stealwatch/internal/watchlist/ports"
	dErrors "stealwatch/pkg/errors"
	"stealwatch/pkg/platform/sentinel"
)

// Column width limits of the projection table. Oversized source values are
// truncated with a warning rather than rejected.
const (
	maxTextLen        = 255
	maxStealerTypeLen = 100
	maxCountryLen     = 50
)

type Service struct {
	records ports.RecordStore
	details ports.DetailStore
	logger  *slog.Logger
	metrics *metrics.Metrics
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func New(records ports.RecordStore, details ports.DetailStore, opts ...Option) (*Service, error) {
	if records == nil {
		return nil, errors.New("record store is required")
	}
	if details == nil {
		return nil, errors.New("detail store is required")
	}
	svc := &Service{
		records: records,
		details: details,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Materialize writes the detail projection for one credential alert and
// reports whether a row landed.
//
// A credential that has since disappeared is not an error: the alert stands
// without a projection and the call returns false, nil so callers can count
// the gap without retry noise. Storage failures are returned so callers can
// count them, but callers must never let them fail alert creation.
func (s *Service) Materialize(ctx context.Context, alert *models.Alert) (bool, error) {
	if alert.RecordType != models.RecordTypeCredential {
		return false, dErrors.New(dErrors.CodeBadRequest, "only credential alerts carry detail projections")
	}

	cred, err := s.records.GetCredential(ctx, alert.RecordID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			s.logger.WarnContext(ctx, "credential gone, alert stands without details",
				"alert_id", alert.ID, "credential_id", alert.RecordID)
			return false, nil
		}
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load credential for detail projection")
	}

	detail := s.buildDetail(ctx, alert, cred)

	if err := s.details.Upsert(ctx, detail); err != nil {
		s.metrics.IncrementDetailWriteFailure()
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to write alert detail projection")
	}
	return true, nil
}

func (s *Service) buildDetail(ctx context.Context, alert *models.Alert, cred *models.CredentialRecord) *models.AlertDetail {
	detail := &models.AlertDetail{
		AlertID:      alert.ID,
		CredentialID: cred.ID,
		Domain:       s.capped(ctx, alert.ID, "domain", cred.Domain, maxTextLen),
		URL:          optional(cred.URL),
		Username:     s.capped(ctx, alert.ID, "username", cred.Username, maxTextLen),
		Password:     optional(cred.Password),
		StealerType:  s.capped(ctx, alert.ID, "stealer_type", cred.StealerType, maxStealerTypeLen),
	}

	if cred.HostID == 0 {
		return detail
	}
	host, err := s.records.GetHostMetadata(ctx, cred.HostID)
	if err != nil {
		// Host enrichment is best-effort; the credential fields still land.
		s.logger.WarnContext(ctx, "failed to load host metadata for detail projection",
			"alert_id", alert.ID, "host_id", cred.HostID, "error", err)
		return detail
	}
	if host == nil {
		return detail
	}

	detail.Country = s.capped(ctx, alert.ID, "country", host.Country, maxCountryLen)
	detail.IP = optional(host.IP)
	detail.ComputerName = s.capped(ctx, alert.ID, "computer_name", host.ComputerName, maxTextLen)
	detail.OSVersion = s.capped(ctx, alert.ID, "os_version", host.OSVersion, maxTextLen)
	detail.MachineUser = s.capped(ctx, alert.ID, "machine_user", host.MachineUser, maxTextLen)
	return detail
}

// capped truncates to the column's character limit. Limits are counted in
// runes, matching the varchar(n) semantics; slicing bytes could split a
// multibyte character and hand postgres invalid UTF-8.
func (s *Service) capped(ctx context.Context, alertID int64, field, value string, limit int) *string {
	if value == "" {
		return nil
	}
	if runes := []rune(value); len(runes) > limit {
		s.logger.WarnContext(ctx, "truncating oversized detail field",
			"alert_id", alertID, "field", field, "length", len(runes), "limit", limit)
		value = string(runes[:limit])
	}
	return &value
}

func optional(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}
