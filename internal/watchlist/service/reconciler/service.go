// Package reconciler converges the detail projection toward full coverage.
// Alerts whose projection write failed or whose credential was temporarily
// unreadable get their detail row backfilled here, newest first.
package reconciler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"stealwatch/internal/platform/metrics"
	platformredis "stealwatch/internal/platform/redis"
	"stealwatch/internal/watchlist/models"
	"stealwatch/internal/watchlist/ports"
	dErrors "stealwatch/pkg/errors"
)

// Materializer rebuilds the detail projection for one alert. The bool
// reports whether a row was written; false with a nil error means the
// backing record is gone and no retry will help.
type Materializer interface {
	Materialize(ctx context.Context, alert *models.Alert) (bool, error)
}

const (
	defaultBatchSize = 1000
	coverageCacheKey = "stealwatch:coverage"
)

type Service struct {
	alerts       ports.AlertStore
	materializer Materializer

	batchSize int
	cache     *platformredis.Client
	cacheTTL  time.Duration
	logger    *slog.Logger
	metrics   *metrics.Metrics
	now       func() time.Time
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithBatchSize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

// WithCoverageCache caches coverage snapshots in Redis. A nil client keeps
// coverage fully live.
func WithCoverageCache(cache *platformredis.Client, ttl time.Duration) Option {
	return func(s *Service) {
		s.cache = cache
		s.cacheTTL = ttl
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func New(alerts ports.AlertStore, materializer Materializer, opts ...Option) (*Service, error) {
	if alerts == nil {
		return nil, errors.New("alert store is required")
	}
	if materializer == nil {
		return nil, errors.New("materializer is required")
	}
	svc := &Service{
		alerts:       alerts,
		materializer: materializer,
		batchSize:    defaultBatchSize,
		logger:       slog.Default(),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Reconcile backfills detail rows for one batch of alerts that lack them and
// returns how many were repaired. A failure on one alert skips that alert;
// it stays eligible for the next pass.
func (s *Service) Reconcile(ctx context.Context) (int, error) {
	missing, err := s.alerts.ListMissingDetails(ctx, s.batchSize)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list alerts missing details")
	}
	if len(missing) == 0 {
		return 0, nil
	}

	repaired := 0
	gone := 0
	for _, alert := range missing {
		if err := ctx.Err(); err != nil {
			return repaired, err
		}
		written, err := s.materializer.Materialize(ctx, alert)
		if err != nil {
			s.logger.WarnContext(ctx, "reconciliation skipped alert",
				"alert_id", alert.ID, "error", err)
			continue
		}
		if !written {
			// Backing record gone; nothing was repaired and nothing will be.
			gone++
			continue
		}
		repaired++
	}

	s.metrics.AddDetailsReconciled(repaired)
	s.logger.InfoContext(ctx, "reconciliation pass completed",
		"candidates", len(missing), "repaired", repaired, "record_gone", gone)
	return repaired, nil
}

// Coverage reports how far the projection lags behind alerts. Snapshots are
// served from cache when fresh; cache trouble silently degrades to a live
// count.
func (s *Service) Coverage(ctx context.Context) (*models.Coverage, error) {
	if cached := s.cachedCoverage(ctx); cached != nil {
		return cached, nil
	}

	total, withDetails, err := s.alerts.CountByDetailPresence(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to count detail coverage")
	}

	cov := &models.Coverage{
		Total:       total,
		WithDetails: withDetails,
		Missing:     total - withDetails,
		Percentage:  100.0,
		ComputedAt:  s.now().UTC(),
	}
	if total > 0 {
		cov.Percentage = float64(withDetails) / float64(total) * 100.0
	}
	s.metrics.SetCoveragePercent(cov.Percentage)

	s.storeCoverage(ctx, cov)
	return cov, nil
}

// MissingSample lists the IDs of up to n alerts still waiting for a detail
// row, newest first. Always live; the sample is a diagnostic, not a metric.
func (s *Service) MissingSample(ctx context.Context, n int) ([]int64, error) {
	if n <= 0 {
		n = 10
	}
	missing, err := s.alerts.ListMissingDetails(ctx, n)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to sample alerts missing details")
	}
	ids := make([]int64, 0, len(missing))
	for _, alert := range missing {
		ids = append(ids, alert.ID)
	}
	return ids, nil
}

func (s *Service) cachedCoverage(ctx context.Context) *models.Coverage {
	if s.cache == nil {
		return nil
	}
	raw, err := s.cache.Get(ctx, coverageCacheKey).Bytes()
	if err != nil {
		return nil
	}
	var cov models.Coverage
	if err := json.Unmarshal(raw, &cov); err != nil {
		return nil
	}
	return &cov
}

func (s *Service) storeCoverage(ctx context.Context, cov *models.Coverage) {
	if s.cache == nil || s.cacheTTL <= 0 {
		return
	}
	raw, err := json.Marshal(cov)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, coverageCacheKey, raw, s.cacheTTL).Err(); err != nil {
		s.logger.WarnContext(ctx, "failed to cache coverage snapshot", "error", err)
	}
}
