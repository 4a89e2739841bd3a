// Package scheduler drives the sweeps. Matching never runs on the read path:
// a single background loop ticks every interval and kicks each sweep kind,
// and manual triggers share the same single-flight guard so overlapping runs
// of one kind collapse into the in-flight one.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"stealwatch/internal/platform/metrics"
)

// Sweeper runs one matching pass and reports how many alerts it created.
type Sweeper interface {
	Sweep(ctx context.Context) (int, error)
}

// Reconciler runs one detail backfill pass.
type Reconciler interface {
	Reconcile(ctx context.Context) (int, error)
}

const (
	KindKeyword   = "keyword"
	KindCard      = "card"
	KindReconcile = "reconcile"
)

type Scheduler struct {
	keyword    Sweeper
	card       Sweeper
	reconciler Reconciler

	interval          time.Duration
	reconcileDisabled bool
	logger            *slog.Logger
	metrics           *metrics.Metrics
	group             singleflight.Group
}

type Option func(*Scheduler)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) { s.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Scheduler) { s.metrics = m }
}

func WithInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithReconcileDisabled keeps the periodic backfill off; manual triggers
// still work.
func WithReconcileDisabled(disabled bool) Option {
	return func(s *Scheduler) { s.reconcileDisabled = disabled }
}

func New(keyword, card Sweeper, reconciler Reconciler, opts ...Option) (*Scheduler, error) {
	if keyword == nil || card == nil {
		return nil, errors.New("keyword and card sweepers are required")
	}
	if reconciler == nil {
		return nil, errors.New("reconciler is required")
	}
	s := &Scheduler{
		keyword:    keyword,
		card:       card,
		reconciler: reconciler,
		interval:   time.Minute,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Run blocks, sweeping on every tick until the context is cancelled. Errors
// inside a sweep are logged and counted; the loop never dies.
func (s *Scheduler) Run(ctx context.Context) {
	s.logger.InfoContext(ctx, "sweep scheduler started",
		"interval", s.interval.String(), "reconcile_disabled", s.reconcileDisabled)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	// First pass immediately; fresh criteria should not wait a full interval.
	s.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("sweep scheduler stopped")
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	if _, err := s.TriggerKeyword(ctx); err != nil && !errors.Is(err, context.Canceled) {
		s.logger.ErrorContext(ctx, "keyword sweep failed", "error", err)
	}
	if _, err := s.TriggerCard(ctx); err != nil && !errors.Is(err, context.Canceled) {
		s.logger.ErrorContext(ctx, "card sweep failed", "error", err)
	}
	if s.reconcileDisabled {
		return
	}
	if _, err := s.TriggerReconcile(ctx); err != nil && !errors.Is(err, context.Canceled) {
		s.logger.ErrorContext(ctx, "reconciliation failed", "error", err)
	}
}

// TriggerKeyword runs the keyword sweep now, joining any in-flight run.
func (s *Scheduler) TriggerKeyword(ctx context.Context) (int, error) {
	return s.run(ctx, KindKeyword, s.keyword.Sweep)
}

// TriggerCard runs the card sweep now, joining any in-flight run.
func (s *Scheduler) TriggerCard(ctx context.Context) (int, error) {
	return s.run(ctx, KindCard, s.card.Sweep)
}

// TriggerReconcile runs a backfill pass now, joining any in-flight run.
func (s *Scheduler) TriggerReconcile(ctx context.Context) (int, error) {
	return s.run(ctx, KindReconcile, s.reconciler.Reconcile)
}

func (s *Scheduler) run(ctx context.Context, kind string, fn func(context.Context) (int, error)) (int, error) {
	result, err, shared := s.group.Do(kind, func() (any, error) {
		// Later triggers join this run, so it must not die with the first
		// caller's request context. Batch caps keep the pass bounded.
		runCtx := context.WithoutCancel(ctx)
		start := time.Now()
		n, err := fn(runCtx)
		if err != nil {
			s.metrics.IncrementSweepFailure(kind)
			return n, err
		}
		s.metrics.ObserveSweep(kind, time.Since(start))
		return n, nil
	})
	if shared {
		s.logger.DebugContext(ctx, "joined in-flight sweep", "kind", kind)
	}
	n, _ := result.(int)
	return n, err
}
