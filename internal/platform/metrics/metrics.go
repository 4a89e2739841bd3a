package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the matching engine.
type Metrics struct {
	AlertsCreated       *prometheus.CounterVec
	SweepDuration       *prometheus.HistogramVec
	SweepFailures       *prometheus.CounterVec
	DetailWriteFailures prometheus.Counter
	DetailsReconciled   prometheus.Counter
	CoveragePercent     prometheus.Gauge
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	return &Metrics{
		AlertsCreated: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "stealwatch_alerts_created_total",
			Help: "Total number of alerts created, by record kind",
		}, []string{"kind"}),
		SweepDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "stealwatch_sweep_duration_seconds",
			Help:    "Duration of watchlist matching sweeps",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"kind"}),
		SweepFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "stealwatch_sweep_failures_total",
			Help: "Total number of sweeps aborted by store failures",
		}, []string{"kind"}),
		DetailWriteFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "stealwatch_alert_detail_write_failures_total",
			Help: "Total number of alert detail rows that failed to materialize",
		}),
		DetailsReconciled: promauto.NewCounter(prometheus.CounterOpts{
			Name: "stealwatch_alert_details_reconciled_total",
			Help: "Total number of alert detail rows rebuilt by the reconciliation sweeper",
		}),
		CoveragePercent: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "stealwatch_alert_detail_coverage_percent",
			Help: "Share of credential alerts with a materialized detail row",
		}),
	}
}

// IncrementAlertsCreated records one freshly created alert of a kind.
func (m *Metrics) IncrementAlertsCreated(kind string) {
	if m != nil {
		m.AlertsCreated.WithLabelValues(kind).Inc()
	}
}

// ObserveSweep records the duration of one completed sweep.
func (m *Metrics) ObserveSweep(kind string, d time.Duration) {
	if m != nil {
		m.SweepDuration.WithLabelValues(kind).Observe(d.Seconds())
	}
}

// IncrementSweepFailure records one sweep aborted by a store failure.
func (m *Metrics) IncrementSweepFailure(kind string) {
	if m != nil {
		m.SweepFailures.WithLabelValues(kind).Inc()
	}
}

// IncrementDetailWriteFailure records one projection write that failed.
func (m *Metrics) IncrementDetailWriteFailure() {
	if m != nil {
		m.DetailWriteFailures.Inc()
	}
}

// AddDetailsReconciled records detail rows rebuilt by a reconciliation pass.
func (m *Metrics) AddDetailsReconciled(n int) {
	if m != nil {
		m.DetailsReconciled.Add(float64(n))
	}
}

// SetCoveragePercent publishes the latest coverage snapshot.
func (m *Metrics) SetCoveragePercent(pct float64) {
	if m != nil {
		m.CoveragePercent.Set(pct)
	}
}
