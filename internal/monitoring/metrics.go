// Package monitoring records run metrics and raises alerts on run outcomes.
package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/sells-group/provider-screen/internal/model"
)

// Metrics exposes Prometheus instruments for screening runs.
type Metrics struct {
	// Completed runs by redaction profile
	RunsTotal *prometheus.CounterVec

	// Scored providers by tier and status
	ProvidersByTier   *prometheus.CounterVec
	ProvidersByStatus *prometheus.CounterVec

	EvidenceTotal  prometheus.Counter
	OrphanEvidence prometheus.Counter

	RunDuration prometheus.Histogram

	// Size of the most recent run
	LastRunProviders prometheus.Gauge
}

// NewMetrics registers the run metrics with reg. A nil reg uses the default
// registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		RunsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "provider_screen_runs_total",
			Help: "Completed screening runs by redaction profile",
		}, []string{"profile"}),

		ProvidersByTier: f.NewCounterVec(prometheus.CounterOpts{
			Name: "provider_screen_providers_by_tier_total",
			Help: "Scored providers by risk tier",
		}, []string{"tier"}),

		ProvidersByStatus: f.NewCounterVec(prometheus.CounterOpts{
			Name: "provider_screen_providers_by_status_total",
			Help: "Scored providers by licensing status",
		}, []string{"status"}),

		EvidenceTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "provider_screen_evidence_total",
			Help: "Evidence items attached to scored providers",
		}),

		OrphanEvidence: f.NewCounter(prometheus.CounterOpts{
			Name: "provider_screen_orphan_evidence_total",
			Help: "Evidence items skipped because their provider was not in the batch",
		}),

		RunDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "provider_screen_run_duration_seconds",
			Help:    "Duration of a full engine run",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),

		LastRunProviders: f.NewGauge(prometheus.GaugeOpts{
			Name: "provider_screen_last_run_providers",
			Help: "Provider count of the most recent run",
		}),
	}
}

// ObserveRun records one finished run. Safe on a nil receiver.
func (m *Metrics) ObserveRun(s model.RunSummary, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.RunsTotal.WithLabelValues(s.Profile).Inc()
	for tier, n := range s.TierCounts {
		m.ProvidersByTier.WithLabelValues(string(tier)).Add(float64(n))
	}
	for st, n := range s.StatusCounts {
		m.ProvidersByStatus.WithLabelValues(string(st)).Add(float64(n))
	}
	m.EvidenceTotal.Add(float64(s.EvidenceCount))
	m.OrphanEvidence.Add(float64(s.OrphanEvidence))
	m.RunDuration.Observe(elapsed.Seconds())
	m.LastRunProviders.Set(float64(s.ProviderCount))
}
