package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Item outcomes.
const (
	OutcomeProcessed = "processed"
	OutcomeFiltered  = "filtered"
	OutcomeDuplicate = "duplicate"
	OutcomeError     = "error"
)

// Metrics groups the pipeline collectors on a private registry. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	items            *prometheus.CounterVec
	runs             *prometheus.CounterVec
	runDuration      prometheus.Histogram
	providerRequests *prometheus.CounterVec
	filterRejections *prometheus.CounterVec
}

// New registers the collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		items: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "contentfeed",
			Name:      "items_total",
			Help:      "Feed items seen by the ingestion pipeline, by outcome.",
		}, []string{"outcome"}),
		runs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "contentfeed",
			Name:      "runs_total",
			Help:      "Completed ingestion runs, by status.",
		}, []string{"status"}),
		runDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "contentfeed",
			Name:      "run_duration_seconds",
			Help:      "Wall time of ingestion runs.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
		}),
		providerRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "contentfeed",
			Name:      "provider_requests_total",
			Help:      "Language model provider calls, by provider and outcome.",
		}, []string{"provider", "outcome"}),
		filterRejections: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "contentfeed",
			Name:      "filter_rejections_total",
			Help:      "Items rejected by the filter engine, by rule.",
		}, []string{"rule"}),
	}
}

// Item counts one item outcome.
func (m *Metrics) Item(outcome string) {
	if m == nil {
		return
	}
	m.items.WithLabelValues(outcome).Inc()
}

// Run records a finished run.
func (m *Metrics) Run(status string, d time.Duration) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(status).Inc()
	m.runDuration.Observe(d.Seconds())
}

// ProviderRequest counts one provider call outcome.
func (m *Metrics) ProviderRequest(provider, outcome string) {
	if m == nil {
		return
	}
	m.providerRequests.WithLabelValues(provider, outcome).Inc()
}

// FilterRejection counts one rejection by rule name.
func (m *Metrics) FilterRejection(rule string) {
	if m == nil {
		return
	}
	m.filterRejections.WithLabelValues(rule).Inc()
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}
