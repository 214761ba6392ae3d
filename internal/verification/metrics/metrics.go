// Package metrics exposes Prometheus instrumentation for registry lookups,
// credential checks and batch runs.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	RegistryRequestsTotal   *prometheus.CounterVec   // by jurisdiction, outcome (success or error category)
	RegistryRequestDuration *prometheus.HistogramVec // by jurisdiction
	RegistryRetriesTotal    *prometheus.CounterVec   // by jurisdiction
	RegistryCircuitOpen     *prometheus.GaugeVec     // 1 while the jurisdiction breaker is open

	ChecksTotal   *prometheus.CounterVec // by credential type, result
	CheckDuration *prometheus.HistogramVec

	SearchCacheHitsTotal   prometheus.Counter
	SearchCacheMissesTotal prometheus.Counter

	BatchRunsTotal      *prometheus.CounterVec // by outcome (completed, cancelled)
	BatchProviderErrors prometheus.Counter
	BatchDuration       prometheus.Histogram
	EventsDroppedTotal  prometheus.Counter
}

// New registers all collectors on the default registry.
func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

// NewWith registers all collectors on reg. Tests pass prometheus.NewRegistry().
func NewWith(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		RegistryRequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "bobinator_registry_requests_total",
			Help: "Registry lookups by jurisdiction and outcome",
		}, []string{"jurisdiction", "outcome"}),
		RegistryRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "bobinator_registry_request_duration_seconds",
			Help:    "Duration of registry lookups including retries",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 15, 30, 60},
		}, []string{"jurisdiction"}),
		RegistryRetriesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "bobinator_registry_retries_total",
			Help: "Retried registry HTTP attempts by jurisdiction",
		}, []string{"jurisdiction"}),
		RegistryCircuitOpen: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "bobinator_registry_circuit_open",
			Help: "1 while the registry circuit breaker for a jurisdiction is open",
		}, []string{"jurisdiction"}),
		ChecksTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "bobinator_credential_checks_total",
			Help: "Credential checks by type and result",
		}, []string{"credential_type", "result"}),
		CheckDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "bobinator_credential_check_duration_seconds",
			Help:    "Duration of individual credential checks",
			Buckets: prometheus.DefBuckets,
		}, []string{"credential_type"}),
		SearchCacheHitsTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "bobinator_search_cache_hits_total",
			Help: "Registry search results served from cache",
		}),
		SearchCacheMissesTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "bobinator_search_cache_misses_total",
			Help: "Registry searches that went to the registry",
		}),
		BatchRunsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "bobinator_batch_runs_total",
			Help: "Batch re-verification runs by outcome",
		}, []string{"outcome"}),
		BatchProviderErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "bobinator_batch_provider_errors_total",
			Help: "Providers whose verification faulted during a batch run",
		}),
		BatchDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "bobinator_batch_duration_seconds",
			Help:    "Wall time of batch re-verification runs",
			Buckets: []float64{1, 10, 30, 60, 300, 900, 1800, 3600},
		}),
		EventsDroppedTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "bobinator_verification_events_dropped_total",
			Help: "Verification events that could not be published",
		}),
	}
}

func (m *Metrics) RecordRegistryRequest(jurisdiction, outcome string, durationSeconds float64) {
	m.RegistryRequestsTotal.WithLabelValues(jurisdiction, outcome).Inc()
	m.RegistryRequestDuration.WithLabelValues(jurisdiction).Observe(durationSeconds)
}

func (m *Metrics) RecordRetry(jurisdiction string) {
	m.RegistryRetriesTotal.WithLabelValues(jurisdiction).Inc()
}

func (m *Metrics) SetCircuitOpen(jurisdiction string, open bool) {
	v := 0.0
	if open {
		v = 1
	}
	m.RegistryCircuitOpen.WithLabelValues(jurisdiction).Set(v)
}

func (m *Metrics) RecordCheck(credentialType, result string, durationSeconds float64) {
	m.ChecksTotal.WithLabelValues(credentialType, result).Inc()
	m.CheckDuration.WithLabelValues(credentialType).Observe(durationSeconds)
}

func (m *Metrics) RecordSearchCache(hit bool) {
	if hit {
		m.SearchCacheHitsTotal.Inc()
		return
	}
	m.SearchCacheMissesTotal.Inc()
}

func (m *Metrics) RecordBatchRun(outcome string, providerErrors int, durationSeconds float64) {
	m.BatchRunsTotal.WithLabelValues(outcome).Inc()
	m.BatchProviderErrors.Add(float64(providerErrors))
	m.BatchDuration.Observe(durationSeconds)
}

func (m *Metrics) RecordEventDropped() {
	m.EventsDroppedTotal.Inc()
}
