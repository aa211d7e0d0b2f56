// Package metrics exposes Prometheus counters for imports and maintenance.
// A nil *ImportMetrics is valid and records nothing.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// ImportMetrics exposes counters/histograms for import runs and sweeps.
type ImportMetrics struct {
	records      *prometheus.CounterVec
	keyFailures  *prometheus.CounterVec
	occasions    *prometheus.CounterVec
	runDuration  *prometheus.HistogramVec
	sweepDeleted *prometheus.CounterVec
}

func NewImportMetrics(reg prometheus.Registerer) *ImportMetrics {
	m := &ImportMetrics{
		records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "eventimport",
			Name:      "records_total",
			Help:      "Reconciled records by provider, entity kind and action",
		}, []string{"provider", "kind", "action"}),
		keyFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "eventimport",
			Name:      "key_failures_total",
			Help:      "Credential entries skipped because of configuration or transport errors",
		}, []string{"provider", "reason"}),
		occasions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "eventimport",
			Name:      "occasions_total",
			Help:      "Occasion upserts by outcome",
		}, []string{"status"}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "eventimport",
			Name:      "run_duration_seconds",
			Help:      "Duration of import runs and cron steps",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		}, []string{"provider", "path"}),
		sweepDeleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "eventimport",
			Name:      "sweep_deleted_total",
			Help:      "Rows removed by the expiration sweep",
		}, []string{"what"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.records, m.keyFailures, m.occasions, m.runDuration, m.sweepDeleted)
	return m
}

func (m *ImportMetrics) ObserveRecord(provider, kind, action string) {
	if m == nil {
		return
	}
	m.records.WithLabelValues(provider, kind, action).Inc()
}

func (m *ImportMetrics) ObserveKeyFailure(provider, reason string) {
	if m == nil {
		return
	}
	m.keyFailures.WithLabelValues(provider, reason).Inc()
}

func (m *ImportMetrics) ObserveOccasion(status string) {
	if m == nil {
		return
	}
	m.occasions.WithLabelValues(status).Inc()
}

func (m *ImportMetrics) ObserveRunDuration(provider, path string, seconds float64) {
	if m == nil {
		return
	}
	m.runDuration.WithLabelValues(provider, path).Observe(seconds)
}

func (m *ImportMetrics) ObserveSweep(what string, n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.sweepDeleted.WithLabelValues(what).Add(float64(n))
}
