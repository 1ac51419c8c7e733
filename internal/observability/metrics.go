// Package observability holds the prometheus instrumentation shared by the
// lifecycle manager and the state synchronizer.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles the client's counters and histograms.
type Metrics struct {
	Submissions    *prometheus.CounterVec
	ConfirmSeconds prometheus.Histogram
	RefreshReads   *prometheus.CounterVec
}

// NewMetrics registers the client metrics on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dobswap",
			Name:      "submissions_total",
			Help:      "Transaction submissions by method and terminal outcome.",
		}, []string{"method", "outcome"}),
		ConfirmSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "dobswap",
			Name:      "confirmation_seconds",
			Help:      "Time from submission to terminal confirmation status.",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 9),
		}),
		RefreshReads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dobswap",
			Name:      "refresh_reads_total",
			Help:      "Synchronizer field reads by field and result.",
		}, []string{"field", "result"}),
	}

	if reg != nil {
		reg.MustRegister(m.Submissions, m.ConfirmSeconds, m.RefreshReads)
	}
	return m
}

// ObserveSubmission is a nil-safe counter bump.
func (m *Metrics) ObserveSubmission(method, outcome string) {
	if m == nil {
		return
	}
	m.Submissions.WithLabelValues(method, outcome).Inc()
}

// ObserveConfirmation is a nil-safe latency observation.
func (m *Metrics) ObserveConfirmation(seconds float64) {
	if m == nil {
		return
	}
	m.ConfirmSeconds.Observe(seconds)
}

// ObserveRead is a nil-safe refresh read counter bump.
func (m *Metrics) ObserveRead(field, result string) {
	if m == nil {
		return
	}
	m.RefreshReads.WithLabelValues(field, result).Inc()
}
