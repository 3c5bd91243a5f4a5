// Package metrics exposes prometheus collectors for provider chains, the
// portfolio cache and the approval scanner.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "walletfolio"

// Metrics owns a dedicated registry so tests can create isolated instances.
type Metrics struct {
	registry *prometheus.Registry

	ProviderAttempts *prometheus.CounterVec
	ProviderDefaults *prometheus.CounterVec
	CacheOperations  *prometheus.CounterVec
	ApprovalPairs    *prometheus.CounterVec
	RefreshDuration  *prometheus.HistogramVec
}

// New creates and registers all collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		ProviderAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "provider_attempts_total",
				Help:      "Provider attempts per fallback chain, by outcome.",
			},
			[]string{"chain", "provider", "outcome"},
		),
		ProviderDefaults: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "provider_chain_defaults_total",
				Help:      "Fallback chain executions that ended on the default value.",
			},
			[]string{"chain"},
		),
		CacheOperations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_operations_total",
				Help:      "Portfolio cache operations by tier and result.",
			},
			[]string{"op", "tier", "result"},
		),
		ApprovalPairs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "approval_pairs_checked_total",
				Help:      "Token/spender allowance pairs checked, by result.",
			},
			[]string{"result"},
		),
		RefreshDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "refresh_duration_seconds",
				Help:      "Time taken to refresh one portfolio section.",
				Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"section"},
		),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.ProviderAttempts,
		m.ProviderDefaults,
		m.CacheOperations,
		m.ApprovalPairs,
		m.RefreshDuration,
	)
	return m
}

// ObserveAttempt implements fallback.Recorder.
func (m *Metrics) ObserveAttempt(chain, provider string, err error) {
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	m.ProviderAttempts.WithLabelValues(chain, provider, outcome).Inc()
}

// ObserveDefault implements fallback.Recorder.
func (m *Metrics) ObserveDefault(chain string) {
	m.ProviderDefaults.WithLabelValues(chain).Inc()
}

// ObserveCache records one cache operation.
func (m *Metrics) ObserveCache(op, tier, result string) {
	m.CacheOperations.WithLabelValues(op, tier, result).Inc()
}

// ObserveApprovalPair records one allowance lookup.
func (m *Metrics) ObserveApprovalPair(err error) {
	if err != nil {
		m.ApprovalPairs.WithLabelValues("error").Inc()
		return
	}
	m.ApprovalPairs.WithLabelValues("ok").Inc()
}

// ObserveRefresh records how long a portfolio section took to load.
func (m *Metrics) ObserveRefresh(section string, seconds float64) {
	m.RefreshDuration.WithLabelValues(section).Observe(seconds)
}

// Handler serves the registry in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
