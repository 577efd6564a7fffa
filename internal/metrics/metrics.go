// Package metrics exposes Prometheus collectors for the swap flow.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ThetaSpace/DarkPool-Swap-Widget/internal/trade"
)

const namespace = "swap"

// Metrics observes trade resolution, approvals, permits and swaps
type Metrics struct {
	registry *prometheus.Registry

	tradeResolutions *prometheus.CounterVec
	tradeLatency     prometheus.Histogram
	staleDropped     prometheus.Counter
	approvals        *prometheus.CounterVec
	permits          *prometheus.CounterVec
	swaps            *prometheus.CounterVec
}

// New creates the collectors on a dedicated registry
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		tradeResolutions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trade_resolutions_total",
			Help:      "Applied trade resolutions by resulting state",
		}, []string{"state"}),
		tradeLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "trade_resolution_seconds",
			Help:      "Time from dispatch to applied trade result",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		staleDropped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trade_stale_results_total",
			Help:      "Trade results dropped because a newer request superseded them",
		}),
		approvals: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "approval_requests_total",
			Help:      "Approval transaction requests by outcome",
		}, []string{"outcome"}), // submitted, rejected, failed
		permits: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "permit_requests_total",
			Help:      "Permit signature requests by outcome",
		}, []string{"outcome"}), // signed, rejected, failed
		swaps: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "swap_submissions_total",
			Help:      "Swap submissions by outcome",
		}, []string{"outcome"}), // submitted, rejected, failed
	}
}

// TradeResolved records an applied resolution
func (m *Metrics) TradeResolved(state trade.State, elapsed time.Duration) {
	m.tradeResolutions.WithLabelValues(state.String()).Inc()
	m.tradeLatency.Observe(elapsed.Seconds())
}

// StaleDropped records a dropped result
func (m *Metrics) StaleDropped() {
	m.staleDropped.Inc()
}

// ApprovalRequested records an approval outcome
func (m *Metrics) ApprovalRequested(outcome string) {
	m.approvals.WithLabelValues(outcome).Inc()
}

// PermitRequested records a permit outcome
func (m *Metrics) PermitRequested(outcome string) {
	m.permits.WithLabelValues(outcome).Inc()
}

// SwapSubmitted records a swap outcome
func (m *Metrics) SwapSubmitted(outcome string) {
	m.swaps.WithLabelValues(outcome).Inc()
}

// Registry returns the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
