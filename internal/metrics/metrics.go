// Package metrics exposes Prometheus collectors for backtests and
// indicator computation.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	OutcomeOK               = "ok"
	OutcomeInsufficientData = "insufficient_data"
	OutcomeError            = "error"

	namespace = "strategylab"
)

// Metrics holds all collectors. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	reg prometheus.Gatherer

	BacktestsTotal      *prometheus.CounterVec // labels: strategy, outcome
	TradesTotal         *prometheus.CounterVec // labels: strategy
	BacktestDuration    prometheus.Histogram
	IndicatorComputeDur *prometheus.HistogramVec // labels: kind
}

// New registers the collectors on reg. A nil reg gets a fresh registry
// that also carries the Go and process collectors.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	m := &Metrics{
		reg: reg,
		BacktestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backtests_total",
			Help:      "Backtest runs by strategy and outcome",
		}, []string{"strategy", "outcome"}),
		TradesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trades_total",
			Help:      "Completed trades by strategy",
		}, []string{"strategy"}),
		BacktestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "backtest_duration_seconds",
			Help:      "Wall time of a single backtest run",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}),
		IndicatorComputeDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "indicator_compute_seconds",
			Help:      "Indicator computation latency by kind",
			Buckets:   []float64{0.000001, 0.00001, 0.0001, 0.001, 0.01, 0.1},
		}, []string{"kind"}),
	}

	reg.MustRegister(m.BacktestsTotal, m.TradesTotal, m.BacktestDuration, m.IndicatorComputeDur)
	return m
}

// ObserveBacktest records one finished run.
func (m *Metrics) ObserveBacktest(strategy, outcome string, trades int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.BacktestsTotal.WithLabelValues(strategy, outcome).Inc()
	if trades > 0 {
		m.TradesTotal.WithLabelValues(strategy).Add(float64(trades))
	}
	m.BacktestDuration.Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveIndicator(kind string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.IndicatorComputeDur.WithLabelValues(kind).Observe(elapsed.Seconds())
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}
