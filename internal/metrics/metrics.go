// Package metrics exposes in-process counters for the borrow/return
// engine over a Prometheus registry.  Nothing here ships samples
// anywhere; the /metrics endpoint is a plain pull surface.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// BorrowMetrics counts borrow attempts and their outcomes plus the
// current number of outstanding loans.
type BorrowMetrics struct {
	registry *prometheus.Registry

	Attempts  prometheus.Counter
	Successes prometheus.Counter
	Failures  *prometheus.CounterVec
	Returns   prometheus.Counter
	Active    prometheus.Gauge
}

// New builds a BorrowMetrics set on a fresh registry together with the
// standard Go runtime collectors.
func New() *BorrowMetrics {
	reg := prometheus.NewRegistry()
	m := &BorrowMetrics{
		registry: reg,
		Attempts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "library_borrow_attempts_total",
			Help: "Borrow attempts, successful or not.",
		}),
		Successes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "library_borrow_success_total",
			Help: "Borrow transactions that committed.",
		}),
		Failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "library_borrow_failures_total",
			Help: "Borrow rejections and errors, by reason.",
		}, []string{"reason"}),
		Returns: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "library_returns_total",
			Help: "Return transactions that committed.",
		}),
		Active: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "library_active_borrows",
			Help: "Loans currently outstanding, as observed by this process.",
		}),
	}
	reg.MustRegister(m.Attempts, m.Successes, m.Failures, m.Returns, m.Active)
	reg.MustRegister(collectors.NewGoCollector())
	return m
}

// BorrowSucceeded records a committed borrow.
func (m *BorrowMetrics) BorrowSucceeded() {
	m.Successes.Inc()
	m.Active.Inc()
}

// BorrowFailed records a rejected or errored borrow with its reason
// label (e.g. "limit_exceeded", "unavailable", "transient").
func (m *BorrowMetrics) BorrowFailed(reason string) {
	m.Failures.WithLabelValues(reason).Inc()
}

// ReturnSucceeded records a committed return.
func (m *BorrowMetrics) ReturnSucceeded() {
	m.Returns.Inc()
	m.Active.Dec()
}

// Handler serves the registry in the Prometheus text format.
func (m *BorrowMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
