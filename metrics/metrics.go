// Package metrics exposes replay activity as Prometheus collectors.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "replay"

// Metrics groups the replay collectors. A nil *Metrics is a no-op.
type Metrics struct {
	registry *prometheus.Registry

	steps              *prometheus.CounterVec
	ajaxDuration       prometheus.Histogram
	ajaxFailures       prometheus.Counter
	sessionsActive     prometheus.Gauge
	screenshotMismatch prometheus.Counter
	settleWaitDuration prometheus.Histogram
}

// New registers the collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		steps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "steps_total",
			Help:      "Replayed steps by type and result.",
		}, []string{"type", "result"}),
		ajaxDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ajax_duration_seconds",
			Help:      "Duration of data exchanges observed during replay.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		ajaxFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ajax_failures_total",
			Help:      "Data exchanges that failed during replay.",
		}),
		sessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Replay sessions currently registered.",
		}),
		screenshotMismatch: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "screenshot_mismatches_total",
			Help:      "Screenshots that fell below the similarity threshold.",
		}),
		settleWaitDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "settle_wait_seconds",
			Help:      "Time spent waiting for pages to go quiet after a step.",
			Buckets:   prometheus.LinearBuckets(0, 1, 10),
		}),
	}

	m.registry.MustRegister(
		m.steps,
		m.ajaxDuration,
		m.ajaxFailures,
		m.sessionsActive,
		m.screenshotMismatch,
		m.settleWaitDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// StepDone counts a replayed step.
func (m *Metrics) StepDone(stepType string, err error) {
	if m == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "failed"
	}
	m.steps.WithLabelValues(stepType, result).Inc()
}

// AjaxDone observes a completed data exchange.
func (m *Metrics) AjaxDone(elapsed time.Duration, failed bool) {
	if m == nil {
		return
	}
	m.ajaxDuration.Observe(elapsed.Seconds())
	if failed {
		m.ajaxFailures.Inc()
	}
}

// SettleWaited observes a settle wait.
func (m *Metrics) SettleWaited(elapsed time.Duration) {
	if m == nil {
		return
	}
	m.settleWaitDuration.Observe(elapsed.Seconds())
}

// ScreenshotMismatch counts a failed screenshot comparison.
func (m *Metrics) ScreenshotMismatch() {
	if m == nil {
		return
	}
	m.screenshotMismatch.Inc()
}

// SessionOpened increments the active session gauge.
func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.sessionsActive.Inc()
}

// SessionClosed decrements the active session gauge.
func (m *Metrics) SessionClosed() {
	if m == nil {
		return
	}
	m.sessionsActive.Dec()
}
