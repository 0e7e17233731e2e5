// Package metrics exposes the Prometheus metrics of pdfshelf.
package metrics

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	namespace      = "pdfshelf"
	operationLabel = "operation"
	outcomeLabel   = "outcome"
	severityLabel  = "severity"
)

// Metrics manages the metric information that pdfshelf measures. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	apiRequestsTotal   *prometheus.CounterVec
	apiRequestSeconds  *prometheus.HistogramVec
	renderSeconds      prometheus.Histogram
	rendersTotal       *prometheus.CounterVec
	coalescedTotal     prometheus.Counter
	notificationsTotal *prometheus.CounterVec
	viewerSessions     prometheus.Gauge
}

// NewMetrics creates a new instance of Metrics.
func NewMetrics() (*Metrics, error) {
	reg := prometheus.NewRegistry()

	if err := reg.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{})); err != nil {
		return nil, fmt.Errorf("register process collector: %w", err)
	}
	if err := reg.Register(collectors.NewGoCollector()); err != nil {
		return nil, fmt.Errorf("register go collector: %w", err)
	}

	return &Metrics{
		registry: reg,
		apiRequestsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "requests_total",
			Help:      "Total number of backend API requests by operation and outcome.",
		}, []string{operationLabel, outcomeLabel}),
		apiRequestSeconds: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "request_seconds",
			Help:      "Latency of backend API requests.",
		}, []string{operationLabel}),
		renderSeconds: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "viewer",
			Name:      "render_seconds",
			Help:      "Time spent rendering one page including the watermark.",
		}),
		rendersTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "viewer",
			Name:      "renders_total",
			Help:      "Total number of page renders by outcome.",
		}, []string{outcomeLabel}),
		coalescedTotal: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "viewer",
			Name:      "coalesced_requests_total",
			Help:      "Page requests that overwrote an earlier pending request.",
		}),
		notificationsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ui",
			Name:      "notifications_total",
			Help:      "Notifications shown to the user by severity.",
		}, []string{severityLabel}),
		viewerSessions: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "viewer",
			Name:      "sessions",
			Help:      "Number of open viewer sessions.",
		}),
	}, nil
}

// ObserveAPIRequest records one backend call.
func (m *Metrics) ObserveAPIRequest(operation string, err error, d time.Duration) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.apiRequestsTotal.WithLabelValues(operation, outcome).Inc()
	m.apiRequestSeconds.WithLabelValues(operation).Observe(d.Seconds())
}

// ObserveRender records one finished page render.
func (m *Metrics) ObserveRender(err error, d time.Duration) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.rendersTotal.WithLabelValues(outcome).Inc()
	m.renderSeconds.Observe(d.Seconds())
}

// AddCoalesced counts a pending page overwritten by a newer request.
func (m *Metrics) AddCoalesced() {
	if m == nil {
		return
	}
	m.coalescedTotal.Inc()
}

// AddNotification counts a notification of the given severity.
func (m *Metrics) AddNotification(severity string) {
	if m == nil {
		return
	}
	m.notificationsTotal.WithLabelValues(severity).Inc()
}

// SetViewerSessions sets the number of open viewer sessions.
func (m *Metrics) SetViewerSessions(n int) {
	if m == nil {
		return
	}
	m.viewerSessions.Set(float64(n))
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
