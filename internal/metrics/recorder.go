// Package metrics exposes Prometheus instrumentation for the settings
// registry, the diagnostics engine, and the admin HTTP surface.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder owns the Prometheus registry and the metric families. It
// implements settings.Metrics and diagnostics.Metrics.
type Recorder struct {
	registry *prometheus.Registry

	settingWritesTotal      *prometheus.CounterVec
	validationFailuresTotal *prometheus.CounterVec
	registeredSettings      prometheus.Gauge

	errorsTotal         *prometheus.CounterVec
	activeNotifications prometheus.Gauge

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

// Config holds metrics options.
type Config struct {
	Enabled   bool   `json:"enabled" mapstructure:"enabled"`
	Path      string `json:"path" mapstructure:"path"`
	Namespace string `json:"namespace" mapstructure:"namespace"`
}

// NewRecorder builds a recorder with all metric families registered. A
// nil *Recorder is safe to use everywhere and records nothing, so
// callers can pass the result through unconditionally.
func NewRecorder(cfg Config) *Recorder {
	if !cfg.Enabled {
		return nil
	}
	if cfg.Namespace == "" {
		cfg.Namespace = "corestate"
	}

	r := &Recorder{
		registry: prometheus.NewRegistry(),
	}

	r.settingWritesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: "settings",
			Name:      "writes_total",
			Help:      "Total number of accepted setting writes",
		},
		[]string{"source"},
	)

	r.validationFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: "settings",
			Name:      "validation_failures_total",
			Help:      "Total number of rejected setting writes",
		},
		[]string{"reason"},
	)

	r.registeredSettings = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: "settings",
			Name:      "registered_total",
			Help:      "Number of registered setting definitions",
		},
	)

	r.errorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: "diagnostics",
			Name:      "errors_total",
			Help:      "Total number of errors logged",
		},
		[]string{"severity", "source"},
	)

	r.activeNotifications = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: "diagnostics",
			Name:      "active_notifications",
			Help:      "Number of notifications currently in the queue",
		},
	)

	r.httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	r.httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: cfg.Namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	r.registry.MustRegister(
		r.settingWritesTotal,
		r.validationFailuresTotal,
		r.registeredSettings,
		r.errorsTotal,
		r.activeNotifications,
		r.httpRequestsTotal,
		r.httpRequestDuration,
	)

	return r
}

// RecordSettingWrite counts an accepted write by source.
func (r *Recorder) RecordSettingWrite(source string) {
	if r == nil {
		return
	}
	r.settingWritesTotal.WithLabelValues(source).Inc()
}

// RecordValidationFailure counts a rejected write by reason.
func (r *Recorder) RecordValidationFailure(reason string) {
	if r == nil {
		return
	}
	r.validationFailuresTotal.WithLabelValues(reason).Inc()
}

// SetRegisteredSettings tracks the definition count.
func (r *Recorder) SetRegisteredSettings(n int) {
	if r == nil {
		return
	}
	r.registeredSettings.Set(float64(n))
}

// RecordError counts a logged error by severity and source.
func (r *Recorder) RecordError(severity, source string) {
	if r == nil {
		return
	}
	r.errorsTotal.WithLabelValues(severity, source).Inc()
}

// SetActiveNotifications tracks the notification queue depth.
func (r *Recorder) SetActiveNotifications(n int) {
	if r == nil {
		return
	}
	r.activeNotifications.Set(float64(n))
}

// RecordHTTPRequest counts a served request and observes its duration.
func (r *Recorder) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	if r == nil {
		return
	}
	r.httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	r.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// Handler returns the scrape endpoint for this recorder's registry.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Gatherer exposes the underlying registry for tests.
func (r *Recorder) Gatherer() prometheus.Gatherer {
	if r == nil {
		return nil
	}
	return r.registry
}
