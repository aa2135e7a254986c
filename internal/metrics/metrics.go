// Package metrics holds the Prometheus collectors for the save pipeline and
// the canvas API. A nil *Collector is valid and records nothing.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Save outcomes.
const (
	OutcomeSaved   = "saved"
	OutcomeSkipped = "skipped"
	OutcomeFailed  = "failed"
)

// Collector owns a private registry so several collectors can coexist in tests.
type Collector struct {
	registry *prometheus.Registry

	SaveAttempts      *prometheus.CounterVec
	SaveDuration      prometheus.Histogram
	ThumbnailFailures prometheus.Counter
	CleanupDeleted    prometheus.Counter
	CleanupFailures   prometheus.Counter

	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec
}

// NewCollector creates and registers all metrics under namespace.
func NewCollector(namespace string) *Collector {
	registry := prometheus.NewRegistry()

	c := &Collector{
		registry: registry,
		SaveAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "canvas_save_attempts_total",
				Help:      "Auto-save attempts by outcome",
			},
			[]string{"outcome"},
		),
		SaveDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "canvas_save_duration_seconds",
				Help:      "Time spent writing a canvas snapshot, thumbnail included",
				Buckets:   prometheus.DefBuckets,
			},
		),
		ThumbnailFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "canvas_thumbnail_failures_total",
				Help:      "Thumbnails that could not be rendered",
			},
		),
		CleanupDeleted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "canvas_cleanup_deleted_total",
				Help:      "Duplicate canvas records removed by retention cleanup",
			},
		),
		CleanupFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "canvas_cleanup_failures_total",
				Help:      "Retention cleanup runs that returned an error",
			},
		),
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
	}

	registry.MustRegister(
		c.SaveAttempts,
		c.SaveDuration,
		c.ThumbnailFailures,
		c.CleanupDeleted,
		c.CleanupFailures,
		c.HTTPRequests,
		c.HTTPDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// Registry exposes the underlying registry.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func (c *Collector) ObserveSave(outcome string, d time.Duration) {
	if c == nil {
		return
	}
	c.SaveAttempts.WithLabelValues(outcome).Inc()
	if outcome != OutcomeSkipped {
		c.SaveDuration.Observe(d.Seconds())
	}
}

func (c *Collector) ThumbnailFailed() {
	if c == nil {
		return
	}
	c.ThumbnailFailures.Inc()
}

func (c *Collector) CleanupDone(deleted int, err error) {
	if c == nil {
		return
	}
	if deleted > 0 {
		c.CleanupDeleted.Add(float64(deleted))
	}
	if err != nil {
		c.CleanupFailures.Inc()
	}
}

func (c *Collector) ObserveHTTP(method, route string, status int, d time.Duration) {
	if c == nil {
		return
	}
	c.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.HTTPDuration.WithLabelValues(method, route).Observe(d.Seconds())
}
