// Package metrics defines the Prometheus collectors used by the timeline
// service and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the service.
type Metrics struct {
	HTTPRequestsTotal     *prometheus.CounterVec
	HTTPRequestDuration   *prometheus.HistogramVec
	HTTPRequestsInFlight  prometheus.Gauge
	SeriesRequestsTotal   *prometheus.CounterVec
	SeriesComputeDuration *prometheus.HistogramVec
	SeriesCacheHits       *prometheus.CounterVec
	SeriesCacheMisses     *prometheus.CounterVec
	IndexBuildsTotal      *prometheus.CounterVec
	IndexBuildDuration    prometheus.Histogram
	SnapshotRows          prometheus.Gauge
	SnapshotCategories    prometheus.Gauge
	SelectionPushesTotal  *prometheus.CounterVec
}

// New creates all collectors and registers them on reg. A nil reg uses the
// default Prometheus registry.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed.",
			},
		),
		SeriesRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "series_requests_total",
				Help: "Series requests by outcome (computed, cached, empty, superseded, missing_columns, error).",
			},
			[]string{"result"},
		),
		SeriesComputeDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "series_compute_duration_seconds",
				Help:    "Time spent scanning rows and walking the bucket range.",
				Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
			},
			[]string{"granularity"},
		),
		SeriesCacheHits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "series_cache_hits_total",
				Help: "Series cache hits by tier (local, shared).",
			},
			[]string{"tier"},
		),
		SeriesCacheMisses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "series_cache_misses_total",
				Help: "Series cache misses by tier (local, shared).",
			},
			[]string{"tier"},
		),
		IndexBuildsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "index_builds_total",
				Help: "Category index builds by status (ok, superseded).",
			},
			[]string{"status"},
		),
		IndexBuildDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "index_build_duration_seconds",
				Help:    "Category index build latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
		),
		SnapshotRows: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "snapshot_rows",
				Help: "Row count of the current dataset snapshot.",
			},
		),
		SnapshotCategories: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "snapshot_categories",
				Help: "Distinct category labels in the current dataset snapshot.",
			},
		),
		SelectionPushesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "selection_pushes_total",
				Help: "Row selection pushes to the host by status (sent, cleared, failed, dropped).",
			},
			[]string{"status"},
		),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.SeriesRequestsTotal,
		m.SeriesComputeDuration,
		m.SeriesCacheHits,
		m.SeriesCacheMisses,
		m.IndexBuildsTotal,
		m.IndexBuildDuration,
		m.SnapshotRows,
		m.SnapshotCategories,
		m.SelectionPushesTotal,
	)

	return m
}

// Handler returns the scrape handler for g, falling back to the default
// gatherer when g is nil.
func Handler(g prometheus.Gatherer) http.Handler {
	if g == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
