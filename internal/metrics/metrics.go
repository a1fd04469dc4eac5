// Package metrics exposes Prometheus instruments for the dashboard.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
)

// Metrics holds all Prometheus metrics for finboard.
type Metrics struct {
	// Registry owns these metrics and backs the /metrics endpoint.
	Registry *prometheus.Registry

	requestDuration *prometheus.HistogramVec
	rowsReturned    *prometheus.HistogramVec
	noData          *prometheus.CounterVec
	exports         *prometheus.CounterVec
	datasetRows     *prometheus.GaugeVec
	chartCache      *prometheus.CounterVec
}

// New creates a private registry so that several instances can coexist in
// tests without duplicate registration panics.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "finboard_request_duration_seconds",
				Help:    "Duration of HTTP requests by route and status.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route", "status"},
		),
		rowsReturned: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "finboard_filtered_rows",
				Help:    "Rows left after filtering, by page.",
				Buckets: prometheus.ExponentialBuckets(1, 4, 8),
			},
			[]string{"page"},
		),
		noData: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finboard_no_data_total",
				Help: "Page renders whose criteria matched no records.",
			},
			[]string{"page"},
		),
		exports: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finboard_exports_total",
				Help: "Completed downloads by dataset and format.",
			},
			[]string{"dataset", "format"},
		),
		datasetRows: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "finboard_dataset_rows",
				Help: "Records loaded at startup per dataset.",
			},
			[]string{"dataset"},
		),
		chartCache: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finboard_chart_cache_total",
				Help: "Chart lookups by result (hit or miss).",
			},
			[]string{"result"},
		),
	}
}

// ObserveRequest records the duration of one HTTP request.
func (m *Metrics) ObserveRequest(route string, status int, d time.Duration) {
	m.requestDuration.WithLabelValues(route, strconv.Itoa(status)).Observe(d.Seconds())
}

// ObserveRows records how many records a page computed over.
func (m *Metrics) ObserveRows(page string, n int) {
	m.rowsReturned.WithLabelValues(page).Observe(float64(n))
}

// IncrNoData counts a page render that matched nothing.
func (m *Metrics) IncrNoData(page string) {
	m.noData.WithLabelValues(page).Inc()
}

// IncrExport counts a completed download.
func (m *Metrics) IncrExport(dataset, format string) {
	m.exports.WithLabelValues(dataset, format).Inc()
}

// SetDatasetRows publishes the size of a loaded dataset.
func (m *Metrics) SetDatasetRows(dataset string, n int) {
	m.datasetRows.WithLabelValues(dataset).Set(float64(n))
}

// IncrChartCache counts a chart cache lookup.
func (m *Metrics) IncrChartCache(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.chartCache.WithLabelValues(result).Inc()
}

// ChartCacheCount returns the lookups recorded for result.
func (m *Metrics) ChartCacheCount(result string) float64 {
	return counterValue(m.chartCache, result)
}

// TrackRateLimiter publishes the download limiter's state, read at scrape
// time from stats. Registering a second source on the same registry is a
// no-op.
func (m *Metrics) TrackRateLimiter(stats func() (rejected, clients int64)) {
	rejected := prometheus.NewCounterFunc(
		prometheus.CounterOpts{
			Name: "finboard_rate_limited_total",
			Help: "Downloads and chart requests rejected by the per-client limit.",
		},
		func() float64 {
			n, _ := stats()
			return float64(n)
		},
	)
	clients := prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "finboard_rate_limit_clients",
			Help: "Clients currently tracked by the rate limiter.",
		},
		func() float64 {
			_, n := stats()
			return float64(n)
		},
	)
	for _, c := range []prometheus.Collector{rejected, clients} {
		_ = m.Registry.Register(c)
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}

// NoDataCount returns the current no-data count for page.
func (m *Metrics) NoDataCount(page string) float64 {
	return counterValue(m.noData, page)
}

// ExportCount returns the current download count for dataset and format.
func (m *Metrics) ExportCount(dataset, format string) float64 {
	return counterValue(m.exports, dataset, format)
}

// counterValue extracts the current value of one child of a CounterVec.
func counterValue(cv *prometheus.CounterVec, labels ...string) float64 {
	counter := cv.WithLabelValues(labels...)
	m := &dto.Metric{}
	if err := counter.Write(m); err != nil {
		return 0
	}
	if m.Counter != nil && m.Counter.Value != nil {
		return *m.Counter.Value
	}
	return 0
}
