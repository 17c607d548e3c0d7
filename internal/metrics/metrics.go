// Package metrics exposes Prometheus collectors for the scanner service.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	scansTotal                 *prometheus.CounterVec
	scanStageDurationSeconds   *prometheus.HistogramVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	activeWorkers              prometheus.Gauge
	queueDepth                 prometheus.Gauge
	enrichmentFailuresTotal    *prometheus.CounterVec
	reapedJobsTotal            *prometheus.CounterVec

	once sync.Once
)

// Init initializes the Prometheus collectors. Safe to call multiple times.
func Init() {
	once.Do(func() {
		scansTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scan_jobs_total",
				Help: "Total number of scan jobs finished, labeled by final state.",
			},
			[]string{"state"},
		)

		scanStageDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "scan_stage_duration_seconds",
				Help:    "Histogram of pipeline stage durations, labeled by stage.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"stage"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)

		activeWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "scan_active_workers",
				Help: "Number of workers currently processing a scan.",
			},
		)

		queueDepth = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "scan_queue_depth",
				Help: "Number of scans waiting in the queue.",
			},
		)

		enrichmentFailuresTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scan_enrichment_failures_total",
				Help: "Total enrichment collaborator failures, labeled by collaborator.",
			},
			[]string{"collaborator"},
		)

		reapedJobsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scan_reaped_jobs_total",
				Help: "Total jobs removed or failed by the reaper, labeled by reason.",
			},
			[]string{"reason"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveScan increments the finished-scan counter for a final state.
func ObserveScan(state string) {
	scansTotal.WithLabelValues(state).Inc()
}

// ObserveStage records the duration of one pipeline stage.
func ObserveStage(stage string, duration time.Duration) {
	scanStageDurationSeconds.WithLabelValues(stage).Observe(duration.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	activeWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	activeWorkers.Dec()
}

// SetQueueDepth records the current queue backlog.
func SetQueueDepth(n int) {
	queueDepth.Set(float64(n))
}

// ObserveEnrichmentFailure counts a degraded enrichment collaborator.
func ObserveEnrichmentFailure(collaborator string) {
	enrichmentFailuresTotal.WithLabelValues(collaborator).Inc()
}

// ObserveReaped counts jobs cleaned up by the reaper.
func ObserveReaped(reason string, n int) {
	if n > 0 {
		reapedJobsTotal.WithLabelValues(reason).Add(float64(n))
	}
}
