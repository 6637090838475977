// Package metrics exposes Prometheus collectors for the extraction engine.
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
	resolutionsTotal     *prometheus.CounterVec
	emailCandidatesTotal *prometheus.CounterVec
	robotsDecisionsTotal *prometheus.CounterVec
	fetchesTotal         *prometheus.CounterVec
	rateLimitDelaySecs   *prometheus.HistogramVec
	activeWorkers        prometheus.Gauge

	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus collectors. Safe to call multiple times.
func Init() {
	once.Do(func() {
		resolutionsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mapleads_resolutions_total",
				Help: "Total resolver decisions, labeled by deciding signal and outcome.",
			},
			[]string{"signal", "outcome"},
		)

		emailCandidatesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mapleads_email_candidates_total",
				Help: "Total decoded email candidates, labeled by decoding method.",
			},
			[]string{"method"},
		)

		robotsDecisionsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mapleads_robots_decisions_total",
				Help: "Total robots.txt decisions recorded, labeled by decision.",
			},
			[]string{"decision"},
		)

		fetchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mapleads_fetches_total",
				Help: "Total page fetch attempts, labeled by result.",
			},
			[]string{"result"},
		)

		rateLimitDelaySecs = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mapleads_rate_limit_delay_seconds",
				Help:    "Histogram of per-domain rate limit wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"domain"},
		)

		activeWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "mapleads_active_workers",
				Help: "Number of workers currently processing a record.",
			},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mapleads_http_requests_total",
				Help: "Total HTTP requests served by the status API, labeled by method and status.",
			},
			[]string{"method", "status"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mapleads_http_request_duration_seconds",
				Help:    "Histogram of status API request durations.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveResolution increments the resolver decision counter.
func ObserveResolution(signal string, matched bool) {
	if resolutionsTotal == nil {
		return
	}
	outcome := "accepted"
	if matched {
		outcome = "duplicate"
	}
	resolutionsTotal.WithLabelValues(signal, outcome).Inc()
}

// ObserveEmailCandidate increments the candidate counter for a method.
func ObserveEmailCandidate(method string) {
	if emailCandidatesTotal == nil {
		return
	}
	emailCandidatesTotal.WithLabelValues(method).Inc()
}

// ObserveRobotsDecision increments the robots decision counter.
func ObserveRobotsDecision(decision string) {
	if robotsDecisionsTotal == nil {
		return
	}
	robotsDecisionsTotal.WithLabelValues(decision).Inc()
}

// ObserveFetch increments the fetch counter for the given result.
func ObserveFetch(result string) {
	if fetchesTotal == nil {
		return
	}
	fetchesTotal.WithLabelValues(result).Inc()
}

// ObserveRateLimitDelay records a rate limit wait duration for a domain.
func ObserveRateLimitDelay(domain string, d time.Duration) {
	if rateLimitDelaySecs == nil {
		return
	}
	rateLimitDelaySecs.WithLabelValues(domain).Observe(d.Seconds())
}

// ObserveHTTPRequest records one served API request.
func ObserveHTTPRequest(method, route string, status int, d time.Duration) {
	if httpRequestsTotal == nil || httpRequestDurationSeconds == nil {
		return
	}
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(status)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(d.Seconds())
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	if activeWorkers != nil {
		activeWorkers.Inc()
	}
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	if activeWorkers != nil {
		activeWorkers.Dec()
	}
}
