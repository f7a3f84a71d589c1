// Package metrics registers the Prometheus collectors exported on /metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Upstream call metrics, one series per external service and operation
	// (e.g. service="translator", operation="detect").
	upstreamRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kultura_upstream_requests_total",
			Help: "Total number of requests sent to external services",
		},
		[]string{"service", "operation", "status"},
	)

	upstreamRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kultura_upstream_request_duration_seconds",
			Help:    "Duration of requests to external services in seconds",
			Buckets: []float64{0.1, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0, 60.0},
		},
		[]string{"service", "operation", "status"},
	)

	upstreamRequestSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kultura_upstream_request_size_bytes",
			Help:    "Size of text sent to external services in bytes",
			Buckets: []float64{100, 500, 1000, 5000, 10000, 50000, 100000, 500000},
		},
		[]string{"service", "operation"},
	)

	// Cache metrics
	cacheLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kultura_cache_lookups_total",
			Help: "Cache lookups by namespace and result (hit or miss)",
		},
		[]string{"namespace", "result"},
	)

	cacheEntries = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "kultura_cache_entries",
			Help: "Number of live entries per cache namespace",
		},
		[]string{"namespace"},
	)

	// HTTP surface metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kultura_http_requests_total",
			Help: "Total number of HTTP requests handled",
		},
		[]string{"route", "code"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kultura_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: []float64{0.01, 0.1, 0.5, 1.0, 5.0, 10.0, 30.0, 60.0, 120.0},
		},
		[]string{"route"},
	)
)

// RecordUpstream records a call to an external service.
func RecordUpstream(service, operation string, duration time.Duration, requestSize int, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}

	upstreamRequestsTotal.WithLabelValues(service, operation, status).Inc()
	upstreamRequestDuration.WithLabelValues(service, operation, status).Observe(duration.Seconds())
	upstreamRequestSize.WithLabelValues(service, operation).Observe(float64(requestSize))
}

// RecordCacheLookup records a cache hit or miss.
func RecordCacheLookup(namespace string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	cacheLookupsTotal.WithLabelValues(namespace, result).Inc()
}

// SetCacheEntries updates the live entry gauge for a namespace.
func SetCacheEntries(namespace string, n int) {
	cacheEntries.WithLabelValues(namespace).Set(float64(n))
}

// RecordHTTPRequest records a handled HTTP request.
func RecordHTTPRequest(route, code string, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(route, code).Inc()
	httpRequestDuration.WithLabelValues(route).Observe(duration.Seconds())
}
