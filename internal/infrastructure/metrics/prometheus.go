// Package metrics exposes scan and API telemetry through Prometheus.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/khanhnv2901/anomradar/internal/domain/probe"
)

const (
	namespace = "anomradar"

	subsystemScan  = "scan"
	subsystemProbe = "probe"
	subsystemCache = "cache"
	subsystemAPI   = "api"
)

// PrometheusMetrics holds all collectors on a private registry. It satisfies
// scan.Recorder.
type PrometheusMetrics struct {
	scansTotal    prometheus.Counter
	scanDuration  prometheus.Histogram
	probesTotal   *prometheus.CounterVec
	probeDuration *prometheus.HistogramVec
	cacheLookups  *prometheus.CounterVec
	cacheWrites   *prometheus.CounterVec
	httpRequests  *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec

	registry *prometheus.Registry
}

// NewPrometheusMetrics creates and registers every collector.
func NewPrometheusMetrics() *PrometheusMetrics {
	registry := prometheus.NewRegistry()
	pm := &PrometheusMetrics{registry: registry}

	pm.scansTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystemScan,
		Name:      "total",
		Help:      "Total number of completed scans",
	})
	pm.scanDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: subsystemScan,
		Name:      "duration_seconds",
		Help:      "Wall-clock duration of whole scans in seconds",
		Buckets:   []float64{0.1, 0.5, 1.0, 5.0, 10.0, 30.0, 60.0, 300.0},
	})
	pm.probesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystemProbe,
		Name:      "results_total",
		Help:      "Probe results by probe, status and error category",
	}, []string{"probe", "status", "category"})
	pm.probeDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: subsystemProbe,
		Name:      "duration_seconds",
		Help:      "Probe execution time in seconds, cache hits included",
		Buckets:   prometheus.DefBuckets,
	}, []string{"probe"})
	pm.cacheLookups = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystemCache,
		Name:      "lookups_total",
		Help:      "Cache lookups by probe and outcome",
	}, []string{"probe", "outcome"})
	pm.cacheWrites = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystemCache,
		Name:      "writes_total",
		Help:      "Cache writes by probe and outcome",
	}, []string{"probe", "outcome"})
	pm.httpRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystemAPI,
		Name:      "requests_total",
		Help:      "HTTP API requests by method, route and status code",
	}, []string{"method", "route", "code"})
	pm.httpDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: subsystemAPI,
		Name:      "request_duration_seconds",
		Help:      "HTTP API request latency in seconds",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route"})

	registry.MustRegister(
		pm.scansTotal, pm.scanDuration,
		pm.probesTotal, pm.probeDuration,
		pm.cacheLookups, pm.cacheWrites,
		pm.httpRequests, pm.httpDuration,
	)

	// Register standard Go and process collectors for runtime visibility
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	return pm
}

// Registry returns the private registry.
func (pm *PrometheusMetrics) Registry() *prometheus.Registry {
	return pm.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (pm *PrometheusMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(pm.registry, promhttp.HandlerOpts{})
}

func (pm *PrometheusMetrics) CacheLookup(probeName string, hit bool) {
	outcome := "miss"
	if hit {
		outcome = "hit"
	}
	pm.cacheLookups.WithLabelValues(probeName, outcome).Inc()
}

func (pm *PrometheusMetrics) CacheWrite(probeName string, ok bool) {
	outcome := "stored"
	if !ok {
		outcome = "failed"
	}
	pm.cacheWrites.WithLabelValues(probeName, outcome).Inc()
}

func (pm *PrometheusMetrics) ProbeFinished(probeName string, status probe.Status, category probe.Category, elapsed time.Duration) {
	label := string(category)
	if label == "" {
		label = "none"
	}
	pm.probesTotal.WithLabelValues(probeName, string(status), label).Inc()
	pm.probeDuration.WithLabelValues(probeName).Observe(elapsed.Seconds())
}

func (pm *PrometheusMetrics) ScanFinished(_ int, elapsed time.Duration) {
	pm.scansTotal.Inc()
	pm.scanDuration.Observe(elapsed.Seconds())
}

// ObserveHTTPRequest records one API request.
func (pm *PrometheusMetrics) ObserveHTTPRequest(method, route string, code int, elapsed time.Duration) {
	pm.httpRequests.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	pm.httpDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}
