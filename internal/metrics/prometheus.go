// Package metrics provides Prometheus-based metrics collection for portsniffer.
// Collectors live on a private registry that is exposed over HTTP by Server.
package metrics

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const (
	// Namespace for all portsniffer metrics
	namespace = "portsniffer"

	// Subsystems
	subsystemScan    = "scan"
	subsystemResolve = "resolve"
	subsystemSystem  = "system"
	subsystemHTTP    = "http"
)

// PrometheusMetrics holds all Prometheus metric collectors
type PrometheusMetrics struct {
	// Scan metrics
	scansTotal    *prometheus.CounterVec
	scanDuration  prometheus.Histogram
	scanErrors    *prometheus.CounterVec
	portsScanned  *prometheus.CounterVec
	activeWorkers prometheus.Gauge

	// Resolver metrics
	lookupsTotal   *prometheus.CounterVec
	lookupDuration *prometheus.HistogramVec

	// HTTP metrics for the metrics endpoint itself
	httpRequests *prometheus.CounterVec

	// System metrics
	memoryUsage prometheus.Gauge
	goroutines  prometheus.Gauge
	uptime      prometheus.Gauge

	startTime  time.Time
	lastUpdate time.Time
	mu         sync.RWMutex
	registry   *prometheus.Registry
}

// NewPrometheusMetrics creates a new Prometheus metrics instance with all collectors
func NewPrometheusMetrics() *PrometheusMetrics {
	registry := prometheus.NewRegistry()

	pm := &PrometheusMetrics{
		startTime: time.Now(),
		registry:  registry,
	}

	pm.initScanMetrics()
	pm.initResolveMetrics()
	pm.initHTTPMetrics()
	pm.initSystemMetrics()

	pm.registerMetrics()

	// Standard Go and process collectors for runtime visibility
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	return pm
}

func (pm *PrometheusMetrics) initScanMetrics() {
	pm.scansTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemScan,
			Name:      "total",
			Help:      "Total number of scans by final status",
		},
		[]string{"status"},
	)

	pm.scanDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystemScan,
			Name:      "duration_seconds",
			Help:      "Wall time of scans in seconds",
			Buckets:   []float64{0.1, 0.5, 1.0, 5.0, 10.0, 30.0, 60.0, 300.0, 600.0, 1800.0},
		},
	)

	pm.scanErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemScan,
			Name:      "errors_total",
			Help:      "Total number of scans that failed before starting, by error code",
		},
		[]string{"error_code"},
	)

	pm.portsScanned = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemScan,
			Name:      "ports_total",
			Help:      "Total number of ports probed by outcome",
		},
		[]string{"port_status"},
	)

	pm.activeWorkers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystemScan,
			Name:      "active_workers",
			Help:      "Number of currently running scan workers",
		},
	)
}

func (pm *PrometheusMetrics) initResolveMetrics() {
	pm.lookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemResolve,
			Name:      "lookups_total",
			Help:      "Total number of target lookups by method and status",
		},
		[]string{"method", "status"},
	)

	pm.lookupDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystemResolve,
			Name:      "lookup_duration_seconds",
			Help:      "Duration of target lookups in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0},
		},
		[]string{"method"},
	)
}

func (pm *PrometheusMetrics) initHTTPMetrics() {
	pm.httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemHTTP,
			Name:      "requests_total",
			Help:      "Total number of HTTP requests by path and status",
		},
		[]string{"path", "status"},
	)
}

func (pm *PrometheusMetrics) initSystemMetrics() {
	pm.memoryUsage = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystemSystem,
			Name:      "memory_bytes",
			Help:      "Current memory usage in bytes",
		},
	)

	pm.goroutines = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystemSystem,
			Name:      "goroutines",
			Help:      "Current number of goroutines",
		},
	)

	pm.uptime = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystemSystem,
			Name:      "uptime_seconds",
			Help:      "Application uptime in seconds",
		},
	)
}

func (pm *PrometheusMetrics) registerMetrics() {
	pm.registry.MustRegister(
		pm.scansTotal,
		pm.scanDuration,
		pm.scanErrors,
		pm.portsScanned,
		pm.activeWorkers,
		pm.lookupsTotal,
		pm.lookupDuration,
		pm.httpRequests,
		pm.memoryUsage,
		pm.goroutines,
		pm.uptime,
	)
}

// GetRegistry returns the Prometheus registry for HTTP handler
func (pm *PrometheusMetrics) GetRegistry() *prometheus.Registry {
	return pm.registry
}

// IncrementScansTotal counts a finished scan.
func (pm *PrometheusMetrics) IncrementScansTotal(status string) {
	pm.scansTotal.WithLabelValues(status).Inc()
}

// RecordScanDuration records a scan duration.
func (pm *PrometheusMetrics) RecordScanDuration(duration time.Duration) {
	pm.scanDuration.Observe(duration.Seconds())
}

// IncrementScanErrors counts a scan that could not start.
func (pm *PrometheusMetrics) IncrementScanErrors(code string) {
	pm.scanErrors.WithLabelValues(code).Inc()
}

// IncrementPortsScanned counts one probed port.
func (pm *PrometheusMetrics) IncrementPortsScanned(status string) {
	pm.portsScanned.WithLabelValues(status).Inc()
}

// AddActiveWorkers adjusts the running worker gauge.
func (pm *PrometheusMetrics) AddActiveWorkers(delta int) {
	pm.activeWorkers.Add(float64(delta))
}

// RecordLookup records one target lookup.
func (pm *PrometheusMetrics) RecordLookup(method string, duration time.Duration, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	pm.lookupsTotal.WithLabelValues(method, status).Inc()
	pm.lookupDuration.WithLabelValues(method).Observe(duration.Seconds())
}

// IncrementHTTPRequests counts one request served by the metrics server.
func (pm *PrometheusMetrics) IncrementHTTPRequests(path, status string) {
	pm.httpRequests.WithLabelValues(path, status).Inc()
}

// UpdateSystemMetrics updates all system metrics with current values
func (pm *PrometheusMetrics) UpdateSystemMetrics() {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	pm.memoryUsage.Set(float64(memStats.Alloc))
	pm.goroutines.Set(float64(runtime.NumGoroutine()))
	pm.uptime.Set(time.Since(pm.startTime).Seconds())

	pm.lastUpdate = time.Now()
}

// GetUptime returns the application uptime
func (pm *PrometheusMetrics) GetUptime() time.Duration {
	return time.Since(pm.startTime)
}

// GetLastUpdate returns the last system metrics update time
func (pm *PrometheusMetrics) GetLastUpdate() time.Time {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	return pm.lastUpdate
}

// StartPeriodicUpdates updates system metrics every interval until ctx is done.
func (pm *PrometheusMetrics) StartPeriodicUpdates(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	pm.UpdateSystemMetrics()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pm.UpdateSystemMetrics()
		}
	}
}
