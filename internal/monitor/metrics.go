package monitor

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus metrics for the execution service.
type Metrics struct {
	Registry *prometheus.Registry

	ExecutionsTotal   *prometheus.CounterVec
	ExecutionDuration prometheus.Histogram
	ExecutionErrors   *prometheus.CounterVec
	ActiveExecutions  prometheus.Gauge
	SecurityRejects   *prometheus.CounterVec
	CacheOps          *prometheus.CounterVec
	CacheSizeBytes    prometheus.Gauge
	CacheEntries      prometheus.Gauge
	RequestsInFlight  prometheus.Gauge
	CodeSizeBytes     prometheus.Histogram
	OutputSizeBytes   prometheus.Histogram
}

// NewMetrics creates and registers all Prometheus metrics using a dedicated registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		Registry: reg,

		ExecutionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "codecell",
				Name:      "executions_total",
				Help:      "Total number of code executions by status.",
			},
			[]string{"status"},
		),

		ExecutionDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "codecell",
				Name:      "execution_duration_seconds",
				Help:      "Duration of code executions in seconds.",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
		),

		ExecutionErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "codecell",
				Name:      "execution_errors_total",
				Help:      "Total execution errors by category.",
			},
			[]string{"category"},
		),

		ActiveExecutions: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "codecell",
				Name:      "active_executions",
				Help:      "Number of currently running executions.",
			},
		),

		SecurityRejects: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "codecell",
				Name:      "security_rejections_total",
				Help:      "Submissions rejected by static analysis, by issue category.",
			},
			[]string{"category"},
		),

		CacheOps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "codecell",
				Subsystem: "cache",
				Name:      "operations_total",
				Help:      "Result cache operations by outcome.",
			},
			[]string{"op"},
		),

		CacheSizeBytes: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "codecell",
				Subsystem: "cache",
				Name:      "size_bytes",
				Help:      "Total on-disk size of the result cache.",
			},
		),

		CacheEntries: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "codecell",
				Subsystem: "cache",
				Name:      "entries",
				Help:      "Number of entries in the result cache.",
			},
		),

		RequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "codecell",
				Subsystem: "api",
				Name:      "requests_in_flight",
				Help:      "Number of HTTP requests currently being processed.",
			},
		),

		CodeSizeBytes: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "codecell",
				Name:      "code_size_bytes",
				Help:      "Size of submitted code in bytes.",
				Buckets:   prometheus.ExponentialBuckets(100, 4, 8),
			},
		),

		OutputSizeBytes: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "codecell",
				Name:      "output_size_bytes",
				Help:      "Size of execution output in bytes.",
				Buckets:   prometheus.ExponentialBuckets(10, 4, 8),
			},
		),
	}

	// Register all collectors
	reg.MustRegister(
		m.ExecutionsTotal,
		m.ExecutionDuration,
		m.ExecutionErrors,
		m.ActiveExecutions,
		m.SecurityRejects,
		m.CacheOps,
		m.CacheSizeBytes,
		m.CacheEntries,
		m.RequestsInFlight,
		m.CodeSizeBytes,
		m.OutputSizeBytes,
	)

	return m
}

// RecordExecution records metrics for a completed execution.
func (m *Metrics) RecordExecution(status string, durationSec float64) {
	m.ExecutionsTotal.WithLabelValues(status).Inc()
	m.ExecutionDuration.Observe(durationSec)
}

// RecordError records an execution error by category.
func (m *Metrics) RecordError(category string) {
	m.ExecutionErrors.WithLabelValues(category).Inc()
}

// RecordCacheOp records a cache operation (hit, miss, write, evict, ...).
func (m *Metrics) RecordCacheOp(op string) {
	m.CacheOps.WithLabelValues(op).Inc()
}

// RecordSecurityReject records a submission blocked by static analysis.
func (m *Metrics) RecordSecurityReject(category string) {
	m.SecurityRejects.WithLabelValues(category).Inc()
}
