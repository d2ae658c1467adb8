package metric

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains the bridge-level metrics
type Metrics struct {
	// Document pipeline metrics
	DocumentsReceived  *prometheus.CounterVec
	DocumentsProcessed *prometheus.CounterVec
	ProcessingDuration *prometheus.HistogramVec

	// Stream metrics
	ValuesSent  prometheus.Counter
	SendErrors  *prometheus.CounterVec
	StreamsOpen prometheus.Gauge
	ScanActive  prometheus.Gauge
	ScansTotal  *prometheus.CounterVec

	// Store metrics
	StoreCallDuration *prometheus.HistogramVec
	StoreCallErrors   *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance with all bridge metrics
func NewMetrics() *Metrics {
	return &Metrics{
		DocumentsReceived: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "blissdata",
				Subsystem: "documents",
				Name:      "received_total",
				Help:      "Total number of lifecycle documents received",
			},
			[]string{"kind"},
		),

		DocumentsProcessed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "blissdata",
				Subsystem: "documents",
				Name:      "processed_total",
				Help:      "Total number of lifecycle documents processed",
			},
			[]string{"kind", "status"},
		),

		ProcessingDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "blissdata",
				Subsystem: "documents",
				Name:      "processing_duration_seconds",
				Help:      "Document processing duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"kind"},
		),

		ValuesSent: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "blissdata",
				Subsystem: "streams",
				Name:      "values_sent_total",
				Help:      "Total number of values appended to remote streams",
			},
		),

		SendErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "blissdata",
				Subsystem: "streams",
				Name:      "send_errors_total",
				Help:      "Total number of per-channel send failures by reason",
			},
			[]string{"reason"},
		),

		StreamsOpen: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "blissdata",
				Subsystem: "streams",
				Name:      "open",
				Help:      "Number of streams currently open for writes",
			},
		),

		ScanActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "blissdata",
				Subsystem: "scans",
				Name:      "active",
				Help:      "Whether a scan is currently live (0 or 1)",
			},
		),

		ScansTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "blissdata",
				Subsystem: "scans",
				Name:      "total",
				Help:      "Total number of scans by terminal status",
			},
			[]string{"status"},
		),

		StoreCallDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "blissdata",
				Subsystem: "store",
				Name:      "call_duration_seconds",
				Help:      "Remote store call duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation"},
		),

		StoreCallErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "blissdata",
				Subsystem: "store",
				Name:      "call_errors_total",
				Help:      "Total number of failed remote store calls",
			},
			[]string{"operation"},
		),
	}
}

// collectors returns every metric for bulk registration
func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.DocumentsReceived,
		m.DocumentsProcessed,
		m.ProcessingDuration,
		m.ValuesSent,
		m.SendErrors,
		m.StreamsOpen,
		m.ScanActive,
		m.ScansTotal,
		m.StoreCallDuration,
		m.StoreCallErrors,
	}
}
