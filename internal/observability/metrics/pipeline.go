package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PipelineMetrics covers both sides of the pipeline: ingest (uploads,
// dedup hits) and parse (runs by terminal status, duration, in-flight).
type PipelineMetrics struct {
	registry *prometheus.Registry

	ingestTotal   *prometheus.CounterVec
	dedupHitTotal *prometheus.CounterVec

	parseTotal    *prometheus.CounterVec
	parseDuration *prometheus.HistogramVec
	parseInFlight prometheus.Gauge
}

func NewPipelineMetrics(service string) *PipelineMetrics {
	registry := prometheus.NewRegistry()

	ingestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docvault",
			Subsystem: "ingest",
			Name:      "uploads_total",
			Help:      "Total ingest requests by outcome.",
		},
		[]string{"service", "outcome"},
	)
	dedupHitTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docvault",
			Subsystem: "ingest",
			Name:      "dedup_hits_total",
			Help:      "Total uploads whose content digest already existed.",
		},
		[]string{"service"},
	)
	parseTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docvault",
			Subsystem: "parse",
			Name:      "runs_total",
			Help:      "Total finished parse runs by terminal status.",
		},
		[]string{"service", "status"},
	)
	parseDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "docvault",
			Subsystem: "parse",
			Name:      "run_duration_seconds",
			Help:      "Parse run duration in seconds by terminal status.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "status"},
	)
	parseInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "docvault",
			Subsystem: "parse",
			Name:      "runs_in_flight",
			Help:      "Number of parse runs currently executing.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)

	registry.MustRegister(ingestTotal, dedupHitTotal, parseTotal, parseDuration, parseInFlight)

	return &PipelineMetrics{
		registry:      registry,
		ingestTotal:   ingestTotal,
		dedupHitTotal: dedupHitTotal,
		parseTotal:    parseTotal,
		parseDuration: parseDuration,
		parseInFlight: parseInFlight,
	}
}

func (m *PipelineMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *PipelineMetrics) RecordIngest(service string, newContent bool, err error) {
	outcome := "created"
	switch {
	case err != nil:
		outcome = "error"
	case !newContent:
		outcome = "deduplicated"
	}
	m.ingestTotal.WithLabelValues(service, outcome).Inc()
	if err == nil && !newContent {
		m.dedupHitTotal.WithLabelValues(service).Inc()
	}
}

func (m *PipelineMetrics) StartParse() {
	m.parseInFlight.Inc()
}

func (m *PipelineMetrics) FinishParse(service, status string, duration time.Duration) {
	m.parseInFlight.Dec()
	if status == "" {
		status = "unknown"
	}
	m.parseTotal.WithLabelValues(service, status).Inc()
	m.parseDuration.WithLabelValues(service, status).Observe(duration.Seconds())
}
