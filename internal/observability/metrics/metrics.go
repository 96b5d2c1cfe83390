// Package metrics provides Prometheus metrics for the transcription pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "court_transcriber"

const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
	StatusBusy    = "busy"
)

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	// Pipeline run metrics
	RunsTotal   *prometheus.CounterVec
	RunsActive  prometheus.Gauge
	RunDuration prometheus.Histogram

	// Stage metrics
	StageLatency *prometheus.HistogramVec
	Degradations *prometheus.CounterVec

	// Output metrics
	SegmentsFused     prometheus.Counter
	PersistenceErrors prometheus.Counter
	SegmentEdits      prometheus.Counter

	// Kafka publish metrics
	KafkaPublishTotal   *prometheus.CounterVec
	KafkaPublishErrors  *prometheus.CounterVec
	KafkaPublishLatency *prometheus.HistogramVec
}

// New creates all metrics and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		RunsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipeline_runs_total",
			Help:      "Total number of pipeline runs by outcome",
		}, []string{"status"}),
		RunsActive: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_runs_active",
			Help:      "Number of pipeline runs in progress",
		}),
		RunDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pipeline_run_duration_seconds",
			Help:      "Wall time of a full pipeline run",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800},
		}),

		StageLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_latency_seconds",
			Help:      "Latency of individual pipeline stages",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300},
		}, []string{"stage"}),
		Degradations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_degradations_total",
			Help:      "Stage faults that fell back to degraded behaviour",
		}, []string{"stage"}),

		SegmentsFused: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "segments_fused_total",
			Help:      "Total number of speaker-attributed segments produced",
		}),
		PersistenceErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "persistence_errors_total",
			Help:      "Transcripts that could not be stored",
		}),
		SegmentEdits: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "segment_edits_total",
			Help:      "Total number of segment text edits",
		}),

		KafkaPublishTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_total",
			Help:      "Total number of Kafka messages published",
		}, []string{"topic", "event_type"}),
		KafkaPublishErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_errors_total",
			Help:      "Total number of Kafka publish errors",
		}, []string{"topic", "event_type"}),
		KafkaPublishLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "kafka_publish_latency_seconds",
			Help:      "Kafka publish latency in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"topic"}),
	}
}

// RecordRunStart records a pipeline run starting.
func (m *Metrics) RecordRunStart() {
	m.RunsActive.Inc()
}

// RecordRunEnd records a pipeline run ending.
func (m *Metrics) RecordRunEnd(status string, durationSeconds float64) {
	m.RunsActive.Dec()
	m.RunsTotal.WithLabelValues(status).Inc()
	m.RunDuration.Observe(durationSeconds)
}

// RecordBusy records a run rejected for lack of capacity.
func (m *Metrics) RecordBusy() {
	m.RunsTotal.WithLabelValues(StatusBusy).Inc()
}

func (m *Metrics) RecordStage(stage string, seconds float64) {
	m.StageLatency.WithLabelValues(stage).Observe(seconds)
}

func (m *Metrics) RecordDegraded(stage string) {
	m.Degradations.WithLabelValues(stage).Inc()
}

func (m *Metrics) RecordSegments(n int) {
	m.SegmentsFused.Add(float64(n))
}

func (m *Metrics) RecordPersistenceError() {
	m.PersistenceErrors.Inc()
}

func (m *Metrics) RecordSegmentEdit() {
	m.SegmentEdits.Inc()
}

// RecordKafkaPublish records a Kafka publish attempt.
func (m *Metrics) RecordKafkaPublish(topic, eventType string, err error, latencySeconds float64) {
	m.KafkaPublishTotal.WithLabelValues(topic, eventType).Inc()
	m.KafkaPublishLatency.WithLabelValues(topic).Observe(latencySeconds)
	if err != nil {
		m.KafkaPublishErrors.WithLabelValues(topic, eventType).Inc()
	}
}
