// Package events publishes transcript lifecycle events to Kafka.
package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/ciricc/court-transcriber/internal/model/transcript"
	"github.com/ciricc/court-transcriber/internal/observability/metrics"
)

const (
	EventTranscriptCreated = "transcript.created"
	EventSegmentUpdated    = "transcript.segment_updated"
)

// TranscriptCreated is emitted after a pipeline run produced a transcript.
type TranscriptCreated struct {
	EventType     string    `json:"eventType"`
	TranscriptID  string    `json:"transcriptId"`
	CaseID        *string   `json:"caseId,omitempty"`
	SourceFile    string    `json:"sourceFile"`
	SegmentsCount int       `json:"segmentsCount"`
	SpeakersCount int       `json:"speakersCount"`
	Model         string    `json:"model"`
	Degraded      []string  `json:"degraded,omitempty"`
	Stored        bool      `json:"stored"`
	CreatedAt     time.Time `json:"createdAt"`
}

// SegmentUpdated is emitted after a segment's text was edited.
type SegmentUpdated struct {
	EventType    string    `json:"eventType"`
	TranscriptID string    `json:"transcriptId"`
	SegmentID    string    `json:"segmentId"`
	Text         string    `json:"text"`
	User         string    `json:"user"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

func NewTranscriptCreated(t *transcript.Transcript, stored bool) TranscriptCreated {
	return TranscriptCreated{
		EventType:     EventTranscriptCreated,
		TranscriptID:  t.ID,
		CaseID:        t.Metadata.CaseID,
		SourceFile:    t.Metadata.SourceFile,
		SegmentsCount: len(t.Segments),
		SpeakersCount: len(t.Speakers()),
		Model:         t.Metadata.Model,
		Degraded:      t.Metadata.Degraded,
		Stored:        stored,
		CreatedAt:     t.Metadata.CreatedAt,
	}
}

// Publisher publishes transcript events to a Kafka topic.
type Publisher struct {
	writer    *kafka.Writer
	principal string
	topic     string
	enabled   bool
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// Config holds Kafka publisher configuration.
type Config struct {
	Brokers   []string
	Topic     string
	Principal string
	Enabled   bool
}

// New creates a Kafka event publisher. When disabled or without brokers the
// publisher only logs events.
func New(cfg *Config, m *metrics.Metrics, logger *slog.Logger) *Publisher {
	log := logger.With("component", "events")

	if cfg == nil {
		log.Info("kafka disabled (nil config), using log-only mode")
		return &Publisher{metrics: m, logger: log}
	}

	if !cfg.Enabled || len(cfg.Brokers) == 0 {
		log.Info("kafka disabled, using log-only mode")
		return &Publisher{
			principal: cfg.Principal,
			topic:     cfg.Topic,
			metrics:   m,
			logger:    log,
		}
	}

	dialer := &kafka.Dialer{
		Timeout:   10 * time.Second,
		DualStack: true,
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
		RequiredAcks: kafka.RequireOne,
		Transport:    &kafka.Transport{Dial: dialer.DialFunc},
	}

	log.Info("kafka publisher initialized",
		"brokers", cfg.Brokers,
		"topic", cfg.Topic,
		"principal", cfg.Principal,
	)

	return &Publisher{
		writer:    writer,
		principal: cfg.Principal,
		topic:     cfg.Topic,
		enabled:   true,
		metrics:   m,
		logger:    log,
	}
}

// PublishTranscriptCreated publishes ev keyed by transcript id.
func (p *Publisher) PublishTranscriptCreated(ctx context.Context, ev TranscriptCreated) error {
	return p.publish(ctx, EventTranscriptCreated, ev.TranscriptID, ev)
}

// PublishSegmentUpdated publishes ev keyed by transcript id, so edits to one
// transcript stay on one partition.
func (p *Publisher) PublishSegmentUpdated(ctx context.Context, ev SegmentUpdated) error {
	return p.publish(ctx, EventSegmentUpdated, ev.TranscriptID, ev)
}

func (p *Publisher) publish(ctx context.Context, eventType, key string, event any) error {
	start := time.Now()

	payload, err := json.Marshal(event)
	if err != nil {
		p.logger.ErrorContext(ctx, "failed to marshal event", "eventType", eventType, "error", err)
		return err
	}

	p.logger.DebugContext(ctx, "publishing event",
		"principal", p.principal,
		"topic", p.topic,
		"eventType", eventType,
		"key", key,
		"payload", string(payload),
	)

	if !p.enabled || p.writer == nil {
		p.record(eventType, nil, start)
		return nil
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "eventType", Value: []byte(eventType)},
			{Key: "principal", Value: []byte(p.principal)},
		},
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.ErrorContext(ctx, "failed to write to kafka",
			"topic", p.topic,
			"key", key,
			"error", err,
		)
		p.record(eventType, err, start)
		return err
	}

	p.record(eventType, nil, start)
	return nil
}

func (p *Publisher) record(eventType string, err error, start time.Time) {
	if p.metrics != nil {
		p.metrics.RecordKafkaPublish(p.topic, eventType, err, time.Since(start).Seconds())
	}
}

// Close closes the Kafka writer.
func (p *Publisher) Close() error {
	if p.writer == nil {
		return nil
	}
	if err := p.writer.Close(); err != nil {
		p.logger.Error("error closing kafka writer", "error", err)
		return err
	}
	return nil
}
