// Package pipeline runs a recording through noise suppression, diarization,
// transcription and fusion, and assembles the resulting transcript.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"github.com/ciricc/court-transcriber/internal/audio"
	"github.com/ciricc/court-transcriber/internal/events"
	"github.com/ciricc/court-transcriber/internal/model/segment"
	"github.com/ciricc/court-transcriber/internal/model/transcript"
	"github.com/ciricc/court-transcriber/internal/monitor"
	"github.com/ciricc/court-transcriber/internal/observability/metrics"
)

var (
	ErrBusy = errors.New("pipeline is busy")
	// ErrTranscription wraps the transcriber's error. No transcript is produced.
	ErrTranscription = errors.New("transcription failed")
)

const (
	StageNoise         = "noise"
	StageDiarization   = "diarization"
	StageTranscription = "transcription"
	StageFusion        = "fusion"
)

type NoiseFilter interface {
	Process(ctx context.Context, buf audio.Buffer) (audio.Buffer, error)
}

type Diarizer interface {
	Diarize(ctx context.Context, buf audio.Buffer) ([]segment.Turn, error)
}

type Transcriber interface {
	Transcribe(ctx context.Context, buf audio.Buffer) ([]segment.Segment, error)
	ModelName() string
	Device() string
}

type Fuser interface {
	Fuse(segs []segment.Segment, turns []segment.Turn) []transcript.Segment
}

type Store interface {
	Store(ctx context.Context, id string, t *transcript.Transcript) error
}

type SegmentEditor interface {
	UpdateSegmentText(ctx context.Context, transcriptID, segmentID, text, user string) error
}

type CaseDetailsProvider interface {
	Lookup(ctx context.Context, caseID string) (*transcript.CaseDetails, error)
}

type EventPublisher = events.Sink

// Components are the collaborators of a pipeline. All of them are constructed
// once at startup and shared by every run.
type Components struct {
	Noise       NoiseFilter
	Diarizer    Diarizer
	Transcriber Transcriber
	Fuser       Fuser
	Store       Store
	Editor      SegmentEditor
	Cases       CaseDetailsProvider
	Events      EventPublisher
}

type Request struct {
	Audio      audio.Buffer
	SourceFile string
	CaseID     string
}

type Pipeline interface {
	Run(ctx context.Context, req Request) (*transcript.Transcript, error)
	EditSegment(ctx context.Context, transcriptID, segmentID, text, user string) error
}

type PipelineImpl struct {
	c           Components
	logger      *slog.Logger
	loadMonitor monitor.LoadMonitor
	metrics     *metrics.Metrics
	waitForSlot bool
	now         func() time.Time
	newID       func() string
}

type Option func(p *PipelineImpl)

// WithWaitForSlot makes Run queue for a free slot until its context ends instead
// of failing with ErrBusy straight away.
func WithWaitForSlot(v bool) Option {
	return func(p *PipelineImpl) { p.waitForSlot = v }
}

func NewPipeline(
	c Components,
	logger *slog.Logger,
	loadMonitor monitor.LoadMonitor,
	m *metrics.Metrics,
	opts ...Option,
) *PipelineImpl {
	p := &PipelineImpl{
		c:           c,
		logger:      logger.With("component", "pipeline"),
		loadMonitor: loadMonitor,
		metrics:     m,
		now:         time.Now,
		newID:       uuid.NewString,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run processes one recording start to finish. Only a transcription failure
// fails the run; noise and diarization faults degrade the result, and storage or
// event failures are logged while the transcript is still returned.
func (p *PipelineImpl) Run(ctx context.Context, req Request) (*transcript.Transcript, error) {
	if err := p.acquire(ctx); err != nil {
		p.metrics.RecordBusy()
		return nil, err
	}
	defer p.loadMonitor.Release()

	p.logger.DebugContext(ctx, "Acquired task slot")

	start := p.now()
	p.metrics.RecordRunStart()

	t, err := p.run(ctx, req, start)

	status := metrics.StatusSuccess
	if err != nil {
		status = metrics.StatusFailed
	}
	p.metrics.RecordRunEnd(status, p.now().Sub(start).Seconds())

	return t, err
}

func (p *PipelineImpl) acquire(ctx context.Context) error {
	if !p.waitForSlot {
		if !p.loadMonitor.TryAcquire() {
			return ErrBusy
		}
		return nil
	}
	if err := p.loadMonitor.Acquire(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrBusy, err)
	}
	return nil
}

func (p *PipelineImpl) run(ctx context.Context, req Request, start time.Time) (*transcript.Transcript, error) {
	log := p.logger.With("method", "Run", "source", req.SourceFile)

	var (
		stages   transcript.StageSeconds
		degraded []string
	)
	degrade := func(stage string, err error) {
		log.WarnContext(ctx, "stage degraded", "stage", stage, "error", err)
		p.metrics.RecordDegraded(stage)
		degraded = append(degraded, stage)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	stageStart := p.now()
	cleaned, err := p.c.Noise.Process(ctx, req.Audio)
	if err != nil {
		degrade(StageNoise, err)
	}
	stages.Noise = p.observe(StageNoise, stageStart)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var (
		turns []segment.Turn
		segs  []segment.Segment
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		stageStart := p.now()
		var dErr error
		turns, dErr = p.c.Diarizer.Diarize(gctx, cleaned)
		stages.Diarization = p.observe(StageDiarization, stageStart)
		if dErr != nil {
			degrade(StageDiarization, dErr)
		}
		return nil
	})
	g.Go(func() error {
		stageStart := p.now()
		var tErr error
		segs, tErr = p.c.Transcriber.Transcribe(gctx, cleaned)
		stages.Transcription = p.observe(StageTranscription, stageStart)
		return tErr
	})
	if err := g.Wait(); err != nil {
		log.ErrorContext(ctx, "transcription failed", "error", err)
		return nil, fmt.Errorf("%w: %w", ErrTranscription, err)
	}

	stageStart = p.now()
	fused := p.c.Fuser.Fuse(segs, turns)
	stages.Fusion = p.observe(StageFusion, stageStart)
	p.metrics.RecordSegments(len(fused))

	t := &transcript.Transcript{
		ID:       p.newID(),
		Segments: fused,
		Metadata: transcript.Metadata{
			CreatedAt:         p.now(),
			SourceFile:        filepath.Base(req.SourceFile),
			ProcessingSeconds: p.now().Sub(start).Seconds(),
			Stages:            stages,
			Model:             p.c.Transcriber.ModelName(),
			Device:            p.c.Transcriber.Device(),
			SpeakersDetected:  distinctSpeakers(turns),
			Degraded:          degraded,
		},
		Status: transcript.StatusSuccess,
	}

	if req.CaseID != "" {
		t.Metadata.CaseID = lo.ToPtr(req.CaseID)
		details, err := p.c.Cases.Lookup(ctx, req.CaseID)
		if err != nil {
			log.WarnContext(ctx, "case details lookup failed", "caseID", req.CaseID, "error", err)
		} else {
			t.CaseDetails = details
		}
	}

	stored := p.store(ctx, t)
	p.publishCreated(ctx, t, stored)

	log.InfoContext(ctx, "transcript ready",
		"id", t.ID,
		"segments", len(t.Segments),
		"speakers", t.Metadata.SpeakersDetected,
		"processingSeconds", t.Metadata.ProcessingSeconds,
		"degraded", degraded,
	)

	return t, nil
}

func (p *PipelineImpl) observe(stage string, start time.Time) float64 {
	s := p.now().Sub(start).Seconds()
	p.metrics.RecordStage(stage, s)
	return s
}

func (p *PipelineImpl) store(ctx context.Context, t *transcript.Transcript) bool {
	if p.c.Store == nil {
		return false
	}
	if err := p.c.Store.Store(ctx, t.ID, t); err != nil {
		p.logger.ErrorContext(ctx, "failed to store transcript", "id", t.ID, "error", err)
		p.metrics.RecordPersistenceError()
		return false
	}
	return true
}

func (p *PipelineImpl) publishCreated(ctx context.Context, t *transcript.Transcript, stored bool) {
	if p.c.Events == nil {
		return
	}
	if err := p.c.Events.PublishTranscriptCreated(ctx, events.NewTranscriptCreated(t, stored)); err != nil {
		p.logger.WarnContext(ctx, "failed to publish transcript event", "id", t.ID, "error", err)
	}
}

// EditSegment changes the text of one stored segment and announces the edit.
func (p *PipelineImpl) EditSegment(ctx context.Context, transcriptID, segmentID, text, user string) error {
	if err := p.c.Editor.UpdateSegmentText(ctx, transcriptID, segmentID, text, user); err != nil {
		return err
	}
	p.metrics.RecordSegmentEdit()

	if p.c.Events != nil {
		if err := p.c.Events.PublishSegmentUpdated(ctx, events.SegmentUpdated{
			EventType:    events.EventSegmentUpdated,
			TranscriptID: transcriptID,
			SegmentID:    segmentID,
			Text:         text,
			User:         user,
			UpdatedAt:    p.now(),
		}); err != nil {
			p.logger.WarnContext(ctx, "failed to publish segment event", "transcript", transcriptID, "error", err)
		}
	}
	return nil
}

func distinctSpeakers(turns []segment.Turn) int {
	return len(lo.UniqBy(turns, func(t segment.Turn) string { return t.Speaker }))
}

var _ Pipeline = (*PipelineImpl)(nil)
