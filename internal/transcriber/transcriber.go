// Package transcriber turns audio into time-stamped text segments using the first
// speech model that loads from a size-ordered ladder.
package transcriber

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/ciricc/court-transcriber/internal/audio"
	"github.com/ciricc/court-transcriber/internal/model/segment"
)

// SampleRate is the only input rate accepted by the speech models.
const SampleRate = 16000

var (
	ErrNoModel     = errors.New("no speech model could be loaded")
	ErrSampleRate  = errors.New("unsupported sample rate")
	ErrRecognition = errors.New("speech recognition failed")
)

// Recognizer is a loaded speech model. Implementations must be safe for
// concurrent use.
type Recognizer interface {
	Recognize(ctx context.Context, samples []float32) ([]segment.Segment, error)
	Close() error
}

// LoaderFunc loads the model at path.
type LoaderFunc func(path string) (Recognizer, error)

type Transcriber interface {
	Transcribe(ctx context.Context, buf audio.Buffer) ([]segment.Segment, error)
	ModelName() string
	Device() string
	Close() error
}

type TranscriberImpl struct {
	recognizer Recognizer
	modelName  string
	device     string
	logger     *slog.Logger
}

// New tries each model path in order and keeps the first one that loads.
// It fails with ErrNoModel when the whole ladder is exhausted.
func New(paths []string, load LoaderFunc, device string, logger *slog.Logger) (*TranscriberImpl, error) {
	log := logger.With("component", "transcriber")

	var errs []error
	for _, path := range paths {
		r, err := load(path)
		if err != nil {
			log.Warn("failed to load speech model", "path", path, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", path, err))
			continue
		}

		name := ModelName(path)
		log.Info("speech model loaded", "path", path, "model", name)
		return &TranscriberImpl{
			recognizer: r,
			modelName:  name,
			device:     device,
			logger:     log,
		}, nil
	}

	return nil, fmt.Errorf("%w: %w", ErrNoModel, errors.Join(errs...))
}

// ModelName derives "whisper-base" from a path such as "models/ggml-base.bin".
func ModelName(path string) string {
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	base = strings.TrimPrefix(base, "ggml-")
	return "whisper-" + base
}

func (t *TranscriberImpl) Transcribe(ctx context.Context, buf audio.Buffer) ([]segment.Segment, error) {
	log := t.logger.With("method", "Transcribe")

	if buf.SampleRate != SampleRate {
		return nil, fmt.Errorf("%w: %d Hz (need %d)", ErrSampleRate, buf.SampleRate, SampleRate)
	}

	segs, err := t.recognizer.Recognize(ctx, buf.Samples)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRecognition, err)
	}

	log.DebugContext(ctx, "transcribed", "segments", len(segs), "model", t.modelName)
	return segs, nil
}

func (t *TranscriberImpl) ModelName() string {
	return t.modelName
}

func (t *TranscriberImpl) Device() string {
	return t.device
}

func (t *TranscriberImpl) Close() error {
	if t.recognizer == nil {
		return nil
	}
	return t.recognizer.Close()
}

var _ Transcriber = (*TranscriberImpl)(nil)
