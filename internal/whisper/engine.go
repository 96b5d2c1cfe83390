// Package whisper implements transcriber.Recognizer over the whisper.cpp Go bindings.
package whisper

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/ciricc/court-transcriber/internal/model/segment"
	"github.com/ciricc/court-transcriber/internal/transcriber"
	w "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
	"github.com/samber/lo"
)

type Opts struct {
	Language      *string
	Threads       *uint
	BeamSize      *int
	Temperature   *float32
	InitialPrompt *string
	SplitOnWord   *bool
	WindowSize    *time.Duration
}

type Opt func(opts *Opts)

func WithLanguage(language string) Opt {
	return func(opts *Opts) { opts.Language = &language }
}

func WithThreads(v uint) Opt {
	return func(opts *Opts) { opts.Threads = &v }
}

func WithBeamSize(v int) Opt {
	return func(opts *Opts) { opts.BeamSize = &v }
}

func WithTemperature(v float32) Opt {
	return func(opts *Opts) { opts.Temperature = &v }
}

func WithInitialPrompt(v string) Opt {
	return func(opts *Opts) { opts.InitialPrompt = &v }
}

func WithSplitOnWord(v bool) Opt {
	return func(opts *Opts) { opts.SplitOnWord = &v }
}

// WithWindowSize sets the length of the PCM windows fed to the model.
func WithWindowSize(v time.Duration) Opt {
	return func(opts *Opts) { opts.WindowSize = &v }
}

func buildOpts(defaultOpts Opts, opts ...Opt) Opts {
	o := defaultOpts
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func setParam[T any](opt *T, setter func(opt T)) {
	if opt != nil {
		setter(*opt)
	}
}

// Engine holds a loaded model. The bindings share decoder state across contexts of
// one model, so recognition calls are serialized.
type Engine struct {
	model  w.Model
	mu     sync.Mutex
	opts   Opts
	logger *slog.Logger
}

func NewEngine(modelPath string, logger *slog.Logger, opts ...Opt) (*Engine, error) {
	m, err := w.New(modelPath)
	if err != nil {
		return nil, err
	}

	return &Engine{
		model: m,
		opts: buildOpts(Opts{
			Language:    lo.ToPtr("auto"),
			SplitOnWord: lo.ToPtr(true),
			Temperature: lo.ToPtr(float32(0.0)),
			WindowSize:  lo.ToPtr(30 * time.Second),
		}, opts...),
		logger: logger.With("component", "whisper", "model", modelPath),
	}, nil
}

// Loader adapts NewEngine to the transcriber model ladder.
func Loader(logger *slog.Logger, opts ...Opt) transcriber.LoaderFunc {
	return func(path string) (transcriber.Recognizer, error) {
		return NewEngine(path, logger, opts...)
	}
}

func (e *Engine) Close() error {
	if e.model == nil {
		return nil
	}

	return e.model.Close()
}

func (e *Engine) spawnContext() (w.Context, error) {
	wCtx, err := e.model.NewContext()
	if err != nil {
		return nil, err
	}

	if err := wCtx.SetLanguage(*e.opts.Language); err != nil {
		return nil, fmt.Errorf("failed to set language: %w", err)
	}
	setParam(e.opts.Threads, wCtx.SetThreads)
	setParam(e.opts.BeamSize, wCtx.SetBeamSize)
	setParam(e.opts.Temperature, wCtx.SetTemperature)
	setParam(e.opts.InitialPrompt, wCtx.SetInitialPrompt)
	setParam(e.opts.SplitOnWord, wCtx.SetSplitOnWord)

	return wCtx, nil
}

// Recognize feeds samples to the model window by window and shifts segment times
// by each window's offset into the recording.
func (e *Engine) Recognize(ctx context.Context, samples []float32) ([]segment.Segment, error) {
	log := e.logger.With("method", "Recognize")

	e.mu.Lock()
	defer e.mu.Unlock()

	wCtx, err := e.spawnContext()
	if err != nil {
		return nil, fmt.Errorf("failed to create whisper context: %w", err)
	}

	windowSamples := windowLen(*e.opts.WindowSize)

	var segs []segment.Segment
	for chunkI, off := 0, 0; off < len(samples); chunkI, off = chunkI+1, off+windowSamples {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		end := min(off+windowSamples, len(samples))
		virtualChunkOffset := time.Duration(off) * time.Second / transcriber.SampleRate

		log.DebugContext(ctx, "chunk",
			"chunkI", chunkI,
			"pcmLen", end-off,
			"virtualChunkOffset", virtualChunkOffset,
		)

		if pErr := wCtx.Process(samples[off:end], nil, func(s w.Segment) {
			segs = append(segs, toSegment(s, virtualChunkOffset))
		}, nil); pErr != nil {
			return nil, pErr
		}
	}

	return segs, nil
}

func windowLen(size time.Duration) int {
	n := int(size.Seconds() * transcriber.SampleRate)
	if n <= 0 {
		n = 30 * transcriber.SampleRate
	}
	return n
}

func toSegment(s w.Segment, offset time.Duration) segment.Segment {
	return *segment.NewSegment(
		s.Start+offset,
		s.End+offset,
		sanitizeUTF8(s.Text),
		meanTokenProbability(s.Tokens),
	)
}

// meanTokenProbability is 0 for a segment without tokens.
func meanTokenProbability(tokens []w.Token) float64 {
	if len(tokens) == 0 {
		return 0
	}
	var sum float64
	for _, t := range tokens {
		sum += float64(t.P)
	}
	return sum / float64(len(tokens))
}

// sanitizeUTF8 replaces invalid UTF-8 sequences, which the model emits when a
// multibyte character is split across tokens.
func sanitizeUTF8(text string) string {
	if utf8.ValidString(text) {
		return text
	}

	return string([]rune(text))
}

var _ transcriber.Recognizer = (*Engine)(nil)
