// Package diarization splits a recording into speaker turns labelled with courtroom roles.
package diarization

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/ciricc/court-transcriber/internal/audio"
	"github.com/ciricc/court-transcriber/internal/model/segment"
	"github.com/samber/lo"
)

// ErrDegraded marks a model-mode failure. Synthetic turns are returned alongside it.
var ErrDegraded = errors.New("diarization degraded")

type Mode string

const (
	ModeModel    Mode = "model"
	ModeFallback Mode = "fallback"
)

type Options struct {
	Enabled *bool
	Token   *string
	Runner  Runner
}

type Option func(opts *Options)

func WithEnabled(v bool) Option {
	return func(opts *Options) { opts.Enabled = &v }
}

// WithToken sets the model access token. An empty token forces fallback mode.
func WithToken(v string) Option {
	return func(opts *Options) { opts.Token = &v }
}

func WithRunner(r Runner) Option {
	return func(opts *Options) { opts.Runner = r }
}

func buildOpts(defaultOpts Options, opts ...Option) Options {
	o := defaultOpts
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

type Engine struct {
	mode   Mode
	runner Runner
	logger *slog.Logger
}

// New resolves the operating mode once. Model mode requires the engine to be enabled,
// a non-empty access token and an available runner; otherwise every call produces
// synthetic turns.
func New(logger *slog.Logger, opts ...Option) *Engine {
	o := buildOpts(Options{
		Enabled: lo.ToPtr(true),
		Token:   lo.ToPtr(os.Getenv("HF_TOKEN")),
	}, opts...)

	log := logger.With("component", "diarization")

	if o.Runner == nil {
		helper := NewHelperRunner("", "")
		helper.Token = *o.Token
		o.Runner = helper
	}

	mode := ModeFallback
	switch {
	case !*o.Enabled:
		log.Warn("diarization model disabled, using synthetic turns")
	case *o.Token == "":
		log.Warn("no access token provided, using synthetic turns")
	case !o.Runner.Available():
		log.Warn("diarization runner not available, using synthetic turns")
	default:
		mode = ModeModel
	}

	log.Info("diarization engine initialized", "mode", mode)

	return &Engine{
		mode:   mode,
		runner: o.Runner,
		logger: log,
	}
}

func (e *Engine) Mode() Mode {
	return e.mode
}

// Close releases the runner when it holds a long-lived process.
func (e *Engine) Close() error {
	if c, ok := e.runner.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// Diarize always returns usable turns. A model-mode failure falls back to synthetic
// turns for this call only and is reported as an error wrapping ErrDegraded.
func (e *Engine) Diarize(ctx context.Context, buf audio.Buffer) ([]segment.Turn, error) {
	log := e.logger.With("method", "Diarize")

	if e.mode == ModeFallback {
		turns := SyntheticTurns(buf)
		log.DebugContext(ctx, "generated synthetic turns", "turns", len(turns))
		return turns, nil
	}

	turns, err := e.runModel(ctx, buf)
	if err != nil {
		log.WarnContext(ctx, "diarization failed, falling back to synthetic turns", "error", err)
		return SyntheticTurns(buf), fmt.Errorf("%w: %w", ErrDegraded, err)
	}

	log.InfoContext(ctx, "diarization completed",
		"turns", len(turns),
		"speakers", len(lo.UniqBy(turns, func(t segment.Turn) string { return t.Speaker })),
	)
	return turns, nil
}

func (e *Engine) runModel(ctx context.Context, buf audio.Buffer) ([]segment.Turn, error) {
	dir, err := os.MkdirTemp("", "diarize-*")
	if err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	f, err := os.CreateTemp(dir, "audio-*.wav")
	if err != nil {
		return nil, fmt.Errorf("create temp wav: %w", err)
	}
	if err := audio.Encode(f, buf); err != nil {
		f.Close()
		return nil, err
	}
	if err := f.Close(); err != nil {
		return nil, err
	}

	raw, err := e.runner.Run(ctx, f.Name())
	if err != nil {
		return nil, err
	}

	turns := make([]segment.Turn, 0, len(raw))
	for _, r := range raw {
		t := segment.Turn{
			Start:   segment.Seconds(r.Start),
			End:     segment.Seconds(r.End),
			Speaker: RoleForSpeaker(r.Speaker),
		}
		if err := t.Validate(); err != nil {
			e.logger.DebugContext(ctx, "dropping empty turn", "speaker", r.Speaker, "error", err)
			continue
		}
		turns = append(turns, t)
	}
	return turns, nil
}
