// Package noise suppresses a known narrowband noise source with spectral subtraction.
package noise

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/cmplx"

	"github.com/ciricc/court-transcriber/internal/audio"
	"github.com/samber/lo"
)

// ErrDegraded marks a filter fault. The input buffer is returned unchanged alongside it.
var ErrDegraded = errors.New("noise filter degraded")

const (
	frameSeconds      = 0.025
	hopSeconds        = 0.010
	noiseWindowSecond = 0.5
	baseCoefficient   = 1.0
)

type Options struct {
	Enabled         *bool
	BandLowHz       *float64
	BandHighHz      *float64
	BandCoefficient *float64
}

type Option func(opts *Options)

// WithEnabled toggles the filter. A disabled filter passes buffers through untouched.
func WithEnabled(v bool) Option {
	return func(opts *Options) { opts.Enabled = &v }
}

// WithTargetBand overrides the frequency range and coefficient of the targeted subtraction.
func WithTargetBand(lowHz, highHz, coefficient float64) Option {
	return func(opts *Options) {
		opts.BandLowHz = &lowHz
		opts.BandHighHz = &highHz
		opts.BandCoefficient = &coefficient
	}
}

func buildOpts(defaultOpts Options, opts ...Option) Options {
	o := defaultOpts
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

type Filter struct {
	enabled   bool
	bandLow   float64
	bandHigh  float64
	bandCoeff float64
	logger    *slog.Logger
}

func NewFilter(logger *slog.Logger, opts ...Option) *Filter {
	o := buildOpts(Options{
		Enabled:         lo.ToPtr(true),
		BandLowHz:       lo.ToPtr(50.0),
		BandHighHz:      lo.ToPtr(150.0),
		BandCoefficient: lo.ToPtr(2.0),
	}, opts...)

	log := logger.With("component", "noise")
	if !*o.Enabled {
		log.Warn("spectral subtraction disabled, audio passes through unchanged")
	}

	return &Filter{
		enabled:   *o.Enabled,
		bandLow:   *o.BandLowHz,
		bandHigh:  *o.BandHighHz,
		bandCoeff: *o.BandCoefficient,
		logger:    log,
	}
}

func (f *Filter) Enabled() bool {
	return f.enabled
}

// Process returns a filtered copy of buf. On any internal fault it returns buf itself
// together with an error wrapping ErrDegraded; callers are expected to continue.
func (f *Filter) Process(ctx context.Context, buf audio.Buffer) (out audio.Buffer, err error) {
	if !f.enabled {
		return buf, nil
	}

	log := f.logger.With("method", "Process")

	defer func() {
		if r := recover(); r != nil {
			out = buf
			err = fmt.Errorf("%w: panic: %v", ErrDegraded, r)
		}
	}()

	filtered, err := f.subtract(buf)
	if err != nil {
		return buf, fmt.Errorf("%w: %w", ErrDegraded, err)
	}

	log.DebugContext(ctx, "filtered",
		"samples", len(filtered),
		"sampleRate", buf.SampleRate,
	)

	return audio.Buffer{Samples: filtered, SampleRate: buf.SampleRate}, nil
}

func (f *Filter) subtract(buf audio.Buffer) ([]float32, error) {
	if buf.SampleRate <= 0 {
		return nil, fmt.Errorf("invalid sample rate %d", buf.SampleRate)
	}
	if len(buf.Samples) == 0 {
		return nil, audio.ErrEmptyBuffer
	}

	frameLen := int(frameSeconds * float64(buf.SampleRate))
	hop := int(hopSeconds * float64(buf.SampleRate))
	if frameLen < 2 || hop < 1 {
		return nil, fmt.Errorf("sample rate %d too low for %.0fms frames", buf.SampleRate, frameSeconds*1000)
	}
	if len(buf.Samples) < frameLen {
		return nil, fmt.Errorf("signal of %d samples shorter than one frame (%d)", len(buf.Samples), frameLen)
	}

	noiseLen := min(int(noiseWindowSecond*float64(buf.SampleRate)), len(buf.Samples)/4)
	if noiseLen <= 0 {
		return nil, fmt.Errorf("no samples for noise estimate")
	}
	noisePower := stft(buf.Samples[:noiseLen], frameLen, hop).meanPower()

	sg := stft(buf.Samples, frameLen, hop)
	coeffs := f.coefficients(frameLen, buf.SampleRate)

	for _, frame := range sg.frames {
		for k, c := range frame {
			mag := cmplx.Abs(c)
			phase := cmplx.Phase(c)
			filtered := math.Sqrt(subtractPower(mag*mag, noisePower[k], coeffs[k]))
			frame[k] = cmplx.Rect(filtered, phase)
		}
	}

	return istft(sg, len(buf.Samples)), nil
}

// coefficients returns the subtraction coefficient for each of the frameLen/2+1 bins.
// Bins inside the target band use the band coefficient instead of the base one.
func (f *Filter) coefficients(frameLen, sampleRate int) []float64 {
	bins := frameLen/2 + 1
	out := make([]float64, bins)
	for k := range out {
		freq := float64(k) * float64(sampleRate) / float64(frameLen)
		if freq >= f.bandLow && freq <= f.bandHigh {
			out[k] = f.bandCoeff
		} else {
			out[k] = baseCoefficient
		}
	}
	return out
}

// subtractPower floors the subtracted power at zero.
func subtractPower(power, noise, coefficient float64) float64 {
	return math.Max(power-noise*coefficient, 0)
}
