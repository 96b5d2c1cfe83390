package noise

import (
	"context"
	"io"
	"log/slog"
	"math"
	"testing"

	"github.com/ciricc/court-transcriber/internal/audio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func tone(sampleRate int, seconds, hz, amp float64) []float32 {
	n := int(seconds * float64(sampleRate))
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(amp * math.Sin(2*math.Pi*hz*float64(i)/float64(sampleRate)))
	}
	return out
}

func TestProcessPreservesLength(t *testing.T) {
	cases := []struct {
		name       string
		sampleRate int
		seconds    float64
	}{
		{"16k two seconds", 16000, 2},
		{"16k odd length", 16000, 1.2345},
		{"8k short", 8000, 0.3},
		{"44.1k", 44100, 1},
	}

	f := NewFilter(discardLogger())
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := audio.Buffer{
				Samples:    tone(tc.sampleRate, tc.seconds, 100, 0.3),
				SampleRate: tc.sampleRate,
			}
			out, err := f.Process(context.Background(), in)
			require.NoError(t, err)
			assert.Len(t, out.Samples, len(in.Samples))
			assert.Equal(t, tc.sampleRate, out.SampleRate)
		})
	}
}

func TestProcessDoesNotMutateInput(t *testing.T) {
	samples := tone(16000, 1, 120, 0.5)
	orig := make([]float32, len(samples))
	copy(orig, samples)

	_, err := NewFilter(discardLogger()).Process(context.Background(), audio.Buffer{Samples: samples, SampleRate: 16000})
	require.NoError(t, err)
	assert.Equal(t, orig, samples)
}

func TestProcessReconstructsWithSilentNoiseWindow(t *testing.T) {
	const sr = 16000
	speech := tone(sr, 1.5, 440, 0.4)
	samples := append(make([]float32, sr/2), speech...)

	out, err := NewFilter(discardLogger()).Process(context.Background(), audio.Buffer{Samples: samples, SampleRate: sr})
	require.NoError(t, err)
	require.Len(t, out.Samples, len(samples))

	for i := range samples {
		require.InDelta(t, samples[i], out.Samples[i], 1e-4, "sample %d", i)
	}
}

func TestProcessAttenuatesTargetBand(t *testing.T) {
	const sr = 16000
	samples := tone(sr, 2, 100, 0.3)

	out, err := NewFilter(discardLogger()).Process(context.Background(), audio.Buffer{Samples: samples, SampleRate: sr})
	require.NoError(t, err)

	energy := func(s []float32) float64 {
		var e float64
		for _, v := range s {
			e += float64(v) * float64(v)
		}
		return e
	}
	assert.Less(t, energy(out.Samples), energy(samples))
}

func TestProcessDegradedFaults(t *testing.T) {
	cases := []struct {
		name string
		buf  audio.Buffer
	}{
		{"empty", audio.Buffer{SampleRate: 16000}},
		{"unknown sample rate", audio.Buffer{Samples: make([]float32, 1000)}},
		{"shorter than one frame", audio.Buffer{Samples: make([]float32, 100), SampleRate: 16000}},
	}

	f := NewFilter(discardLogger())
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out, err := f.Process(context.Background(), tc.buf)
			require.ErrorIs(t, err, ErrDegraded)
			assert.Equal(t, tc.buf, out)
		})
	}
}

func TestProcessDisabledPassesThrough(t *testing.T) {
	in := audio.Buffer{Samples: []float32{0.1, -0.2, 0.3}, SampleRate: 16000}

	f := NewFilter(discardLogger(), WithEnabled(false))
	assert.False(t, f.Enabled())

	out, err := f.Process(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestSubtractPowerNeverNegative(t *testing.T) {
	cases := []struct {
		power, noise, coeff, want float64
	}{
		{4, 1, 1, 3},
		{4, 1, 2, 2},
		{1, 1, 1, 0},
		{1, 1, 2, 0},
		{0, 5, 1, 0},
		{0.5, 0.3, 2, 0},
	}
	for _, tc := range cases {
		got := subtractPower(tc.power, tc.noise, tc.coeff)
		assert.GreaterOrEqual(t, got, 0.0)
		assert.InDelta(t, tc.want, got, 1e-12)
	}
}

func TestCoefficientsTargetBand(t *testing.T) {
	f := NewFilter(discardLogger())

	// 400-sample frames at 16 kHz give 40 Hz bins.
	coeffs := f.coefficients(400, 16000)
	require.Len(t, coeffs, 201)

	assert.Equal(t, 1.0, coeffs[0])
	assert.Equal(t, 1.0, coeffs[1])
	assert.Equal(t, 2.0, coeffs[2])
	assert.Equal(t, 2.0, coeffs[3])
	assert.Equal(t, 1.0, coeffs[4])
	assert.Equal(t, 1.0, coeffs[200])
}

func TestWithTargetBand(t *testing.T) {
	f := NewFilter(discardLogger(), WithTargetBand(0, 1000, 3))
	coeffs := f.coefficients(400, 16000)
	assert.Equal(t, 3.0, coeffs[0])
	assert.Equal(t, 3.0, coeffs[25])
	assert.Equal(t, 1.0, coeffs[26])
}
