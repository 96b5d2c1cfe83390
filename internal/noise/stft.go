package noise

import (
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
)

// spectrogram is a centred short-time Fourier transform, one row per frame.
type spectrogram struct {
	frames   [][]complex128
	frameLen int
	hop      int
}

// hann returns a periodic Hann window of length n.
func hann(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(n))
	}
	return w
}

// centrePad zero-pads frameLen/2 samples on both sides of the signal.
func centrePad(samples []float32, frameLen int) []float64 {
	pad := frameLen / 2
	out := make([]float64, len(samples)+2*pad)
	for i, s := range samples {
		out[pad+i] = float64(s)
	}
	return out
}

func stft(samples []float32, frameLen, hop int) spectrogram {
	padded := centrePad(samples, frameLen)
	window := hann(frameLen)
	fft := fourier.NewFFT(frameLen)

	count := 1 + (len(padded)-frameLen)/hop
	frames := make([][]complex128, 0, count)

	buf := make([]float64, frameLen)
	for f := range count {
		off := f * hop
		for i := range frameLen {
			buf[i] = padded[off+i] * window[i]
		}
		frames = append(frames, fft.Coefficients(nil, buf))
	}

	return spectrogram{frames: frames, frameLen: frameLen, hop: hop}
}

// meanPower averages |X|^2 per frequency bin across all frames.
func (s spectrogram) meanPower() []float64 {
	if len(s.frames) == 0 {
		return nil
	}
	bins := len(s.frames[0])
	out := make([]float64, bins)
	for _, frame := range s.frames {
		for k, c := range frame {
			a := cmplx.Abs(c)
			out[k] += a * a
		}
	}
	for k := range out {
		out[k] /= float64(len(s.frames))
	}
	return out
}

// istft reconstructs a signal of the given length by windowed overlap-add,
// normalised by the summed squared window.
func istft(s spectrogram, length int) []float32 {
	frameLen, hop := s.frameLen, s.hop
	window := hann(frameLen)
	fft := fourier.NewFFT(frameLen)

	total := frameLen + hop*(len(s.frames)-1)
	signal := make([]float64, total)
	norm := make([]float64, total)

	seq := make([]float64, frameLen)
	for f, frame := range s.frames {
		fft.Sequence(seq, frame)
		off := f * hop
		for i := range frameLen {
			signal[off+i] += seq[i] / float64(frameLen) * window[i]
			norm[off+i] += window[i] * window[i]
		}
	}

	const tiny = 1e-10
	pad := frameLen / 2
	out := make([]float32, length)
	for i := range out {
		j := pad + i
		if j >= total {
			break
		}
		v := signal[j]
		if norm[j] > tiny {
			v /= norm[j]
		}
		out[i] = float32(v)
	}
	return out
}
