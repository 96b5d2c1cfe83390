package audio

import "math"

// Resample converts b to rate by linear interpolation. The input is not modified.
func Resample(b Buffer, rate int) (Buffer, error) {
	if b.SampleRate <= 0 || rate <= 0 {
		return Buffer{}, ErrUnsupportedFormat
	}
	if b.SampleRate == rate || len(b.Samples) == 0 {
		out := b.Clone()
		out.SampleRate = rate
		return out, nil
	}

	ratio := float64(rate) / float64(b.SampleRate)
	n := int(math.Round(float64(len(b.Samples)) * ratio))
	out := make([]float32, n)
	last := len(b.Samples) - 1

	for i := range out {
		x := float64(i) / ratio
		ix := int(x)
		if ix >= last {
			out[i] = b.Samples[last]
			continue
		}
		fx := float32(x - float64(ix))
		v0, v1 := b.Samples[ix], b.Samples[ix+1]
		out[i] = v0 + (v1-v0)*fx
	}

	return Buffer{Samples: out, SampleRate: rate}, nil
}
