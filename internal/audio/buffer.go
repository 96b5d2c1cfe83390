// Package audio holds the in-memory representation of a recording and its WAV codec.
package audio

import (
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

var (
	ErrInvalidWav        = errors.New("invalid wav file")
	ErrUnsupportedFormat = errors.New("unsupported wav format")
	ErrEmptyBuffer       = errors.New("audio buffer is empty")
)

// Buffer is a mono recording with samples normalized to [-1, 1].
// Stages treat a Buffer as immutable and return new buffers instead of
// writing into Samples.
type Buffer struct {
	Samples    []float32
	SampleRate int
}

// Duration returns the length of the buffer, or false if the sample rate is unknown.
func (b Buffer) Duration() (time.Duration, bool) {
	if b.SampleRate <= 0 {
		return 0, false
	}
	return time.Duration(len(b.Samples)) * time.Second / time.Duration(b.SampleRate), true
}

func (b Buffer) Len() int {
	return len(b.Samples)
}

// Clone returns a deep copy of the buffer.
func (b Buffer) Clone() Buffer {
	out := make([]float32, len(b.Samples))
	copy(out, b.Samples)
	return Buffer{Samples: out, SampleRate: b.SampleRate}
}

// Decode reads a PCM WAV stream. Multi-channel audio is down-mixed to mono.
func Decode(r io.ReadSeeker) (Buffer, error) {
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return Buffer{}, err
	}

	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return Buffer{}, ErrInvalidWav
	}

	if dec.WavAudioFormat != 1 {
		return Buffer{}, fmt.Errorf("%w: audioFormat=%d (need PCM=1)", ErrUnsupportedFormat, dec.WavAudioFormat)
	}
	if dec.BitDepth == 0 || dec.BitDepth > 32 {
		return Buffer{}, fmt.Errorf("%w: bits per sample %d", ErrUnsupportedFormat, dec.BitDepth)
	}

	pcm, err := dec.FullPCMBuffer()
	if err != nil {
		return Buffer{}, fmt.Errorf("decode wav pcm: %w", err)
	}

	channels := int(dec.NumChans)
	if channels <= 0 {
		channels = 1
	}
	scale := float32(math.Pow(2, float64(dec.BitDepth)-1))
	// 8-bit PCM is unsigned with silence at 128.
	var offset float32
	if dec.BitDepth == 8 {
		offset = 128
	}

	frames := len(pcm.Data) / channels
	samples := make([]float32, frames)
	for i := range frames {
		var sum float32
		for c := range channels {
			sum += (float32(pcm.Data[i*channels+c]) - offset) / scale
		}
		samples[i] = sum / float32(channels)
	}

	return Buffer{
		Samples:    samples,
		SampleRate: int(dec.SampleRate),
	}, nil
}

// Encode writes the buffer as 16-bit mono PCM WAV.
func Encode(w io.WriteSeeker, b Buffer) error {
	if b.SampleRate <= 0 {
		return fmt.Errorf("%w: sample rate %d", ErrUnsupportedFormat, b.SampleRate)
	}

	data := make([]int, len(b.Samples))
	for i, s := range b.Samples {
		v := math.Round(float64(s) * 32767)
		data[i] = int(max(-32768, min(32767, v)))
	}

	enc := wav.NewEncoder(w, b.SampleRate, 16, 1, 1)
	intBuf := &goaudio.IntBuffer{
		Format: &goaudio.Format{
			NumChannels: 1,
			SampleRate:  b.SampleRate,
		},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := enc.Write(intBuf); err != nil {
		return fmt.Errorf("encode wav pcm: %w", err)
	}
	return enc.Close()
}
