// Package fusion attributes transcribed segments to diarization speakers.
package fusion

import (
	"time"

	"github.com/ciricc/court-transcriber/internal/model/segment"
	"github.com/ciricc/court-transcriber/internal/model/transcript"
	"github.com/google/uuid"
)

type Fuser struct {
	newID func() string
}

type Option func(f *Fuser)

// WithIDFunc replaces the uuid generator used for fused segment ids.
func WithIDFunc(fn func() string) Option {
	return func(f *Fuser) { f.newID = fn }
}

func New(opts ...Option) *Fuser {
	f := &Fuser{newID: uuid.NewString}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fuse labels every segment with the speaker of the turn it overlaps most.
//
// The assignment is greedy per segment: turns are scanned in the given order and
// only a strictly larger overlap replaces the current best, so the first turn wins
// ties. Segments without any overlapping turn get transcript.UnknownSpeaker.
// Output order and length match segs. Segments are not validated.
func (f *Fuser) Fuse(segs []segment.Segment, turns []segment.Turn) []transcript.Segment {
	out := make([]transcript.Segment, 0, len(segs))
	for _, s := range segs {
		out = append(out, transcript.Segment{
			ID:         f.newID(),
			Speaker:    bestSpeaker(s, turns),
			Text:       s.Text,
			StartTime:  s.Start.Seconds(),
			EndTime:    s.End.Seconds(),
			Confidence: s.Confidence,
		})
	}
	return out
}

func bestSpeaker(s segment.Segment, turns []segment.Turn) string {
	speaker := transcript.UnknownSpeaker
	var maxOverlap time.Duration
	for _, t := range turns {
		if o := overlap(s, t); o > maxOverlap {
			maxOverlap = o
			speaker = t.Speaker
		}
	}
	if speaker == "" {
		return transcript.UnknownSpeaker
	}
	return speaker
}

func overlap(s segment.Segment, t segment.Turn) time.Duration {
	return max(0, min(s.End, t.End)-max(s.Start, t.Start))
}
