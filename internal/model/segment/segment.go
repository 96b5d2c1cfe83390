package segment

import (
	"errors"
	"fmt"
	"time"
)

var ErrEmptyInterval = errors.New("segment start must be before end")

// Segment is a piece of recognized speech as emitted by the speech model.
type Segment struct {
	Start      time.Duration
	End        time.Duration
	Text       string
	Confidence float64
}

// Validate reports whether the segment has a non-empty interval.
// The fuser does not call it: model output is accepted as is.
func (s Segment) Validate() error {
	if s.Start >= s.End {
		return fmt.Errorf("%w: [%s, %s]", ErrEmptyInterval, s.Start, s.End)
	}
	return nil
}

func NewSegment(
	start time.Duration,
	end time.Duration,
	text string,
	confidence float64,
) *Segment {
	return &Segment{
		Start:      start,
		End:        end,
		Text:       text,
		Confidence: confidence,
	}
}

// Turn is a diarization interval attributed to one speaker label.
// Turns carry no ordering guarantee.
type Turn struct {
	Start   time.Duration
	End     time.Duration
	Speaker string
}

func (t Turn) Validate() error {
	if t.Start >= t.End {
		return fmt.Errorf("%w: [%s, %s]", ErrEmptyInterval, t.Start, t.End)
	}
	return nil
}

// Seconds converts fractional seconds into a duration.
func Seconds(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}
