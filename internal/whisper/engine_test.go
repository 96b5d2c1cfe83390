package whisper

import (
	"testing"
	"time"

	w "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
	"github.com/stretchr/testify/assert"
)

func TestToSegmentAppliesOffset(t *testing.T) {
	s := toSegment(w.Segment{
		Start:  2 * time.Second,
		End:    4 * time.Second,
		Text:   " Objection.",
		Tokens: []w.Token{{P: 0.5}, {P: 1.0}},
	}, 30*time.Second)

	assert.Equal(t, 32*time.Second, s.Start)
	assert.Equal(t, 34*time.Second, s.End)
	assert.Equal(t, " Objection.", s.Text)
	assert.InDelta(t, 0.75, s.Confidence, 1e-9)
}

func TestMeanTokenProbabilityEmpty(t *testing.T) {
	assert.Zero(t, meanTokenProbability(nil))
}

func TestSanitizeUTF8(t *testing.T) {
	assert.Equal(t, "ok", sanitizeUTF8("ok"))
	assert.Equal(t, "a�b", sanitizeUTF8("a\xffb"))
}

func TestWindowLen(t *testing.T) {
	assert.Equal(t, 30*16000, windowLen(30*time.Second))
	assert.Equal(t, 30*16000, windowLen(0))
	assert.Equal(t, 8000, windowLen(500*time.Millisecond))
}
