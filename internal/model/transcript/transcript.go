package transcript

import (
	"time"

	"github.com/samber/lo"
)

const (
	StatusSuccess  = "success"
	UnknownSpeaker = "Unknown"
)

// Segment is a speaker-attributed piece of the final transcript.
// Only Text may change after the segment was created.
type Segment struct {
	ID         string  `json:"id"`
	Speaker    string  `json:"speaker"`
	Text       string  `json:"text"`
	StartTime  float64 `json:"start_time"`
	EndTime    float64 `json:"end_time"`
	Confidence float64 `json:"confidence"`
}

type StageSeconds struct {
	Noise         float64 `json:"noise"`
	Diarization   float64 `json:"diarization"`
	Transcription float64 `json:"transcription"`
	Fusion        float64 `json:"fusion"`
}

type Metadata struct {
	CreatedAt         time.Time    `json:"created_at"`
	SourceFile        string       `json:"audio_file"`
	ProcessingSeconds float64      `json:"processing_time"`
	Stages            StageSeconds `json:"stages"`
	Model             string       `json:"model"`
	Device            string       `json:"device"`
	SpeakersDetected  int          `json:"speakers_detected"`
	CaseID            *string      `json:"case_id"`
	Degraded          []string     `json:"degraded,omitempty"`
}

type CaseDetails struct {
	CaseID string `json:"case_id"`
	Title  string `json:"case_title"`
	Court  string `json:"court"`
	Judge  string `json:"judge"`
	Date   string `json:"date"`
}

type Transcript struct {
	ID          string       `json:"id"`
	Segments    []Segment    `json:"segments"`
	Metadata    Metadata     `json:"metadata"`
	CaseDetails *CaseDetails `json:"case_details"`
	Status      string       `json:"status"`
}

// FindSegment returns the index of the segment with the given id or -1.
func (t *Transcript) FindSegment(id string) int {
	_, idx, ok := lo.FindIndexOf(t.Segments, func(s Segment) bool {
		return s.ID == id
	})
	if !ok {
		return -1
	}
	return idx
}

// Speakers returns the distinct speaker labels in order of first appearance.
func (t *Transcript) Speakers() []string {
	return lo.Uniq(lo.Map(t.Segments, func(s Segment, _ int) string {
		return s.Speaker
	}))
}

// Duration is the end time of the last segment in seconds.
func (t *Transcript) Duration() float64 {
	if len(t.Segments) == 0 {
		return 0
	}
	return t.Segments[len(t.Segments)-1].EndTime
}

// Summary is the list view of a stored transcript.
type Summary struct {
	ID              string       `json:"id"`
	CreatedAt       time.Time    `json:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at"`
	CaseID          string       `json:"case_id,omitempty"`
	SegmentsCount   int          `json:"segments_count"`
	SpeakersCount   int          `json:"speakers_count"`
	DurationSeconds float64      `json:"duration"`
	Metadata        *Metadata    `json:"metadata,omitempty"`
	CaseDetails     *CaseDetails `json:"case_details,omitempty"`
}
