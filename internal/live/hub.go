// Package live pushes transcript edits to connected viewers.
package live

import (
	"context"
	"log/slog"
	"sync"

	"github.com/ciricc/court-transcriber/internal/events"
)

const (
	ActionSegmentUpdated = "segment_updated"

	defaultBuffer = 16
)

// Message is what a viewer of one transcript receives.
type Message struct {
	Action       string `json:"action"`
	TranscriptID string `json:"transcript_id"`
	SegmentID    string `json:"segment_id"`
	Text         string `json:"text"`
	UpdatedBy    string `json:"updated_by"`
}

// Hub fans segment edits out to the subscribers of each transcript. A
// subscriber that falls behind by more than its buffer misses messages.
type Hub struct {
	mu     sync.Mutex
	subs   map[string]map[chan Message]struct{}
	buffer int
	logger *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		subs:   make(map[string]map[chan Message]struct{}),
		buffer: defaultBuffer,
		logger: logger.With("component", "live"),
	}
}

// Subscribe registers a viewer of transcriptID. The returned func unsubscribes
// and closes the channel; it is safe to call more than once.
func (h *Hub) Subscribe(transcriptID string) (<-chan Message, func()) {
	ch := make(chan Message, h.buffer)

	h.mu.Lock()
	if h.subs[transcriptID] == nil {
		h.subs[transcriptID] = make(map[chan Message]struct{})
	}
	h.subs[transcriptID][ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			delete(h.subs[transcriptID], ch)
			if len(h.subs[transcriptID]) == 0 {
				delete(h.subs, transcriptID)
			}
			close(ch)
		})
	}
}

func (h *Hub) Subscribers(transcriptID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[transcriptID])
}

func (h *Hub) PublishSegmentUpdated(ctx context.Context, ev events.SegmentUpdated) error {
	msg := Message{
		Action:       ActionSegmentUpdated,
		TranscriptID: ev.TranscriptID,
		SegmentID:    ev.SegmentID,
		Text:         ev.Text,
		UpdatedBy:    ev.User,
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for ch := range h.subs[ev.TranscriptID] {
		select {
		case ch <- msg:
		default:
			h.logger.WarnContext(ctx, "dropping update for slow viewer", "transcript", ev.TranscriptID)
		}
	}
	return nil
}

// PublishTranscriptCreated is a no-op: nobody can be watching a transcript
// before it exists.
func (h *Hub) PublishTranscriptCreated(context.Context, events.TranscriptCreated) error {
	return nil
}

var _ events.Sink = (*Hub)(nil)
