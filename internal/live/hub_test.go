package live

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ciricc/court-transcriber/internal/events"
)

func newHub() *Hub {
	return NewHub(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestHubDeliversToTranscriptViewers(t *testing.T) {
	h := newHub()
	a, cancelA := h.Subscribe("t1")
	defer cancelA()
	other, cancelOther := h.Subscribe("t2")
	defer cancelOther()

	require.NoError(t, h.PublishSegmentUpdated(context.Background(), events.SegmentUpdated{
		TranscriptID: "t1", SegmentID: "s1", Text: "Overruled.", User: "judge1",
	}))

	assert.Equal(t, Message{
		Action: ActionSegmentUpdated, TranscriptID: "t1", SegmentID: "s1", Text: "Overruled.", UpdatedBy: "judge1",
	}, <-a)
	assert.Empty(t, other)
}

func TestHubUnsubscribe(t *testing.T) {
	h := newHub()
	ch, cancel := h.Subscribe("t1")
	assert.Equal(t, 1, h.Subscribers("t1"))

	cancel()
	cancel()
	assert.Zero(t, h.Subscribers("t1"))

	_, open := <-ch
	assert.False(t, open)

	require.NoError(t, h.PublishSegmentUpdated(context.Background(), events.SegmentUpdated{TranscriptID: "t1"}))
}

func TestHubDropsForSlowViewer(t *testing.T) {
	h := newHub()
	h.buffer = 1
	ch, cancel := h.Subscribe("t1")
	defer cancel()

	for range 3 {
		require.NoError(t, h.PublishSegmentUpdated(context.Background(), events.SegmentUpdated{TranscriptID: "t1"}))
	}
	assert.Len(t, ch, 1)
}
