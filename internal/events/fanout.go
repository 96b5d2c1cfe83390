package events

import (
	"context"
	"errors"
)

// Sink receives transcript lifecycle events.
type Sink interface {
	PublishTranscriptCreated(ctx context.Context, ev TranscriptCreated) error
	PublishSegmentUpdated(ctx context.Context, ev SegmentUpdated) error
}

// Fanout delivers every event to each sink in order and joins their errors.
type Fanout []Sink

func (f Fanout) PublishTranscriptCreated(ctx context.Context, ev TranscriptCreated) error {
	var errs []error
	for _, s := range f {
		errs = append(errs, s.PublishTranscriptCreated(ctx, ev))
	}
	return errors.Join(errs...)
}

func (f Fanout) PublishSegmentUpdated(ctx context.Context, ev SegmentUpdated) error {
	var errs []error
	for _, s := range f {
		errs = append(errs, s.PublishSegmentUpdated(ctx, ev))
	}
	return errors.Join(errs...)
}

var (
	_ Sink = Fanout(nil)
	_ Sink = (*Publisher)(nil)
)
