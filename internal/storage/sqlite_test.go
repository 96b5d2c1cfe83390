package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/ciricc/court-transcriber/internal/model/transcript"
	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()

	repo, err := OpenSQLite(
		context.Background(),
		filepath.Join(t.TempDir(), "transcripts.db"),
		slog.New(slog.NewTextHandler(io.Discard, nil)),
	)
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	clock := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	repo.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	return repo
}

func sampleTranscript(id, caseID string) *transcript.Transcript {
	t := &transcript.Transcript{
		ID: id,
		Segments: []transcript.Segment{
			{ID: "s1", Speaker: "Judge", Text: "Court is in session.", StartTime: 0, EndTime: 4.5, Confidence: 0.91},
			{ID: "s2", Speaker: "Advocate (Plaintiff)", Text: "Thank you, Your Honor.", StartTime: 4.5, EndTime: 7, Confidence: 0.87},
			{ID: "s3", Speaker: "Judge", Text: "Proceed.", StartTime: 7, EndTime: 8.25, Confidence: 0.95},
		},
		Metadata: transcript.Metadata{
			CreatedAt:         time.Date(2024, 3, 1, 8, 59, 0, 0, time.UTC),
			SourceFile:        "hearing.wav",
			ProcessingSeconds: 12.5,
			Model:             "whisper-base",
			Device:            "cpu",
			SpeakersDetected:  2,
		},
		Status: transcript.StatusSuccess,
	}
	if caseID != "" {
		t.Metadata.CaseID = lo.ToPtr(caseID)
		t.CaseDetails = &transcript.CaseDetails{CaseID: caseID, Title: "Case #" + caseID}
	}
	return t
}

func TestStoreGetRoundTrip(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	in := sampleTranscript("t1", "C-42")
	require.NoError(t, repo.Store(ctx, "t1", in))

	out, err := repo.Get(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, in, out)
	for i := range in.Segments {
		assert.Equal(t, in.Segments[i].Text, out.Segments[i].Text)
		assert.Equal(t, in.Segments[i].Speaker, out.Segments[i].Speaker)
	}
}

func TestGetUnknown(t *testing.T) {
	repo := newTestRepo(t)
	_, err := repo.Get(context.Background(), "nope")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestGetTamperedIsNotFound(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Store(ctx, "t1", sampleTranscript("t1", "")))

	_, err := repo.db.ExecContext(ctx,
		`UPDATE transcripts SET data = replace(data, 'Proceed.', 'Dismissed.') WHERE id = ?`, "t1")
	require.NoError(t, err)

	_, err = repo.Get(ctx, "t1")
	require.ErrorIs(t, err, ErrNotFound)

	err = repo.UpdateSegmentText(ctx, "t1", "s1", "edited", "clerk")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestStoreDuplicateID(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Store(ctx, "t1", sampleTranscript("t1", "")))
	require.Error(t, repo.Store(ctx, "t1", sampleTranscript("t1", "")))
}

func TestUpdateSegmentText(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Store(ctx, "t1", sampleTranscript("t1", "")))
	require.NoError(t, repo.UpdateSegmentText(ctx, "t1", "s2", "Thank you, Your Honour.", "clerk"))

	out, err := repo.Get(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "Thank you, Your Honour.", out.Segments[1].Text)
	assert.Equal(t, "Advocate (Plaintiff)", out.Segments[1].Speaker)
	assert.Equal(t, 4.5, out.Segments[1].StartTime)
	assert.Equal(t, "Court is in session.", out.Segments[0].Text)

	require.ErrorIs(t, repo.UpdateSegmentText(ctx, "t1", "missing", "x", "clerk"), ErrSegmentNotFound)
	require.ErrorIs(t, repo.UpdateSegmentText(ctx, "missing", "s1", "x", "clerk"), ErrNotFound)
}

func TestAuditTrail(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Store(ctx, "t1", sampleTranscript("t1", "")))
	require.NoError(t, repo.UpdateSegmentText(ctx, "t1", "s1", "All rise.", "clerk"))
	require.NoError(t, repo.Delete(ctx, "t1", "admin"))

	entries, err := repo.AuditLog(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, entries, 3)

	assert.Equal(t, ActionCreate, entries[0].Action)
	assert.Equal(t, SystemUser, entries[0].User)
	assert.Equal(t, "Created transcript with 3 segments", entries[0].Details)

	assert.Equal(t, ActionUpdateSegment, entries[1].Action)
	assert.Equal(t, "clerk", entries[1].User)
	assert.Equal(t, "Updated segment s1", entries[1].Details)

	assert.Equal(t, ActionDelete, entries[2].Action)
	assert.Equal(t, "admin", entries[2].User)
	assert.True(t, entries[2].Timestamp.After(entries[0].Timestamp))
}

func TestDelete(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Store(ctx, "t1", sampleTranscript("t1", "")))
	require.NoError(t, repo.Delete(ctx, "t1", "admin"))

	_, err := repo.Get(ctx, "t1")
	require.ErrorIs(t, err, ErrNotFound)
	require.ErrorIs(t, repo.Delete(ctx, "t1", "admin"), ErrNotFound)
}

func TestList(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	for i := range 5 {
		caseID := "C-1"
		if i%2 == 1 {
			caseID = "C-2"
		}
		id := fmt.Sprintf("t%d", i)
		require.NoError(t, repo.Store(ctx, id, sampleTranscript(id, caseID)))
	}

	all, err := repo.List(ctx, ListOptions{Role: "clerk"})
	require.NoError(t, err)
	require.Len(t, all, 5)
	assert.Equal(t, "t4", all[0].ID)
	assert.Equal(t, "t0", all[4].ID)
	assert.Equal(t, 3, all[0].SegmentsCount)
	assert.Equal(t, 2, all[0].SpeakersCount)
	assert.Equal(t, 8.25, all[0].DurationSeconds)
	assert.Nil(t, all[0].Metadata)
	assert.Nil(t, all[0].CaseDetails)

	page, err := repo.List(ctx, ListOptions{CaseID: "C-1", Role: "judge", Limit: 2, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "t2", page[0].ID)
	assert.Equal(t, "t0", page[1].ID)
	assert.Equal(t, "C-1", page[0].CaseID)
	require.NotNil(t, page[0].Metadata)
	assert.Equal(t, "whisper-base", page[0].Metadata.Model)
	require.NotNil(t, page[0].CaseDetails)
	assert.Equal(t, "Case #C-1", page[0].CaseDetails.Title)
}

func TestListSkipsTampered(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Store(ctx, "t1", sampleTranscript("t1", "C-1")))
	require.NoError(t, repo.Store(ctx, "t2", sampleTranscript("t2", "C-1")))

	_, err := repo.db.ExecContext(ctx,
		`UPDATE transcripts SET data = replace(data, '"speakers_detected":2', '"speakers_detected":99') WHERE id = ?`, "t1")
	require.NoError(t, err)

	_, err = repo.Get(ctx, "t1")
	require.ErrorIs(t, err, ErrNotFound)

	for _, role := range []string{"judge", "clerk"} {
		list, err := repo.List(ctx, ListOptions{Role: role})
		require.NoError(t, err)
		require.Len(t, list, 1, role)
		assert.Equal(t, "t2", list[0].ID)
	}
}
