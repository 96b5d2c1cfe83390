package diarization

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/ciricc/court-transcriber/internal/audio"
	"github.com/ciricc/court-transcriber/internal/model/segment"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeRunner struct {
	available bool
	turns     []RawTurn
	err       error
	calls     int
	sawFile   bool
}

func (f *fakeRunner) Available() bool { return f.available }

func (f *fakeRunner) Run(_ context.Context, wavPath string) ([]RawTurn, error) {
	f.calls++
	_, err := os.Stat(wavPath)
	f.sawFile = err == nil
	return f.turns, f.err
}

func seconds(n int) audio.Buffer {
	return audio.Buffer{Samples: make([]float32, n*1000), SampleRate: 1000}
}

func TestRoleForSpeaker(t *testing.T) {
	cases := map[string]string{
		"SPEAKER_00":  "Speaker 00",
		"SPEAKER_0":   RoleJudge,
		"SPEAKER_1":   RolePlaintiff,
		"SPEAKER_2":   RoleDefense,
		"SPEAKER_3":   "Speaker 3",
		"spk_a_b_1":   RolePlaintiff,
		"0":           RoleJudge,
		"nounderline": "Speaker nounderline",
	}
	for label, want := range cases {
		assert.Equal(t, want, RoleForSpeaker(label), label)
	}
}

func TestSyntheticTurnsNinetyFiveSeconds(t *testing.T) {
	turns := SyntheticTurns(seconds(95))
	require.Len(t, turns, 9)

	for i, tr := range turns {
		assert.Equal(t, time.Duration(i)*10*time.Second, tr.Start)
		assert.Equal(t, time.Duration(i+1)*10*time.Second, tr.End)
		assert.Equal(t, syntheticRoles[i%4], tr.Speaker)
	}
	assert.Equal(t, RoleJudge, turns[0].Speaker)
	assert.Equal(t, RoleWitness, turns[3].Speaker)
	assert.Equal(t, RoleJudge, turns[4].Speaker)
}

func TestSyntheticTurnsShortAudio(t *testing.T) {
	assert.Empty(t, SyntheticTurns(seconds(9)))
	assert.Len(t, SyntheticTurns(seconds(10)), 1)
}

func TestSyntheticTurnsUnknownDuration(t *testing.T) {
	turns := SyntheticTurns(audio.Buffer{Samples: make([]float32, 10)})
	assert.Equal(t, []segment.Turn{
		{Start: 0, End: 30 * time.Second, Speaker: RoleJudge},
		{Start: 30 * time.Second, End: 60 * time.Second, Speaker: RolePlaintiff},
		{Start: 60 * time.Second, End: 90 * time.Second, Speaker: RoleDefense},
	}, turns)
}

func TestModeResolution(t *testing.T) {
	cases := []struct {
		name string
		opts []Option
		want Mode
	}{
		{"all present", []Option{WithToken("hf"), WithRunner(&fakeRunner{available: true})}, ModeModel},
		{"no token", []Option{WithToken(""), WithRunner(&fakeRunner{available: true})}, ModeFallback},
		{"runner unavailable", []Option{WithToken("hf"), WithRunner(&fakeRunner{})}, ModeFallback},
		{"disabled", []Option{WithEnabled(false), WithToken("hf"), WithRunner(&fakeRunner{available: true})}, ModeFallback},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, New(discardLogger(), tc.opts...).Mode())
		})
	}
}

func TestDiarizeModelMode(t *testing.T) {
	runner := &fakeRunner{
		available: true,
		turns: []RawTurn{
			{Start: 5, End: 9.5, Speaker: "SPEAKER_1"},
			{Start: 0, End: 5, Speaker: "SPEAKER_0"},
			{Start: 9.5, End: 9.5, Speaker: "SPEAKER_2"},
		},
	}
	e := New(discardLogger(), WithToken("hf"), WithRunner(runner))

	turns, err := e.Diarize(context.Background(), seconds(10))
	require.NoError(t, err)
	assert.True(t, runner.sawFile)
	assert.Equal(t, []segment.Turn{
		{Start: 5 * time.Second, End: 9500 * time.Millisecond, Speaker: RolePlaintiff},
		{Start: 0, End: 5 * time.Second, Speaker: RoleJudge},
	}, turns)
}

func TestDiarizeRuntimeFailureFallsBackPerCall(t *testing.T) {
	runner := &fakeRunner{available: true, err: errors.New("cuda out of memory")}
	e := New(discardLogger(), WithToken("hf"), WithRunner(runner))

	turns, err := e.Diarize(context.Background(), seconds(25))
	require.ErrorIs(t, err, ErrDegraded)
	assert.Equal(t, SyntheticTurns(seconds(25)), turns)

	runner.err = nil
	runner.turns = []RawTurn{{Start: 0, End: 1, Speaker: "SPEAKER_2"}}
	turns, err = e.Diarize(context.Background(), seconds(25))
	require.NoError(t, err)
	require.Len(t, turns, 1)
	assert.Equal(t, RoleDefense, turns[0].Speaker)
	assert.Equal(t, 2, runner.calls)
	assert.Equal(t, ModeModel, e.Mode())
}

func TestDiarizeFallbackModeNeverCallsRunner(t *testing.T) {
	runner := &fakeRunner{}
	e := New(discardLogger(), WithToken("hf"), WithRunner(runner))

	turns, err := e.Diarize(context.Background(), seconds(95))
	require.NoError(t, err)
	assert.Len(t, turns, 9)
	assert.Zero(t, runner.calls)
}

type closingRunner struct {
	fakeRunner
	closed bool
}

func (c *closingRunner) Close() error {
	c.closed = true
	return nil
}

func TestEngineCloseReleasesRunner(t *testing.T) {
	runner := &closingRunner{}
	e := New(discardLogger(), WithToken("hf"), WithRunner(runner))
	require.NoError(t, e.Close())
	assert.True(t, runner.closed)

	assert.NoError(t, New(discardLogger(), WithRunner(&fakeRunner{})).Close())
}
