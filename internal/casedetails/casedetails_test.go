package casedetails

import (
	"context"
	"testing"
	"time"

	"github.com/ciricc/court-transcriber/internal/model/transcript"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStubLookup(t *testing.T) {
	s := NewStub()
	s.now = func() time.Time { return time.Date(2024, 5, 17, 15, 0, 0, 0, time.UTC) }

	d, err := s.Lookup(context.Background(), "CR-2024-118")
	require.NoError(t, err)
	assert.Equal(t, &transcript.CaseDetails{
		CaseID: "CR-2024-118",
		Title:  "Case #CR-2024-118",
		Court:  "District Court",
		Judge:  "Hon. Judge Smith",
		Date:   "2024-05-17",
	}, d)
}

func TestStubLookupEmpty(t *testing.T) {
	_, err := NewStub().Lookup(context.Background(), "")
	require.ErrorIs(t, err, ErrEmptyCaseID)
}
