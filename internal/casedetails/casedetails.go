// Package casedetails looks up court case information by case id.
package casedetails

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ciricc/court-transcriber/internal/model/transcript"
)

var ErrEmptyCaseID = errors.New("empty case id")

type Provider interface {
	Lookup(ctx context.Context, caseID string) (*transcript.CaseDetails, error)
}

// Stub answers every lookup with placeholder court data. It stands in for the
// court's case management system.
type Stub struct {
	now func() time.Time
}

func NewStub() *Stub {
	return &Stub{now: time.Now}
}

func (s *Stub) Lookup(_ context.Context, caseID string) (*transcript.CaseDetails, error) {
	if caseID == "" {
		return nil, ErrEmptyCaseID
	}
	return &transcript.CaseDetails{
		CaseID: caseID,
		Title:  fmt.Sprintf("Case #%s", caseID),
		Court:  "District Court",
		Judge:  "Hon. Judge Smith",
		Date:   s.now().Format(time.DateOnly),
	}, nil
}

var _ Provider = (*Stub)(nil)
