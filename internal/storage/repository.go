// Package storage persists transcripts with a content hash and an audit trail.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/ciricc/court-transcriber/internal/model/transcript"
)

var (
	// ErrNotFound is returned for unknown transcripts and for rows whose stored
	// hash no longer matches their content.
	ErrNotFound        = errors.New("transcript not found")
	ErrSegmentNotFound = errors.New("segment not found")
)

const (
	ActionCreate        = "create"
	ActionUpdateSegment = "update_segment"
	ActionDelete        = "delete"

	SystemUser = "system"
)

// Roles that see full metadata in listings.
var privilegedRoles = []string{"judge", "admin"}

type ListOptions struct {
	CaseID string
	Role   string
	Limit  int
	Offset int
}

type AuditEntry struct {
	ID           string
	TranscriptID string
	Action       string
	User         string
	Timestamp    time.Time
	Details      string
}

// Repository defines transcript data access.
type Repository interface {
	// Store saves a complete transcript under id.
	Store(ctx context.Context, id string, t *transcript.Transcript) error

	// Get loads a transcript after verifying its content hash.
	Get(ctx context.Context, id string) (*transcript.Transcript, error)

	// UpdateSegmentText replaces the text of one segment.
	UpdateSegmentText(ctx context.Context, transcriptID, segmentID, text, user string) error

	Delete(ctx context.Context, id, user string) error

	// List returns summaries ordered by creation time, newest first.
	List(ctx context.Context, opts ListOptions) ([]transcript.Summary, error)

	AuditLog(ctx context.Context, transcriptID string) ([]AuditEntry, error)
}
