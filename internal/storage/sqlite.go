package storage

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ciricc/court-transcriber/internal/model/transcript"
	"github.com/google/uuid"
	"github.com/samber/lo"
	_ "modernc.org/sqlite"
)

const timeLayout = "2006-01-02T15:04:05.000000000Z"

const schema = `
CREATE TABLE IF NOT EXISTS transcripts (
	id TEXT PRIMARY KEY,
	data TEXT NOT NULL,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	case_id TEXT,
	hash TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS transcripts_case_id ON transcripts (case_id);
CREATE TABLE IF NOT EXISTS audit_log (
	id TEXT PRIMARY KEY,
	transcript_id TEXT NOT NULL,
	action TEXT NOT NULL,
	user TEXT NOT NULL,
	timestamp TEXT NOT NULL,
	details TEXT
);
`

type SQLiteRepository struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time
}

// OpenSQLite opens (creating if needed) the database at path and applies the schema.
func OpenSQLite(ctx context.Context, path string, logger *slog.Logger) (*SQLiteRepository, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	log := logger.With("component", "storage")
	log.Info("database initialized", "path", path)

	return &SQLiteRepository{
		db:     db,
		logger: log,
		now:    time.Now,
	}, nil
}

func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}

func contentHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func (r *SQLiteRepository) timestamp() string {
	return r.now().UTC().Format(timeLayout)
}

func caseIDOf(t *transcript.Transcript) *string {
	if t.CaseDetails != nil && t.CaseDetails.CaseID != "" {
		return &t.CaseDetails.CaseID
	}
	return t.Metadata.CaseID
}

func insertAudit(ctx context.Context, tx *sql.Tx, transcriptID, action, user, ts, details string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO audit_log (id, transcript_id, action, user, timestamp, details)
		VALUES (?, ?, ?, ?, ?, ?)
	`, uuid.NewString(), transcriptID, action, user, ts, details)
	if err != nil {
		return fmt.Errorf("failed to write audit log: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) Store(ctx context.Context, id string, t *transcript.Transcript) error {
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("failed to marshal transcript: %w", err)
	}
	ts := r.timestamp()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO transcripts (id, data, created_at, updated_at, case_id, hash)
		VALUES (?, ?, ?, ?, ?, ?)
	`, id, string(data), ts, ts, caseIDOf(t), contentHash(data)); err != nil {
		return fmt.Errorf("failed to store transcript: %w", err)
	}

	if err := insertAudit(ctx, tx, id, ActionCreate, SystemUser, ts,
		fmt.Sprintf("Created transcript with %d segments", len(t.Segments))); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	r.logger.InfoContext(ctx, "stored transcript", "id", id, "segments", len(t.Segments))
	return nil
}

func (r *SQLiteRepository) Get(ctx context.Context, id string) (*transcript.Transcript, error) {
	return r.get(ctx, r.db, id)
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (r *SQLiteRepository) get(ctx context.Context, q queryer, id string) (*transcript.Transcript, error) {
	var data, storedHash string
	err := q.QueryRowContext(ctx, `SELECT data, hash FROM transcripts WHERE id = ?`, id).Scan(&data, &storedHash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load transcript: %w", err)
	}

	if contentHash([]byte(data)) != storedHash {
		r.logger.ErrorContext(ctx, "integrity check failed", "id", id)
		return nil, ErrNotFound
	}

	var t transcript.Transcript
	if err := json.Unmarshal([]byte(data), &t); err != nil {
		return nil, fmt.Errorf("failed to unmarshal transcript: %w", err)
	}
	return &t, nil
}

func (r *SQLiteRepository) UpdateSegmentText(ctx context.Context, transcriptID, segmentID, text, user string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	t, err := r.get(ctx, tx, transcriptID)
	if err != nil {
		return err
	}

	idx := t.FindSegment(segmentID)
	if idx < 0 {
		return fmt.Errorf("%w: %s in transcript %s", ErrSegmentNotFound, segmentID, transcriptID)
	}
	t.Segments[idx].Text = text

	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("failed to marshal transcript: %w", err)
	}
	ts := r.timestamp()

	if _, err := tx.ExecContext(ctx, `
		UPDATE transcripts SET data = ?, updated_at = ?, hash = ? WHERE id = ?
	`, string(data), ts, contentHash(data), transcriptID); err != nil {
		return fmt.Errorf("failed to update transcript: %w", err)
	}

	if err := insertAudit(ctx, tx, transcriptID, ActionUpdateSegment, user, ts,
		fmt.Sprintf("Updated segment %s", segmentID)); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	r.logger.InfoContext(ctx, "updated segment", "transcript", transcriptID, "segment", segmentID, "user", user)
	return nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, id, user string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var exists string
	err = tx.QueryRowContext(ctx, `SELECT id FROM transcripts WHERE id = ?`, id).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}

	if err := insertAudit(ctx, tx, id, ActionDelete, user, r.timestamp(), "Transcript deleted"); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM transcripts WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete transcript: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	r.logger.InfoContext(ctx, "deleted transcript", "id", id, "user", user)
	return nil
}

func (r *SQLiteRepository) List(ctx context.Context, opts ListOptions) ([]transcript.Summary, error) {
	if opts.Limit <= 0 {
		opts.Limit = 10
	}
	opts.Offset = max(opts.Offset, 0)

	query := `SELECT id, data, hash, created_at, updated_at, case_id FROM transcripts`
	var args []any
	if opts.CaseID != "" {
		query += ` WHERE case_id = ?`
		args = append(args, opts.CaseID)
	}
	query += ` ORDER BY created_at DESC LIMIT ? OFFSET ?`
	args = append(args, opts.Limit, opts.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list transcripts: %w", err)
	}
	defer rows.Close()

	privileged := lo.Contains(privilegedRoles, opts.Role)

	var out []transcript.Summary
	for rows.Next() {
		var (
			id, data, storedHash, createdAt, updatedAt string
			caseID                                     sql.NullString
		)
		if err := rows.Scan(&id, &data, &storedHash, &createdAt, &updatedAt, &caseID); err != nil {
			return nil, err
		}

		if contentHash([]byte(data)) != storedHash {
			r.logger.ErrorContext(ctx, "integrity check failed", "id", id)
			continue
		}

		var t transcript.Transcript
		if err := json.Unmarshal([]byte(data), &t); err != nil {
			return nil, fmt.Errorf("failed to unmarshal transcript %s: %w", id, err)
		}

		s := transcript.Summary{
			ID:              id,
			CaseID:          caseID.String,
			SegmentsCount:   len(t.Segments),
			SpeakersCount:   len(t.Speakers()),
			DurationSeconds: t.Duration(),
		}
		s.CreatedAt, _ = time.Parse(timeLayout, createdAt)
		s.UpdatedAt, _ = time.Parse(timeLayout, updatedAt)

		if privileged {
			s.Metadata = &t.Metadata
			s.CaseDetails = t.CaseDetails
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) AuditLog(ctx context.Context, transcriptID string) ([]AuditEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, transcript_id, action, user, timestamp, COALESCE(details, '')
		FROM audit_log WHERE transcript_id = ? ORDER BY timestamp, rowid
	`, transcriptID)
	if err != nil {
		return nil, fmt.Errorf("failed to read audit log: %w", err)
	}
	defer rows.Close()

	var out []AuditEntry
	for rows.Next() {
		var (
			e  AuditEntry
			ts string
		)
		if err := rows.Scan(&e.ID, &e.TranscriptID, &e.Action, &e.User, &ts, &e.Details); err != nil {
			return nil, err
		}
		e.Timestamp, _ = time.Parse(timeLayout, ts)
		out = append(out, e)
	}
	return out, rows.Err()
}

var _ Repository = (*SQLiteRepository)(nil)
