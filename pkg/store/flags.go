package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sensai-labs/go-proctor/pkg/violation"
)

// Flag review statuses.
const (
	FlagPending   = "pending"
	FlagReviewed  = "reviewed"
	FlagDismissed = "dismissed"
)

// Flag is a finding queued for human review. Unlike events, which are
// the raw pipeline output, flags carry review state.
type Flag struct {
	ID         int64              `json:"id"`
	SessionID  string             `json:"session_id"`
	Type       violation.Type     `json:"type"`
	Severity   violation.Severity `json:"severity"`
	Confidence float64            `json:"confidence"`
	Evidence   map[string]any     `json:"evidence,omitempty"`
	Analysis   string             `json:"analysis,omitempty"`
	Status     string             `json:"status"`
	CreatedAt  time.Time          `json:"created_at"`
	ReviewedAt *time.Time         `json:"reviewed_at,omitempty"`
	ReviewNote string             `json:"review_note,omitempty"`
}

// FlagFromCandidate builds a pending flag from a classifier or
// analyzer candidate.
func FlagFromCandidate(sessionID string, at time.Time, c violation.Candidate) Flag {
	return Flag{
		SessionID:  sessionID,
		Type:       c.Type,
		Severity:   c.Severity,
		Confidence: c.Confidence,
		Evidence:   c.Evidence,
		Analysis:   c.Description,
		Status:     FlagPending,
		CreatedAt:  at,
	}
}

// InsertFlag stores a flag and returns its assigned id. An empty
// status defaults to pending.
func (s *Store) InsertFlag(ctx context.Context, f Flag) (int64, error) {
	if f.Status == "" {
		f.Status = FlagPending
	}
	evidence, err := marshalEvidence(f.Evidence)
	if err != nil {
		return 0, err
	}
	res, err := s.execRetry(ctx, `
		INSERT INTO flags (session_id, type, severity, confidence, evidence, analysis, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		f.SessionID, string(f.Type), string(f.Severity),
		f.Confidence, evidence, f.Analysis, f.Status, storeTime(f.CreatedAt))
	if err != nil {
		return 0, fmt.Errorf("insert flag: %w", err)
	}
	return res.LastInsertId()
}

// GetFlag fetches one flag by id.
func (s *Store) GetFlag(ctx context.Context, id int64) (Flag, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, session_id, type, severity, confidence, evidence, analysis, status, created_at, reviewed_at, review_note
		FROM flags WHERE id = ?`, id)
	f, err := scanFlag(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Flag{}, ErrNotFound
	}
	if err != nil {
		return Flag{}, fmt.Errorf("get flag: %w", err)
	}
	return f, nil
}

// FlagFilter narrows ListFlags. Zero values match everything.
type FlagFilter struct {
	SessionID string
	Status    string
	Severity  violation.Severity
	Limit     int
	Offset    int
}

// ListFlags returns flags matching the filter, newest first.
func (s *Store) ListFlags(ctx context.Context, filter FlagFilter) ([]Flag, error) {
	query := `
		SELECT id, session_id, type, severity, confidence, evidence, analysis, status, created_at, reviewed_at, review_note
		FROM flags WHERE 1=1`
	var args []any
	if filter.SessionID != "" {
		query += ` AND session_id = ?`
		args = append(args, filter.SessionID)
	}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, filter.Status)
	}
	if filter.Severity != "" {
		query += ` AND severity = ?`
		args = append(args, string(filter.Severity))
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	query += ` ORDER BY created_at DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list flags: %w", err)
	}
	defer rows.Close()

	var flags []Flag
	for rows.Next() {
		f, err := scanFlag(rows)
		if err != nil {
			return nil, err
		}
		flags = append(flags, f)
	}
	return flags, rows.Err()
}

// ReviewFlag transitions a flag to a review status and records the
// reviewer's note. Unknown ids return ErrNotFound.
func (s *Store) ReviewFlag(ctx context.Context, id int64, status, note string, at time.Time) error {
	if status != FlagReviewed && status != FlagDismissed {
		return fmt.Errorf("store: invalid review status %q", status)
	}
	res, err := s.execRetry(ctx, `
		UPDATE flags SET status = ?, review_note = ?, reviewed_at = ? WHERE id = ?`,
		status, note, storeTime(at), id)
	if err != nil {
		return fmt.Errorf("review flag: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// scanner covers both sql.Row and sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanFlag(row scanner) (Flag, error) {
	var (
		f        Flag
		typ      string
		sev      string
		evidence sql.NullString
		analysis sql.NullString
		created  string
		reviewed sql.NullString
		note     sql.NullString
	)
	err := row.Scan(&f.ID, &f.SessionID, &typ, &sev, &f.Confidence,
		&evidence, &analysis, &f.Status, &created, &reviewed, &note)
	if err != nil {
		return Flag{}, err
	}
	f.Type = violation.Type(typ)
	f.Severity = violation.Severity(sev)
	f.Analysis = analysis.String
	f.ReviewNote = note.String
	if f.CreatedAt, err = parseTime(created); err != nil {
		return Flag{}, err
	}
	if reviewed.Valid {
		t, err := parseTime(reviewed.String)
		if err != nil {
			return Flag{}, err
		}
		f.ReviewedAt = &t
	}
	if f.Evidence, err = unmarshalEvidence(evidence); err != nil {
		return Flag{}, err
	}
	return f, nil
}
