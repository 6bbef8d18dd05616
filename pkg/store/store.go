// Package store persists proctoring sessions, violation events, and
// review flags in SQLite. Callers blank-import a database/sql driver
// registered under the name "sqlite".
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sensai-labs/go-proctor/pkg/violation"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("store: not found")

const sessionsSchema = `
CREATE TABLE IF NOT EXISTS sessions (
    id              TEXT PRIMARY KEY,
    started_at      TEXT NOT NULL,
    ended_at        TEXT,
    integrity_score REAL
);
`

const eventsSchema = `
CREATE TABLE IF NOT EXISTS events (
    id          TEXT PRIMARY KEY,
    session_id  TEXT NOT NULL,
    type        TEXT NOT NULL,
    severity    TEXT NOT NULL,
    confidence  REAL NOT NULL,
    description TEXT NOT NULL,
    evidence    TEXT,
    created_at  TEXT NOT NULL
);
`

const eventsIndex = `
CREATE INDEX IF NOT EXISTS idx_events_session
ON events(session_id, created_at);
`

const flagsSchema = `
CREATE TABLE IF NOT EXISTS flags (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id  TEXT NOT NULL,
    type        TEXT NOT NULL,
    severity    TEXT NOT NULL,
    confidence  REAL NOT NULL,
    evidence    TEXT,
    analysis    TEXT,
    status      TEXT NOT NULL DEFAULT 'pending',
    created_at  TEXT NOT NULL,
    reviewed_at TEXT,
    review_note TEXT
);
`

const flagsIndex = `
CREATE INDEX IF NOT EXISTS idx_flags_status
ON flags(status, severity);
`

// timeLayout fixes the fractional-second width so that lexical order
// of stored timestamps matches chronological order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Integrity score deductions per violation severity. A session starts
// at 100 and loses points per recorded event, floored at zero.
const (
	deductCritical = 15
	deductHigh     = 10
	deductMedium   = 5
	deductLow      = 2
)

// busyRetries bounds retry attempts when SQLite reports a busy or
// locked database under concurrent writes.
const busyRetries = 4

// Store wraps the SQLite database.
type Store struct {
	db *sql.DB
}

// New initializes the schema on an open database.
func New(db *sql.DB) (*Store, error) {
	for _, stmt := range []string{sessionsSchema, eventsSchema, eventsIndex, flagsSchema, flagsIndex} {
		if _, err := db.Exec(stmt); err != nil {
			return nil, fmt.Errorf("init schema: %w", err)
		}
	}
	return &Store{db: db}, nil
}

// Open opens (or creates) the database at path and initializes it.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s, err := New(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Session is one persisted proctoring session.
type Session struct {
	ID             string     `json:"id"`
	StartedAt      time.Time  `json:"started_at"`
	EndedAt        *time.Time `json:"ended_at,omitempty"`
	IntegrityScore *float64   `json:"integrity_score,omitempty"`
}

// CreateSession records a session start. Re-creating an existing id is
// a no-op, so reconnecting clients can open their session blindly.
func (s *Store) CreateSession(ctx context.Context, id string, startedAt time.Time) error {
	_, err := s.execRetry(ctx,
		`INSERT OR IGNORE INTO sessions (id, started_at) VALUES (?, ?)`,
		id, storeTime(startedAt))
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

// EndSession closes a session and stamps its integrity score, computed
// from the severity of the events recorded against it. Ending an
// unknown or already-ended session returns ErrNotFound.
func (s *Store) EndSession(ctx context.Context, id string, endedAt time.Time) (float64, error) {
	counts, err := s.eventSeverityCounts(ctx, id)
	if err != nil {
		return 0, err
	}
	score := ScoreFromCounts(counts)

	res, err := s.execRetry(ctx,
		`UPDATE sessions SET ended_at = ?, integrity_score = ? WHERE id = ? AND ended_at IS NULL`,
		storeTime(endedAt), score, id)
	if err != nil {
		return 0, fmt.Errorf("end session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, ErrNotFound
	}
	return score, nil
}

// GetSession fetches one session.
func (s *Store) GetSession(ctx context.Context, id string) (Session, error) {
	var (
		sess    Session
		started string
		ended   sql.NullString
		score   sql.NullFloat64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, started_at, ended_at, integrity_score FROM sessions WHERE id = ?`, id).
		Scan(&sess.ID, &started, &ended, &score)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, ErrNotFound
	}
	if err != nil {
		return Session{}, fmt.Errorf("get session: %w", err)
	}

	if sess.StartedAt, err = parseTime(started); err != nil {
		return Session{}, err
	}
	if ended.Valid {
		t, err := parseTime(ended.String)
		if err != nil {
			return Session{}, err
		}
		sess.EndedAt = &t
	}
	if score.Valid {
		v := score.Float64
		sess.IntegrityScore = &v
	}
	return sess, nil
}

// ListSessions returns the most recent sessions.
func (s *Store) ListSessions(ctx context.Context, limit int) ([]Session, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM sessions ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sessions := make([]Session, 0, len(ids))
	for _, id := range ids {
		sess, err := s.GetSession(ctx, id)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	return sessions, nil
}

// ScoreFromCounts converts per-severity event counts into the 100-point
// session integrity score.
func ScoreFromCounts(counts map[violation.Severity]int) float64 {
	score := 100.0
	score -= float64(counts[violation.SeverityCritical] * deductCritical)
	score -= float64(counts[violation.SeverityHigh] * deductHigh)
	score -= float64(counts[violation.SeverityMedium] * deductMedium)
	score -= float64(counts[violation.SeverityLow] * deductLow)
	if score < 0 {
		score = 0
	}
	return score
}

func (s *Store) eventSeverityCounts(ctx context.Context, sessionID string) (map[violation.Severity]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT severity, COUNT(*) FROM events WHERE session_id = ? GROUP BY severity`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("count events: %w", err)
	}
	defer rows.Close()

	counts := make(map[violation.Severity]int)
	for rows.Next() {
		var sev string
		var n int
		if err := rows.Scan(&sev, &n); err != nil {
			return nil, err
		}
		counts[violation.Severity(sev)] = n
	}
	return counts, rows.Err()
}

// execRetry runs a write, retrying with linear backoff while SQLite
// reports the database busy or locked.
func (s *Store) execRetry(ctx context.Context, query string, args ...any) (sql.Result, error) {
	var res sql.Result
	var err error
	for attempt := 0; ; attempt++ {
		res, err = s.db.ExecContext(ctx, query, args...)
		if err == nil || !isBusy(err) || attempt >= busyRetries {
			return res, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(attempt+1) * 100 * time.Millisecond):
		}
	}
}

func isBusy(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "locked") || strings.Contains(msg, "busy")
}

func storeTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse stored time %q: %w", s, err)
	}
	return t, nil
}
