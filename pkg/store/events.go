package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/sensai-labs/go-proctor/pkg/pipeline"
	"github.com/sensai-labs/go-proctor/pkg/violation"
)

// The store doubles as a pipeline sink so emitted violations land in
// the events table directly.
var _ pipeline.Sink = (*Store)(nil)

// Emit implements pipeline.Sink.
func (s *Store) Emit(ctx context.Context, e violation.Event) error {
	return s.InsertEvent(ctx, e)
}

// InsertEvent records one finalized violation event.
func (s *Store) InsertEvent(ctx context.Context, e violation.Event) error {
	evidence, err := marshalEvidence(e.Evidence)
	if err != nil {
		return err
	}
	_, err = s.execRetry(ctx, `
		INSERT INTO events (id, session_id, type, severity, confidence, description, evidence, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.SessionID, string(e.Type), string(e.Severity),
		e.Confidence, e.Description, evidence, storeTime(e.Timestamp))
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// InsertEvents records a batch of events in one transaction.
func (s *Store) InsertEvents(ctx context.Context, events []violation.Event) error {
	if len(events) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin batch: %w", err)
	}
	defer tx.Rollback()

	for _, e := range events {
		evidence, err := marshalEvidence(e.Evidence)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO events (id, session_id, type, severity, confidence, description, evidence, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			e.ID, e.SessionID, string(e.Type), string(e.Severity),
			e.Confidence, e.Description, evidence, storeTime(e.Timestamp))
		if err != nil {
			return fmt.Errorf("insert event %s: %w", e.ID, err)
		}
	}
	return tx.Commit()
}

// EventsForSession returns a session's events, newest first.
func (s *Store) EventsForSession(ctx context.Context, sessionID string, limit int) ([]violation.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, type, severity, confidence, description, evidence, created_at
		FROM events WHERE session_id = ?
		ORDER BY created_at DESC LIMIT ?`,
		sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []violation.Event
	for rows.Next() {
		var (
			e        violation.Event
			typ      string
			sev      string
			evidence sql.NullString
			created  string
		)
		if err := rows.Scan(&e.ID, &e.SessionID, &typ, &sev, &e.Confidence, &e.Description, &evidence, &created); err != nil {
			return nil, err
		}
		e.Type = violation.Type(typ)
		e.Severity = violation.Severity(sev)
		if e.Timestamp, err = parseTime(created); err != nil {
			return nil, err
		}
		if e.Evidence, err = unmarshalEvidence(evidence); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func marshalEvidence(m map[string]any) (any, error) {
	if len(m) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal evidence: %w", err)
	}
	return string(b), nil
}

func unmarshalEvidence(s sql.NullString) (map[string]any, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(s.String), &m); err != nil {
		return nil, fmt.Errorf("unmarshal evidence: %w", err)
	}
	return m, nil
}
