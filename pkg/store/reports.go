package store

import (
	"context"
	"fmt"
	"time"

	"github.com/sensai-labs/go-proctor/pkg/violation"
)

// Timeline entry kinds.
const (
	KindEvent = "event"
	KindFlag  = "flag"
)

// TimelineEntry is one item in a session's merged event/flag history.
type TimelineEntry struct {
	Timestamp   time.Time          `json:"timestamp"`
	Kind        string             `json:"kind"`
	Type        violation.Type     `json:"type"`
	Severity    violation.Severity `json:"severity"`
	Confidence  float64            `json:"confidence"`
	Description string             `json:"description,omitempty"`
}

// Timeline merges a session's events and flags into one reverse
// chronological view.
func (s *Store) Timeline(ctx context.Context, sessionID string, limit int) ([]TimelineEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT created_at, 'event' AS kind, type, severity, confidence, description
		FROM events WHERE session_id = ?
		UNION ALL
		SELECT created_at, 'flag', type, severity, confidence, COALESCE(analysis, '')
		FROM flags WHERE session_id = ?
		ORDER BY created_at DESC LIMIT ?`,
		sessionID, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("query timeline: %w", err)
	}
	defer rows.Close()

	var entries []TimelineEntry
	for rows.Next() {
		var (
			e       TimelineEntry
			created string
			typ     string
			sev     string
		)
		if err := rows.Scan(&created, &e.Kind, &typ, &sev, &e.Confidence, &e.Description); err != nil {
			return nil, err
		}
		e.Type = violation.Type(typ)
		e.Severity = violation.Severity(sev)
		if e.Timestamp, err = parseTime(created); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// DashboardStats summarizes review workload across all sessions.
type DashboardStats struct {
	TotalSessions     int            `json:"total_sessions"`
	ActiveSessions    int            `json:"active_sessions"`
	TotalEvents       int            `json:"total_events"`
	TotalFlags        int            `json:"total_flags"`
	PendingFlags      int            `json:"pending_flags"`
	HighSeverityFlags int            `json:"high_severity_flags"`
	FlagsByType       map[string]int `json:"flags_by_type"`
	RecentFlags       []Flag         `json:"recent_flags"`
}

// Dashboard computes the review dashboard snapshot.
func (s *Store) Dashboard(ctx context.Context) (DashboardStats, error) {
	var stats DashboardStats

	singles := []struct {
		query string
		dest  *int
	}{
		{`SELECT COUNT(*) FROM sessions`, &stats.TotalSessions},
		{`SELECT COUNT(*) FROM sessions WHERE ended_at IS NULL`, &stats.ActiveSessions},
		{`SELECT COUNT(*) FROM events`, &stats.TotalEvents},
		{`SELECT COUNT(*) FROM flags`, &stats.TotalFlags},
		{`SELECT COUNT(*) FROM flags WHERE status = 'pending'`, &stats.PendingFlags},
		{`SELECT COUNT(*) FROM flags WHERE severity IN ('high', 'critical')`, &stats.HighSeverityFlags},
	}
	for _, q := range singles {
		if err := s.db.QueryRowContext(ctx, q.query).Scan(q.dest); err != nil {
			return DashboardStats{}, fmt.Errorf("dashboard count: %w", err)
		}
	}

	rows, err := s.db.QueryContext(ctx, `SELECT type, COUNT(*) FROM flags GROUP BY type`)
	if err != nil {
		return DashboardStats{}, fmt.Errorf("dashboard types: %w", err)
	}
	defer rows.Close()

	stats.FlagsByType = make(map[string]int)
	for rows.Next() {
		var typ string
		var n int
		if err := rows.Scan(&typ, &n); err != nil {
			return DashboardStats{}, err
		}
		stats.FlagsByType[typ] = n
	}
	if err := rows.Err(); err != nil {
		return DashboardStats{}, err
	}

	if stats.RecentFlags, err = s.ListFlags(ctx, FlagFilter{Limit: 10}); err != nil {
		return DashboardStats{}, err
	}
	return stats, nil
}
