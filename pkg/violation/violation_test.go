package violation

import (
	"testing"
	"time"
)

func TestSeverity_Rank(t *testing.T) {
	ordered := []Severity{SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical}
	for i := 1; i < len(ordered); i++ {
		if ordered[i-1].Rank() >= ordered[i].Rank() {
			t.Errorf("%s should rank below %s", ordered[i-1], ordered[i])
		}
	}
	if Severity("bogus").Rank() >= SeverityLow.Rank() {
		t.Error("unknown severity should rank below low")
	}
}

func TestType_DefaultSeverity(t *testing.T) {
	tests := []struct {
		typ  Type
		want Severity
	}{
		{FaceMultiple, SeverityCritical},
		{MultiplePeople, SeverityCritical},
		{FaceAbsent, SeverityHigh},
		{UnauthorizedObjectGrip, SeverityHigh},
		{GazeDeviation, SeverityMedium},
		{ProlongedEyeClosure, SeverityMedium},
		{TypingAnomaly, SeverityMedium},
		{PasteBurst, SeverityMedium},
		{RapidEyeMovement, SeverityLow},
		{AudioAnomaly, SeverityLow},
		{Type("unknown"), SeverityLow},
	}
	for _, tt := range tests {
		if got := tt.typ.DefaultSeverity(); got != tt.want {
			t.Errorf("%s.DefaultSeverity() = %s, want %s", tt.typ, got, tt.want)
		}
	}
}

func TestNewEvent(t *testing.T) {
	ts := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	c := Candidate{
		Type:        GazeDeviation,
		Severity:    SeverityMedium,
		Confidence:  0.72,
		Description: "gaze deviated from baseline",
		Evidence:    map[string]any{"deviation": 0.31},
	}

	e := NewEvent("sess-1", ts, c)
	if e.ID == "" {
		t.Error("expected generated id")
	}
	if e.SessionID != "sess-1" || e.Type != GazeDeviation || e.Severity != SeverityMedium {
		t.Errorf("event fields = %q/%q/%q", e.SessionID, e.Type, e.Severity)
	}
	if !e.Timestamp.Equal(ts) {
		t.Errorf("timestamp = %v, want %v", e.Timestamp, ts)
	}
	if e.Confidence != 0.72 || e.Description == "" {
		t.Errorf("confidence/description not carried over: %v %q", e.Confidence, e.Description)
	}

	if other := NewEvent("sess-1", ts, c); other.ID == e.ID {
		t.Error("expected unique ids per event")
	}
}
