// Package violation defines the integrity violation taxonomy shared by
// the classifier, throttle, emitter, and storage layers. A Candidate is
// a classifier output still subject to throttling; an Event is the
// finalized record that survived it.
package violation

import (
	"time"

	"github.com/google/uuid"
)

// Type enumerates the violations the system can raise.
type Type string

// Visual pipeline violations.
const (
	FaceAbsent             Type = "face-absent"
	FaceMultiple           Type = "face-multiple"
	FaceMispositioned      Type = "face-mispositioned"
	FaceWrongSize          Type = "face-wrong-size"
	GazeDeviation          Type = "gaze-deviation"
	ProlongedEyeClosure    Type = "prolonged-eye-closure"
	RapidEyeMovement       Type = "rapid-eye-movement"
	MultiplePeople         Type = "multiple-people"
	UnauthorizedObjectGrip Type = "unauthorized-object-grip"
	Talking                Type = "talking"
)

// Behavioral and audio violations raised by the integrity and voice
// analyzers rather than the frame pipeline.
const (
	TypingAnomaly     Type = "typing-anomaly"
	PasteBurst        Type = "paste-burst"
	CompletionAnomaly Type = "completion-anomaly"
	AudioAnomaly      Type = "audio-anomaly"
)

// Severity grades how disruptive a violation is to exam integrity.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Rank returns an ordering for severities, low first. Unknown values
// rank below low.
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 0
	case SeverityMedium:
		return 1
	case SeverityHigh:
		return 2
	case SeverityCritical:
		return 3
	default:
		return -1
	}
}

// DefaultSeverity returns the severity a violation of this type carries
// when the reporter does not grade it itself. Classifier rules may
// escalate above this baseline.
func (t Type) DefaultSeverity() Severity {
	switch t {
	case FaceMultiple, MultiplePeople:
		return SeverityCritical
	case FaceAbsent, UnauthorizedObjectGrip:
		return SeverityHigh
	case FaceMispositioned, FaceWrongSize, GazeDeviation, ProlongedEyeClosure,
		Talking, TypingAnomaly, PasteBurst, CompletionAnomaly:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// Candidate is a single classifier finding for one frame. Candidates
// are value types, created by the classifier and consumed immediately
// by the throttle engine.
type Candidate struct {
	Type        Type
	Severity    Severity
	Confidence  float64
	Description string
	Evidence    map[string]any
}

// Event is the finalized violation record handed to sinks. Immutable
// once created.
type Event struct {
	ID          string         `json:"id"`
	SessionID   string         `json:"session_id,omitempty"`
	Type        Type           `json:"type"`
	Severity    Severity       `json:"severity"`
	Timestamp   time.Time      `json:"timestamp"`
	Description string         `json:"description"`
	Confidence  float64        `json:"confidence"`
	Evidence    map[string]any `json:"evidence,omitempty"`
}

// NewEvent finalizes a candidate into an event stamped with the frame
// time and a fresh identifier.
func NewEvent(sessionID string, ts time.Time, c Candidate) Event {
	return Event{
		ID:          uuid.NewString(),
		SessionID:   sessionID,
		Type:        c.Type,
		Severity:    c.Severity,
		Timestamp:   ts,
		Description: c.Description,
		Confidence:  c.Confidence,
		Evidence:    c.Evidence,
	}
}
