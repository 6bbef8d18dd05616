// Package protocol defines the WebSocket message types for the live
// proctoring socket. This package is shared between the server's live
// handler and the streaming client SDK.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/sensai-labs/go-proctor/pkg/calibration"
	"github.com/sensai-labs/go-proctor/pkg/landmarks"
	"github.com/sensai-labs/go-proctor/pkg/violation"
	"github.com/sensai-labs/go-proctor/pkg/voice"
)

// MessageType identifies the type of WebSocket message
type MessageType string

const (
	// Client → Server messages
	TypeFrame MessageType = "frame" // Landmark frame
	TypeAudio MessageType = "audio" // Microphone audio chunk
	TypeReset MessageType = "reset" // Restart calibration
	TypeEnd   MessageType = "end"   // Finish the session

	// Server → Client messages
	TypeCalibrating MessageType = "calibrating" // Warmup progress
	TypeCalibrated  MessageType = "calibrated"  // Baseline frozen
	TypeViolation   MessageType = "violation"   // Confirmed violation
	TypeSummary     MessageType = "summary"     // Session wrap-up
	TypeError       MessageType = "error"       // Request-level failure

	// Bidirectional
	TypePing MessageType = "ping" // Health check
	TypePong MessageType = "pong" // Health check response
)

// Message is the base wrapper for all WebSocket messages
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp int64           `json:"ts,omitempty"` // Unix milliseconds
	Data      json.RawMessage `json:"data,omitempty"`
}

// NewMessage creates a new message with the current timestamp
func NewMessage(msgType MessageType, data any) (*Message, error) {
	var rawData json.RawMessage
	if data != nil {
		var err error
		rawData, err = json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal message data: %w", err)
		}
	}

	return &Message{
		Type:      msgType,
		Timestamp: time.Now().UnixMilli(),
		Data:      rawData,
	}, nil
}

// ParseData unmarshals the message data into the provided struct
func (m *Message) ParseData(v any) error {
	if m.Data == nil {
		return nil
	}
	return json.Unmarshal(m.Data, v)
}

// Bytes returns the JSON-encoded message
func (m *Message) Bytes() ([]byte, error) {
	return json.Marshal(m)
}

// ParseMessage parses a JSON message from bytes
func ParseMessage(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}
	return &msg, nil
}

// =============================================================================
// Client → Server Message Types
// =============================================================================

// FrameData carries one landmark frame. The frame's own timestamp, not
// the envelope's, drives the server's temporal logic, so recorded
// streams replay identically to live ones.
type FrameData struct {
	Frame landmarks.Frame `json:"frame"`
}

// AudioData carries one microphone chunk for audio integrity analysis.
type AudioData struct {
	Format     string `json:"format"`      // "pcm16"
	SampleRate int    `json:"sample_rate"` // e.g. 16000
	Channels   int    `json:"channels"`    // 1 for mono
	Data       string `json:"data"`        // base64 encoded
}

// =============================================================================
// Server → Client Message Types
// =============================================================================

// CalibrationData reports warmup progress. Remaining counts the
// face-bearing frames still needed before the baseline freezes.
type CalibrationData struct {
	Remaining int `json:"remaining"`
}

// CalibratedData announces the frozen baseline.
type CalibratedData struct {
	Profile calibration.Profile `json:"profile"`
}

// ViolationData carries one confirmed violation event.
type ViolationData struct {
	Event violation.Event `json:"event"`
}

// SummaryData wraps up a session after an end message: the persisted
// integrity score plus the pipeline counters, and the audio report when
// the client streamed audio.
type SummaryData struct {
	SessionID       string         `json:"session_id"`
	IntegrityScore  float64        `json:"integrity_score"`
	FramesSeen      uint64         `json:"frames_seen"`
	FramesProcessed uint64         `json:"frames_processed"`
	Emitted         int            `json:"emitted"`
	Suppressed      int            `json:"suppressed"`
	Audio           *voice.Summary `json:"audio,omitempty"`
}

// ErrorData explains a request-level failure. The connection stays open
// unless Fatal is set.
type ErrorData struct {
	Error string `json:"error"`
	Fatal bool   `json:"fatal,omitempty"`
}

// =============================================================================
// Bidirectional Message Types
// =============================================================================

// PingData contains ping information
type PingData struct {
	ID        string `json:"id"`
	Timestamp int64  `json:"ts"`
}

// PongData contains pong response
type PongData struct {
	ID        string `json:"id"`
	PingTS    int64  `json:"ping_ts"`
	PongTS    int64  `json:"pong_ts"`
	LatencyMs int64  `json:"latency_ms"`
}
