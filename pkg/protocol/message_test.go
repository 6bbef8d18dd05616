package protocol

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/sensai-labs/go-proctor/pkg/calibration"
	"github.com/sensai-labs/go-proctor/pkg/features"
	"github.com/sensai-labs/go-proctor/pkg/landmarks"
	"github.com/sensai-labs/go-proctor/pkg/violation"
)

func testFrame(ts time.Time) landmarks.Frame {
	face := make(landmarks.Set, 478)
	for i := range face {
		face[i] = landmarks.Point{X: 0.5, Y: 0.5}
	}
	return landmarks.Frame{
		Timestamp: ts,
		Faces:     []landmarks.Set{face},
	}
}

func TestNewMessage(t *testing.T) {
	tests := []struct {
		name    string
		msgType MessageType
		data    any
		wantErr bool
	}{
		{
			name:    "frame message",
			msgType: TypeFrame,
			data:    FrameData{Frame: testFrame(time.Now())},
			wantErr: false,
		},
		{
			name:    "violation message",
			msgType: TypeViolation,
			data: ViolationData{Event: violation.Event{
				Type:       violation.FaceAbsent,
				Severity:   violation.SeverityHigh,
				Confidence: 0.95,
			}},
			wantErr: false,
		},
		{
			name:    "nil data",
			msgType: TypeReset,
			data:    nil,
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := NewMessage(tt.msgType, tt.data)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewMessage() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if msg == nil && !tt.wantErr {
				t.Error("NewMessage() returned nil message")
				return
			}
			if msg.Type != tt.msgType {
				t.Errorf("NewMessage() type = %v, want %v", msg.Type, tt.msgType)
			}
			if msg.Timestamp == 0 {
				t.Error("NewMessage() timestamp should be set")
			}
		})
	}
}

func TestFrameMessageRoundTrip(t *testing.T) {
	frameTS := time.Date(2025, 6, 1, 10, 30, 0, 0, time.UTC)

	msg, err := NewFrameMessage(testFrame(frameTS))
	if err != nil {
		t.Fatalf("NewFrameMessage() error = %v", err)
	}

	// Serialize to bytes
	bytes, err := msg.Bytes()
	if err != nil {
		t.Fatalf("Bytes() error = %v", err)
	}

	// Parse back
	parsed, err := ParseMessage(bytes)
	if err != nil {
		t.Fatalf("ParseMessage() error = %v", err)
	}

	if parsed.Type != TypeFrame {
		t.Errorf("Type = %v, want %v", parsed.Type, TypeFrame)
	}

	frameData, err := parsed.GetFrameData()
	if err != nil {
		t.Fatalf("GetFrameData() error = %v", err)
	}

	if !frameData.Frame.Timestamp.Equal(frameTS) {
		t.Errorf("Frame.Timestamp = %v, want %v", frameData.Frame.Timestamp, frameTS)
	}
	if len(frameData.Frame.Faces) != 1 {
		t.Fatalf("Faces = %d, want 1", len(frameData.Frame.Faces))
	}
	if len(frameData.Frame.Faces[0]) != 478 {
		t.Errorf("Face points = %d, want 478", len(frameData.Frame.Faces[0]))
	}
}

func TestAudioMessage(t *testing.T) {
	pcmData := make([]byte, 1024)
	for i := range pcmData {
		pcmData[i] = byte(i % 256)
	}

	msg, err := NewAudioMessage(pcmData, 16000)
	if err != nil {
		t.Fatalf("NewAudioMessage() error = %v", err)
	}

	if msg.Type != TypeAudio {
		t.Errorf("Type = %v, want %v", msg.Type, TypeAudio)
	}

	audioData, err := msg.GetAudioData()
	if err != nil {
		t.Fatalf("GetAudioData() error = %v", err)
	}

	if audioData.SampleRate != 16000 {
		t.Errorf("SampleRate = %v, want 16000", audioData.SampleRate)
	}
	if audioData.Format != "pcm16" {
		t.Errorf("Format = %v, want pcm16", audioData.Format)
	}

	decoded, err := audioData.DecodeAudioData()
	if err != nil {
		t.Fatalf("DecodeAudioData() error = %v", err)
	}

	if len(decoded) != len(pcmData) {
		t.Errorf("Decoded length = %v, want %v", len(decoded), len(pcmData))
	}
}

func TestCalibrationMessages(t *testing.T) {
	msg, err := NewCalibratingMessage(12)
	if err != nil {
		t.Fatalf("NewCalibratingMessage() error = %v", err)
	}
	if msg.Type != TypeCalibrating {
		t.Errorf("Type = %v, want %v", msg.Type, TypeCalibrating)
	}

	calData, err := msg.GetCalibrationData()
	if err != nil {
		t.Fatalf("GetCalibrationData() error = %v", err)
	}
	if calData.Remaining != 12 {
		t.Errorf("Remaining = %v, want 12", calData.Remaining)
	}

	profile := calibration.Profile{
		EARLeft:  0.28,
		EARRight: 0.30,
		Gaze:     features.Vec2{X: 0.01, Y: -0.02},
		FaceSize: 0.24,
		Frames:   30,
	}

	doneMsg, err := NewCalibratedMessage(profile)
	if err != nil {
		t.Fatalf("NewCalibratedMessage() error = %v", err)
	}
	if doneMsg.Type != TypeCalibrated {
		t.Errorf("Type = %v, want %v", doneMsg.Type, TypeCalibrated)
	}

	doneData, err := doneMsg.GetCalibratedData()
	if err != nil {
		t.Fatalf("GetCalibratedData() error = %v", err)
	}
	if doneData.Profile.EARLeft != 0.28 {
		t.Errorf("Profile.EARLeft = %v, want 0.28", doneData.Profile.EARLeft)
	}
	if doneData.Profile.Frames != 30 {
		t.Errorf("Profile.Frames = %v, want 30", doneData.Profile.Frames)
	}
}

func TestViolationMessage(t *testing.T) {
	event := violation.NewEvent("sess-1", time.Now(), violation.Candidate{
		Type:        violation.MultiplePeople,
		Severity:    violation.SeverityCritical,
		Confidence:  0.9,
		Description: "2 people detected in frame",
	})

	msg, err := NewViolationMessage(event)
	if err != nil {
		t.Fatalf("NewViolationMessage() error = %v", err)
	}

	if msg.Type != TypeViolation {
		t.Errorf("Type = %v, want %v", msg.Type, TypeViolation)
	}

	got, err := msg.GetViolationEvent()
	if err != nil {
		t.Fatalf("GetViolationEvent() error = %v", err)
	}

	if got.ID != event.ID {
		t.Errorf("ID = %v, want %v", got.ID, event.ID)
	}
	if got.Type != violation.MultiplePeople {
		t.Errorf("Type = %v, want %v", got.Type, violation.MultiplePeople)
	}
	if got.Severity != violation.SeverityCritical {
		t.Errorf("Severity = %v, want %v", got.Severity, violation.SeverityCritical)
	}
	if got.Confidence != 0.9 {
		t.Errorf("Confidence = %v, want 0.9", got.Confidence)
	}
}

func TestSummaryMessage(t *testing.T) {
	msg, err := NewSummaryMessage(SummaryData{
		SessionID:       "sess-1",
		IntegrityScore:  72.5,
		FramesSeen:      900,
		FramesProcessed: 450,
		Emitted:         3,
		Suppressed:      11,
	})
	if err != nil {
		t.Fatalf("NewSummaryMessage() error = %v", err)
	}

	if msg.Type != TypeSummary {
		t.Errorf("Type = %v, want %v", msg.Type, TypeSummary)
	}

	summary, err := msg.GetSummaryData()
	if err != nil {
		t.Fatalf("GetSummaryData() error = %v", err)
	}

	if summary.IntegrityScore != 72.5 {
		t.Errorf("IntegrityScore = %v, want 72.5", summary.IntegrityScore)
	}
	if summary.FramesSeen != 900 {
		t.Errorf("FramesSeen = %v, want 900", summary.FramesSeen)
	}
	if summary.Audio != nil {
		t.Error("Audio should be nil when no audio was streamed")
	}
}

func TestErrorMessage(t *testing.T) {
	msg, err := NewErrorMessage("frame budget exceeded", false)
	if err != nil {
		t.Fatalf("NewErrorMessage() error = %v", err)
	}

	if msg.Type != TypeError {
		t.Errorf("Type = %v, want %v", msg.Type, TypeError)
	}

	errData, err := msg.GetErrorData()
	if err != nil {
		t.Fatalf("GetErrorData() error = %v", err)
	}

	if errData.Error != "frame budget exceeded" {
		t.Errorf("Error = %v, want frame budget exceeded", errData.Error)
	}
	if errData.Fatal {
		t.Error("Fatal should be false")
	}
}

func TestPingPongMessage(t *testing.T) {
	pingMsg, err := NewPingMessage("test-123")
	if err != nil {
		t.Fatalf("NewPingMessage() error = %v", err)
	}

	if pingMsg.Type != TypePing {
		t.Errorf("Type = %v, want %v", pingMsg.Type, TypePing)
	}

	pingData, err := pingMsg.GetPingData()
	if err != nil {
		t.Fatalf("GetPingData() error = %v", err)
	}

	if pingData.ID != "test-123" {
		t.Errorf("ID = %v, want test-123", pingData.ID)
	}

	// Create pong response
	now := time.Now().UnixMilli()
	pongMsg, err := NewPongMessage("test-123", pingMsg.Timestamp, now)
	if err != nil {
		t.Fatalf("NewPongMessage() error = %v", err)
	}

	if pongMsg.Type != TypePong {
		t.Errorf("Type = %v, want %v", pongMsg.Type, TypePong)
	}

	pongData, err := pongMsg.GetPongData()
	if err != nil {
		t.Fatalf("GetPongData() error = %v", err)
	}

	if pongData.ID != "test-123" {
		t.Errorf("ID = %v, want test-123", pongData.ID)
	}
	if pongData.LatencyMs < 0 {
		t.Errorf("LatencyMs = %v, should be >= 0", pongData.LatencyMs)
	}
}

func TestParseInvalidMessage(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{
			name:    "invalid json",
			input:   "not json",
			wantErr: true,
		},
		{
			name:    "empty json",
			input:   "{}",
			wantErr: false, // Empty is valid, just no type
		},
		{
			name:    "valid message",
			input:   `{"type":"ping","ts":1234567890}`,
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseMessage([]byte(tt.input))
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseMessage() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestMessageJSON(t *testing.T) {
	// Verify JSON structure matches expected format
	msg, _ := NewCalibratingMessage(5)

	bytes, _ := msg.Bytes()

	var parsed map[string]any
	if err := json.Unmarshal(bytes, &parsed); err != nil {
		t.Fatalf("Failed to unmarshal as map: %v", err)
	}

	if parsed["type"] != "calibrating" {
		t.Errorf("type = %v, want calibrating", parsed["type"])
	}

	if _, ok := parsed["ts"]; !ok {
		t.Error("ts field should be present")
	}

	if _, ok := parsed["data"]; !ok {
		t.Error("data field should be present")
	}
}

func BenchmarkNewFrameMessage(b *testing.B) {
	frame := testFrame(time.Now())

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		NewFrameMessage(frame)
	}
}

func BenchmarkParseMessage(b *testing.B) {
	msg, _ := NewFrameMessage(testFrame(time.Now()))
	bytes, _ := msg.Bytes()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		ParseMessage(bytes)
	}
}
