package protocol

import (
	"encoding/base64"

	"github.com/sensai-labs/go-proctor/pkg/calibration"
	"github.com/sensai-labs/go-proctor/pkg/landmarks"
	"github.com/sensai-labs/go-proctor/pkg/violation"
)

// =============================================================================
// Helper functions for creating messages
// =============================================================================

// NewFrameMessage creates a frame message from a landmark frame
func NewFrameMessage(frame landmarks.Frame) (*Message, error) {
	return NewMessage(TypeFrame, FrameData{Frame: frame})
}

// NewAudioMessage creates an audio message from raw PCM16 bytes
func NewAudioMessage(pcmData []byte, sampleRate int) (*Message, error) {
	return NewMessage(TypeAudio, AudioData{
		Format:     "pcm16",
		SampleRate: sampleRate,
		Channels:   1,
		Data:       base64.StdEncoding.EncodeToString(pcmData),
	})
}

// NewResetMessage creates a calibration reset request
func NewResetMessage() (*Message, error) {
	return NewMessage(TypeReset, nil)
}

// NewEndMessage creates a session end request
func NewEndMessage() (*Message, error) {
	return NewMessage(TypeEnd, nil)
}

// NewCalibratingMessage creates a warmup progress message
func NewCalibratingMessage(remaining int) (*Message, error) {
	return NewMessage(TypeCalibrating, CalibrationData{Remaining: remaining})
}

// NewCalibratedMessage creates a baseline-frozen message
func NewCalibratedMessage(profile calibration.Profile) (*Message, error) {
	return NewMessage(TypeCalibrated, CalibratedData{Profile: profile})
}

// NewViolationMessage creates a violation event message
func NewViolationMessage(event violation.Event) (*Message, error) {
	return NewMessage(TypeViolation, ViolationData{Event: event})
}

// NewSummaryMessage creates a session wrap-up message
func NewSummaryMessage(summary SummaryData) (*Message, error) {
	return NewMessage(TypeSummary, summary)
}

// NewErrorMessage creates an error message
func NewErrorMessage(errText string, fatal bool) (*Message, error) {
	return NewMessage(TypeError, ErrorData{Error: errText, Fatal: fatal})
}

// NewPingMessage creates a ping message
func NewPingMessage(id string) (*Message, error) {
	return NewMessage(TypePing, PingData{
		ID:        id,
		Timestamp: 0, // Will be set by NewMessage
	})
}

// NewPongMessage creates a pong response message
func NewPongMessage(id string, pingTS, pongTS int64) (*Message, error) {
	return NewMessage(TypePong, PongData{
		ID:        id,
		PingTS:    pingTS,
		PongTS:    pongTS,
		LatencyMs: pongTS - pingTS,
	})
}

// =============================================================================
// Helper functions for parsing messages
// =============================================================================

// GetFrameData extracts frame data from a message
func (m *Message) GetFrameData() (*FrameData, error) {
	var data FrameData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetAudioData extracts audio data from a message
func (m *Message) GetAudioData() (*AudioData, error) {
	var data AudioData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// DecodeAudioData decodes the base64 audio payload
func (a *AudioData) DecodeAudioData() ([]byte, error) {
	return base64.StdEncoding.DecodeString(a.Data)
}

// GetCalibrationData extracts warmup progress from a message
func (m *Message) GetCalibrationData() (*CalibrationData, error) {
	var data CalibrationData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetCalibratedData extracts the frozen baseline from a message
func (m *Message) GetCalibratedData() (*CalibratedData, error) {
	var data CalibratedData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetViolationData extracts a violation event from a message
func (m *Message) GetViolationData() (*ViolationData, error) {
	var data ViolationData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetViolationEvent extracts just the event from a violation message
func (m *Message) GetViolationEvent() (violation.Event, error) {
	data, err := m.GetViolationData()
	if err != nil {
		return violation.Event{}, err
	}
	return data.Event, nil
}

// GetSummaryData extracts the session wrap-up from a message
func (m *Message) GetSummaryData() (*SummaryData, error) {
	var data SummaryData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetErrorData extracts error details from a message
func (m *Message) GetErrorData() (*ErrorData, error) {
	var data ErrorData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetPingData extracts ping data from a message
func (m *Message) GetPingData() (*PingData, error) {
	var data PingData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetPongData extracts pong data from a message
func (m *Message) GetPongData() (*PongData, error) {
	var data PongData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}
