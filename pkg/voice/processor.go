package voice

import (
	"time"
)

// Suspicious indicator labels attached to chunk analyses.
const (
	IndicatorLowEnergySpeech  = "low_energy_speech"
	IndicatorHighDistortion   = "high_distortion"
	IndicatorVADInconsistency = "vad_inconsistency"
)

// Config holds per-session audio analysis parameters.
type Config struct {
	SampleRate int // Hz

	// Detection thresholds.
	VADThreshold  float64 // RMS above this counts as speech
	WhisperRMS    float64 // speech below this flags low-energy speech
	DistortionZCR float64 // zero-cross rate above this flags distortion

	// Activity-flip tracking.
	FlipWindow int // recent chunks considered
	FlipLimit  int // flips within the window that flag inconsistency
}

// DefaultConfig returns the recommended audio analysis parameters.
func DefaultConfig() Config {
	return Config{
		SampleRate:    16000,
		VADThreshold:  0.005,
		WhisperRMS:    0.01, // audible speech sits well above this
		DistortionZCR: 0.3,
		FlipWindow:    20, // roughly a minute of 3s chunks
		FlipLimit:     8,
	}
}

// SuspiciousEvent records one flagged chunk.
type SuspiciousEvent struct {
	Offset     time.Duration `json:"offset_ms"`
	Indicators []string      `json:"indicators"`
	Stats      ChunkStats    `json:"stats"`
}

// Summary is the per-session audio report.
type Summary struct {
	AnalyzedSeconds  float64           `json:"analyzed_seconds"`
	SpeechSeconds    float64           `json:"speech_seconds"`
	SilenceSeconds   float64           `json:"silence_seconds"`
	SpeechRatio      float64           `json:"speech_ratio"`
	SpeechChunks     int               `json:"speech_chunks"`
	AvgSpeechRMS     float64           `json:"avg_speech_rms"`
	SuspiciousCount  int               `json:"suspicious_count"`
	SuspiciousEvents []SuspiciousEvent `json:"suspicious_events,omitempty"`
}

// Processor accumulates chunk analyses for one session. Not safe for
// concurrent use; callers serialize the audio stream.
type Processor struct {
	cfg Config

	elapsed      time.Duration
	speechSecs   float64
	silenceSecs  float64
	speechChunks int
	speechRMSSum float64
	suspicious   []SuspiciousEvent

	recent []bool // speech flags for the flip window
	head   int
	filled int
}

// NewProcessor builds a processor, normalizing nonsensical settings.
func NewProcessor(cfg Config) *Processor {
	def := DefaultConfig()
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = def.SampleRate
	}
	if cfg.VADThreshold <= 0 {
		cfg.VADThreshold = def.VADThreshold
	}
	if cfg.WhisperRMS <= 0 {
		cfg.WhisperRMS = def.WhisperRMS
	}
	if cfg.DistortionZCR <= 0 {
		cfg.DistortionZCR = def.DistortionZCR
	}
	if cfg.FlipWindow < 2 {
		cfg.FlipWindow = def.FlipWindow
	}
	if cfg.FlipLimit < 1 {
		cfg.FlipLimit = def.FlipLimit
	}
	return &Processor{
		cfg:    cfg,
		recent: make([]bool, cfg.FlipWindow),
	}
}

// Process analyzes one chunk and returns its statistics plus any
// suspicious indicators it raised.
func (p *Processor) Process(samples []int16) (ChunkStats, []string) {
	stats := AnalyzePCM(samples, p.cfg.SampleRate, p.cfg.VADThreshold)
	offset := p.elapsed
	p.elapsed += time.Duration(stats.Seconds * float64(time.Second))

	if stats.Speech {
		p.speechSecs += stats.Seconds
		p.speechChunks++
		p.speechRMSSum += stats.RMS
	} else {
		p.silenceSecs += stats.Seconds
	}

	p.recent[p.head] = stats.Speech
	p.head = (p.head + 1) % len(p.recent)
	if p.filled < len(p.recent) {
		p.filled++
	}

	var indicators []string
	if stats.Speech && stats.RMS < p.cfg.WhisperRMS {
		indicators = append(indicators, IndicatorLowEnergySpeech)
	}
	if stats.ZeroCrossRate > p.cfg.DistortionZCR {
		indicators = append(indicators, IndicatorHighDistortion)
	}
	if p.flips() > p.cfg.FlipLimit {
		indicators = append(indicators, IndicatorVADInconsistency)
	}

	if len(indicators) > 0 {
		p.suspicious = append(p.suspicious, SuspiciousEvent{
			Offset:     offset,
			Indicators: indicators,
			Stats:      stats,
		})
	}
	return stats, indicators
}

// flips counts speech/silence transitions across the filled window.
func (p *Processor) flips() int {
	if p.filled < 2 {
		return 0
	}
	// Oldest filled entry sits at head when the window has wrapped.
	start := 0
	if p.filled == len(p.recent) {
		start = p.head
	}
	flips := 0
	prev := p.recent[start%len(p.recent)]
	for i := 1; i < p.filled; i++ {
		cur := p.recent[(start+i)%len(p.recent)]
		if cur != prev {
			flips++
			prev = cur
		}
	}
	return flips
}

// Summary reports the session so far.
func (p *Processor) Summary() Summary {
	s := Summary{
		AnalyzedSeconds:  p.elapsed.Seconds(),
		SpeechSeconds:    p.speechSecs,
		SilenceSeconds:   p.silenceSecs,
		SpeechChunks:     p.speechChunks,
		SuspiciousCount:  len(p.suspicious),
		SuspiciousEvents: p.suspicious,
	}
	if total := p.speechSecs + p.silenceSecs; total > 0 {
		s.SpeechRatio = p.speechSecs / total
	}
	if p.speechChunks > 0 {
		s.AvgSpeechRMS = p.speechRMSSum / float64(p.speechChunks)
	}
	return s
}

// Reset clears all accumulated state for a new session.
func (p *Processor) Reset() {
	*p = *NewProcessor(p.cfg)
}
