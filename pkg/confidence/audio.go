package confidence

// AudioEvidence is the input to the audio scoring variant: diarization
// statistics from speaker analysis, a transcription quality estimate,
// and the external cheating-detection score for the spoken content.
type AudioEvidence struct {
	SpeakerCount         int     `json:"speaker_count"`
	SpeakerSwitches      int     `json:"speaker_switches"`
	PrimarySpeakerRatio  float64 `json:"primary_speaker_ratio"`
	TranscriptionQuality float64 `json:"transcription_quality"`
	ExternalScore        float64 `json:"external_score"`
}

// Diarization penalties. A clean recording has at most two speakers
// (examinee and proctor), few switches, and a dominant primary voice.
const (
	extraSpeakerPenalty = 0.1 // per speaker beyond two
	switchPenalty       = 0.2
	switchThreshold     = 20
	lowDominancePenalty = 0.3
	dominanceThreshold  = 0.4
)

// AudioBreakdown decomposes an audio confidence score.
type AudioBreakdown struct {
	Diarization          float64 `json:"diarization"`
	TranscriptionQuality float64 `json:"transcription_quality"`
	ExternalScore        float64 `json:"external_score"`
	Final                float64 `json:"final"`
	Level                Level   `json:"level"`
}

// DiarizationConfidence estimates how trustworthy the speaker
// separation is, starting from 1.0 and subtracting penalties for extra
// speakers, excessive switching, and a weak primary speaker.
func DiarizationConfidence(speakers, switches int, primaryRatio float64) float64 {
	conf := 1.0
	if speakers > 2 {
		conf -= extraSpeakerPenalty * float64(speakers-2)
	}
	if switches > switchThreshold {
		conf -= switchPenalty
	}
	if primaryRatio < dominanceThreshold {
		conf -= lowDominancePenalty
	}
	return clamp01(conf)
}

// ScoreAudio combines diarization confidence, transcription quality,
// and the external score by taking their minimum. Averaging would let
// one strong channel mask a broken one; the conservative aggregate
// cannot exceed its weakest input.
func ScoreAudio(ev AudioEvidence) AudioBreakdown {
	b := AudioBreakdown{
		Diarization:          DiarizationConfidence(ev.SpeakerCount, ev.SpeakerSwitches, ev.PrimarySpeakerRatio),
		TranscriptionQuality: clamp01(ev.TranscriptionQuality),
		ExternalScore:        clamp01(ev.ExternalScore),
	}

	b.Final = b.Diarization
	if b.TranscriptionQuality < b.Final {
		b.Final = b.TranscriptionQuality
	}
	if b.ExternalScore < b.Final {
		b.Final = b.ExternalScore
	}
	b.Level = LevelFor(b.Final)
	return b
}
