package voice

import (
	"fmt"
	"math"
	"sort"

	"github.com/sensai-labs/go-proctor/pkg/confidence"
)

// Speaker pattern thresholds.
const (
	frequentSwitches   = 10  // switches above this read as a conversation
	coachingSwitches   = 5   // two-party switches above this read as coaching
	dominanceMin       = 0.6 // below this no speaker dominates
	overlapSuspectSecs = 5.0
	multiSpeakerCV     = 0.5 // energy variation above this hints at two voices
)

// Segment is one diarized span of speech. Times are seconds from the
// start of the recording.
type Segment struct {
	Speaker string  `json:"speaker"`
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
}

// SpeakerReport summarizes diarized speech for integrity review.
type SpeakerReport struct {
	SpeakerCount        int      `json:"speaker_count"`
	PrimarySpeakerRatio float64  `json:"primary_speaker_ratio"`
	SpeakerSwitches     int      `json:"speaker_switches"`
	OverlapSeconds      float64  `json:"overlap_seconds"`
	SuspiciousPatterns  []string `json:"suspicious_patterns,omitempty"`
}

// AnalyzeSpeakers derives speaker statistics and suspicious patterns
// from diarized segments. An empty input reports a single clean track.
func AnalyzeSpeakers(segments []Segment) SpeakerReport {
	if len(segments) == 0 {
		return SpeakerReport{PrimarySpeakerRatio: 1}
	}

	sorted := make([]Segment, len(segments))
	copy(sorted, segments)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })

	var r SpeakerReport
	durations := make(map[string]float64)
	prev := ""
	for _, seg := range sorted {
		durations[seg.Speaker] += seg.End - seg.Start
		if prev != "" && seg.Speaker != prev {
			r.SpeakerSwitches++
		}
		prev = seg.Speaker
	}
	r.SpeakerCount = len(durations)

	var total, primary float64
	for _, d := range durations {
		total += d
		if d > primary {
			primary = d
		}
	}
	if total > 0 {
		r.PrimarySpeakerRatio = primary / total
	}

	for i := 0; i < len(sorted); i++ {
		for j := i + 1; j < len(sorted); j++ {
			if sorted[i].Speaker == sorted[j].Speaker {
				continue
			}
			start := math.Max(sorted[i].Start, sorted[j].Start)
			end := math.Min(sorted[i].End, sorted[j].End)
			if start < end {
				r.OverlapSeconds += end - start
			}
		}
	}

	if r.SpeakerCount > 1 {
		r.SuspiciousPatterns = append(r.SuspiciousPatterns,
			fmt.Sprintf("multiple speakers detected (%d)", r.SpeakerCount))
	}
	if r.SpeakerSwitches > frequentSwitches {
		r.SuspiciousPatterns = append(r.SuspiciousPatterns,
			fmt.Sprintf("frequent speaker switches (%d)", r.SpeakerSwitches))
	}
	if r.SpeakerCount > 1 && r.PrimarySpeakerRatio < dominanceMin {
		r.SuspiciousPatterns = append(r.SuspiciousPatterns, "no dominant speaker")
	}
	if r.OverlapSeconds > overlapSuspectSecs {
		r.SuspiciousPatterns = append(r.SuspiciousPatterns,
			fmt.Sprintf("overlapping speech (%.1fs)", r.OverlapSeconds))
	}
	if r.SpeakerCount == 2 && r.SpeakerSwitches > coachingSwitches {
		r.SuspiciousPatterns = append(r.SuspiciousPatterns, "rapid alternating speakers")
	}
	return r
}

// Evidence converts the report for the audio confidence scorer.
// Transcription quality and external score are filled by the caller.
func (r SpeakerReport) Evidence() confidence.AudioEvidence {
	return confidence.AudioEvidence{
		SpeakerCount:        r.SpeakerCount,
		SpeakerSwitches:     r.SpeakerSwitches,
		PrimarySpeakerRatio: r.PrimarySpeakerRatio,
	}
}

// EstimateSpeakers is an energy-variation fallback for recordings with
// no diarization. It splits the audio into ten chunks and reads high
// RMS variation as a second voice. Returns the estimated count and the
// coefficient of variation behind it.
func EstimateSpeakers(samples []int16) (int, float64) {
	chunk := len(samples) / 10
	if chunk == 0 {
		return 1, 0
	}

	var energies []float64
	for start := 0; start < len(samples); start += chunk {
		end := start + chunk
		if end > len(samples) {
			end = len(samples)
		}
		var sumSq float64
		for _, s := range samples[start:end] {
			v := float64(s) / 32768.0
			sumSq += v * v
		}
		energies = append(energies, math.Sqrt(sumSq/float64(end-start)))
	}

	var mean float64
	for _, e := range energies {
		mean += e
	}
	mean /= float64(len(energies))
	if mean == 0 {
		return 1, 0
	}

	var variance float64
	for _, e := range energies {
		d := e - mean
		variance += d * d
	}
	cv := math.Sqrt(variance/float64(len(energies))) / mean

	if cv > multiSpeakerCV {
		return 2, cv
	}
	return 1, cv
}
