// Package integrity analyzes examinee behavior that the camera cannot
// see: keystroke timing, clipboard activity, and completion speed. The
// analyzers are pure functions over timestamped events; callers decide
// what to do with the resulting reports and candidates.
package integrity

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/sensai-labs/go-proctor/pkg/confidence"
	"github.com/sensai-labs/go-proctor/pkg/violation"
)

// Behavioral pattern labels carried in report and flag evidence.
const (
	PatternConsistentTiming = "unusually_consistent_timing"
	PatternFastTyping       = "extremely_fast_typing"
	PatternPauseBurst       = "pause_burst_pattern"
	PatternRapidPastes      = "rapid_multiple_pastes"
	PatternLargeVolume      = "large_paste_volume"
	PatternLargeSingle      = "large_single_paste"
)

// Typing thresholds.
const (
	botIntervalStd   = 0.05 // below this std dev the cadence is machine-like (seconds)
	fastTypingWPM    = 120.0
	pauseIntervalSec = 5.0 // a gap this long counts as a pause
	burstIntervalSec = 0.1 // an interval this short counts as a burst
)

// Paste thresholds.
const (
	pasteBurstCount  = 3 // this many pastes inside the burst window
	pasteBurstWindow = 60.0
	pasteTotalChars  = 1000
	pasteSingleChars = 500
)

// Candidate gate: scores at or above these produce a flag candidate.
const (
	flagMedium = 0.6
	flagHigh   = 0.8
)

// Score increments per detected pattern.
const (
	consistentTimingWeight = 0.3
	fastTypingWeight       = 0.4
	pauseBurstWeight       = 0.3
	rapidPastesWeight      = 0.4
	largeVolumeWeight      = 0.3
	largeSingleWeight      = 0.2
)

// TypingMetrics summarizes keystroke cadence. Interval fields are in
// seconds.
type TypingMetrics struct {
	EventCount     int     `json:"event_count"`
	TotalSeconds   float64 `json:"total_seconds"`
	AvgInterval    float64 `json:"avg_interval"`
	StdInterval    float64 `json:"std_interval"`
	MinInterval    float64 `json:"min_interval"`
	MaxInterval    float64 `json:"max_interval"`
	MedianInterval float64 `json:"median_interval"`
	CharsPerSecond float64 `json:"chars_per_second"`
	WPM            float64 `json:"wpm"`
}

// TypingReport is the outcome of a typing-cadence analysis.
type TypingReport struct {
	Metrics     TypingMetrics `json:"metrics"`
	Score       float64       `json:"score"`
	Patterns    []string      `json:"patterns,omitempty"`
	Description string        `json:"description,omitempty"`
}

// AnalyzeTyping scores keystroke timestamps for machine-like cadence,
// implausible speed, and pause-then-burst patterns. Fewer than two
// events yields an empty report.
func AnalyzeTyping(stamps []time.Time) TypingReport {
	var r TypingReport
	r.Metrics.EventCount = len(stamps)
	if len(stamps) < 2 {
		return r
	}

	sorted := make([]time.Time, len(stamps))
	copy(sorted, stamps)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Before(sorted[j]) })

	intervals := make([]float64, 0, len(sorted)-1)
	for i := 1; i < len(sorted); i++ {
		intervals = append(intervals, sorted[i].Sub(sorted[i-1]).Seconds())
	}
	m := &r.Metrics
	m.TotalSeconds = sorted[len(sorted)-1].Sub(sorted[0]).Seconds()
	m.AvgInterval = mean(intervals)
	m.StdInterval = stddev(intervals, m.AvgInterval)
	m.MinInterval, m.MaxInterval = minMax(intervals)
	m.MedianInterval = median(intervals)
	if m.TotalSeconds > 0 {
		m.CharsPerSecond = float64(m.EventCount) / m.TotalSeconds
		m.WPM = m.CharsPerSecond * 60 / 5 // five characters per word
	}

	if m.StdInterval < botIntervalStd && m.AvgInterval > 0 {
		r.Patterns = append(r.Patterns, PatternConsistentTiming)
		r.Score += consistentTimingWeight
	}
	if m.WPM > fastTypingWPM {
		r.Patterns = append(r.Patterns, PatternFastTyping)
		r.Score += fastTypingWeight
	}
	if m.MaxInterval > pauseIntervalSec && m.MinInterval < burstIntervalSec {
		r.Patterns = append(r.Patterns, PatternPauseBurst)
		r.Score += pauseBurstWeight
	}
	r.Score = math.Min(r.Score, 1)
	if r.Score > 0.5 {
		r.Description = "suspicious typing patterns: " + strings.Join(r.Patterns, ", ")
	}
	return r
}

// Candidate converts the report into a violation candidate when the
// score clears the flag gate.
func (r TypingReport) Candidate() (violation.Candidate, bool) {
	if r.Score < flagMedium {
		return violation.Candidate{}, false
	}
	desc := r.Description
	if desc == "" {
		desc = "suspicious typing patterns"
	}
	return violation.Candidate{
		Type:        violation.TypingAnomaly,
		Severity:    severityFor(r.Score),
		Confidence:  r.Score,
		Description: desc,
		Evidence: map[string]any{
			"patterns":     r.Patterns,
			"wpm":          r.Metrics.WPM,
			"std_interval": r.Metrics.StdInterval,
		},
	}, true
}

// PasteEvent records one clipboard paste. Only the length travels over
// the wire; pasted text itself is never collected.
type PasteEvent struct {
	Timestamp time.Time `json:"timestamp"`
	Chars     int       `json:"chars"`
}

// PasteReport is the outcome of a clipboard-activity analysis.
type PasteReport struct {
	PasteCount  int      `json:"paste_count"`
	SpanSeconds float64  `json:"span_seconds"`
	TotalChars  int      `json:"total_chars"`
	MaxChars    int      `json:"max_chars"`
	Score       float64  `json:"score"`
	Patterns    []string `json:"patterns,omitempty"`
	Description string   `json:"description,omitempty"`
}

// AnalyzePaste scores paste events for burst frequency and volume.
func AnalyzePaste(events []PasteEvent) PasteReport {
	var r PasteReport
	r.PasteCount = len(events)
	if len(events) == 0 {
		return r
	}

	first, last := events[0].Timestamp, events[0].Timestamp
	for _, e := range events {
		if e.Timestamp.Before(first) {
			first = e.Timestamp
		}
		if e.Timestamp.After(last) {
			last = e.Timestamp
		}
		r.TotalChars += e.Chars
		if e.Chars > r.MaxChars {
			r.MaxChars = e.Chars
		}
	}
	r.SpanSeconds = last.Sub(first).Seconds()

	if r.PasteCount >= pasteBurstCount && r.SpanSeconds < pasteBurstWindow {
		r.Patterns = append(r.Patterns, PatternRapidPastes)
		r.Score += rapidPastesWeight
	}
	if r.TotalChars > pasteTotalChars {
		r.Patterns = append(r.Patterns, PatternLargeVolume)
		r.Score += largeVolumeWeight
	}
	if r.MaxChars > pasteSingleChars {
		r.Patterns = append(r.Patterns, PatternLargeSingle)
		r.Score += largeSingleWeight
	}
	r.Score = math.Min(r.Score, 1)
	if r.Score > 0.5 {
		r.Description = "suspicious paste activity: " + strings.Join(r.Patterns, ", ")
	}
	return r
}

// Candidate converts the report into a violation candidate when the
// score clears the flag gate.
func (r PasteReport) Candidate() (violation.Candidate, bool) {
	if r.Score < flagMedium {
		return violation.Candidate{}, false
	}
	desc := r.Description
	if desc == "" {
		desc = "suspicious paste activity"
	}
	return violation.Candidate{
		Type:        violation.PasteBurst,
		Severity:    severityFor(r.Score),
		Confidence:  r.Score,
		Description: desc,
		Evidence: map[string]any{
			"patterns":     r.Patterns,
			"paste_count":  r.PasteCount,
			"total_chars":  r.TotalChars,
			"span_seconds": r.SpanSeconds,
		},
	}, true
}

// CompletionReport is the outcome of a completion-time analysis.
type CompletionReport struct {
	ActualSeconds   float64 `json:"actual_seconds"`
	ExpectedSeconds float64 `json:"expected_seconds"`
	TimeRatio       float64 `json:"time_ratio"`
	Score           float64 `json:"score"`
	Description     string  `json:"description,omitempty"`
}

// AnalyzeCompletion scores how quickly a task finished relative to its
// expected duration. A nonpositive expected duration disables the
// analysis.
func AnalyzeCompletion(start, end time.Time, expected time.Duration) CompletionReport {
	r := CompletionReport{
		ActualSeconds:   end.Sub(start).Seconds(),
		ExpectedSeconds: expected.Seconds(),
		TimeRatio:       1,
	}
	if expected > 0 {
		r.TimeRatio = r.ActualSeconds / r.ExpectedSeconds
	}

	switch {
	case r.TimeRatio < 0.1:
		r.Score = 0.9
		r.Description = "extremely rapid completion"
	case r.TimeRatio < 0.3:
		r.Score = 0.7
		r.Description = "very rapid completion"
	case r.TimeRatio < 0.5:
		r.Score = 0.4
		r.Description = "rapid completion"
	}
	return r
}

// Candidate converts the report into a violation candidate when the
// score clears the flag gate.
func (r CompletionReport) Candidate() (violation.Candidate, bool) {
	if r.Score < flagMedium {
		return violation.Candidate{}, false
	}
	return violation.Candidate{
		Type:        violation.CompletionAnomaly,
		Severity:    severityFor(r.Score),
		Confidence:  r.Score,
		Description: r.Description,
		Evidence: map[string]any{
			"time_ratio":       r.TimeRatio,
			"actual_seconds":   r.ActualSeconds,
			"expected_seconds": r.ExpectedSeconds,
		},
	}, true
}

// FactorsFrom maps behavioral scores onto the confidence factors they
// inform: completion speed feeds time analysis, typing and paste feed
// pattern detection.
func FactorsFrom(typing TypingReport, paste PasteReport, completion CompletionReport) confidence.Factors {
	return confidence.Factors{
		TimeAnalysis:     completion.Score,
		PatternDetection: math.Max(typing.Score, paste.Score),
	}
}

func severityFor(score float64) violation.Severity {
	if score >= flagHigh {
		return violation.SeverityHigh
	}
	return violation.SeverityMedium
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// stddev is the population standard deviation.
func stddev(xs []float64, mean float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		d := x - mean
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(xs)))
}

func minMax(xs []float64) (min, max float64) {
	if len(xs) == 0 {
		return 0, 0
	}
	min, max = xs[0], xs[0]
	for _, x := range xs[1:] {
		if x < min {
			min = x
		}
		if x > max {
			max = x
		}
	}
	return min, max
}

func median(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sorted := make([]float64, len(xs))
	copy(sorted, xs)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}
