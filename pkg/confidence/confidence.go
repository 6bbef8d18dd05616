// Package confidence scores how much trust to place in a cheating
// assessment built from heterogeneous evidence. Five weighted factors
// and a red-flag penalty produce a final score in [0,1], bounded by an
// externally supplied probability, then mapped to an ordered level and
// a recommended reviewer action. Everything here is a pure function:
// identical inputs always produce identical output.
package confidence

import (
	"fmt"
	"strings"
)

// Factors are the five qualitative evidence factors, each in [0,1].
// Out-of-range values are clamped during scoring.
type Factors struct {
	ContentQuality   float64 `json:"content_quality"`
	WritingStyle     float64 `json:"writing_style"`
	AnswerComplexity float64 `json:"answer_complexity"`
	TimeAnalysis     float64 `json:"time_analysis"`
	PatternDetection float64 `json:"pattern_detection"`
}

// Factor weights, summing to 1.0.
const (
	weightContentQuality   = 0.25
	weightWritingStyle     = 0.25
	weightAnswerComplexity = 0.20
	weightTimeAnalysis     = 0.15
	weightPatternDetection = 0.15
)

// Red-flag penalty: 0.05 per flag, capped at 0.30 from six flags up.
const (
	flagPenaltyStep = 0.05
	flagPenaltyMax  = 0.30
)

// External probability bounds: a strongly held external signal pins
// the composite score without fully overriding it.
const (
	externalHighProbability = 0.7 // above this, final is floored at 0.7
	externalHighFloor       = 0.7
	externalLowProbability  = 0.3 // below this, final is capped at 0.6
	externalLowCap          = 0.6
)

// Level is the ordered confidence label.
type Level string

const (
	LevelVeryHigh   Level = "very_high"
	LevelHigh       Level = "high"
	LevelMediumHigh Level = "medium_high"
	LevelMedium     Level = "medium"
	LevelMediumLow  Level = "medium_low"
	LevelLow        Level = "low"
)

// LevelFor maps a final score onto the six ordered levels.
func LevelFor(score float64) Level {
	switch {
	case score >= 0.9:
		return LevelVeryHigh
	case score >= 0.8:
		return LevelHigh
	case score >= 0.7:
		return LevelMediumHigh
	case score >= 0.6:
		return LevelMedium
	case score >= 0.5:
		return LevelMediumLow
	default:
		return LevelLow
	}
}

// Breakdown decomposes a final confidence score, explaining how it was
// derived. Immutable once returned.
type Breakdown struct {
	Factors             Factors `json:"factors"`
	RedFlagCount        int     `json:"red_flag_count"`
	ExternalProbability float64 `json:"external_probability"`

	WeightedScore float64 `json:"weighted_score"`
	Penalty       float64 `json:"penalty"`
	Final         float64 `json:"final"`
	Level         Level   `json:"level"`
	Explanation   string  `json:"explanation"`
}

// Score computes the confidence breakdown for one assessment.
func Score(f Factors, redFlagCount int, externalProbability float64) Breakdown {
	f = Factors{
		ContentQuality:   clamp01(f.ContentQuality),
		WritingStyle:     clamp01(f.WritingStyle),
		AnswerComplexity: clamp01(f.AnswerComplexity),
		TimeAnalysis:     clamp01(f.TimeAnalysis),
		PatternDetection: clamp01(f.PatternDetection),
	}
	if redFlagCount < 0 {
		redFlagCount = 0
	}
	externalProbability = clamp01(externalProbability)

	weighted := f.ContentQuality*weightContentQuality +
		f.WritingStyle*weightWritingStyle +
		f.AnswerComplexity*weightAnswerComplexity +
		f.TimeAnalysis*weightTimeAnalysis +
		f.PatternDetection*weightPatternDetection

	penalty := flagPenaltyStep * float64(redFlagCount)
	if penalty > flagPenaltyMax {
		penalty = flagPenaltyMax
	}

	final := clamp01(weighted - penalty)

	if externalProbability > externalHighProbability && final < externalHighFloor {
		final = externalHighFloor
	}
	if externalProbability < externalLowProbability && final > externalLowCap {
		final = externalLowCap
	}

	return Breakdown{
		Factors:             f,
		RedFlagCount:        redFlagCount,
		ExternalProbability: externalProbability,
		WeightedScore:       weighted,
		Penalty:             penalty,
		Final:               final,
		Level:               LevelFor(final),
		Explanation:         explain(f, redFlagCount),
	}
}

// Recommendation tells a reviewer what to do with a scored assessment.
type Recommendation struct {
	Action      string `json:"action"`
	Priority    string `json:"priority"`
	Explanation string `json:"explanation"`
}

var recommendations = map[Level]Recommendation{
	LevelVeryHigh: {
		Action:      "flag for immediate review",
		Priority:    "immediate",
		Explanation: "evidence is strong and internally consistent",
	},
	LevelHigh: {
		Action:      "escalate to a proctor",
		Priority:    "high",
		Explanation: "most evidence factors support the assessment",
	},
	LevelMediumHigh: {
		Action:      "queue for standard review",
		Priority:    "medium",
		Explanation: "evidence supports the assessment with some gaps",
	},
	LevelMedium: {
		Action:      "continue monitoring",
		Priority:    "low",
		Explanation: "evidence is mixed; watch for corroborating signals",
	},
	LevelMediumLow: {
		Action:      "gather additional evidence",
		Priority:    "verify",
		Explanation: "evidence is weak; the assessment needs verification",
	},
	LevelLow: {
		Action:      "verify before acting",
		Priority:    "verify",
		Explanation: "evidence does not support acting on the assessment",
	},
}

// RecommendedAction returns the reviewer guidance for a level. Unknown
// levels fall back to the most conservative recommendation.
func RecommendedAction(level Level) Recommendation {
	if r, ok := recommendations[level]; ok {
		return r
	}
	return recommendations[LevelLow]
}

// Phrase thresholds for the generated explanation.
const (
	strongFactor = 0.7
	manyRedFlags = 3
)

func explain(f Factors, redFlagCount int) string {
	var parts []string
	if f.ContentQuality >= strongFactor {
		parts = append(parts, "content analysis strongly supports the assessment")
	}
	if f.WritingStyle >= strongFactor {
		parts = append(parts, "writing style signals are distinctive")
	}
	if f.AnswerComplexity >= strongFactor {
		parts = append(parts, "answer complexity is consistent with the assessment")
	}
	if f.TimeAnalysis >= strongFactor {
		parts = append(parts, "timing patterns corroborate the assessment")
	}
	if f.PatternDetection >= strongFactor {
		parts = append(parts, "detected patterns correlate strongly")
	}
	if redFlagCount >= manyRedFlags {
		parts = append(parts, fmt.Sprintf("%d red flags lower the overall confidence", redFlagCount))
	}
	if len(parts) == 0 {
		return "no single factor dominates; confidence derives from the weighted aggregate"
	}
	return strings.Join(parts, "; ")
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
