// Package classify applies calibrated thresholds to smoothed signal
// snapshots and produces violation candidates. The classifier is
// stateless: everything it needs arrives in the Inputs value, so the
// same inputs always yield the same candidates.
package classify

import (
	"fmt"
	"math"
	"time"

	"github.com/sensai-labs/go-proctor/pkg/calibration"
	"github.com/sensai-labs/go-proctor/pkg/features"
	"github.com/sensai-labs/go-proctor/pkg/smoothing"
	"github.com/sensai-labs/go-proctor/pkg/violation"
)

// Config holds classification thresholds. Gaze and eye-closure
// thresholds are calibration-relative; position and size are absolute
// in normalized frame coordinates.
type Config struct {
	// Position
	PositionThreshold float64 // max face-center distance from frame center

	// Size
	SizeMin float64 // below this the face reads too far
	SizeMax float64 // above this the face reads too close

	// Gaze
	GazeThreshold float64 // deviation from gaze baseline

	// Eye closure
	ClosureFactor   float64       // closure threshold = baseline EAR x factor
	ClosureDuration time.Duration // closure must be sustained this long

	// Eye movement
	MovementThreshold float64 // eye-center displacement per frame
}

// DefaultConfig returns the recommended classification thresholds.
func DefaultConfig() Config {
	return Config{
		PositionThreshold: 0.25, // quarter of the frame off center
		SizeMin:           0.15,
		SizeMax:           0.65,
		GazeThreshold:     0.25, // middle of the observed working range
		ClosureFactor:     0.5,  // half the calibrated open-eye EAR
		ClosureDuration:   4 * time.Second,
		MovementThreshold: 0.08, // 8% of the frame between two frames
	}
}

// Normalize clamps out-of-range values to usable defaults so the
// pipeline stays operable under bad configuration.
func (c Config) Normalize() Config {
	def := DefaultConfig()
	if c.PositionThreshold <= 0 {
		c.PositionThreshold = def.PositionThreshold
	}
	if c.SizeMin <= 0 {
		c.SizeMin = def.SizeMin
	}
	if c.SizeMax <= c.SizeMin {
		c.SizeMax = def.SizeMax
	}
	if c.GazeThreshold <= 0 {
		c.GazeThreshold = def.GazeThreshold
	}
	if c.ClosureFactor <= 0 || c.ClosureFactor >= 1 {
		c.ClosureFactor = def.ClosureFactor
	}
	if c.ClosureDuration <= 0 {
		c.ClosureDuration = def.ClosureDuration
	}
	if c.MovementThreshold <= 0 {
		c.MovementThreshold = def.MovementThreshold
	}
	return c
}

// Fixed rule confidences. Scaled rules use scaledConfidence instead.
const (
	absentConfidence   = 0.95
	multiConfidence    = 0.9
	peopleConfidence   = 0.9
	closureConfidence  = 0.85
	movementConfidence = 0.6
	talkingConfidence  = 0.7
)

// Inputs carries one frame's worth of state into the classifier.
type Inputs struct {
	Snapshot smoothing.Snapshot
	Profile  calibration.Profile

	// ClosureFor is how long both smoothed EARs have stayed below the
	// closure threshold; the pipeline tracks it across frames.
	ClosureFor time.Duration
}

// ClosureBelow reports whether both smoothed EARs sit below their
// calibration-relative closure thresholds. The pipeline uses this to
// time sustained closures between frames.
func ClosureBelow(cfg Config, p calibration.Profile, snap smoothing.Snapshot) bool {
	if !snap.EARValid {
		return false
	}
	return snap.EARLeft < p.EARLeft*cfg.ClosureFactor &&
		snap.EARRight < p.EARRight*cfg.ClosureFactor
}

// Evaluate runs every rule against one frame's inputs and returns the
// candidates that fired. The caller must not invoke it before
// calibration completes.
func Evaluate(cfg Config, in Inputs) []violation.Candidate {
	snap := in.Snapshot
	var out []violation.Candidate

	if snap.AbsentConfirmed {
		out = append(out, violation.Candidate{
			Type:        violation.FaceAbsent,
			Severity:    violation.SeverityHigh,
			Confidence:  absentConfidence,
			Description: fmt.Sprintf("no face detected for %d consecutive frames", snap.AbsentStreak),
			Evidence:    map[string]any{"absent_frames": snap.AbsentStreak},
		})
	}

	if snap.FaceCount > 1 {
		out = append(out, violation.Candidate{
			Type:        violation.FaceMultiple,
			Severity:    violation.SeverityCritical,
			Confidence:  multiConfidence,
			Description: fmt.Sprintf("%d faces detected in frame", snap.FaceCount),
			Evidence:    map[string]any{"face_count": snap.FaceCount, "streak": snap.MultiFaceStreak},
		})
	}

	if snap.FaceValid {
		dx := snap.FaceCenter.X - 0.5
		dy := snap.FaceCenter.Y - 0.5
		offset := math.Sqrt(dx*dx + dy*dy)
		if offset > cfg.PositionThreshold {
			out = append(out, violation.Candidate{
				Type:        violation.FaceMispositioned,
				Severity:    violation.SeverityMedium,
				Confidence:  scaledConfidence(offset - cfg.PositionThreshold),
				Description: fmt.Sprintf("face off-center by %.2f (threshold %.2f)", offset, cfg.PositionThreshold),
				Evidence:    map[string]any{"offset": offset, "threshold": cfg.PositionThreshold},
			})
		}

		if snap.FaceSize > cfg.SizeMax {
			out = append(out, sizeCandidate("face too close to camera", snap.FaceSize, snap.FaceSize-cfg.SizeMax))
		} else if snap.FaceSize < cfg.SizeMin {
			out = append(out, sizeCandidate("face too far from camera", snap.FaceSize, cfg.SizeMin-snap.FaceSize))
		}
	}

	if snap.GazeValid {
		deviation := snap.Gaze.Sub(in.Profile.Gaze).Norm()
		if deviation > cfg.GazeThreshold {
			excess := deviation - cfg.GazeThreshold
			severity := violation.SeverityMedium
			if deviation > 2*cfg.GazeThreshold {
				severity = violation.SeverityHigh
			}
			out = append(out, violation.Candidate{
				Type:        violation.GazeDeviation,
				Severity:    severity,
				Confidence:  scaledConfidence(excess),
				Description: fmt.Sprintf("gaze deviated %.2f from baseline (threshold %.2f)", deviation, cfg.GazeThreshold),
				Evidence:    map[string]any{"deviation": deviation, "threshold": cfg.GazeThreshold},
			})
		}
	}

	if in.ClosureFor > cfg.ClosureDuration {
		out = append(out, violation.Candidate{
			Type:        violation.ProlongedEyeClosure,
			Severity:    violation.SeverityMedium,
			Confidence:  closureConfidence,
			Description: fmt.Sprintf("eyes closed for %.1fs", in.ClosureFor.Seconds()),
			Evidence: map[string]any{
				"closed_ms":       in.ClosureFor.Milliseconds(),
				"threshold_left":  in.Profile.EARLeft * cfg.ClosureFactor,
				"threshold_right": in.Profile.EARRight * cfg.ClosureFactor,
			},
		})
	}

	if snap.EyeDeltaValid && snap.EyeDelta > cfg.MovementThreshold {
		out = append(out, violation.Candidate{
			Type:        violation.RapidEyeMovement,
			Severity:    violation.SeverityLow,
			Confidence:  movementConfidence,
			Description: fmt.Sprintf("eye center jumped %.2f between frames", snap.EyeDelta),
			Evidence:    map[string]any{"delta": snap.EyeDelta, "threshold": cfg.MovementThreshold},
		})
	}

	if snap.PersonCount > 1 {
		out = append(out, violation.Candidate{
			Type:        violation.MultiplePeople,
			Severity:    violation.SeverityCritical,
			Confidence:  peopleConfidence,
			Description: fmt.Sprintf("%d people detected in frame", snap.PersonCount),
			Evidence:    map[string]any{"person_count": snap.PersonCount, "streak": snap.PeopleStreak},
		})
	}

	if snap.Grip != "" && snap.Grip != features.GripNone {
		out = append(out, violation.Candidate{
			Type:        violation.UnauthorizedObjectGrip,
			Severity:    violation.SeverityHigh,
			Confidence:  snap.GripConfidence,
			Description: fmt.Sprintf("hand matches %s pattern", snap.Grip),
			Evidence:    map[string]any{"pattern": string(snap.Grip)},
		})
	}

	if snap.MouthTalking {
		out = append(out, violation.Candidate{
			Type:        violation.Talking,
			Severity:    violation.SeverityMedium,
			Confidence:  talkingConfidence,
			Description: fmt.Sprintf("sustained talking for %d frames", snap.MouthStreak),
			Evidence:    map[string]any{"open_frames": snap.MouthStreak},
		})
	}

	return out
}

func sizeCandidate(desc string, size, excess float64) violation.Candidate {
	return violation.Candidate{
		Type:        violation.FaceWrongSize,
		Severity:    violation.SeverityMedium,
		Confidence:  scaledConfidence(excess),
		Description: desc,
		Evidence:    map[string]any{"size": size},
	}
}

// scaledConfidence maps how far a measurement exceeded its threshold
// onto [0.5, 0.9].
func scaledConfidence(excess float64) float64 {
	return math.Min(0.9, 0.5+excess)
}
