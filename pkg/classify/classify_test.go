package classify

import (
	"math"
	"testing"
	"time"

	"github.com/sensai-labs/go-proctor/pkg/calibration"
	"github.com/sensai-labs/go-proctor/pkg/features"
	"github.com/sensai-labs/go-proctor/pkg/landmarks"
	"github.com/sensai-labs/go-proctor/pkg/smoothing"
	"github.com/sensai-labs/go-proctor/pkg/violation"
)

func baseline() calibration.Profile {
	return calibration.Profile{
		EARLeft:    0.28,
		EARRight:   0.30,
		Gaze:       features.Vec2{X: 0, Y: -0.1},
		FaceCenter: landmarks.Point{X: 0.5, Y: 0.5},
		FaceSize:   0.4,
		Frames:     30,
	}
}

func nominalSnapshot() smoothing.Snapshot {
	return smoothing.Snapshot{
		FaceCount:   1,
		PersonCount: 1,
		EARLeft:     0.28,
		EARRight:    0.30,
		EARValid:    true,
		Gaze:        features.Vec2{X: 0, Y: -0.1},
		GazeValid:   true,
		FaceCenter:  landmarks.Point{X: 0.5, Y: 0.5},
		FaceSize:    0.4,
		FaceValid:   true,
		Grip:        features.GripNone,
	}
}

func findCandidate(t *testing.T, cands []violation.Candidate, typ violation.Type) violation.Candidate {
	t.Helper()
	for _, c := range cands {
		if c.Type == typ {
			return c
		}
	}
	t.Fatalf("no %s candidate among %d candidates", typ, len(cands))
	return violation.Candidate{}
}

func TestEvaluate_QuietFrame(t *testing.T) {
	got := Evaluate(DefaultConfig(), Inputs{Snapshot: nominalSnapshot(), Profile: baseline()})
	if len(got) != 0 {
		t.Errorf("expected no candidates, got %d: %v", len(got), got)
	}
}

func TestEvaluate_FaceAbsent(t *testing.T) {
	snap := smoothing.Snapshot{AbsentConfirmed: true, AbsentStreak: 16}

	got := Evaluate(DefaultConfig(), Inputs{Snapshot: snap, Profile: baseline()})
	c := findCandidate(t, got, violation.FaceAbsent)
	if c.Severity != violation.SeverityHigh {
		t.Errorf("severity = %s, want high", c.Severity)
	}
	if math.Abs(c.Confidence-0.95) > 1e-9 {
		t.Errorf("confidence = %v, want 0.95", c.Confidence)
	}
}

func TestEvaluate_MultipleFaces(t *testing.T) {
	snap := nominalSnapshot()
	snap.FaceCount = 2
	snap.MultiFaceStreak = 1

	c := findCandidate(t, Evaluate(DefaultConfig(), Inputs{Snapshot: snap, Profile: baseline()}), violation.FaceMultiple)
	if c.Severity != violation.SeverityCritical {
		t.Errorf("severity = %s, want critical", c.Severity)
	}
	if math.Abs(c.Confidence-0.9) > 1e-9 {
		t.Errorf("confidence = %v, want 0.9", c.Confidence)
	}
}

func TestEvaluate_Mispositioned(t *testing.T) {
	snap := nominalSnapshot()
	snap.FaceCenter = landmarks.Point{X: 0.9, Y: 0.5} // 0.4 off center

	c := findCandidate(t, Evaluate(DefaultConfig(), Inputs{Snapshot: snap, Profile: baseline()}), violation.FaceMispositioned)
	if c.Severity != violation.SeverityMedium {
		t.Errorf("severity = %s, want medium", c.Severity)
	}
	// Confidence scales with the 0.15 excess over the 0.25 threshold.
	if math.Abs(c.Confidence-0.65) > 1e-9 {
		t.Errorf("confidence = %v, want 0.65", c.Confidence)
	}
}

func TestEvaluate_WrongSize(t *testing.T) {
	tests := []struct {
		name string
		size float64
	}{
		{"too close", 0.80},
		{"too far", 0.05},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := nominalSnapshot()
			snap.FaceSize = tt.size

			c := findCandidate(t, Evaluate(DefaultConfig(), Inputs{Snapshot: snap, Profile: baseline()}), violation.FaceWrongSize)
			if c.Severity != violation.SeverityMedium {
				t.Errorf("severity = %s, want medium", c.Severity)
			}
		})
	}
}

func TestEvaluate_GazeDeviation(t *testing.T) {
	tests := []struct {
		name         string
		gaze         features.Vec2
		wantSeverity violation.Severity
		wantConf     float64
	}{
		{
			name:         "moderate deviation",
			gaze:         features.Vec2{X: 0.3, Y: -0.1}, // deviation 0.30
			wantSeverity: violation.SeverityMedium,
			wantConf:     0.55,
		},
		{
			name:         "large deviation escalates",
			gaze:         features.Vec2{X: 0.6, Y: -0.1}, // deviation 0.60 > 2x threshold
			wantSeverity: violation.SeverityHigh,
			wantConf:     0.85,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := nominalSnapshot()
			snap.Gaze = tt.gaze

			c := findCandidate(t, Evaluate(DefaultConfig(), Inputs{Snapshot: snap, Profile: baseline()}), violation.GazeDeviation)
			if c.Severity != tt.wantSeverity {
				t.Errorf("severity = %s, want %s", c.Severity, tt.wantSeverity)
			}
			if math.Abs(c.Confidence-tt.wantConf) > 1e-9 {
				t.Errorf("confidence = %v, want %v", c.Confidence, tt.wantConf)
			}
		})
	}
}

func TestEvaluate_ProlongedClosure(t *testing.T) {
	in := Inputs{Snapshot: nominalSnapshot(), Profile: baseline(), ClosureFor: 4100 * time.Millisecond}

	c := findCandidate(t, Evaluate(DefaultConfig(), in), violation.ProlongedEyeClosure)
	if c.Severity != violation.SeverityMedium {
		t.Errorf("severity = %s, want medium", c.Severity)
	}
	if math.Abs(c.Confidence-0.85) > 1e-9 {
		t.Errorf("confidence = %v, want 0.85", c.Confidence)
	}

	in.ClosureFor = 3900 * time.Millisecond
	for _, c := range Evaluate(DefaultConfig(), in) {
		if c.Type == violation.ProlongedEyeClosure {
			t.Error("closure fired below the sustain duration")
		}
	}
}

func TestEvaluate_RapidEyeMovement(t *testing.T) {
	snap := nominalSnapshot()
	snap.EyeDelta = 0.1
	snap.EyeDeltaValid = true

	c := findCandidate(t, Evaluate(DefaultConfig(), Inputs{Snapshot: snap, Profile: baseline()}), violation.RapidEyeMovement)
	if c.Severity != violation.SeverityLow {
		t.Errorf("severity = %s, want low", c.Severity)
	}
}

func TestEvaluate_MultiplePeople(t *testing.T) {
	snap := nominalSnapshot()
	snap.PersonCount = 2
	snap.PeopleStreak = 3

	c := findCandidate(t, Evaluate(DefaultConfig(), Inputs{Snapshot: snap, Profile: baseline()}), violation.MultiplePeople)
	if c.Severity != violation.SeverityCritical {
		t.Errorf("severity = %s, want critical", c.Severity)
	}
	if math.Abs(c.Confidence-0.9) > 1e-9 {
		t.Errorf("confidence = %v, want 0.9", c.Confidence)
	}
}

func TestEvaluate_UnauthorizedGrip(t *testing.T) {
	snap := nominalSnapshot()
	snap.Grip = features.GripPhone
	snap.GripConfidence = 0.85

	c := findCandidate(t, Evaluate(DefaultConfig(), Inputs{Snapshot: snap, Profile: baseline()}), violation.UnauthorizedObjectGrip)
	if c.Severity != violation.SeverityHigh {
		t.Errorf("severity = %s, want high", c.Severity)
	}
	if math.Abs(c.Confidence-0.85) > 1e-9 {
		t.Errorf("confidence = %v, want the pattern's 0.85", c.Confidence)
	}
}

func TestEvaluate_Talking(t *testing.T) {
	snap := nominalSnapshot()
	snap.MouthTalking = true
	snap.MouthStreak = 12

	c := findCandidate(t, Evaluate(DefaultConfig(), Inputs{Snapshot: snap, Profile: baseline()}), violation.Talking)
	if c.Severity != violation.SeverityMedium {
		t.Errorf("severity = %s, want medium", c.Severity)
	}
}

func TestClosureBelow(t *testing.T) {
	cfg := DefaultConfig() // factor 0.5: thresholds 0.14 / 0.15

	tests := []struct {
		name  string
		left  float64
		right float64
		valid bool
		want  bool
	}{
		{"both closed", 0.10, 0.10, true, true},
		{"left at threshold", 0.14, 0.10, true, false},
		{"right open", 0.10, 0.20, true, false},
		{"no measurement", 0.10, 0.10, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := smoothing.Snapshot{EARLeft: tt.left, EARRight: tt.right, EARValid: tt.valid}
			if got := ClosureBelow(cfg, baseline(), snap); got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestConfig_Normalize(t *testing.T) {
	got := Config{}.Normalize()
	if got != DefaultConfig() {
		t.Errorf("zero config normalized to %+v, want defaults", got)
	}

	bad := DefaultConfig()
	bad.SizeMax = bad.SizeMin - 0.1
	if got := bad.Normalize(); got.SizeMax <= got.SizeMin {
		t.Errorf("size bounds not repaired: min=%v max=%v", got.SizeMin, got.SizeMax)
	}
}
