// Package calibration learns a per-session baseline during the opening
// frames of an exam. Every examinee sits at a different distance with
// different eye geometry, so thresholds are expressed relative to these
// baselines rather than as absolutes.
package calibration

import (
	"github.com/sensai-labs/go-proctor/pkg/features"
	"github.com/sensai-labs/go-proctor/pkg/landmarks"
)

// State represents the calibrator lifecycle.
type State int

const (
	// StateWarmup means baselines are still accumulating.
	StateWarmup State = iota
	// StateReady means baselines are frozen and usable.
	StateReady
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateWarmup:
		return "warmup"
	case StateReady:
		return "ready"
	default:
		return "unknown"
	}
}

// Config holds calibration parameters.
type Config struct {
	// WarmupFrames is how many frames with a measurable face must be
	// observed before baselines freeze.
	WarmupFrames int
}

// DefaultConfig returns calibration defaults.
func DefaultConfig() Config {
	return Config{
		WarmupFrames: 30, // roughly 3s at 10 fps
	}
}

// Profile is a frozen baseline snapshot.
type Profile struct {
	EARLeft    float64         `json:"ear_left"`
	EARRight   float64         `json:"ear_right"`
	Gaze       features.Vec2   `json:"gaze"`
	FaceCenter landmarks.Point `json:"face_center"`
	FaceSize   float64         `json:"face_size"`

	// Frames is how many face-bearing frames built this profile.
	Frames int `json:"frames"`
}

// Calibrator accumulates running means over warmup frames and freezes
// them into a Profile. Not safe for concurrent use; the pipeline owns
// one per session.
type Calibrator struct {
	cfg     Config
	state   State
	profile Profile

	earN  int
	gazeN int
	geoN  int
}

// New returns a calibrator in the warmup state.
func New(cfg Config) *Calibrator {
	if cfg.WarmupFrames <= 0 {
		cfg.WarmupFrames = DefaultConfig().WarmupFrames
	}
	return &Calibrator{cfg: cfg}
}

// State returns the current lifecycle state.
func (c *Calibrator) State() State { return c.state }

// Ready reports whether baselines are frozen.
func (c *Calibrator) Ready() bool { return c.state == StateReady }

// Remaining returns how many face-bearing frames are still needed.
func (c *Calibrator) Remaining() int {
	if c.state == StateReady {
		return 0
	}
	return c.cfg.WarmupFrames - c.profile.Frames
}

// Observe folds one frame's measurements into the running baselines and
// returns the state afterwards. Frames without a measurable face do not
// advance the warmup counter. Once ready, observations are ignored and
// the profile stays frozen.
func (c *Calibrator) Observe(s features.Sample) State {
	if c.state == StateReady {
		return c.state
	}
	if !s.FaceValid {
		return c.state
	}

	c.profile.Frames++

	c.geoN++
	foldMean(&c.profile.FaceCenter.X, c.geoN, s.FaceCenter.X)
	foldMean(&c.profile.FaceCenter.Y, c.geoN, s.FaceCenter.Y)
	foldMean(&c.profile.FaceSize, c.geoN, s.FaceSize)

	if s.EARValid {
		c.earN++
		foldMean(&c.profile.EARLeft, c.earN, s.EARLeft)
		foldMean(&c.profile.EARRight, c.earN, s.EARRight)
	}
	if s.GazeValid {
		c.gazeN++
		foldMean(&c.profile.Gaze.X, c.gazeN, s.Gaze.X)
		foldMean(&c.profile.Gaze.Y, c.gazeN, s.Gaze.Y)
	}

	if c.profile.Frames >= c.cfg.WarmupFrames {
		c.freeze()
	}
	return c.state
}

// Profile returns the frozen baseline. ok is false until warmup has
// completed.
func (c *Calibrator) Profile() (Profile, bool) {
	if c.state != StateReady {
		return Profile{}, false
	}
	return c.profile, true
}

// Reset discards all baselines and restarts warmup.
func (c *Calibrator) Reset() {
	*c = Calibrator{cfg: c.cfg}
}

func (c *Calibrator) freeze() {
	// An examinee who never produced a clean eye ring during warmup
	// still needs an eye baseline to compare against.
	if c.earN == 0 {
		c.profile.EARLeft = features.DefaultEAR
		c.profile.EARRight = features.DefaultEAR
	}
	c.state = StateReady
}

// foldMean folds value v into a running mean that has seen n samples,
// n including v.
func foldMean(mean *float64, n int, v float64) {
	*mean += (v - *mean) / float64(n)
}
