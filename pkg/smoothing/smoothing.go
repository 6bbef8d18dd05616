// Package smoothing stabilizes noisy per-frame feature samples before
// classification. Scalar and vector signals pass through fixed-capacity
// moving-average rings; presence-style boolean signals pass through
// confirmation-frame hysteresis so a single glitched frame never flips
// the confirmed state.
package smoothing

import (
	"time"

	"github.com/sensai-labs/go-proctor/pkg/features"
	"github.com/sensai-labs/go-proctor/pkg/landmarks"
)

// Config holds smoothing parameters.
type Config struct {
	// WindowFrames is the ring capacity for moving averages.
	WindowFrames int

	// ConfirmFrames is how many consecutive no-face frames are needed
	// before absence is confirmed.
	ConfirmFrames int

	// MouthConfirmFrames is how many consecutive open-mouth frames are
	// needed before the examinee reads as talking.
	MouthConfirmFrames int

	// MouthOpenRatio is the mouth ratio above which the mouth counts
	// as open for the talking monitor.
	MouthOpenRatio float64
}

// DefaultConfig returns smoothing defaults.
func DefaultConfig() Config {
	return Config{
		WindowFrames:       10,    // moving-average window
		ConfirmFrames:      15,    // absence confirmation
		MouthConfirmFrames: 10,    // talking confirmation
		MouthOpenRatio:     0.025, // inner-lip gap over mouth width
	}
}

// Snapshot is the stabilized view of the signal stream after one frame,
// the classifier's sole input besides the calibration baseline.
type Snapshot struct {
	Timestamp time.Time

	// Raw per-frame counts. Multi-detection rules act on these
	// directly; the streaks record persistence for evidence.
	FaceCount       int
	PersonCount     int
	MultiFaceStreak int
	PeopleStreak    int

	// Absence after hysteresis.
	AbsentStreak    int
	AbsentConfirmed bool

	// Moving averages. Validity mirrors whether any samples are
	// buffered for the signal.
	EARLeft  float64
	EARRight float64
	EARValid bool

	Gaze      features.Vec2
	GazeValid bool

	FaceCenter landmarks.Point
	FaceSize   float64
	FaceValid  bool

	// EyeDelta is the eye-center displacement since the previous
	// frame, defined only when both frames had a measurable eye.
	EyeDelta      float64
	EyeDeltaValid bool

	// Talking after hysteresis.
	MouthTalking bool
	MouthStreak  int

	// Grip passes through unsmoothed; its confidence is already fixed
	// per pattern.
	Grip           features.Grip
	GripConfidence float64
}

// Smoother owns the per-session signal histories. Not safe for
// concurrent use; the pipeline owns one per session.
type Smoother struct {
	cfg Config

	earLeft  *Ring
	earRight *Ring
	gaze     *VecRing
	centerX  *Ring
	centerY  *Ring
	size     *Ring

	absent *Monitor
	mouth  *Monitor

	multiFaceStreak int
	peopleStreak    int

	prevEye      landmarks.Point
	prevEyeValid bool
}

// New returns a smoother with the given configuration. Out-of-range
// values are replaced with defaults.
func New(cfg Config) *Smoother {
	def := DefaultConfig()
	if cfg.WindowFrames < 1 {
		cfg.WindowFrames = def.WindowFrames
	}
	if cfg.ConfirmFrames < 1 {
		cfg.ConfirmFrames = def.ConfirmFrames
	}
	if cfg.MouthConfirmFrames < 1 {
		cfg.MouthConfirmFrames = def.MouthConfirmFrames
	}
	if cfg.MouthOpenRatio <= 0 {
		cfg.MouthOpenRatio = def.MouthOpenRatio
	}
	return &Smoother{
		cfg:      cfg,
		earLeft:  NewRing(cfg.WindowFrames),
		earRight: NewRing(cfg.WindowFrames),
		gaze:     NewVecRing(cfg.WindowFrames),
		centerX:  NewRing(cfg.WindowFrames),
		centerY:  NewRing(cfg.WindowFrames),
		size:     NewRing(cfg.WindowFrames),
		absent:   NewMonitor(cfg.ConfirmFrames),
		mouth:    NewMonitor(cfg.MouthConfirmFrames),
	}
}

// Push folds one frame's sample into the histories and returns the
// stabilized snapshot.
func (s *Smoother) Push(sample features.Sample) Snapshot {
	snap := Snapshot{
		Timestamp:      sample.Timestamp,
		FaceCount:      sample.FaceCount,
		PersonCount:    sample.PersonCount,
		Grip:           sample.Grip,
		GripConfidence: sample.GripConfidence,
	}

	snap.AbsentConfirmed = s.absent.Observe(sample.FaceCount == 0)
	snap.AbsentStreak = s.absent.Streak()
	if snap.AbsentConfirmed {
		// A confirmed absence ends measurement continuity; histories
		// restart when the face returns.
		s.resetHistories()
	}

	if sample.FaceCount > 1 {
		s.multiFaceStreak++
	} else {
		s.multiFaceStreak = 0
	}
	snap.MultiFaceStreak = s.multiFaceStreak

	if sample.PersonCount > 1 {
		s.peopleStreak++
	} else {
		s.peopleStreak = 0
	}
	snap.PeopleStreak = s.peopleStreak

	if sample.EARValid {
		s.earLeft.Push(sample.EARLeft)
		s.earRight.Push(sample.EARRight)
	}
	if s.earLeft.Len() > 0 {
		snap.EARLeft = s.earLeft.Mean()
		snap.EARRight = s.earRight.Mean()
		snap.EARValid = true
	}

	if sample.GazeValid {
		s.gaze.Push(sample.Gaze)
	}
	if s.gaze.Len() > 0 {
		snap.Gaze = s.gaze.Mean()
		snap.GazeValid = true
	}

	if sample.FaceValid {
		s.centerX.Push(sample.FaceCenter.X)
		s.centerY.Push(sample.FaceCenter.Y)
		s.size.Push(sample.FaceSize)
	}
	if s.size.Len() > 0 {
		snap.FaceCenter = landmarks.Point{X: s.centerX.Mean(), Y: s.centerY.Mean()}
		snap.FaceSize = s.size.Mean()
		snap.FaceValid = true
	}

	if sample.EyeValid {
		if s.prevEyeValid {
			snap.EyeDelta = landmarks.Dist(sample.EyeCenter, s.prevEye)
			snap.EyeDeltaValid = true
		}
		s.prevEye = sample.EyeCenter
		s.prevEyeValid = true
	} else {
		s.prevEyeValid = false
	}

	open := sample.MouthValid && sample.MouthRatio > s.cfg.MouthOpenRatio
	snap.MouthTalking = s.mouth.Observe(open)
	snap.MouthStreak = s.mouth.Streak()

	return snap
}

// Reset clears all histories and streaks.
func (s *Smoother) Reset() {
	s.resetHistories()
	s.absent.Reset()
	s.mouth.Reset()
	s.multiFaceStreak = 0
	s.peopleStreak = 0
}

func (s *Smoother) resetHistories() {
	s.earLeft.Reset()
	s.earRight.Reset()
	s.gaze.Reset()
	s.centerX.Reset()
	s.centerY.Reset()
	s.size.Reset()
	s.prevEyeValid = false
}
