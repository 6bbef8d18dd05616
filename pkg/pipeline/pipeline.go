// Package pipeline wires the per-session violation path: feature
// extraction, calibration, smoothing, classification, throttling, and
// emission. One Pipeline instance owns all mutable state for one exam
// session and is driven synchronously by the capture callback, one
// frame at a time.
package pipeline

import (
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/sensai-labs/go-proctor/internal/log"
	"github.com/sensai-labs/go-proctor/pkg/calibration"
	"github.com/sensai-labs/go-proctor/pkg/classify"
	"github.com/sensai-labs/go-proctor/pkg/features"
	"github.com/sensai-labs/go-proctor/pkg/landmarks"
	"github.com/sensai-labs/go-proctor/pkg/smoothing"
	"github.com/sensai-labs/go-proctor/pkg/throttle"
	"github.com/sensai-labs/go-proctor/pkg/violation"
)

// Config aggregates all pipeline stage parameters.
type Config struct {
	// FrameSkip processes every Nth callback frame; the rest are
	// counted and discarded. This is the only backpressure mechanism.
	FrameSkip int

	Calibration calibration.Config
	Smoothing   smoothing.Config
	Classify    classify.Config
	Throttle    throttle.Config

	// Emission
	EmitBuffer  int           // emitter queue capacity
	EmitTimeout time.Duration // per-event sink deadline
}

// DefaultConfig returns the recommended pipeline configuration.
func DefaultConfig() Config {
	return Config{
		FrameSkip:   3, // process every 3rd frame
		Calibration: calibration.DefaultConfig(),
		Smoothing:   smoothing.DefaultConfig(),
		Classify:    classify.DefaultConfig(),
		Throttle:    throttle.DefaultConfig(),
		EmitBuffer:  64,
		EmitTimeout: 2 * time.Second,
	}
}

// StrictConfig tightens thresholds for high-stakes exams: faster
// confirmation, tighter gaze and closure limits, lower confidence
// floor.
func StrictConfig() Config {
	cfg := DefaultConfig()
	cfg.FrameSkip = 2
	cfg.Smoothing.ConfirmFrames = 10
	cfg.Classify.GazeThreshold = 0.15
	cfg.Classify.PositionThreshold = 0.20
	cfg.Classify.ClosureDuration = 3 * time.Second
	cfg.Throttle.MinConfidence = 0.4
	return cfg
}

// LenientConfig relaxes thresholds for low-stakes or poorly-lit
// settings where false positives cost more than misses.
func LenientConfig() Config {
	cfg := DefaultConfig()
	cfg.Smoothing.ConfirmFrames = 20
	cfg.Classify.GazeThreshold = 0.4
	cfg.Classify.PositionThreshold = 0.30
	cfg.Classify.ClosureDuration = 5 * time.Second
	cfg.Throttle.MinConfidence = 0.6
	return cfg
}

// Normalize clamps out-of-range values across all stages.
func (c Config) Normalize() Config {
	if c.FrameSkip < 1 {
		c.FrameSkip = 1
	}
	if c.EmitBuffer < 1 {
		c.EmitBuffer = DefaultConfig().EmitBuffer
	}
	if c.EmitTimeout <= 0 {
		c.EmitTimeout = DefaultConfig().EmitTimeout
	}
	c.Classify = c.Classify.Normalize()
	c.Throttle = c.Throttle.Normalize()
	return c
}

// Metrics counts per-session pipeline outcomes.
type Metrics struct {
	FramesSeen      uint64
	FramesProcessed uint64
	FramesSkipped   uint64
	Candidates      int
	Emitted         int
	Suppressed      int
	LowConfidence   int
}

// Result summarizes one ProcessFrame call.
type Result struct {
	// Skipped is set for frame-skip, inactive-pipeline, and
	// out-of-order frames.
	Skipped bool

	// Calibrating is set while the warmup baseline is accumulating;
	// Remaining counts the face-bearing frames still needed.
	Calibrating bool
	Remaining   int

	// Sample and Snapshot expose the frame's raw and smoothed
	// measurements once calibration has completed.
	Sample   features.Sample
	Snapshot smoothing.Snapshot

	// Events are the violations that survived throttling this frame.
	Events []violation.Event
}

// Pipeline converts landmark frames into throttled violation events.
// ProcessFrame and Reset must be called from a single goroutine; Stop,
// Active, and Metrics are safe from any goroutine.
type Pipeline struct {
	cfg       Config
	sessionID string
	logger    *slog.Logger

	calibrator *calibration.Calibrator
	smoother   *smoothing.Smoother
	engine     *throttle.Engine
	emitter    *Emitter

	active     atomic.Bool
	frameCount uint64
	lastFrame  time.Time

	closureStart time.Time

	metrics Metrics
}

// New builds a pipeline for one session. A nil sink disables
// asynchronous emission; events are still returned from ProcessFrame.
func New(sessionID string, cfg Config, sink Sink) *Pipeline {
	cfg = cfg.Normalize()
	p := &Pipeline{
		cfg:        cfg,
		sessionID:  sessionID,
		logger:     log.WithSession(sessionID),
		calibrator: calibration.New(cfg.Calibration),
		smoother:   smoothing.New(cfg.Smoothing),
		engine:     throttle.New(cfg.Throttle),
	}
	if sink != nil {
		p.emitter = NewEmitter(sink, cfg.EmitBuffer, cfg.EmitTimeout)
	}
	p.active.Store(true)
	return p
}

// ProcessFrame runs one captured frame through every stage and returns
// what it produced. The frame's own timestamp drives all temporal
// logic, so replayed sessions behave identically to live ones.
func (p *Pipeline) ProcessFrame(frame landmarks.Frame) Result {
	if !p.active.Load() {
		return Result{Skipped: true}
	}

	n := p.frameCount
	p.frameCount++
	p.metrics.FramesSeen++
	if n%uint64(p.cfg.FrameSkip) != 0 {
		p.metrics.FramesSkipped++
		return Result{Skipped: true}
	}

	frame.Normalize(time.Now())
	ts := frame.Timestamp
	if ts.Before(p.lastFrame) {
		// Out-of-order capture timestamps would run temporal logic
		// backwards; pin them to the newest frame seen.
		ts = p.lastFrame
	} else {
		p.lastFrame = ts
	}

	sample := features.Extract(frame)
	p.metrics.FramesProcessed++

	if !p.calibrator.Ready() {
		if p.calibrator.Observe(sample) == calibration.StateReady {
			profile, _ := p.calibrator.Profile()
			p.logger.Info("calibration complete",
				"frames", profile.Frames,
				"ear_left", profile.EARLeft,
				"ear_right", profile.EARRight,
				"face_size", profile.FaceSize)
		}
		return Result{
			Calibrating: p.calibrator.State() == calibration.StateWarmup,
			Remaining:   p.calibrator.Remaining(),
			Sample:      sample,
		}
	}

	profile, _ := p.calibrator.Profile()
	snap := p.smoother.Push(sample)

	var closureFor time.Duration
	if classify.ClosureBelow(p.cfg.Classify, profile, snap) {
		if p.closureStart.IsZero() {
			p.closureStart = ts
		}
		closureFor = ts.Sub(p.closureStart)
	} else {
		p.closureStart = time.Time{}
	}

	candidates := classify.Evaluate(p.cfg.Classify, classify.Inputs{
		Snapshot:   snap,
		Profile:    profile,
		ClosureFor: closureFor,
	})
	p.metrics.Candidates += len(candidates)

	result := Result{Sample: sample, Snapshot: snap}
	for _, c := range candidates {
		decision := p.engine.Check(ts, c)
		if !decision.Allowed {
			switch decision.Reason {
			case throttle.ReasonLowConfidence:
				p.metrics.LowConfidence++
			default:
				p.metrics.Suppressed++
			}
			continue
		}

		ev := violation.NewEvent(p.sessionID, ts, c)
		if p.emitter != nil {
			p.emitter.Offer(ev)
		}
		result.Events = append(result.Events, ev)
		p.metrics.Emitted++
		p.logger.Info("violation",
			"violation_id", ev.ID,
			"type", ev.Type,
			"severity", ev.Severity,
			"confidence", ev.Confidence)
	}

	return result
}

// Calibrating reports whether the pipeline is still in warmup.
func (p *Pipeline) Calibrating() bool { return !p.calibrator.Ready() }

// Profile returns the frozen calibration baseline once available.
func (p *Pipeline) Profile() (calibration.Profile, bool) { return p.calibrator.Profile() }

// Metrics returns a copy of the session counters.
func (p *Pipeline) Metrics() Metrics { return p.metrics }

// ThrottleStats returns the cumulative throttle metrics.
func (p *Pipeline) ThrottleStats() throttle.Stats { return p.engine.Stats() }

// EmitterStats returns the emitter counters; zero when no sink is
// attached.
func (p *Pipeline) EmitterStats() EmitterStats {
	if p.emitter == nil {
		return EmitterStats{}
	}
	return p.emitter.Stats()
}

// Active reports whether frames are being accepted.
func (p *Pipeline) Active() bool { return p.active.Load() }

// Stop deactivates the pipeline; subsequent callbacks no-op. Already
// queued events continue draining to the sink.
func (p *Pipeline) Stop() { p.active.Store(false) }

// Reset restarts the session: calibration, histories, throttle state,
// and counters all return to their initial state. The emitter and its
// sink are kept.
func (p *Pipeline) Reset() {
	p.calibrator.Reset()
	p.smoother.Reset()
	p.engine.Reset()
	p.frameCount = 0
	p.lastFrame = time.Time{}
	p.closureStart = time.Time{}
	p.metrics = Metrics{}
	p.active.Store(true)
}

// Close stops the pipeline and flushes the emitter.
func (p *Pipeline) Close() {
	p.Stop()
	if p.emitter != nil {
		p.emitter.Close()
	}
}
