package pipeline

import (
	"testing"
	"time"

	"github.com/sensai-labs/go-proctor/pkg/landmarks"
	"github.com/sensai-labs/go-proctor/pkg/violation"
)

// testFace builds a full face mesh whose extracted measurements are
// controlled: EAR per eye, centered face, baseline-stable gaze.
func testFace(earLeft, earRight float64) landmarks.Set {
	face := make(landmarks.Set, 468)
	for i := range face {
		face[i] = landmarks.Point{X: 0.5, Y: 0.5}
	}

	// Nose and chin around frame center.
	face[landmarks.NoseTip] = landmarks.Point{X: 0.5, Y: 0.45}
	face[landmarks.Chin] = landmarks.Point{X: 0.5, Y: 0.55}

	// Eye rings with 0.1 horizontal width; vertical lid distance is
	// EAR x 0.1, keeping the ring centroid fixed as the lids move.
	setRing := func(ring [6]int, cx float64, v float64) {
		face[ring[0]] = landmarks.Point{X: cx - 0.05, Y: 0.5}
		face[ring[3]] = landmarks.Point{X: cx + 0.05, Y: 0.5}
		face[ring[1]] = landmarks.Point{X: cx - 0.02, Y: 0.5 - v/2}
		face[ring[2]] = landmarks.Point{X: cx + 0.02, Y: 0.5 - v/2}
		face[ring[5]] = landmarks.Point{X: cx - 0.02, Y: 0.5 + v/2}
		face[ring[4]] = landmarks.Point{X: cx + 0.02, Y: 0.5 + v/2}
	}
	setRing(landmarks.LeftEyeRing, 0.38, earLeft*0.1)
	setRing(landmarks.RightEyeRing, 0.62, earRight*0.1)
	return face
}

func frameAt(ts time.Time, faces ...landmarks.Set) landmarks.Frame {
	return landmarks.Frame{Timestamp: ts, Faces: faces}
}

// testConfig keeps warmup and smoothing short so scenarios stay
// readable, with every frame processed.
func testConfig() Config {
	cfg := DefaultConfig()
	cfg.FrameSkip = 1
	cfg.Calibration.WarmupFrames = 5
	cfg.Smoothing.WindowFrames = 3
	return cfg
}

// calibrate feeds enough nominal frames to freeze the baseline and
// returns the timestamp after the last one.
func calibrate(t *testing.T, p *Pipeline, start time.Time, step time.Duration) time.Time {
	t.Helper()
	ts := start
	for i := 0; i < 5; i++ {
		r := p.ProcessFrame(frameAt(ts, testFace(0.28, 0.30)))
		if len(r.Events) != 0 {
			t.Fatalf("violation emitted during warmup: %v", r.Events)
		}
		ts = ts.Add(step)
	}
	if p.Calibrating() {
		t.Fatal("pipeline still calibrating after warmup frames")
	}
	return ts
}

func countEvents(results []Result, typ violation.Type) int {
	n := 0
	for _, r := range results {
		for _, e := range r.Events {
			if e.Type == typ {
				n++
			}
		}
	}
	return n
}

func TestPipeline_CalibrationGatesClassification(t *testing.T) {
	p := New("sess", testConfig(), nil)
	t0 := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

	// Two faces during warmup: the classifier is locked, so nothing
	// may be emitted yet.
	r := p.ProcessFrame(frameAt(t0, testFace(0.28, 0.30), testFace(0.28, 0.30)))
	if !r.Calibrating {
		t.Fatal("expected calibrating result")
	}
	if len(r.Events) != 0 {
		t.Fatalf("events during warmup: %v", r.Events)
	}
	if r.Remaining != 4 {
		t.Errorf("remaining = %d, want 4", r.Remaining)
	}
}

func TestPipeline_ProlongedEyeClosureScenario(t *testing.T) {
	p := New("sess", testConfig(), nil)
	t0 := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	step := 100 * time.Millisecond

	ts := calibrate(t, p, t0, step)

	// Baseline {0.28, 0.30} with closure factor 0.5 puts the closure
	// thresholds at {0.14, 0.15}. EAR 0.10 sits below both; sustained
	// past 4000ms it must emit exactly one medium/0.85 violation.
	var results []Result
	for i := 0; i < 45; i++ {
		results = append(results, p.ProcessFrame(frameAt(ts, testFace(0.10, 0.10))))
		ts = ts.Add(step)
	}

	if got := countEvents(results, violation.ProlongedEyeClosure); got != 1 {
		t.Fatalf("prolonged-eye-closure events = %d, want exactly 1", got)
	}
	for _, r := range results {
		for _, e := range r.Events {
			if e.Type != violation.ProlongedEyeClosure {
				continue
			}
			if e.Severity != violation.SeverityMedium {
				t.Errorf("severity = %s, want medium", e.Severity)
			}
			if e.Confidence != 0.85 {
				t.Errorf("confidence = %v, want 0.85", e.Confidence)
			}
		}
	}
}

func TestPipeline_ClosureIntervalResets(t *testing.T) {
	p := New("sess", testConfig(), nil)
	t0 := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	step := 100 * time.Millisecond

	ts := calibrate(t, p, t0, step)

	// Closed for 2s, open, closed for 2s: neither stretch crosses the
	// 4s sustain requirement, so nothing may fire.
	var results []Result
	for i := 0; i < 20; i++ {
		results = append(results, p.ProcessFrame(frameAt(ts, testFace(0.10, 0.10))))
		ts = ts.Add(step)
	}
	for i := 0; i < 5; i++ {
		results = append(results, p.ProcessFrame(frameAt(ts, testFace(0.28, 0.30))))
		ts = ts.Add(step)
	}
	for i := 0; i < 20; i++ {
		results = append(results, p.ProcessFrame(frameAt(ts, testFace(0.10, 0.10))))
		ts = ts.Add(step)
	}

	if got := countEvents(results, violation.ProlongedEyeClosure); got != 0 {
		t.Errorf("closure events = %d, want 0 for interrupted closures", got)
	}
}

func TestPipeline_MultiplePeopleScenario(t *testing.T) {
	cfg := testConfig()
	p := New("sess", cfg, nil)
	t0 := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	step := 100 * time.Millisecond

	ts := calibrate(t, p, t0, step)

	// Two pose sets for three consecutive frames: exactly one
	// critical multiple-people violation, first occurrence never
	// suppressed.
	var results []Result
	for i := 0; i < 3; i++ {
		frame := frameAt(ts, testFace(0.28, 0.30))
		frame.Poses = []landmarks.Set{make(landmarks.Set, 33), make(landmarks.Set, 33)}
		results = append(results, p.ProcessFrame(frame))
		ts = ts.Add(step)
	}

	if got := countEvents(results, violation.MultiplePeople); got != 1 {
		t.Fatalf("multiple-people events = %d, want exactly 1", got)
	}
	e := results[0].Events[0]
	if e.Severity != violation.SeverityCritical {
		t.Errorf("severity = %s, want critical", e.Severity)
	}
	if e.Confidence != 0.9 {
		t.Errorf("confidence = %v, want 0.9", e.Confidence)
	}
}

func TestPipeline_AbsenceHysteresis(t *testing.T) {
	cfg := testConfig()
	p := New("sess", cfg, nil)
	t0 := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	step := 50 * time.Millisecond

	ts := calibrate(t, p, t0, step)

	// A single dropped frame among present ones must not fire.
	var results []Result
	for i := 0; i < 20; i++ {
		frame := frameAt(ts)
		if i != 10 {
			frame.Faces = []landmarks.Set{testFace(0.28, 0.30)}
		}
		results = append(results, p.ProcessFrame(frame))
		ts = ts.Add(step)
	}
	if got := countEvents(results, violation.FaceAbsent); got != 0 {
		t.Fatalf("face-absent events = %d after one-frame dropout, want 0", got)
	}

	// Sixteen consecutive absent frames must fire exactly once.
	results = results[:0]
	for i := 0; i < 16; i++ {
		results = append(results, p.ProcessFrame(frameAt(ts)))
		ts = ts.Add(step)
	}
	if got := countEvents(results, violation.FaceAbsent); got != 1 {
		t.Errorf("face-absent events = %d after 16 absent frames, want exactly 1", got)
	}
}

func TestPipeline_FrameSkip(t *testing.T) {
	cfg := testConfig()
	cfg.FrameSkip = 3
	p := New("sess", cfg, nil)
	t0 := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

	for i := 0; i < 9; i++ {
		p.ProcessFrame(frameAt(t0.Add(time.Duration(i)*33*time.Millisecond), testFace(0.28, 0.30)))
	}

	m := p.Metrics()
	if m.FramesSeen != 9 || m.FramesProcessed != 3 || m.FramesSkipped != 6 {
		t.Errorf("seen/processed/skipped = %d/%d/%d, want 9/3/6",
			m.FramesSeen, m.FramesProcessed, m.FramesSkipped)
	}
}

func TestPipeline_StopAndReset(t *testing.T) {
	p := New("sess", testConfig(), nil)
	t0 := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

	ts := calibrate(t, p, t0, 100*time.Millisecond)

	p.Stop()
	if r := p.ProcessFrame(frameAt(ts, testFace(0.28, 0.30))); !r.Skipped {
		t.Error("stopped pipeline still processing")
	}
	if got := p.Metrics().FramesSeen; got != 5 {
		t.Errorf("frames seen after stop = %d, want 5", got)
	}

	p.Reset()
	if !p.Active() || !p.Calibrating() {
		t.Error("reset should reactivate and restart calibration")
	}
	if p.Metrics() != (Metrics{}) {
		t.Errorf("metrics after reset = %+v", p.Metrics())
	}
}

func TestPipeline_OutOfOrderFrames(t *testing.T) {
	p := New("sess", testConfig(), nil)
	t0 := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	step := 100 * time.Millisecond

	ts := calibrate(t, p, t0, step)

	// Hold eyes closed for 3s of forward progress, then deliver a
	// frame stamped in the past: the closure clock must not jump.
	for i := 0; i < 30; i++ {
		p.ProcessFrame(frameAt(ts, testFace(0.10, 0.10)))
		ts = ts.Add(step)
	}
	r := p.ProcessFrame(frameAt(ts.Add(-10*time.Second), testFace(0.10, 0.10)))
	if got := len(r.Events); got != 0 {
		t.Errorf("out-of-order frame produced %d events", got)
	}
}
