package throttle

import (
	"testing"
	"time"

	"github.com/sensai-labs/go-proctor/pkg/violation"
)

func cand(typ violation.Type, sev violation.Severity, conf float64) violation.Candidate {
	return violation.Candidate{Type: typ, Severity: sev, Confidence: conf}
}

func TestEngine_FirstOccurrenceAllowed(t *testing.T) {
	e := New(DefaultConfig())
	now := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

	d := e.Check(now, cand(violation.MultiplePeople, violation.SeverityCritical, 0.9))
	if !d.Allowed || d.Reason != ReasonOK {
		t.Errorf("first occurrence: allowed=%v reason=%q, want allowed/ok", d.Allowed, d.Reason)
	}
}

func TestEngine_ProgressiveBackoff(t *testing.T) {
	e := New(Config{
		BaseInterval:  3 * time.Second,
		Multiplier:    1.5,
		MaxExponent:   5,
		MinConfidence: 0.5,
	})
	t0 := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	c := cand(violation.GazeDeviation, violation.SeverityMedium, 0.8)

	// Attempts at 0/1000/2000/3000/4000ms: only the first may pass,
	// because after one emission the window is 3000 x 1.5 = 4500ms.
	var allowed []time.Duration
	for _, offset := range []time.Duration{0, time.Second, 2 * time.Second, 3 * time.Second, 4 * time.Second} {
		if e.Check(t0.Add(offset), c).Allowed {
			allowed = append(allowed, offset)
		}
	}
	if len(allowed) != 1 || allowed[0] != 0 {
		t.Fatalf("allowed at %v, want only t=0", allowed)
	}

	if d := e.Check(t0.Add(4499*time.Millisecond), c); d.Allowed {
		t.Error("emission allowed just inside the 4500ms window")
	}
	if d := e.Check(t0.Add(4500*time.Millisecond), c); !d.Allowed {
		t.Errorf("emission blocked at window edge: %+v", d)
	}
}

func TestEngine_SuppressedAttemptsDoNotWidenWindow(t *testing.T) {
	e := New(DefaultConfig())
	t0 := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	c := cand(violation.FaceAbsent, violation.SeverityHigh, 0.95)

	e.Check(t0, c)
	for i := 1; i <= 10; i++ {
		e.Check(t0.Add(time.Duration(i)*100*time.Millisecond), c)
	}

	// Ten suppressed repeats must not advance the backoff exponent.
	if d := e.Check(t0.Add(4500*time.Millisecond), c); !d.Allowed {
		t.Errorf("window widened by suppressed attempts: %+v", d)
	}
}

func TestEngine_ConfidenceFloor(t *testing.T) {
	e := New(DefaultConfig())
	now := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

	d := e.Check(now, cand(violation.RapidEyeMovement, violation.SeverityLow, 0.4))
	if d.Allowed || d.Reason != ReasonLowConfidence {
		t.Errorf("got allowed=%v reason=%q, want confidence rejection", d.Allowed, d.Reason)
	}

	// Rejection must not consume the key's first-occurrence pass.
	d = e.Check(now, cand(violation.RapidEyeMovement, violation.SeverityLow, 0.6))
	if !d.Allowed {
		t.Errorf("first confident occurrence blocked: %+v", d)
	}
}

func TestEngine_SeveritiesAreIndependentKeys(t *testing.T) {
	e := New(DefaultConfig())
	now := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

	if !e.Check(now, cand(violation.GazeDeviation, violation.SeverityMedium, 0.8)).Allowed {
		t.Fatal("medium blocked")
	}
	// Same type at a different severity is a fresh key.
	if !e.Check(now, cand(violation.GazeDeviation, violation.SeverityHigh, 0.8)).Allowed {
		t.Error("high blocked by medium's state")
	}
}

func TestEngine_PerTypeOverride(t *testing.T) {
	e := New(DefaultConfig())
	t0 := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	c := cand(violation.ProlongedEyeClosure, violation.SeverityMedium, 0.85)

	if !e.Check(t0, c).Allowed {
		t.Fatal("first closure blocked")
	}
	// Repeat within 4000ms is suppressed under the closure override.
	if d := e.Check(t0.Add(3900*time.Millisecond), c); d.Allowed {
		t.Error("closure repeat within 4000ms was emitted")
	}

	if got := e.interval(violation.ProlongedEyeClosure, 0); got != 4*time.Second {
		t.Errorf("closure base interval = %v, want 4s", got)
	}
	if got := e.interval(violation.GazeDeviation, 0); got != 3*time.Second {
		t.Errorf("default base interval = %v, want 3s", got)
	}
}

func TestEngine_MaxExponentBound(t *testing.T) {
	e := New(Config{BaseInterval: time.Second, Multiplier: 2, MaxExponent: 3, MinConfidence: 0})

	if got := e.interval(violation.FaceAbsent, 3); got != 8*time.Second {
		t.Errorf("interval at exponent 3 = %v, want 8s", got)
	}
	if got := e.interval(violation.FaceAbsent, 50); got != 8*time.Second {
		t.Errorf("interval beyond cap = %v, want 8s", got)
	}
}

func TestEngine_ClockNeverRegresses(t *testing.T) {
	e := New(DefaultConfig())
	t0 := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	c := cand(violation.FaceMultiple, violation.SeverityCritical, 0.9)

	e.Check(t0, c)

	// An out-of-order frame reads as zero elapsed time.
	d := e.Check(t0.Add(-10*time.Second), c)
	if d.Allowed {
		t.Fatal("out-of-order frame was emitted")
	}
	if d.Wait <= 0 {
		t.Errorf("wait = %v, want positive", d.Wait)
	}

	// State still keyed to the original emission time.
	if d := e.Check(t0.Add(4500*time.Millisecond), c); !d.Allowed {
		t.Errorf("state corrupted by out-of-order frame: %+v", d)
	}
}

func TestEngine_StatsAndReset(t *testing.T) {
	e := New(DefaultConfig())
	t0 := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	c := cand(violation.GazeDeviation, violation.SeverityMedium, 0.8)

	e.Check(t0, c)
	e.Check(t0.Add(time.Second), c)
	e.Check(t0, cand(violation.GazeDeviation, violation.SeverityMedium, 0.1))

	got := e.Stats()
	want := Stats{Allowed: 1, Suppressed: 1, LowConfidence: 1}
	if got != want {
		t.Errorf("stats = %+v, want %+v", got, want)
	}

	e.Reset()
	if e.Stats() != (Stats{}) {
		t.Errorf("stats after reset = %+v", e.Stats())
	}
	if !e.Check(t0.Add(time.Second), c).Allowed {
		t.Error("key state survived reset")
	}
}
