// Package throttle enforces minimum inter-emission intervals per
// (violation type, severity) pair with progressive backoff, plus a
// minimum-confidence gate. The first occurrence of a key is never
// suppressed; each emission afterwards widens the window by a
// multiplier, bounded by a maximum exponent.
package throttle

import (
	"fmt"
	"math"
	"time"

	"github.com/sensai-labs/go-proctor/pkg/violation"
)

// Key identifies one throttle bucket.
type Key struct {
	Type     violation.Type
	Severity violation.Severity
}

// Config holds throttling parameters.
type Config struct {
	// BaseInterval is the minimum gap between emissions of the same
	// key before backoff applies.
	BaseInterval time.Duration

	// Multiplier widens the interval after each emission; must be >= 1.
	Multiplier float64

	// MaxExponent bounds the backoff so suppression windows stop
	// growing after this many emissions.
	MaxExponent int

	// MinConfidence rejects candidates below this floor outright,
	// regardless of throttle state.
	MinConfidence float64

	// PerType overrides BaseInterval for specific violation types.
	PerType map[violation.Type]time.Duration
}

// DefaultConfig returns the recommended throttling parameters.
func DefaultConfig() Config {
	return Config{
		BaseInterval:  3 * time.Second,
		Multiplier:    1.5,
		MaxExponent:   5, // caps the window at base x 7.59
		MinConfidence: 0.5,
		PerType: map[violation.Type]time.Duration{
			// Closures already carry a 4s sustain requirement; repeats
			// inside that horizon are noise.
			violation.ProlongedEyeClosure: 4 * time.Second,
		},
	}
}

// Normalize clamps out-of-range values to usable defaults.
func (c Config) Normalize() Config {
	def := DefaultConfig()
	if c.BaseInterval <= 0 {
		c.BaseInterval = def.BaseInterval
	}
	if c.Multiplier < 1 {
		c.Multiplier = def.Multiplier
	}
	if c.MaxExponent < 0 {
		c.MaxExponent = def.MaxExponent
	}
	if c.MinConfidence < 0 || c.MinConfidence > 1 {
		c.MinConfidence = def.MinConfidence
	}
	return c
}

// Decision reasons.
const (
	ReasonOK            = "ok"
	ReasonLowConfidence = "low_confidence"
	ReasonThrottled     = "throttled"
)

// Decision explains what happened to one candidate.
type Decision struct {
	Allowed bool
	Reason  string
	Detail  string

	// Wait is how long until the key's window reopens; zero when
	// allowed or rejected on confidence.
	Wait time.Duration
}

// Stats are cumulative per-session throttle metrics.
type Stats struct {
	Allowed       int
	Suppressed    int
	LowConfidence int
}

type keyState struct {
	last  time.Time
	count int
}

// Engine tracks per-key emission state for one session. Not safe for
// concurrent use; the pipeline owns one per session.
type Engine struct {
	cfg    Config
	states map[Key]keyState
	stats  Stats
}

// New returns an engine with normalized configuration.
func New(cfg Config) *Engine {
	return &Engine{
		cfg:    cfg.Normalize(),
		states: make(map[Key]keyState),
	}
}

// Check decides whether a candidate may be emitted at the given time
// and records the emission when allowed. Timestamps never move
// backwards: an out-of-order frame is treated as arriving at the last
// recorded instant.
func (e *Engine) Check(now time.Time, c violation.Candidate) Decision {
	if c.Confidence < e.cfg.MinConfidence {
		e.stats.LowConfidence++
		return Decision{
			Reason: ReasonLowConfidence,
			Detail: fmt.Sprintf("confidence %.2f below floor %.2f", c.Confidence, e.cfg.MinConfidence),
		}
	}

	key := Key{Type: c.Type, Severity: c.Severity}
	st, seen := e.states[key]
	if !seen {
		e.states[key] = keyState{last: now, count: 1}
		e.stats.Allowed++
		return Decision{Allowed: true, Reason: ReasonOK}
	}

	interval := e.interval(key.Type, st.count)
	elapsed := now.Sub(st.last)
	if elapsed < 0 {
		elapsed = 0
	}
	if elapsed < interval {
		e.stats.Suppressed++
		return Decision{
			Reason: ReasonThrottled,
			Detail: fmt.Sprintf("%s repeated within %s window", key.Type, interval),
			Wait:   interval - elapsed,
		}
	}

	e.states[key] = keyState{last: now, count: st.count + 1}
	e.stats.Allowed++
	return Decision{Allowed: true, Reason: ReasonOK}
}

// Stats returns the cumulative session metrics.
func (e *Engine) Stats() Stats { return e.stats }

// Reset drops all per-key state and metrics, as on session restart.
func (e *Engine) Reset() {
	e.states = make(map[Key]keyState)
	e.stats = Stats{}
}

func (e *Engine) interval(t violation.Type, emissions int) time.Duration {
	base := e.cfg.BaseInterval
	if override, ok := e.cfg.PerType[t]; ok && override > 0 {
		base = override
	}
	exp := emissions
	if exp > e.cfg.MaxExponent {
		exp = e.cfg.MaxExponent
	}
	scale := math.Pow(e.cfg.Multiplier, float64(exp))
	return time.Duration(float64(base) * scale)
}
