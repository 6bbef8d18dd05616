package smoothing

// Monitor is a confirmation-frame hysteresis filter for boolean
// signals. The active state is confirmed only after it has held for
// confirmFrames consecutive observations; a single inactive frame
// resets the streak. This keeps one-frame detector glitches from
// reading as real state changes.
type Monitor struct {
	confirm int
	streak  int
}

// NewMonitor returns a monitor requiring confirmFrames consecutive
// active observations before confirming.
func NewMonitor(confirmFrames int) *Monitor {
	if confirmFrames < 1 {
		confirmFrames = 1
	}
	return &Monitor{confirm: confirmFrames}
}

// Observe feeds one frame's signal state and reports whether the
// active state is now confirmed.
func (m *Monitor) Observe(active bool) bool {
	if active {
		m.streak++
	} else {
		m.streak = 0
	}
	return m.streak >= m.confirm
}

// Confirmed reports the current confirmation state without observing.
func (m *Monitor) Confirmed() bool { return m.streak >= m.confirm }

// Streak returns how many consecutive active frames have been seen.
func (m *Monitor) Streak() int { return m.streak }

// Reset clears the streak.
func (m *Monitor) Reset() { m.streak = 0 }
