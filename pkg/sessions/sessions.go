// Package sessions owns the arena of live proctoring sessions. Each
// session holds its own pipeline, frame budget, and activity clock; no
// pipeline state is shared between sessions. A janitor reaps sessions
// that stop sending frames.
package sessions

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/sensai-labs/go-proctor/internal/log"
	"github.com/sensai-labs/go-proctor/pkg/calibration"
	"github.com/sensai-labs/go-proctor/pkg/landmarks"
	"github.com/sensai-labs/go-proctor/pkg/pipeline"
	"github.com/sensai-labs/go-proctor/pkg/throttle"
)

var (
	// ErrNotFound is returned for unknown session ids.
	ErrNotFound = errors.New("sessions: session not found")
	// ErrLimit is returned when the arena is at capacity.
	ErrLimit = errors.New("sessions: session limit reached")
	// ErrFrameBudget is returned when a session exceeds its frame rate.
	ErrFrameBudget = errors.New("sessions: frame budget exceeded")
	// ErrClosed is returned after the manager shuts down.
	ErrClosed = errors.New("sessions: manager closed")
)

// Config holds arena parameters.
type Config struct {
	MaxSessions   int           // refuse new sessions beyond this
	IdleTimeout   time.Duration // reap sessions idle this long
	SweepInterval time.Duration // janitor cadence

	// Per-session frame budget.
	FrameRate  rate.Limit // frames per second
	FrameBurst int

	Pipeline pipeline.Config
}

// DefaultConfig returns the recommended arena parameters.
func DefaultConfig() Config {
	return Config{
		MaxSessions:   256,
		IdleTimeout:   5 * time.Minute,
		SweepInterval: 30 * time.Second,
		FrameRate:     30, // typical webcam rate
		FrameBurst:    60,
		Pipeline:      pipeline.DefaultConfig(),
	}
}

// Info is a read-only view of one session for dashboards.
type Info struct {
	ID          string           `json:"id"`
	StartedAt   time.Time        `json:"started_at"`
	LastSeen    time.Time        `json:"last_seen"`
	Calibrating bool             `json:"calibrating"`
	Metrics     pipeline.Metrics `json:"metrics"`
	Throttle    throttle.Stats   `json:"throttle"`
}

// Session binds one examinee's pipeline to its frame budget. All
// methods are safe for concurrent use.
type Session struct {
	id        string
	startedAt time.Time

	mu       sync.Mutex
	pipe     *pipeline.Pipeline
	limiter  *rate.Limiter
	lastSeen time.Time
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Process runs one frame through the session pipeline, enforcing the
// per-session frame budget first. Over-budget frames are rejected
// without touching pipeline state.
func (s *Session) Process(frame landmarks.Frame) (pipeline.Result, error) {
	if !s.limiter.Allow() {
		return pipeline.Result{}, ErrFrameBudget
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSeen = time.Now()
	return s.pipe.ProcessFrame(frame), nil
}

// Reset restarts the session's calibration and pipeline state.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSeen = time.Now()
	s.pipe.Reset()
}

// Info returns a point-in-time view of the session.
func (s *Session) Info() Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Info{
		ID:          s.id,
		StartedAt:   s.startedAt,
		LastSeen:    s.lastSeen,
		Calibrating: s.pipe.Calibrating(),
		Metrics:     s.pipe.Metrics(),
		Throttle:    s.pipe.ThrottleStats(),
	}
}

// Profile returns the frozen calibration baseline, or false while the
// session is still warming up.
func (s *Session) Profile() (calibration.Profile, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pipe.Profile()
}

func (s *Session) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pipe.Close()
}

// Manager is the session arena. Sessions share nothing but the event
// sink handed to their pipelines.
type Manager struct {
	cfg  Config
	sink pipeline.Sink

	mu       sync.RWMutex
	sessions map[string]*Session
	closed   bool

	done      chan struct{}
	closeOnce sync.Once
}

// NewManager starts an arena and its janitor.
func NewManager(cfg Config, sink pipeline.Sink) *Manager {
	def := DefaultConfig()
	if cfg.MaxSessions < 1 {
		cfg.MaxSessions = def.MaxSessions
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = def.IdleTimeout
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = def.SweepInterval
	}
	if cfg.FrameRate <= 0 {
		cfg.FrameRate = def.FrameRate
	}
	if cfg.FrameBurst < 1 {
		cfg.FrameBurst = def.FrameBurst
	}

	m := &Manager{
		cfg:      cfg,
		sink:     sink,
		sessions: make(map[string]*Session),
		done:     make(chan struct{}),
	}
	go m.janitor()
	return m
}

// Create registers a new session. An empty id gets a generated one.
func (m *Manager) Create(id string) (*Session, error) {
	if id == "" {
		id = uuid.NewString()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	if s, ok := m.sessions[id]; ok {
		return s, nil
	}
	if len(m.sessions) >= m.cfg.MaxSessions {
		return nil, ErrLimit
	}

	now := time.Now()
	s := &Session{
		id:        id,
		startedAt: now,
		lastSeen:  now,
		pipe:      pipeline.New(id, m.cfg.Pipeline, m.sink),
		limiter:   rate.NewLimiter(m.cfg.FrameRate, m.cfg.FrameBurst),
	}
	m.sessions[id] = s
	log.Info("session started", "session_id", id, "active", len(m.sessions))
	return s, nil
}

// Get returns an existing session.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s, nil
}

// End closes and removes a session. Removing an unknown id is a no-op.
func (m *Manager) End(id string) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	remaining := len(m.sessions)
	m.mu.Unlock()

	if ok {
		s.close()
		log.Info("session ended", "session_id", id, "active", remaining)
	}
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// List returns a snapshot of every live session.
func (m *Manager) List() []Info {
	m.mu.RLock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.RUnlock()

	infos := make([]Info, 0, len(sessions))
	for _, s := range sessions {
		infos = append(infos, s.Info())
	}
	return infos
}

// Close stops the janitor and ends every session.
func (m *Manager) Close() {
	m.closeOnce.Do(func() { close(m.done) })

	m.mu.Lock()
	m.closed = true
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, s := range sessions {
		s.close()
	}
}

func (m *Manager) janitor() {
	ticker := time.NewTicker(m.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			m.reap()
		}
	}
}

func (m *Manager) reap() {
	cutoff := time.Now().Add(-m.cfg.IdleTimeout)

	m.mu.Lock()
	var stale []*Session
	for id, s := range m.sessions {
		s.mu.Lock()
		idle := s.lastSeen.Before(cutoff)
		s.mu.Unlock()
		if idle {
			delete(m.sessions, id)
			stale = append(stale, s)
		}
	}
	m.mu.Unlock()

	for _, s := range stale {
		s.close()
		log.Info("session reaped", "session_id", s.id, "idle_timeout", m.cfg.IdleTimeout)
	}
}
