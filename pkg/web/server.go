// Package web exposes the proctoring API: REST endpoints for sessions,
// flags, and reports, a live websocket that feeds landmark frames into
// per-session pipelines, and a monitor websocket that fans violations
// out to dashboards.
package web

import (
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"

	"github.com/sensai-labs/go-proctor/internal/log"
	"github.com/sensai-labs/go-proctor/pkg/archive"
	"github.com/sensai-labs/go-proctor/pkg/detect"
	"github.com/sensai-labs/go-proctor/pkg/hub"
	"github.com/sensai-labs/go-proctor/pkg/pipeline"
	"github.com/sensai-labs/go-proctor/pkg/sessions"
	"github.com/sensai-labs/go-proctor/pkg/store"
)

// statsInterval is how often live session summaries are pushed to
// monitor clients.
const statsInterval = 10 * time.Second

// Config holds the HTTP server parameters.
type Config struct {
	Addr        string // listen address, e.g. ":8080"
	CORSOrigins string // comma-separated allowed origins; empty allows any
	BodyLimit   int    // max request body in bytes; 0 uses the fiber default

	// Pipeline is the effective per-session configuration, reported on
	// GET /api/config so clients can mirror server thresholds.
	Pipeline pipeline.Config
}

// Server is the proctoring API server.
type Server struct {
	app  *fiber.App
	cfg  Config
	addr string

	manager  *sessions.Manager
	store    *store.Store
	monitors *hub.Hub

	// Optional back ends; set before Start. A nil Scanner disables
	// POST /api/analyze-frame, a nil Uploader disables evidence
	// archiving.
	Scanner  *detect.Scanner
	Uploader *archive.Uploader

	startedAt time.Time
	done      chan struct{}
	closeOnce sync.Once
}

// NewServer wires the API routes. The manager, store, and monitor hub
// are required.
func NewServer(cfg Config, manager *sessions.Manager, st *store.Store, monitors *hub.Hub) *Server {
	s := &Server{
		cfg:       cfg,
		addr:      cfg.Addr,
		manager:   manager,
		store:     st,
		monitors:  monitors,
		startedAt: time.Now(),
		done:      make(chan struct{}),
	}

	app := fiber.New(fiber.Config{
		AppName:               "proctord",
		DisableStartupMessage: true,
		BodyLimit:             cfg.BodyLimit,
	})

	if cfg.CORSOrigins != "" {
		app.Use(cors.New(cors.Config{AllowOrigins: cfg.CORSOrigins}))
	} else {
		app.Use(cors.New())
	}

	app.Get("/health", s.handleHealth)

	api := app.Group("/api")
	api.Get("/config", s.handleConfig)

	api.Post("/sessions", s.handleCreateSession)
	api.Get("/sessions", s.handleListSessions)
	api.Get("/sessions/:id", s.handleGetSession)
	api.Post("/sessions/:id/end", s.handleEndSession)
	api.Post("/sessions/:id/reset", s.handleResetSession)
	api.Get("/sessions/:id/events", s.handleSessionEvents)
	api.Get("/sessions/:id/timeline", s.handleTimeline)

	api.Get("/flags", s.handleListFlags)
	api.Patch("/flags/:id", s.handleReviewFlag)

	api.Post("/events/batch", s.handleEventsBatch)
	api.Get("/dashboard", s.handleDashboard)

	api.Post("/analyze-frame", s.handleAnalyzeFrame)

	api.Post("/confidence", s.handleConfidence)
	api.Post("/confidence/audio", s.handleAudioConfidence)

	api.Post("/integrity/typing", s.handleTypingIntegrity)
	api.Post("/integrity/paste", s.handlePasteIntegrity)
	api.Post("/integrity/timing", s.handleTimingIntegrity)

	// WebSocket upgrade middleware
	upgrade := func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	}
	app.Use("/live", upgrade)
	app.Use("/ws", upgrade)

	app.Get("/live/:session_id", websocket.New(s.handleLiveWS))
	app.Get("/ws/monitor", websocket.New(s.handleMonitorWS))

	s.app = app
	return s
}

// Start runs the monitor hub and blocks serving HTTP.
func (s *Server) Start() error {
	go s.monitors.Run()
	go s.statsLoop()

	log.Info("api server listening", "addr", s.addr)
	return s.app.Listen(s.addr)
}

// StartAsync starts the server in a goroutine.
func (s *Server) StartAsync() {
	go func() {
		if err := s.Start(); err != nil {
			log.Error("api server stopped", "error", err)
		}
	}()
}

// Shutdown gracefully stops the server and disconnects monitors.
func (s *Server) Shutdown() error {
	s.closeOnce.Do(func() { close(s.done) })
	err := s.app.Shutdown()
	s.monitors.Stop()
	return err
}

// statsLoop pushes live session summaries to monitor clients while any
// are connected.
func (s *Server) statsLoop() {
	ticker := time.NewTicker(statsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			if s.monitors.ClientCount() == 0 {
				continue
			}
			s.monitors.BroadcastStats(s.manager.List())
		}
	}
}
