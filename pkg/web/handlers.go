package web

import (
	"errors"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/sensai-labs/go-proctor/internal/log"
	"github.com/sensai-labs/go-proctor/pkg/confidence"
	"github.com/sensai-labs/go-proctor/pkg/integrity"
	"github.com/sensai-labs/go-proctor/pkg/sessions"
	"github.com/sensai-labs/go-proctor/pkg/store"
	"github.com/sensai-labs/go-proctor/pkg/violation"
	"github.com/sensai-labs/go-proctor/pkg/voice"
)

// handleHealth reports server liveness and headline counters.
func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":         "ok",
		"uptime_seconds": int(time.Since(s.startedAt).Seconds()),
		"live_sessions":  s.manager.Len(),
		"monitors":       s.monitors.ClientCount(),
	})
}

// handleConfig returns the effective pipeline configuration so clients
// can mirror server thresholds.
func (s *Server) handleConfig(c *fiber.Ctx) error {
	return c.JSON(s.cfg.Pipeline)
}

// CreateSessionRequest is the request body for creating a session.
type CreateSessionRequest struct {
	SessionID string `json:"session_id"`
}

// handleCreateSession opens a proctoring session. An empty id gets a
// generated one; re-creating an existing id returns the same session.
func (s *Server) handleCreateSession(c *fiber.Ctx) error {
	var req CreateSessionRequest
	if err := c.BodyParser(&req); err != nil && len(c.Body()) > 0 {
		return c.Status(400).JSON(fiber.Map{"error": "invalid request body"})
	}

	sess, err := s.manager.Create(req.SessionID)
	if err != nil {
		if errors.Is(err, sessions.ErrLimit) || errors.Is(err, sessions.ErrClosed) {
			return c.Status(503).JSON(fiber.Map{"error": err.Error()})
		}
		return c.Status(500).JSON(fiber.Map{"error": err.Error()})
	}

	info := sess.Info()
	if err := s.store.CreateSession(c.Context(), sess.ID(), info.StartedAt); err != nil {
		s.manager.End(sess.ID())
		return c.Status(500).JSON(fiber.Map{"error": err.Error()})
	}

	return c.Status(fiber.StatusCreated).JSON(info)
}

// handleListSessions returns live sessions alongside recently stored
// ones.
func (s *Server) handleListSessions(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 50)
	recent, err := s.store.ListSessions(c.Context(), limit)
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{
		"live":   s.manager.List(),
		"recent": recent,
	})
}

// handleGetSession returns one session's stored record plus its live
// state when still running.
func (s *Server) handleGetSession(c *fiber.Ctx) error {
	id := c.Params("id")
	resp := fiber.Map{}

	stored, err := s.store.GetSession(c.Context(), id)
	switch {
	case err == nil:
		resp["session"] = stored
	case !errors.Is(err, store.ErrNotFound):
		return c.Status(500).JSON(fiber.Map{"error": err.Error()})
	}

	if sess, lerr := s.manager.Get(id); lerr == nil {
		resp["live"] = sess.Info()
	}

	if len(resp) == 0 {
		return c.Status(404).JSON(fiber.Map{"error": "session not found"})
	}
	return c.JSON(resp)
}

// handleEndSession ends a session and returns its integrity score.
func (s *Server) handleEndSession(c *fiber.Ctx) error {
	id := c.Params("id")

	s.manager.End(id)

	score, err := s.store.EndSession(c.Context(), id, time.Now())
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return c.Status(404).JSON(fiber.Map{"error": "session not found or already ended"})
		}
		return c.Status(500).JSON(fiber.Map{"error": err.Error()})
	}

	s.monitors.BroadcastSession(id, fiber.Map{
		"status":          "ended",
		"integrity_score": score,
	})

	return c.JSON(fiber.Map{
		"session_id":      id,
		"integrity_score": score,
	})
}

// handleResetSession restarts a live session's calibration.
func (s *Server) handleResetSession(c *fiber.Ctx) error {
	id := c.Params("id")

	sess, err := s.manager.Get(id)
	if err != nil {
		return c.Status(404).JSON(fiber.Map{"error": "session not found"})
	}

	sess.Reset()
	return c.JSON(fiber.Map{
		"session_id": id,
		"status":     "recalibrating",
	})
}

// handleSessionEvents returns a session's stored violation events.
func (s *Server) handleSessionEvents(c *fiber.Ctx) error {
	id := c.Params("id")
	limit := c.QueryInt("limit", 100)

	events, err := s.store.EventsForSession(c.Context(), id, limit)
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(events)
}

// handleTimeline returns a session's merged event and flag history.
func (s *Server) handleTimeline(c *fiber.Ctx) error {
	id := c.Params("id")
	limit := c.QueryInt("limit", 200)

	entries, err := s.store.Timeline(c.Context(), id, limit)
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(entries)
}

// handleListFlags returns review flags matching the query filters.
func (s *Server) handleListFlags(c *fiber.Ctx) error {
	filter := store.FlagFilter{
		SessionID: c.Query("session_id"),
		Status:    c.Query("status"),
		Severity:  violation.Severity(c.Query("severity")),
		Limit:     c.QueryInt("limit", 50),
		Offset:    c.QueryInt("offset", 0),
	}

	flags, err := s.store.ListFlags(c.Context(), filter)
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(flags)
}

// ReviewFlagRequest is the request body for reviewing a flag.
type ReviewFlagRequest struct {
	Status string `json:"status"` // "reviewed" or "dismissed"
	Note   string `json:"note"`
}

// handleReviewFlag records a reviewer's verdict on a flag.
func (s *Server) handleReviewFlag(c *fiber.Ctx) error {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid flag id"})
	}

	var req ReviewFlagRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid request body"})
	}

	if err := s.store.ReviewFlag(c.Context(), id, req.Status, req.Note, time.Now()); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return c.Status(404).JSON(fiber.Map{"error": "flag not found"})
		}
		return c.Status(400).JSON(fiber.Map{"error": err.Error()})
	}

	flag, err := s.store.GetFlag(c.Context(), id)
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(flag)
}

// EventsBatchRequest is the request body for batch event ingestion,
// used by clients syncing events recorded while offline.
type EventsBatchRequest struct {
	SessionID string            `json:"session_id"`
	Events    []violation.Event `json:"events"`
}

// handleEventsBatch ingests a batch of client-recorded events.
func (s *Server) handleEventsBatch(c *fiber.Ctx) error {
	var req EventsBatchRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid request body"})
	}
	if len(req.Events) == 0 {
		return c.Status(400).JSON(fiber.Map{"error": "no events"})
	}

	now := time.Now()
	for i := range req.Events {
		if req.Events[i].ID == "" {
			req.Events[i].ID = uuid.NewString()
		}
		if req.Events[i].SessionID == "" {
			req.Events[i].SessionID = req.SessionID
		}
		if req.Events[i].Timestamp.IsZero() {
			req.Events[i].Timestamp = now
		}
		if req.Events[i].Severity == "" {
			req.Events[i].Severity = req.Events[i].Type.DefaultSeverity()
		}
	}

	if err := s.store.InsertEvents(c.Context(), req.Events); err != nil {
		return c.Status(500).JSON(fiber.Map{"error": err.Error()})
	}

	return c.JSON(fiber.Map{"inserted": len(req.Events)})
}

// handleDashboard returns the review workload snapshot.
func (s *Server) handleDashboard(c *fiber.Ctx) error {
	stats, err := s.store.Dashboard(c.Context())
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(stats)
}

// handleAnalyzeFrame runs the server-side detectors against one JPEG
// snapshot. With a session_id query parameter, detector findings become
// review flags and the snapshot is archived as evidence.
func (s *Server) handleAnalyzeFrame(c *fiber.Ctx) error {
	if s.Scanner == nil {
		return c.Status(503).JSON(fiber.Map{"error": "frame analysis not configured"})
	}

	jpeg := c.Body()
	if len(jpeg) == 0 {
		return c.Status(400).JSON(fiber.Map{"error": "empty frame"})
	}

	scene, err := s.Scanner.Scan(jpeg)
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": err.Error()})
	}

	candidates := scene.Candidates()
	resp := fiber.Map{
		"scene":      scene,
		"candidates": candidates,
		"flagged":    len(candidates) > 0,
	}

	sessionID := c.Query("session_id")
	if sessionID != "" && len(candidates) > 0 {
		now := time.Now()
		for _, cand := range candidates {
			s.recordFlag(c, sessionID, now, cand)
		}
		if s.Uploader != nil {
			url, uerr := s.Uploader.ArchiveSnapshot(c.Context(), sessionID, now, jpeg)
			if uerr != nil {
				log.Warn("snapshot archive failed", "session", sessionID, "error", uerr)
			} else {
				resp["evidence_url"] = url
			}
		}
	}

	return c.JSON(resp)
}

// ConfidenceRequest is the request body for confidence scoring.
type ConfidenceRequest struct {
	Factors             confidence.Factors `json:"factors"`
	RedFlagCount        int                `json:"red_flag_count"`
	ExternalProbability float64            `json:"external_probability"`
}

// handleConfidence scores one assessment's evidence factors.
func (s *Server) handleConfidence(c *fiber.Ctx) error {
	var req ConfidenceRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid request body"})
	}

	breakdown := confidence.Score(req.Factors, req.RedFlagCount, req.ExternalProbability)
	return c.JSON(fiber.Map{
		"breakdown":      breakdown,
		"recommendation": confidence.RecommendedAction(breakdown.Level),
	})
}

// AudioConfidenceRequest is the request body for audio confidence
// scoring. Callers send either pre-computed evidence or diarized
// segments for the server to analyze.
type AudioConfidenceRequest struct {
	Evidence *confidence.AudioEvidence `json:"evidence,omitempty"`

	Segments             []voice.Segment `json:"segments,omitempty"`
	TranscriptionQuality float64         `json:"transcription_quality"`
	ExternalScore        float64         `json:"external_score"`
}

// handleAudioConfidence scores audio-track evidence.
func (s *Server) handleAudioConfidence(c *fiber.Ctx) error {
	var req AudioConfidenceRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid request body"})
	}

	resp := fiber.Map{}

	var ev confidence.AudioEvidence
	switch {
	case len(req.Segments) > 0:
		report := voice.AnalyzeSpeakers(req.Segments)
		ev = report.Evidence()
		ev.TranscriptionQuality = req.TranscriptionQuality
		ev.ExternalScore = req.ExternalScore
		resp["speakers"] = report
	case req.Evidence != nil:
		ev = *req.Evidence
	default:
		return c.Status(400).JSON(fiber.Map{"error": "evidence or segments required"})
	}

	resp["evidence"] = ev
	resp["breakdown"] = confidence.ScoreAudio(ev)
	return c.JSON(resp)
}

// TypingIntegrityRequest is the request body for typing analysis.
type TypingIntegrityRequest struct {
	SessionID  string      `json:"session_id"`
	Timestamps []time.Time `json:"timestamps"`
}

// handleTypingIntegrity analyzes keystroke cadence.
func (s *Server) handleTypingIntegrity(c *fiber.Ctx) error {
	var req TypingIntegrityRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid request body"})
	}

	report := integrity.AnalyzeTyping(req.Timestamps)
	resp := fiber.Map{"report": report}

	if cand, ok := report.Candidate(); ok && req.SessionID != "" {
		if flag := s.recordFlag(c, req.SessionID, time.Now(), cand); flag != nil {
			resp["flag"] = flag
		}
	}
	return c.JSON(resp)
}

// PasteIntegrityRequest is the request body for paste analysis.
type PasteIntegrityRequest struct {
	SessionID string                 `json:"session_id"`
	Events    []integrity.PasteEvent `json:"events"`
}

// handlePasteIntegrity analyzes clipboard activity.
func (s *Server) handlePasteIntegrity(c *fiber.Ctx) error {
	var req PasteIntegrityRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid request body"})
	}

	report := integrity.AnalyzePaste(req.Events)
	resp := fiber.Map{"report": report}

	if cand, ok := report.Candidate(); ok && req.SessionID != "" {
		if flag := s.recordFlag(c, req.SessionID, time.Now(), cand); flag != nil {
			resp["flag"] = flag
		}
	}
	return c.JSON(resp)
}

// TimingIntegrityRequest is the request body for completion-time
// analysis.
type TimingIntegrityRequest struct {
	SessionID       string    `json:"session_id"`
	StartedAt       time.Time `json:"started_at"`
	FinishedAt      time.Time `json:"finished_at"`
	ExpectedSeconds float64   `json:"expected_seconds"`
}

// handleTimingIntegrity analyzes task completion time.
func (s *Server) handleTimingIntegrity(c *fiber.Ctx) error {
	var req TimingIntegrityRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid request body"})
	}

	expected := time.Duration(req.ExpectedSeconds * float64(time.Second))
	report := integrity.AnalyzeCompletion(req.StartedAt, req.FinishedAt, expected)
	resp := fiber.Map{"report": report}

	if cand, ok := report.Candidate(); ok && req.SessionID != "" {
		if flag := s.recordFlag(c, req.SessionID, time.Now(), cand); flag != nil {
			resp["flag"] = flag
		}
	}
	return c.JSON(resp)
}

// recordFlag persists an analyzer candidate as a review flag and pushes
// it to monitors. Storage failures are logged, not surfaced; the
// analysis result still reaches the caller.
func (s *Server) recordFlag(c *fiber.Ctx, sessionID string, at time.Time, cand violation.Candidate) *store.Flag {
	flag := store.FlagFromCandidate(sessionID, at, cand)
	id, err := s.store.InsertFlag(c.Context(), flag)
	if err != nil {
		log.Warn("flag insert failed", "session", sessionID, "type", cand.Type, "error", err)
		return nil
	}
	flag.ID = id
	s.monitors.BroadcastFlag(sessionID, flag)
	return &flag
}
