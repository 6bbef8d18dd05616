package web

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/sensai-labs/go-proctor/internal/log"
	"github.com/sensai-labs/go-proctor/pkg/hub"
	"github.com/sensai-labs/go-proctor/pkg/pipeline"
	"github.com/sensai-labs/go-proctor/pkg/protocol"
	"github.com/sensai-labs/go-proctor/pkg/sessions"
	"github.com/sensai-labs/go-proctor/pkg/store"
	"github.com/sensai-labs/go-proctor/pkg/violation"
	"github.com/sensai-labs/go-proctor/pkg/voice"
)

const (
	// liveReadTimeout bounds how long an examinee stream may go silent
	// before the socket is dropped. The session itself survives until
	// the arena's idle timeout, so a dropped client can reconnect.
	liveReadTimeout = 60 * time.Second

	liveWriteTimeout = 10 * time.Second

	// liveStoreTimeout bounds best-effort persistence from the live
	// loop so a slow database cannot stall the frame stream.
	liveStoreTimeout = 5 * time.Second
)

// handleLiveWS runs one examinee's frame stream. Frames flow in, get
// processed by the session pipeline, and confirmed violations flow back
// out; events also reach the store and monitor hub through the
// pipeline's sinks. A read error leaves the session running so the
// client can reconnect; only an explicit end message finishes it.
func (s *Server) handleLiveWS(c *websocket.Conn) {
	defer c.Close()

	sess, err := s.manager.Create(c.Params("session_id"))
	if err != nil {
		s.liveError(c, err.Error(), true)
		return
	}
	sessionID := sess.ID()
	logger := log.WithSession(sessionID)

	ctx, cancel := context.WithTimeout(context.Background(), liveStoreTimeout)
	if serr := s.store.CreateSession(ctx, sessionID, sess.Info().StartedAt); serr != nil {
		logger.Warn("session persist failed", "error", serr)
	}
	cancel()

	logger.Info("live stream connected")

	// Audio analysis starts lazily on the first audio chunk.
	var audio *voice.Processor
	announced := false

	for {
		c.SetReadDeadline(time.Now().Add(liveReadTimeout))
		_, data, err := c.ReadMessage()
		if err != nil {
			logger.Info("live stream disconnected", "error", err)
			return
		}

		msg, err := protocol.ParseMessage(data)
		if err != nil {
			s.liveError(c, "malformed message", false)
			continue
		}

		switch msg.Type {
		case protocol.TypeFrame:
			frame, ferr := msg.GetFrameData()
			if ferr != nil {
				s.liveError(c, "bad frame payload", false)
				continue
			}
			result, perr := sess.Process(frame.Frame)
			if perr != nil {
				s.liveError(c, perr.Error(), false)
				continue
			}
			s.relayResult(c, sess, result, &announced)

		case protocol.TypeAudio:
			payload, aerr := msg.GetAudioData()
			if aerr != nil {
				s.liveError(c, "bad audio payload", false)
				continue
			}
			pcm, derr := payload.DecodeAudioData()
			if derr != nil {
				s.liveError(c, "bad audio encoding", false)
				continue
			}
			if audio == nil {
				cfg := voice.DefaultConfig()
				if payload.SampleRate > 0 {
					cfg.SampleRate = payload.SampleRate
				}
				audio = voice.NewProcessor(cfg)
			}
			stats, indicators := audio.Process(voice.DecodePCM16(pcm))
			if len(indicators) > 0 {
				s.recordAudioFlag(sessionID, stats, indicators)
			}

		case protocol.TypeReset:
			sess.Reset()
			announced = false
			if audio != nil {
				audio.Reset()
			}
			if m, merr := protocol.NewCalibratingMessage(s.cfg.Pipeline.Calibration.WarmupFrames); merr == nil {
				s.writeLive(c, m)
			}
			logger.Info("session recalibrating")

		case protocol.TypeEnd:
			s.finishLive(c, logger, sess, audio)
			return

		case protocol.TypePing:
			if ping, perr := msg.GetPingData(); perr == nil {
				if m, merr := protocol.NewPongMessage(ping.ID, msg.Timestamp, time.Now().UnixMilli()); merr == nil {
					s.writeLive(c, m)
				}
			}

		default:
			s.liveError(c, "unknown message type", false)
		}
	}
}

// relayResult pushes one frame's outcome back to the examinee client:
// warmup progress while calibrating, the frozen baseline once, then any
// confirmed violations.
func (s *Server) relayResult(c *websocket.Conn, sess *sessions.Session, result pipeline.Result, announced *bool) {
	if result.Calibrating {
		if m, err := protocol.NewCalibratingMessage(result.Remaining); err == nil {
			s.writeLive(c, m)
		}
		return
	}

	if !*announced {
		if profile, ok := sess.Profile(); ok {
			*announced = true
			if m, err := protocol.NewCalibratedMessage(profile); err == nil {
				s.writeLive(c, m)
			}
		}
	}

	for _, ev := range result.Events {
		if m, err := protocol.NewViolationMessage(ev); err == nil {
			s.writeLive(c, m)
		}
	}
}

// recordAudioFlag turns suspicious audio indicators into a review flag.
// Audio chunks are softer evidence than pipeline violations, so they
// reach reviewers as flags rather than events and are not echoed to the
// examinee.
func (s *Server) recordAudioFlag(sessionID string, stats voice.ChunkStats, indicators []string) {
	cand := violation.Candidate{
		Type:        violation.AudioAnomaly,
		Severity:    violation.SeverityLow,
		Confidence:  0.5,
		Description: strings.Join(indicators, ", "),
		Evidence: map[string]any{
			"indicators":      indicators,
			"rms":             stats.RMS,
			"zero_cross_rate": stats.ZeroCrossRate,
			"speech":          stats.Speech,
		},
	}

	flag := store.FlagFromCandidate(sessionID, time.Now(), cand)
	ctx, cancel := context.WithTimeout(context.Background(), liveStoreTimeout)
	defer cancel()
	id, err := s.store.InsertFlag(ctx, flag)
	if err != nil {
		log.Warn("audio flag insert failed", "session", sessionID, "error", err)
		return
	}
	flag.ID = id
	s.monitors.BroadcastFlag(sessionID, flag)
}

// finishLive ends the session, persists its score, and sends the
// wrap-up summary as the socket's last message.
func (s *Server) finishLive(c *websocket.Conn, logger *slog.Logger, sess *sessions.Session, audio *voice.Processor) {
	sessionID := sess.ID()
	info := sess.Info()
	s.manager.End(sessionID)

	ctx, cancel := context.WithTimeout(context.Background(), liveStoreTimeout)
	defer cancel()
	score, err := s.store.EndSession(ctx, sessionID, time.Now())
	if err != nil {
		logger.Warn("session close persist failed", "error", err)
	}

	summary := protocol.SummaryData{
		SessionID:       sessionID,
		IntegrityScore:  score,
		FramesSeen:      info.Metrics.FramesSeen,
		FramesProcessed: info.Metrics.FramesProcessed,
		Emitted:         info.Metrics.Emitted,
		Suppressed:      info.Metrics.Suppressed,
	}
	if audio != nil {
		sum := audio.Summary()
		summary.Audio = &sum
	}
	if m, merr := protocol.NewSummaryMessage(summary); merr == nil {
		s.writeLive(c, m)
	}

	s.monitors.BroadcastSession(sessionID, fiber.Map{
		"status":          "ended",
		"integrity_score": score,
	})
	logger.Info("session ended", "integrity_score", score, "frames", info.Metrics.FramesSeen)
}

// writeLive sends one message on the examinee socket. The live loop is
// the only writer, so no lock is needed.
func (s *Server) writeLive(c *websocket.Conn, msg *protocol.Message) {
	data, err := msg.Bytes()
	if err != nil {
		return
	}
	c.SetWriteDeadline(time.Now().Add(liveWriteTimeout))
	if err := c.WriteMessage(websocket.TextMessage, data); err != nil {
		log.Debug("live write failed", "error", err)
	}
}

// liveError reports a request-level failure on the examinee socket.
func (s *Server) liveError(c *websocket.Conn, text string, fatal bool) {
	if msg, err := protocol.NewErrorMessage(text, fatal); err == nil {
		s.writeLive(c, msg)
	}
}

// handleMonitorWS attaches a dashboard client to the monitor hub. A
// session_id query parameter scopes the feed to one session.
func (s *Server) handleMonitorWS(c *websocket.Conn) {
	sessionID := c.Query("session_id")

	var client *hub.Client
	if sessionID != "" {
		client = hub.NewClientForSession(s.monitors, c, sessionID)
	} else {
		client = hub.NewClient(s.monitors, c)
	}
	client.Run()
}
