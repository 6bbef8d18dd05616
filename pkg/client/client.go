// Package client is the examinee-side streaming SDK. It feeds landmark
// frames and audio chunks to a proctoring server over the live
// websocket and surfaces server responses through callbacks.
package client

import (
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/sensai-labs/go-proctor/pkg/calibration"
	"github.com/sensai-labs/go-proctor/pkg/landmarks"
	"github.com/sensai-labs/go-proctor/pkg/protocol"
	"github.com/sensai-labs/go-proctor/pkg/violation"
)

// Config holds client parameters and callbacks. All callbacks are
// optional and are invoked from the read loop goroutine, so they must
// not block.
type Config struct {
	// ServerURL is the proctoring server base, e.g. "ws://host:8080".
	// http and https schemes are rewritten to their ws equivalents.
	ServerURL string

	// SessionID identifies this examinee's session. Empty generates
	// one client-side.
	SessionID string

	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration

	OnCalibrating func(remaining int)
	OnCalibrated  func(profile calibration.Profile)
	OnViolation   func(event violation.Event)
	OnSummary     func(summary protocol.SummaryData)
	OnError       func(text string, fatal bool)
}

// Client is a live proctoring stream. Safe for concurrent use; sends
// are serialized by a write mutex.
type Client struct {
	cfg Config

	ws      *websocket.Conn
	wsMutex sync.Mutex

	mu     sync.Mutex
	closed bool

	summaries chan protocol.SummaryData
}

// NewClient creates a client for one proctoring session.
func NewClient(cfg Config) *Client {
	if cfg.SessionID == "" {
		cfg.SessionID = uuid.NewString()
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 10 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	return &Client{
		cfg:       cfg,
		summaries: make(chan protocol.SummaryData, 1),
	}
}

// SessionID returns the session this client streams into.
func (c *Client) SessionID() string { return c.cfg.SessionID }

// Connect dials the live socket and starts the read loop. The server
// opens the session on connect.
func (c *Client) Connect() error {
	wsURL, err := liveURL(c.cfg.ServerURL, c.cfg.SessionID)
	if err != nil {
		return err
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: c.cfg.HandshakeTimeout,
	}
	ws, _, err := dialer.Dial(wsURL, nil)
	if err != nil {
		return fmt.Errorf("live connect failed: %w", err)
	}

	c.wsMutex.Lock()
	c.ws = ws
	c.wsMutex.Unlock()

	go c.readLoop(ws)
	return nil
}

// SendFrame streams one landmark frame.
func (c *Client) SendFrame(frame landmarks.Frame) error {
	msg, err := protocol.NewFrameMessage(frame)
	if err != nil {
		return err
	}
	return c.send(msg)
}

// SendAudio streams one PCM16 microphone chunk.
func (c *Client) SendAudio(pcm []byte, sampleRate int) error {
	msg, err := protocol.NewAudioMessage(pcm, sampleRate)
	if err != nil {
		return err
	}
	return c.send(msg)
}

// Reset asks the server to restart calibration, e.g. after the examinee
// adjusts their camera.
func (c *Client) Reset() error {
	msg, err := protocol.NewResetMessage()
	if err != nil {
		return err
	}
	return c.send(msg)
}

// Ping checks the connection round trip.
func (c *Client) Ping() error {
	msg, err := protocol.NewPingMessage(uuid.NewString())
	if err != nil {
		return err
	}
	return c.send(msg)
}

// End finishes the session and waits for the server's wrap-up summary.
func (c *Client) End(timeout time.Duration) (protocol.SummaryData, error) {
	msg, err := protocol.NewEndMessage()
	if err != nil {
		return protocol.SummaryData{}, err
	}
	if err := c.send(msg); err != nil {
		return protocol.SummaryData{}, err
	}

	select {
	case summary := <-c.summaries:
		return summary, nil
	case <-time.After(timeout):
		return protocol.SummaryData{}, fmt.Errorf("timeout waiting for session summary")
	}
}

// Close performs the websocket close handshake and drops the
// connection. The session stays alive server-side until it is ended or
// reaped, so a new client may reconnect to it.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.wsMutex.Lock()
	defer c.wsMutex.Unlock()
	if c.ws == nil {
		return nil
	}
	deadline := time.Now().Add(c.cfg.WriteTimeout)
	c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	return c.ws.Close()
}

func (c *Client) send(msg *protocol.Message) error {
	data, err := msg.Bytes()
	if err != nil {
		return err
	}

	c.wsMutex.Lock()
	defer c.wsMutex.Unlock()
	if c.ws == nil {
		return fmt.Errorf("not connected")
	}
	c.ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

func (c *Client) readLoop(ws *websocket.Conn) {
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			c.mu.Lock()
			closed := c.closed
			c.mu.Unlock()
			if !closed && c.cfg.OnError != nil {
				c.cfg.OnError(err.Error(), true)
			}
			return
		}

		msg, err := protocol.ParseMessage(data)
		if err != nil {
			continue
		}
		c.dispatch(msg)
	}
}

func (c *Client) dispatch(msg *protocol.Message) {
	switch msg.Type {
	case protocol.TypeCalibrating:
		if c.cfg.OnCalibrating == nil {
			return
		}
		if data, err := msg.GetCalibrationData(); err == nil {
			c.cfg.OnCalibrating(data.Remaining)
		}

	case protocol.TypeCalibrated:
		if c.cfg.OnCalibrated == nil {
			return
		}
		if data, err := msg.GetCalibratedData(); err == nil {
			c.cfg.OnCalibrated(data.Profile)
		}

	case protocol.TypeViolation:
		if c.cfg.OnViolation == nil {
			return
		}
		if event, err := msg.GetViolationEvent(); err == nil {
			c.cfg.OnViolation(event)
		}

	case protocol.TypeSummary:
		data, err := msg.GetSummaryData()
		if err != nil {
			return
		}
		select {
		case c.summaries <- *data:
		default:
		}
		if c.cfg.OnSummary != nil {
			c.cfg.OnSummary(*data)
		}

	case protocol.TypeError:
		if c.cfg.OnError == nil {
			return
		}
		if data, err := msg.GetErrorData(); err == nil {
			c.cfg.OnError(data.Error, data.Fatal)
		}
	}
}

// liveURL builds the live socket URL from a server base and session id.
func liveURL(server, sessionID string) (string, error) {
	u, err := url.Parse(server)
	if err != nil {
		return "", fmt.Errorf("invalid server url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/live/" + sessionID
	return u.String(), nil
}
