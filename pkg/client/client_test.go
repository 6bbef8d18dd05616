package client

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sensai-labs/go-proctor/pkg/landmarks"
	"github.com/sensai-labs/go-proctor/pkg/protocol"
	"github.com/sensai-labs/go-proctor/pkg/violation"
)

func testFrame() landmarks.Frame {
	face := make(landmarks.Set, 478)
	for i := range face {
		face[i] = landmarks.Point{X: 0.5, Y: 0.5}
	}
	return landmarks.Frame{
		Timestamp: time.Now(),
		Faces:     []landmarks.Set{face},
	}
}

// fakeServer speaks the live protocol: calibrating on the first frame,
// a violation on the second, a summary on end.
func fakeServer(t *testing.T) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/live/") {
			t.Errorf("path = %q, want /live/ prefix", r.URL.Path)
		}
		sessionID := strings.TrimPrefix(r.URL.Path, "/live/")

		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		defer ws.Close()

		frames := 0
		for {
			_, data, err := ws.ReadMessage()
			if err != nil {
				return
			}
			msg, err := protocol.ParseMessage(data)
			if err != nil {
				t.Errorf("server parse failed: %v", err)
				return
			}

			var reply *protocol.Message
			switch msg.Type {
			case protocol.TypeFrame:
				frames++
				if frames == 1 {
					reply, _ = protocol.NewCalibratingMessage(29)
				} else {
					event := violation.NewEvent(sessionID, time.Now(), violation.Candidate{
						Type:       violation.FaceAbsent,
						Severity:   violation.SeverityHigh,
						Confidence: 0.95,
					})
					reply, _ = protocol.NewViolationMessage(event)
				}
			case protocol.TypeEnd:
				reply, _ = protocol.NewSummaryMessage(protocol.SummaryData{
					SessionID:      sessionID,
					IntegrityScore: 85,
					FramesSeen:     uint64(frames),
				})
			case protocol.TypePing:
				ping, _ := msg.GetPingData()
				reply, _ = protocol.NewPongMessage(ping.ID, msg.Timestamp, time.Now().UnixMilli())
			}

			if reply != nil {
				raw, _ := reply.Bytes()
				if err := ws.WriteMessage(websocket.TextMessage, raw); err != nil {
					return
				}
			}
		}
	}))
}

func TestClientStreamAndEnd(t *testing.T) {
	srv := fakeServer(t)
	defer srv.Close()

	calibrating := make(chan int, 1)
	violations := make(chan violation.Event, 1)

	c := NewClient(Config{
		ServerURL: srv.URL,
		SessionID: "test-session",
		OnCalibrating: func(remaining int) {
			select {
			case calibrating <- remaining:
			default:
			}
		},
		OnViolation: func(event violation.Event) {
			select {
			case violations <- event:
			default:
			}
		},
	})

	if err := c.Connect(); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer c.Close()

	if err := c.SendFrame(testFrame()); err != nil {
		t.Fatalf("SendFrame() error = %v", err)
	}

	select {
	case remaining := <-calibrating:
		if remaining != 29 {
			t.Errorf("remaining = %d, want 29", remaining)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for calibrating callback")
	}

	if err := c.SendFrame(testFrame()); err != nil {
		t.Fatalf("SendFrame() error = %v", err)
	}

	select {
	case event := <-violations:
		if event.Type != violation.FaceAbsent {
			t.Errorf("event.Type = %v, want %v", event.Type, violation.FaceAbsent)
		}
		if event.SessionID != "test-session" {
			t.Errorf("event.SessionID = %q, want test-session", event.SessionID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for violation callback")
	}

	summary, err := c.End(2 * time.Second)
	if err != nil {
		t.Fatalf("End() error = %v", err)
	}
	if summary.SessionID != "test-session" {
		t.Errorf("summary.SessionID = %q, want test-session", summary.SessionID)
	}
	if summary.IntegrityScore != 85 {
		t.Errorf("summary.IntegrityScore = %v, want 85", summary.IntegrityScore)
	}
	if summary.FramesSeen != 2 {
		t.Errorf("summary.FramesSeen = %v, want 2", summary.FramesSeen)
	}
}

func TestClientGeneratesSessionID(t *testing.T) {
	c := NewClient(Config{ServerURL: "ws://localhost:9"})
	if c.SessionID() == "" {
		t.Error("SessionID should be generated when not provided")
	}
}

func TestClientSendBeforeConnect(t *testing.T) {
	c := NewClient(Config{ServerURL: "ws://localhost:9", SessionID: "s"})
	if err := c.SendFrame(testFrame()); err == nil {
		t.Error("SendFrame before Connect should fail")
	}
}

func TestLiveURL(t *testing.T) {
	tests := []struct {
		name    string
		server  string
		want    string
		wantErr bool
	}{
		{
			name:   "ws scheme",
			server: "ws://host:8080",
			want:   "ws://host:8080/live/s1",
		},
		{
			name:   "http rewritten",
			server: "http://host:8080",
			want:   "ws://host:8080/live/s1",
		},
		{
			name:   "https rewritten",
			server: "https://host",
			want:   "wss://host/live/s1",
		},
		{
			name:   "trailing slash",
			server: "ws://host:8080/",
			want:   "ws://host:8080/live/s1",
		},
		{
			name:    "bad scheme",
			server:  "ftp://host",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := liveURL(tt.server, "s1")
			if (err != nil) != tt.wantErr {
				t.Fatalf("liveURL() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("liveURL() = %q, want %q", got, tt.want)
			}
		})
	}
}
