package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sensai-labs/go-proctor/pkg/violation"
)

func TestNotifierDelivers(t *testing.T) {
	received := make(chan violation.Event, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content type = %q, want application/json", ct)
		}
		var ev violation.Event
		if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
			t.Errorf("decode body: %v", err)
		}
		received <- ev
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	want := violation.NewEvent("sess-1", time.Now(), violation.Candidate{
		Type:        violation.GazeDeviation,
		Severity:    violation.SeverityMedium,
		Confidence:  0.8,
		Description: "gaze deviated from baseline",
	})

	n := New(Config{URL: srv.URL, Timeout: 2 * time.Second})
	if err := n.Emit(context.Background(), want); err != nil {
		t.Fatalf("Emit: %v", err)
	}

	select {
	case got := <-received:
		if got.ID != want.ID || got.SessionID != want.SessionID || got.Type != want.Type {
			t.Errorf("delivered event = %+v, want %+v", got, want)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("webhook never received the event")
	}
}

func TestNotifierStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "denied", http.StatusForbidden)
	}))
	defer srv.Close()

	n := New(Config{URL: srv.URL})
	if err := n.Emit(context.Background(), violation.Event{ID: "x"}); err == nil {
		t.Fatal("expected error for 403 response")
	}
}

func TestNotifierUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	n := New(Config{URL: srv.URL, Timeout: time.Second})
	if err := n.Emit(context.Background(), violation.Event{ID: "x"}); err == nil {
		t.Fatal("expected error for closed server")
	}
}
