package hub

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/sensai-labs/go-proctor/internal/log"
	"github.com/sensai-labs/go-proctor/pkg/pipeline"
	"github.com/sensai-labs/go-proctor/pkg/violation"
)

// Hub maintains the set of connected monitor clients and broadcasts
// proctoring updates to them.
type Hub struct {
	// Name for logging
	name string

	// Registered clients
	clients map[*Client]bool

	// Inbound messages to broadcast
	broadcast chan Message

	// Register requests from clients
	register chan *Client

	// Unregister requests from clients
	unregister chan *Client

	// Closed by Stop to shut the run loop down
	done     chan struct{}
	stopOnce sync.Once

	mu      sync.RWMutex
	running bool
}

// The hub doubles as a pipeline sink so confirmed violations reach
// live monitors without extra plumbing.
var _ pipeline.Sink = (*Hub)(nil)

// New creates a hub. Call Run in a goroutine before registering
// clients.
func New(name string) *Hub {
	return &Hub{
		name:       name,
		clients:    make(map[*Client]bool),
		broadcast:  make(chan Message, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Run is the hub's main loop. It returns after Stop.
func (h *Hub) Run() {
	h.mu.Lock()
	h.running = true
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		h.running = false
		h.mu.Unlock()
	}()

	for {
		select {
		case <-h.done:
			h.mu.Lock()
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			count := len(h.clients)
			h.mu.Unlock()
			log.Debug("monitor client connected", "hub", h.name, "clients", count)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			count := len(h.clients)
			h.mu.Unlock()
			log.Debug("monitor client disconnected", "hub", h.name, "clients", count)

		case message := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				if !client.wants(message.SessionID) {
					continue
				}
				select {
				case client.send <- message:
				default:
					// Client cannot keep up. Drop it rather than
					// stall every other monitor.
					close(client.send)
					delete(h.clients, client)
					log.Warn("dropping slow monitor client", "hub", h.name)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Stop shuts the hub down and disconnects all clients. Safe to call
// more than once.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.done) })
}

// Broadcast queues a message for delivery. Messages are dropped when
// the queue is full.
func (h *Hub) Broadcast(msg Message) {
	select {
	case h.broadcast <- msg:
	default:
		log.Warn("broadcast queue full, dropping message", "hub", h.name)
	}
}

// BroadcastEnvelope encodes and broadcasts a JSON envelope, scoped to
// its session.
func (h *Hub) BroadcastEnvelope(env Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	h.Broadcast(Message{Type: JSONMessage, SessionID: env.SessionID, Data: data})
	return nil
}

// BroadcastViolation pushes a confirmed violation to monitors watching
// its session.
func (h *Hub) BroadcastViolation(e violation.Event) error {
	return h.BroadcastEnvelope(Envelope{Kind: KindViolation, SessionID: e.SessionID, Payload: e})
}

// BroadcastFlag pushes a review flag raised outside the live pipeline,
// e.g. from snapshot or behavioral analysis.
func (h *Hub) BroadcastFlag(sessionID string, payload any) error {
	return h.BroadcastEnvelope(Envelope{Kind: KindFlag, SessionID: sessionID, Payload: payload})
}

// BroadcastSession pushes a session lifecycle update.
func (h *Hub) BroadcastSession(sessionID string, payload any) error {
	return h.BroadcastEnvelope(Envelope{Kind: KindSession, SessionID: sessionID, Payload: payload})
}

// BroadcastStats pushes an unscoped stats snapshot to every client.
func (h *Hub) BroadcastStats(payload any) error {
	return h.BroadcastEnvelope(Envelope{Kind: KindStats, Payload: payload})
}

// BroadcastBinary broadcasts binary data, e.g. a relayed debug frame.
func (h *Hub) BroadcastBinary(sessionID string, data []byte) {
	h.Broadcast(Message{Type: BinaryMessage, SessionID: sessionID, Data: data})
}

// Emit implements pipeline.Sink.
func (h *Hub) Emit(_ context.Context, e violation.Event) error {
	return h.BroadcastViolation(e)
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// IsRunning reports whether the run loop is active.
func (h *Hub) IsRunning() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.running
}
