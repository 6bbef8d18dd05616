package hub

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"
)

const (
	// writeWait is how long to wait for a write to complete
	writeWait = 10 * time.Second

	// pongWait is how long to wait for a pong response
	pongWait = 60 * time.Second

	// pingPeriod must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// maxMessageSize bounds inbound frames; monitors only send small
	// subscribe messages
	maxMessageSize = 4 * 1024
)

// subscribeRequest is the one inbound message monitors may send.
// Subscribing to "*" clears the filter.
type subscribeRequest struct {
	Subscribe string `json:"subscribe"`
}

// Client represents a single monitor websocket connection.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan Message

	mu     sync.Mutex
	filter string // session id; empty receives all sessions
}

// NewClient creates a client watching all sessions and registers it
// with the hub.
func NewClient(hub *Hub, conn *websocket.Conn) *Client {
	return NewClientForSession(hub, conn, "")
}

// NewClientForSession creates a client that only receives one
// session's updates.
func NewClientForSession(hub *Hub, conn *websocket.Conn, sessionID string) *Client {
	client := &Client{
		hub:    hub,
		conn:   conn,
		send:   make(chan Message, 256),
		filter: sessionID,
	}
	hub.register <- client
	return client
}

// Run starts the client's read and write pumps. It blocks until the
// connection closes, so call it from the websocket handler.
func (c *Client) Run() {
	go c.writePump()
	c.readPump()
}

func (c *Client) wants(sessionID string) bool {
	// Unscoped messages reach everyone.
	if sessionID == "" {
		return true
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.filter == "" || c.filter == sessionID
}

func (c *Client) setFilter(sessionID string) {
	c.mu.Lock()
	c.filter = sessionID
	c.mu.Unlock()
}

// readPump consumes inbound messages. It applies subscribe requests,
// keeps the connection alive, and detects disconnection.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			break
		}
		var req subscribeRequest
		if err := json.Unmarshal(data, &req); err != nil || req.Subscribe == "" {
			continue
		}
		if req.Subscribe == "*" {
			c.setFilter("")
		} else {
			c.setFilter(req.Subscribe)
		}
	}
}

// writePump is the only goroutine that writes to the connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			wsType := websocket.TextMessage
			if message.Type == BinaryMessage {
				wsType = websocket.BinaryMessage
			}
			if err := c.conn.WriteMessage(wsType, message.Data); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
