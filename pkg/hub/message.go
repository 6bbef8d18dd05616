// Package hub provides a channel-based websocket broadcast hub that
// fans live proctoring updates out to monitor clients.
package hub

// Envelope kinds carried on the monitor socket.
const (
	KindViolation = "violation"
	KindFlag      = "flag"
	KindSession   = "session"
	KindStats     = "stats"
)

// MessageType indicates the websocket message format.
type MessageType int

const (
	// JSONMessage is a JSON-encoded envelope.
	JSONMessage MessageType = iota
	// BinaryMessage is raw binary data, used for debug frame relay.
	BinaryMessage
)

// Message is one broadcast item. SessionID scopes delivery: clients
// subscribed to a session only receive matching messages, while an
// empty SessionID reaches every client.
type Message struct {
	Type      MessageType
	SessionID string
	Data      []byte
}

// Envelope is the JSON wire shape monitor clients receive.
type Envelope struct {
	Kind      string `json:"kind"`
	SessionID string `json:"session_id,omitempty"`
	Payload   any    `json:"payload"`
}
