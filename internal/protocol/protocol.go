package protocol

// MessageType defines the type of a status WebSocket message
type MessageType string

const (
	// TypeStatus carries a full controller status snapshot
	TypeStatus MessageType = "status"

	// TypeLink carries a serial link event (connect, disconnect, stats)
	TypeLink MessageType = "link"

	// TypePing can be used for application-level heartbeats if needed
	TypePing MessageType = "ping"
)

// Message is the generic container for all WebSocket messages
type Message struct {
	Type    MessageType `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

// LinkPayload is the payload for TypeLink
type LinkPayload struct {
	Event            string  `json:"event"` // "connected", "disconnected", "stats"
	Port             string  `json:"port,omitempty"`
	Baud             int     `json:"baud,omitempty"`
	PacketsPerSecond float64 `json:"pps,omitempty"`
	Error            string  `json:"error,omitempty"`
}
