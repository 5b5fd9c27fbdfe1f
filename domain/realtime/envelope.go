package realtime

import (
	"encoding/json"
	"time"
)

// Envelope is the wire frame exchanged with clients. Inbound frames
// carry Event and Payload; outbound frames additionally carry the
// server-assigned Timestamp, or Error for protocol-level errors.
type Envelope struct {
	Event     string          `json:"event"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp *time.Time      `json:"timestamp,omitempty"`
	Error     string          `json:"error,omitempty"`
}
