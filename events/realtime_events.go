package events

import (
	"encoding/json"
	"time"

	"github.com/go-monolith/mono/pkg/helper"
)

// RoomDeliveryEvent carries an outbound envelope plus the identity ids
// it must reach. The dispatcher computes the recipient set (room members
// minus any excluded sender, or an identity's followers); the broadcast
// module only delivers.
type RoomDeliveryEvent struct {
	Recipients []string        `json:"recipients"`
	Event      string          `json:"event"`
	Payload    json.RawMessage `json:"payload"`
	Timestamp  time.Time       `json:"timestamp"`
}

// DirectDeliveryEvent carries an outbound envelope addressed to a single
// connection (member lists sent to a joiner, heartbeat acks).
type DirectDeliveryEvent struct {
	ConnectionID string          `json:"connection_id"`
	Event        string          `json:"event"`
	Payload      json.RawMessage `json:"payload"`
	Timestamp    time.Time       `json:"timestamp"`
}

// Event definitions for the dispatch domain.
var (
	RoomDeliveryV1 = helper.EventDefinition[RoomDeliveryEvent](
		"dispatch",
		"RoomDelivery",
		"v1",
	)

	DirectDeliveryV1 = helper.EventDefinition[DirectDeliveryEvent](
		"dispatch",
		"DirectDelivery",
		"v1",
	)
)
