package dispatch

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/go-monolith/mono"

	"github.com/example/blog-realtime/events"
)

// busEmitter publishes outbound envelopes on the event bus for the
// broadcast module to deliver. Every envelope gets a server-assigned
// timestamp here.
type busEmitter struct {
	bus mono.EventBus
}

func newBusEmitter(bus mono.EventBus) *busEmitter {
	return &busEmitter{bus: bus}
}

func (e *busEmitter) ToIdentities(recipients []string, event string, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		slog.Error("Failed to marshal outbound payload", "event", event, "error", err)
		return
	}
	ev := events.RoomDeliveryEvent{
		Recipients: recipients,
		Event:      event,
		Payload:    raw,
		Timestamp:  time.Now(),
	}
	if err := events.RoomDeliveryV1.Publish(e.bus, ev, nil); err != nil {
		slog.Warn("Failed to publish room delivery", "event", event, "error", err)
	}
}

func (e *busEmitter) ToConnection(connID, event string, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		slog.Error("Failed to marshal outbound payload", "event", event, "error", err)
		return
	}
	ev := events.DirectDeliveryEvent{
		ConnectionID: connID,
		Event:        event,
		Payload:      raw,
		Timestamp:    time.Now(),
	}
	if err := events.DirectDeliveryV1.Publish(e.bus, ev, nil); err != nil {
		slog.Warn("Failed to publish direct delivery", "event", event, "error", err)
	}
}
