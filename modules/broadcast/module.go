package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"

	"github.com/example/blog-realtime/domain/realtime"
	"github.com/example/blog-realtime/events"
)

// BroadcastModule consumes delivery events from the dispatcher and
// writes them to WebSocket clients.
type BroadcastModule struct {
	hub       *Hub
	cancelHub context.CancelFunc
}

// Compile-time interface checks.
var _ mono.Module = (*BroadcastModule)(nil)
var _ mono.EventConsumerModule = (*BroadcastModule)(nil)
var _ mono.HealthCheckableModule = (*BroadcastModule)(nil)

// NewModule creates a new BroadcastModule.
func NewModule() *BroadcastModule {
	return &BroadcastModule{
		hub: NewHub(),
	}
}

// Name returns the module name.
func (m *BroadcastModule) Name() string {
	return "broadcast"
}

// Start runs the hub.
func (m *BroadcastModule) Start(_ context.Context) error {
	ctx, cancel := context.WithCancel(context.Background())
	m.cancelHub = cancel
	go m.hub.Run(ctx)
	log.Println("[broadcast] Module started - delivery hub running")
	return nil
}

// Stop shuts down the hub and its clients.
func (m *BroadcastModule) Stop(_ context.Context) error {
	clientCount := m.hub.ClientCount()
	if m.cancelHub != nil {
		m.cancelHub()
		m.hub.Wait()
	}
	log.Printf("[broadcast] Module stopped - %d clients were connected", clientCount)
	return nil
}

// Health returns the health status.
func (m *BroadcastModule) Health(_ context.Context) mono.HealthStatus {
	return mono.HealthStatus{
		Healthy: true,
		Message: "operational",
		Details: map[string]any{
			"connected_clients": m.hub.ClientCount(),
		},
	}
}

// RegisterEventConsumers registers the delivery event handlers.
func (m *BroadcastModule) RegisterEventConsumers(registry mono.EventRegistry) error {
	if err := helper.RegisterTypedEventConsumer(
		registry, events.RoomDeliveryV1, m.handleRoomDelivery, m,
	); err != nil {
		return fmt.Errorf("failed to register RoomDelivery consumer: %w", err)
	}

	if err := helper.RegisterTypedEventConsumer(
		registry, events.DirectDeliveryV1, m.handleDirectDelivery, m,
	); err != nil {
		return fmt.Errorf("failed to register DirectDelivery consumer: %w", err)
	}

	log.Println("[broadcast] Registered event consumers: RoomDelivery, DirectDelivery")
	return nil
}

func (m *BroadcastModule) handleRoomDelivery(_ context.Context, event events.RoomDeliveryEvent, _ *mono.Msg) error {
	frame, err := marshalFrame(event.Event, event.Payload, event.Timestamp)
	if err != nil {
		log.Printf("[broadcast] Failed to marshal frame for %s: %v", event.Event, err)
		return nil
	}
	m.hub.SendToIdentities(event.Recipients, frame)
	return nil
}

func (m *BroadcastModule) handleDirectDelivery(_ context.Context, event events.DirectDeliveryEvent, _ *mono.Msg) error {
	frame, err := marshalFrame(event.Event, event.Payload, event.Timestamp)
	if err != nil {
		log.Printf("[broadcast] Failed to marshal frame for %s: %v", event.Event, err)
		return nil
	}
	m.hub.SendToConnection(event.ConnectionID, frame)
	return nil
}

func marshalFrame(name string, payload json.RawMessage, ts time.Time) ([]byte, error) {
	return json.Marshal(realtime.Envelope{
		Event:     name,
		Payload:   payload,
		Timestamp: &ts,
	})
}

// GetHub returns the hub for the transport bridge to use.
func (m *BroadcastModule) GetHub() *Hub {
	return m.hub
}
