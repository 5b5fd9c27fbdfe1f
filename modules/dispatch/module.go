package dispatch

import (
	"context"
	"log"

	"github.com/go-monolith/mono"

	"github.com/example/blog-realtime/events"
	"github.com/example/blog-realtime/modules/presence"
	"github.com/example/blog-realtime/modules/registry"
	"github.com/example/blog-realtime/modules/rooms"
)

// Module wires the dispatcher and reaper into the application
// lifecycle and the event bus.
type Module struct {
	dispatcher   *Dispatcher
	reaper       *Reaper
	reaperCfg    ReaperConfig
	cancelReaper context.CancelFunc
}

// Compile-time interface checks.
var (
	_ mono.Module                = (*Module)(nil)
	_ mono.EventBusAwareModule   = (*Module)(nil)
	_ mono.EventEmitterModule    = (*Module)(nil)
	_ mono.HealthCheckableModule = (*Module)(nil)
)

// NewModule creates the dispatch module over injected stores and the
// persistence collaborator.
func NewModule(
	reaperCfg ReaperConfig,
	reg *registry.Store,
	tracker *rooms.Tracker,
	pres *presence.Store,
	persist Persistence,
) *Module {
	return &Module{
		dispatcher: NewDispatcher(reg, tracker, pres, persist, nil),
		reaperCfg:  reaperCfg,
	}
}

// Name returns the module name.
func (m *Module) Name() string {
	return "dispatch"
}

// SetEventBus receives the EventBus from the framework and wires the
// production emitter.
func (m *Module) SetEventBus(bus mono.EventBus) {
	m.dispatcher.emitter = newBusEmitter(bus)
}

// EmitEvents declares the events this module can emit.
func (m *Module) EmitEvents() []mono.BaseEventDefinition {
	return []mono.BaseEventDefinition{
		events.RoomDeliveryV1.ToBase(),
		events.DirectDeliveryV1.ToBase(),
	}
}

// Start launches the reaper.
func (m *Module) Start(_ context.Context) error {
	ctx, cancel := context.WithCancel(context.Background())
	m.cancelReaper = cancel
	m.reaper = NewReaper(m.reaperCfg, m.dispatcher)
	go m.reaper.Run(ctx)
	log.Printf("[dispatch] Module started - reaper interval %s, idle timeout %s",
		m.reaperCfg.Interval, m.reaperCfg.IdleTimeout)
	return nil
}

// Stop cancels the reaper.
func (m *Module) Stop(_ context.Context) error {
	if m.cancelReaper != nil {
		m.cancelReaper()
	}
	log.Println("[dispatch] Module stopped")
	return nil
}

// Health reports store sizes.
func (m *Module) Health(_ context.Context) mono.HealthStatus {
	return mono.HealthStatus{
		Healthy: true,
		Message: "operational",
		Details: map[string]any{
			"connections":       m.dispatcher.registry.Count(),
			"online_identities": m.dispatcher.presence.OnlineCount(),
		},
	}
}

// Dispatcher returns the dispatcher for the transport bridge to use.
func (m *Module) Dispatcher() *Dispatcher {
	return m.dispatcher
}
