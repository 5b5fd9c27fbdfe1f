package dispatch

import (
	"context"
	"log/slog"
	"time"

	"github.com/example/blog-realtime/modules/presence"
	"github.com/example/blog-realtime/modules/registry"
	"github.com/example/blog-realtime/modules/rooms"
)

// ReaperConfig holds the sweep intervals and timeouts.
type ReaperConfig struct {
	Interval          time.Duration // how often the sweep runs
	IdleTimeout       time.Duration // connection considered dead past this
	TypingTTL         time.Duration // server-side typing backstop
	PresenceRetention time.Duration // offline records kept this long
}

// DefaultReaperConfig returns the production sweep settings.
func DefaultReaperConfig() ReaperConfig {
	return ReaperConfig{
		Interval:          30 * time.Second,
		IdleTimeout:       5 * time.Minute,
		TypingTTL:         10 * time.Second,
		PresenceRetention: time.Hour,
	}
}

// Reaper periodically evicts stale connections, typing entries, and
// presence records. Typing expiry runs as part of the same sweep rather
// than one timer per entry, so timer handles cannot accumulate under
// load.
type Reaper struct {
	cfg        ReaperConfig
	registry   *registry.Store
	rooms      *rooms.Tracker
	presence   *presence.Store
	dispatcher *Dispatcher
	logger     *slog.Logger
}

// NewReaper creates a reaper over the dispatcher's stores.
func NewReaper(cfg ReaperConfig, d *Dispatcher) *Reaper {
	return &Reaper{
		cfg:        cfg,
		registry:   d.registry,
		rooms:      d.rooms,
		presence:   d.presence,
		dispatcher: d,
		logger:     slog.Default(),
	}
}

// Run sweeps on the configured interval until the context is cancelled.
func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep(time.Now())
		}
	}
}

// Sweep performs one pass: idle connections get the same cleanup as an
// explicit disconnect, stale typing entries are pruned with their own
// fan-out, and old offline presence records are dropped. Racing an
// explicit disconnect is safe: removing an already-removed entry is a
// no-op.
func (r *Reaper) Sweep(now time.Time) {
	idle := r.registry.IdleSince(now.Add(-r.cfg.IdleTimeout))
	for _, connID := range idle {
		r.logger.Info("Evicting idle connection", "connID", connID)
		r.dispatcher.emitter.ToConnection(connID, OutConnectionEvicted, map[string]any{
			"reason": "idle",
		})
		r.dispatcher.Disconnected(connID)
	}

	removals := r.rooms.SweepTyping(now.Add(-r.cfg.TypingTTL))
	for _, rm := range removals {
		r.dispatcher.emitToRoomExcept(
			r.dispatcher.typingAudience(rm.Ref.Key), rm.IdentityID,
			OutUserStoppedTyping, map[string]any{
				"room_key":    rm.Ref.Key,
				"identity_id": rm.IdentityID,
			})
	}

	if pruned := r.presence.Prune(now.Add(-r.cfg.PresenceRetention)); pruned > 0 {
		r.logger.Debug("Pruned stale presence records", "count", pruned)
	}
}
