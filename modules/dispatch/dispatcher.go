// Package dispatch is the protocol core: it validates inbound client
// events, mutates the registry/rooms/presence stores, triggers
// best-effort persistence side effects, and computes the fan-out set
// for every outbound event.
package dispatch

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/example/blog-realtime/domain/realtime"
	"github.com/example/blog-realtime/modules/presence"
	"github.com/example/blog-realtime/modules/registry"
	"github.com/example/blog-realtime/modules/rooms"
)

// persistTimeout bounds each fire-and-forget persistence call.
const persistTimeout = 10 * time.Second

// IdentityRecord is the slice of the stored identity the dispatcher
// needs.
type IdentityRecord struct {
	ID          string
	DisplayName string
}

// Persistence is the external storage collaborator. Every call is a
// best-effort side effect: errors are logged and never block the
// in-memory mutation or the fan-out.
type Persistence interface {
	RecordViewerActivity(ctx context.Context, contentID, identityID string) error
	AppendMessage(ctx context.Context, id, chatID, senderID, content string) error
	UpsertEngagementCounter(ctx context.Context, contentID, kind string, delta int64) error
	FetchFollowerIDs(ctx context.Context, identityID string) ([]string, error)
	FetchIdentity(ctx context.Context, identityID string) (IdentityRecord, error)
}

// FollowerSource resolves follower lists for presence fan-out. The
// cache module implements it; the dispatcher falls back to Persistence
// when no source is wired or the source errors.
type FollowerSource interface {
	FollowerIDs(ctx context.Context, identityID string) ([]string, error)
}

// Emitter delivers outbound envelopes. The production emitter publishes
// on the event bus for the broadcast module to consume; tests inject a
// capture.
type Emitter interface {
	ToIdentities(recipients []string, event string, payload any)
	ToConnection(connID string, event string, payload any)
}

// Dispatcher owns the event catalog. All stores are injected so they
// can be swapped for per-test instances.
type Dispatcher struct {
	registry    *registry.Store
	rooms       *rooms.Tracker
	presence    *presence.Store
	persistence Persistence
	followers   FollowerSource
	emitter     Emitter
	logger      *slog.Logger
}

// NewDispatcher creates a dispatcher over the given stores and
// collaborators.
func NewDispatcher(
	reg *registry.Store,
	tracker *rooms.Tracker,
	pres *presence.Store,
	persist Persistence,
	emitter Emitter,
) *Dispatcher {
	return &Dispatcher{
		registry:    reg,
		rooms:       tracker,
		presence:    pres,
		persistence: persist,
		emitter:     emitter,
		logger:      slog.Default(),
	}
}

// SetFollowerSource wires the follower cache. Optional; without it
// follower lists come straight from persistence.
func (d *Dispatcher) SetFollowerSource(src FollowerSource) {
	d.followers = src
}

// Connected registers a freshly accepted transport connection.
func (d *Dispatcher) Connected(connID string) {
	d.registry.Add(connID)
}

// ConnectionIdentity returns the identity the connection has announced
// as, or false while the connection is anonymous. The transport bridge
// binds its delivery index off this, so a rejected announce never
// claims an identity.
func (d *Dispatcher) ConnectionIdentity(connID string) (string, bool) {
	conn, ok := d.registry.Get(connID)
	if !ok || conn.IdentityID == "" {
		return "", false
	}
	return conn.IdentityID, true
}

// HandleEvent decodes and processes one inbound client event. Malformed
// payloads are dropped with a warning; they never crash the dispatcher
// or the connection.
func (d *Dispatcher) HandleEvent(connID, event string, payload json.RawMessage) {
	d.registry.Touch(connID)

	switch event {
	case EvConnectAnnounce:
		handle(d, connID, event, payload, d.handleAnnounce)
	case EvJoinContentRoom:
		handle(d, connID, event, payload, d.handleJoinContent)
	case EvLeaveContentRoom:
		handle(d, connID, event, payload, d.handleLeaveContent)
	case EvTypingStart:
		handle(d, connID, event, payload, d.handleTypingStart)
	case EvTypingStop:
		handle(d, connID, event, payload, d.handleTypingStop)
	case EvContentMutation:
		handle(d, connID, event, payload, d.handleMutation)
	case EvChatSend:
		handle(d, connID, event, payload, d.handleChatSend)
	case EvJoinChatRoom:
		handle(d, connID, event, payload, d.handleJoinChat)
	case EvLeaveChatRoom:
		handle(d, connID, event, payload, d.handleLeaveChat)
	case EvJoinCollab:
		handle(d, connID, event, payload, d.handleJoinCollab)
	case EvLeaveCollab:
		handle(d, connID, event, payload, d.handleLeaveCollab)
	case EvJoinAnalytics:
		handle(d, connID, event, payload, d.handleJoinAnalytics)
	case EvLeaveAnalytics:
		handle(d, connID, event, payload, d.handleLeaveAnalytics)
	case EvHeartbeat:
		handle(d, connID, event, payload, d.handleHeartbeat)
	default:
		d.logger.Warn("Dropping unknown event", "event", event, "connID", connID)
	}
}

// validated is implemented by every inbound payload type.
type validated interface {
	validate() error
}

// handle decodes and validates the payload, then runs the handler.
func handle[P validated](d *Dispatcher, connID, event string, raw json.RawMessage, fn func(connID string, p P)) {
	var p P
	if err := json.Unmarshal(raw, &p); err != nil {
		d.logger.Warn("Dropping malformed event", "event", event, "connID", connID, "error", err)
		return
	}
	if err := p.validate(); err != nil {
		d.logger.Warn("Dropping invalid event", "event", event, "connID", connID, "error", err)
		return
	}
	fn(connID, p)
}

func (d *Dispatcher) handleAnnounce(connID string, p announcePayload) {
	prev, had := d.registry.Get(connID)
	d.registry.Register(connID, p.IdentityID, p.DisplayName)
	bound := d.presence.SetOnline(p.IdentityID, connID)

	// Re-announcing as a different identity releases the previous
	// identity's claim on this connection.
	if had && prev.IdentityID != "" && prev.IdentityID != p.IdentityID {
		if remaining := d.presence.ConnectionClosed(prev.IdentityID, connID); remaining == 0 {
			d.notifyFollowers(prev.IdentityID, OutIdentityOffline, map[string]any{
				"identity_id":  prev.IdentityID,
				"display_name": prev.DisplayName,
				"status":       realtime.StatusOffline,
			})
		}
	}

	if p.DisplayName == "" {
		d.resolveDisplayName(connID, p.IdentityID)
	}

	// A repeated announce on the same connection is a no-op for the
	// followers; only a new binding fans out.
	if !bound {
		return
	}
	d.notifyFollowers(p.IdentityID, OutIdentityOnline, map[string]any{
		"identity_id":  p.IdentityID,
		"display_name": p.DisplayName,
		"status":       realtime.StatusOnline,
	})
}

// resolveDisplayName backfills a missing display name from storage.
// Best-effort and asynchronous: announce never waits on the database.
func (d *Dispatcher) resolveDisplayName(connID, identityID string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		defer cancel()

		rec, err := d.persistence.FetchIdentity(ctx, identityID)
		if err != nil {
			d.logger.Warn("Display name lookup failed", "identityID", identityID, "error", err)
			return
		}
		d.registry.Register(connID, identityID, rec.DisplayName)
	}()
}

func (d *Dispatcher) handleJoinContent(connID string, p roomPayload) {
	ref := realtime.ContentRoom(p.ContentID)
	count, members := d.rooms.Join(ref, p.IdentityID)
	d.registry.AddRoom(connID, ref)
	d.registry.SetFocus(connID, p.ContentID)

	d.sideEffect("record viewer activity", func(ctx context.Context) error {
		return d.persistence.RecordViewerActivity(ctx, p.ContentID, p.IdentityID)
	})
	d.sideEffect("bump view counter", func(ctx context.Context) error {
		return d.persistence.UpsertEngagementCounter(ctx, p.ContentID, "views", 1)
	})

	d.emitToRoomExcept(members, p.IdentityID, OutViewerJoined, map[string]any{
		"content_id":   p.ContentID,
		"identity_id":  p.IdentityID,
		"viewer_count": count,
	})
	d.emitter.ToConnection(connID, OutRoomMembers, map[string]any{
		"room":         ref.String(),
		"members":      members,
		"viewer_count": count,
	})
}

func (d *Dispatcher) handleLeaveContent(connID string, p roomPayload) {
	ref := realtime.ContentRoom(p.ContentID)
	count, was := d.rooms.Leave(ref, p.IdentityID)
	d.registry.RemoveRoom(connID, ref)
	d.registry.SetFocus(connID, "")
	if !was {
		return
	}

	d.emitToRoomExcept(d.rooms.MembersOf(ref), p.IdentityID, OutViewerLeft, map[string]any{
		"content_id":   p.ContentID,
		"identity_id":  p.IdentityID,
		"viewer_count": count,
	})
}

func (d *Dispatcher) handleTypingStart(connID string, p typingPayload) {
	ref := realtime.TypingRoom(p.RoomKey)
	d.rooms.SetTyping(ref, p.IdentityID, realtime.TypingEntry{
		DisplayName: p.DisplayName,
		Action:      p.Action,
		Timestamp:   time.Now(),
	})
	d.registry.SetTyping(connID, true, ref.Key)

	d.emitToRoomExcept(d.typingAudience(ref.Key), p.IdentityID, OutUserTyping, map[string]any{
		"room_key":     ref.Key,
		"identity_id":  p.IdentityID,
		"display_name": p.DisplayName,
		"action":       p.Action,
	})
}

func (d *Dispatcher) handleTypingStop(connID string, p typingPayload) {
	ref := realtime.TypingRoom(p.RoomKey)
	_, was := d.rooms.Leave(ref, p.IdentityID)
	d.registry.SetTyping(connID, false, "")
	if !was {
		// Already cleared by the sweep; the timer firing late is a
		// safe no-op.
		return
	}

	d.emitToRoomExcept(d.typingAudience(ref.Key), p.IdentityID, OutUserStoppedTyping, map[string]any{
		"room_key":    ref.Key,
		"identity_id": p.IdentityID,
	})
}

// typingAudience is the set of identities that see typing indicators
// for a scope: the viewers and chat members sharing the key, or every
// online identity for the default shared scope.
func (d *Dispatcher) typingAudience(key string) []string {
	if key == realtime.DefaultTypingKey {
		return d.rooms.MembersOf(realtime.TypingRoom(realtime.DefaultTypingKey))
	}
	seen := make(map[string]struct{})
	var audience []string
	for _, ref := range []realtime.RoomRef{realtime.ContentRoom(key), realtime.ChatRoom(key)} {
		for _, id := range d.rooms.MembersOf(ref) {
			if _, ok := seen[id]; !ok {
				seen[id] = struct{}{}
				audience = append(audience, id)
			}
		}
	}
	return audience
}

func (d *Dispatcher) handleMutation(connID string, p mutationPayload) {
	// Pass-through: persistence belongs to the editing feature. The
	// envelope relays unordered, last writer wins.
	ref := realtime.CollaborationRoom(p.ContentID)
	d.emitToRoomExcept(d.rooms.MembersOf(ref), p.IdentityID, OutContentMutation, map[string]any{
		"content_id":  p.ContentID,
		"identity_id": p.IdentityID,
		"operation":   p.Operation,
		"position":    p.Position,
		"payload":     p.Payload,
	})
}

func (d *Dispatcher) handleChatSend(connID string, p chatSendPayload) {
	msgID := uuid.New().String()

	d.sideEffect("append chat message", func(ctx context.Context) error {
		return d.persistence.AppendMessage(ctx, msgID, p.ChatID, p.SenderID, p.Content)
	})

	ref := realtime.ChatRoom(p.ChatID)
	d.emitToRoomExcept(d.rooms.MembersOf(ref), p.SenderID, OutNewMessage, map[string]any{
		"message_id": msgID,
		"chat_id":    p.ChatID,
		"sender_id":  p.SenderID,
		"content":    p.Content,
	})
}

func (d *Dispatcher) handleJoinChat(connID string, p roomPayload) {
	d.joinRoom(connID, realtime.ChatRoom(p.ChatID), p.IdentityID, OutMemberJoined)
}

func (d *Dispatcher) handleLeaveChat(connID string, p roomPayload) {
	d.leaveRoom(connID, realtime.ChatRoom(p.ChatID), p.IdentityID, OutMemberLeft)
}

func (d *Dispatcher) handleJoinCollab(connID string, p roomPayload) {
	d.joinRoom(connID, realtime.CollaborationRoom(p.ContentID), p.IdentityID, OutCollabJoined)
}

func (d *Dispatcher) handleLeaveCollab(connID string, p roomPayload) {
	d.leaveRoom(connID, realtime.CollaborationRoom(p.ContentID), p.IdentityID, OutCollabLeft)
}

func (d *Dispatcher) handleJoinAnalytics(connID string, p roomPayload) {
	d.joinRoom(connID, realtime.AnalyticsRoom(p.ContentID), p.IdentityID, OutMemberJoined)

	// Dashboards need an immediate viewer-count snapshot, not an async
	// broadcast round-trip.
	d.emitter.ToConnection(connID, OutAnalyticsSnapshot, map[string]any{
		"content_id":   p.ContentID,
		"viewer_count": d.rooms.Count(realtime.ContentRoom(p.ContentID)),
		"viewers":      d.rooms.MembersOf(realtime.ContentRoom(p.ContentID)),
	})
}

func (d *Dispatcher) handleLeaveAnalytics(connID string, p roomPayload) {
	d.leaveRoom(connID, realtime.AnalyticsRoom(p.ContentID), p.IdentityID, OutMemberLeft)
}

// joinRoom is the uniform join path for chat, collaboration, and
// analytics rooms.
func (d *Dispatcher) joinRoom(connID string, ref realtime.RoomRef, identityID, event string) {
	count, members := d.rooms.Join(ref, identityID)
	d.registry.AddRoom(connID, ref)

	d.emitToRoomExcept(members, identityID, event, map[string]any{
		"room":         ref.String(),
		"identity_id":  identityID,
		"member_count": count,
	})
	d.emitter.ToConnection(connID, OutRoomMembers, map[string]any{
		"room":         ref.String(),
		"members":      members,
		"member_count": count,
	})
}

// leaveRoom is the uniform leave path.
func (d *Dispatcher) leaveRoom(connID string, ref realtime.RoomRef, identityID, event string) {
	count, was := d.rooms.Leave(ref, identityID)
	d.registry.RemoveRoom(connID, ref)
	if !was {
		return
	}

	d.emitToRoomExcept(d.rooms.MembersOf(ref), identityID, event, map[string]any{
		"room":         ref.String(),
		"identity_id":  identityID,
		"member_count": count,
	})
}

func (d *Dispatcher) handleHeartbeat(connID string, p heartbeatPayload) {
	d.presence.UpdateActivity(p.IdentityID, p.Activity)
	d.emitter.ToConnection(connID, OutHeartbeatAck, map[string]any{
		"identity_id": p.IdentityID,
	})
}

// Disconnected performs the full cleanup for a gone connection. The
// transport calls it on socket close; the reaper calls it for idle
// evictions. Both paths racing is safe: the loser finds nothing to
// remove.
func (d *Dispatcher) Disconnected(connID string) {
	conn, ok := d.registry.Remove(connID)
	if !ok {
		return
	}
	if conn.IdentityID == "" {
		return
	}

	changes := d.rooms.RemoveIdentityFromAll(conn.IdentityID)
	for _, c := range changes {
		// Typing rooms fan out to the indicator's audience, not to the
		// other typers, and with the same shape as an explicit stop.
		if c.Ref.Kind == realtime.KindTyping {
			d.emitToRoomExcept(d.typingAudience(c.Ref.Key), conn.IdentityID, OutUserStoppedTyping, map[string]any{
				"room_key":    c.Ref.Key,
				"identity_id": conn.IdentityID,
			})
			continue
		}
		d.emitToRoomExcept(d.rooms.MembersOf(c.Ref), conn.IdentityID, leaveEventFor(c.Ref.Kind), map[string]any{
			"room":         c.Ref.String(),
			"identity_id":  conn.IdentityID,
			"display_name": conn.DisplayName,
			"member_count": c.NewCount,
		})
	}

	if remaining := d.presence.ConnectionClosed(conn.IdentityID, connID); remaining == 0 {
		d.notifyFollowers(conn.IdentityID, OutIdentityOffline, map[string]any{
			"identity_id":  conn.IdentityID,
			"display_name": conn.DisplayName,
			"status":       realtime.StatusOffline,
		})
	}
}

// leaveEventFor maps a room kind to the outbound event its members
// receive when someone drops out. Typing rooms never reach it; their
// disconnect fan-out goes through typingAudience.
func leaveEventFor(kind realtime.RoomKind) string {
	switch kind {
	case realtime.KindContentViewers:
		return OutViewerLeft
	case realtime.KindCollaboration:
		return OutCollabLeft
	}
	return OutMemberLeft
}

// notifyFollowers fans a presence change out to every follower's
// personal scope. Follower lookup failures degrade to a direct
// persistence read; if that fails too the fan-out is skipped.
func (d *Dispatcher) notifyFollowers(identityID, event string, payload map[string]any) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		defer cancel()

		ids, err := d.followerIDs(ctx, identityID)
		if err != nil {
			d.logger.Warn("Follower lookup failed, skipping presence fan-out",
				"identityID", identityID, "error", err)
			return
		}
		if len(ids) == 0 {
			return
		}
		d.emitter.ToIdentities(ids, event, payload)
	}()
}

func (d *Dispatcher) followerIDs(ctx context.Context, identityID string) ([]string, error) {
	if d.followers != nil {
		ids, err := d.followers.FollowerIDs(ctx, identityID)
		if err == nil {
			return ids, nil
		}
		d.logger.Warn("Follower cache error, falling back to storage",
			"identityID", identityID, "error", err)
	}
	return d.persistence.FetchFollowerIDs(ctx, identityID)
}

// emitToRoomExcept delivers to every member except the excluded
// identity. Empty recipient sets are skipped.
func (d *Dispatcher) emitToRoomExcept(members []string, exclude, event string, payload any) {
	recipients := make([]string, 0, len(members))
	for _, id := range members {
		if id != exclude {
			recipients = append(recipients, id)
		}
	}
	if len(recipients) == 0 {
		return
	}
	d.emitter.ToIdentities(recipients, event, payload)
}

// sideEffect runs a persistence call detached from the critical path.
// The result is discarded except for logging: the real-time view may be
// eventually consistent with storage but must never stall on it.
func (d *Dispatcher) sideEffect(name string, fn func(ctx context.Context) error) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		defer cancel()

		if err := fn(ctx); err != nil {
			d.logger.Warn("Persistence side effect failed", "op", name, "error", err)
		}
	}()
}
