package wsserver

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/example/blog-realtime/domain/realtime"
	"github.com/example/blog-realtime/modules/broadcast"
	"github.com/example/blog-realtime/modules/cache"
	"github.com/example/blog-realtime/modules/dispatch"
	"github.com/example/blog-realtime/modules/presence"
	"github.com/example/blog-realtime/modules/rooms"
)

// Rate limiting constants
const (
	eventsPerSecond = 20
	burstSize       = 40
)

// rateLimiter implements a simple token bucket rate limiter.
type rateLimiter struct {
	tokens     int
	maxTokens  int
	refillRate int // tokens per second
	lastRefill time.Time
	mu         sync.Mutex
}

func newRateLimiter(maxTokens, refillRate int) *rateLimiter {
	return &rateLimiter{
		tokens:     maxTokens,
		maxTokens:  maxTokens,
		refillRate: refillRate,
		lastRefill: time.Now(),
	}
}

func (r *rateLimiter) allow() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(r.lastRefill)
	tokensToAdd := int(elapsed.Seconds()) * r.refillRate
	if tokensToAdd > 0 {
		r.tokens += tokensToAdd
		if r.tokens > r.maxTokens {
			r.tokens = r.maxTokens
		}
		r.lastRefill = now
	}

	if r.tokens > 0 {
		r.tokens--
		return true
	}
	return false
}

// wsConn adapts a Fiber WebSocket connection to the hub's Conn
// interface. Writes are serialized: the hub's consumer goroutine and
// the read loop's error frames share the socket.
type wsConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func newWSConn(conn *websocket.Conn) *wsConn {
	return &wsConn{conn: conn}
}

func (w *wsConn) Send(data []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.conn.WriteMessage(websocket.TextMessage, data)
}

func (w *wsConn) Close() error {
	return w.conn.Close()
}

// Handlers contains the WebSocket bridge and the read-only REST
// snapshot handlers.
type Handlers struct {
	dispatcher  *dispatch.Dispatcher
	hub         *broadcast.Hub
	rooms       *rooms.Tracker
	presence    *presence.Store
	cacheModule *cache.CacheModule
	logger      *slog.Logger
}

// NewHandlers creates a new handlers instance.
func NewHandlers(
	dispatcher *dispatch.Dispatcher,
	hub *broadcast.Hub,
	tracker *rooms.Tracker,
	pres *presence.Store,
	cacheModule *cache.CacheModule,
) *Handlers {
	return &Handlers{
		dispatcher:  dispatcher,
		hub:         hub,
		rooms:       tracker,
		presence:    pres,
		cacheModule: cacheModule,
		logger:      slog.Default(),
	}
}

// HandleWebSocket is the transport bridge: it turns the raw connection
// lifecycle into dispatcher calls.
func (h *Handlers) HandleWebSocket(c *websocket.Conn) {
	connID := uuid.New().String()
	wc := newWSConn(c)

	h.hub.Register(&broadcast.Client{ID: connID, Conn: wc})
	h.dispatcher.Connected(connID)
	limiter := newRateLimiter(burstSize, eventsPerSecond)

	defer func() {
		h.hub.Unregister(connID)
		h.dispatcher.Disconnected(connID)
		c.Close()
	}()

	h.logger.Info("WebSocket connected", "connID", connID)

	for {
		_, msgBytes, err := c.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Error("WebSocket error", "connID", connID, "error", err)
			}
			break
		}

		var env realtime.Envelope
		if err := json.Unmarshal(msgBytes, &env); err != nil {
			h.sendError(wc, "Invalid message format")
			continue
		}
		if env.Event == "" {
			h.sendError(wc, "Missing event name")
			continue
		}

		if !limiter.allow() {
			h.sendError(wc, "Rate limit exceeded, please slow down")
			continue
		}

		h.dispatcher.HandleEvent(connID, env.Event, env.Payload)

		// The hub routes identity-addressed frames. It learns the
		// identity only once the dispatcher has accepted the announce,
		// so a rejected payload never binds the delivery index.
		if env.Event == dispatch.EvConnectAnnounce {
			if identityID, ok := h.dispatcher.ConnectionIdentity(connID); ok {
				h.hub.Bind(connID, identityID)
			}
		}
	}

	h.logger.Info("WebSocket disconnected", "connID", connID)
}

// sendError sends a protocol-level error frame to the connection.
func (h *Handlers) sendError(wc *wsConn, errMsg string) {
	frame, err := json.Marshal(realtime.Envelope{
		Event: "error",
		Error: errMsg,
	})
	if err != nil {
		h.logger.Error("Failed to marshal error frame", "error", err)
		return
	}
	if err := wc.Send(frame); err != nil {
		h.logger.Error("Failed to send error frame", "error", err)
	}
}

// REST Handlers

// GetPresence handles presence snapshot requests (GET /api/v1/presence/:id).
func (h *Handlers) GetPresence(c *fiber.Ctx) error {
	identityID := c.Params("id")
	if identityID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Identity ID is required",
		})
	}
	rec := h.presence.Get(identityID)
	return c.JSON(fiber.Map{
		"presence":    rec,
		"connections": h.presence.Connections(identityID),
	})
}

// GetContentViewers handles viewer snapshot requests
// (GET /api/v1/content/:id/viewers).
func (h *Handlers) GetContentViewers(c *fiber.Ctx) error {
	contentID := c.Params("id")
	if contentID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Content ID is required",
		})
	}
	ref := realtime.ContentRoom(contentID)
	members := h.rooms.MembersOf(ref)
	return c.JSON(fiber.Map{
		"content_id":   contentID,
		"viewer_count": len(members),
		"viewers":      members,
	})
}

// GetRoomStats handles room statistics requests (GET /api/v1/rooms/stats).
func (h *Handlers) GetRoomStats(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"rooms":             h.rooms.Stats(),
		"connected_clients": h.hub.ClientCount(),
		"online_identities": h.presence.OnlineCount(),
	})
}

// GetCacheStats handles cache statistics requests (GET /api/v1/cache/stats).
func (h *Handlers) GetCacheStats(c *fiber.Ctx) error {
	fc := h.cacheModule.Cache()
	if fc == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "Cache not initialized",
		})
	}
	return c.JSON(fc.GetStats())
}

// HealthCheck handles health check requests (GET /health).
func (h *Handlers) HealthCheck(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  "healthy",
		"service": "blog-realtime",
	})
}
