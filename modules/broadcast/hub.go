package broadcast

import (
	"context"
	"log"
	"sync"
)

// Conn is the write side of one transport connection. The wsserver
// wraps the real WebSocket; tests inject fakes.
type Conn interface {
	Send(data []byte) error
	Close() error
}

// Client represents a connected WebSocket client. IdentityID is empty
// until the client announces itself and the bridge binds it.
type Client struct {
	ID         string
	IdentityID string
	Conn       Conn
}

// Hub indexes live clients by connection id and by identity, and
// delivers pre-addressed frames. It holds no room state: the dispatcher
// computes every recipient set.
type Hub struct {
	clients    map[string]*Client            // connID -> client
	identities map[string]map[string]*Client // identityID -> connID -> client
	register   chan *Client
	unregister chan string
	done       chan struct{}
	mu         sync.RWMutex
}

// NewHub creates a new Hub.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		identities: make(map[string]map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan string),
		done:       make(chan struct{}),
	}
}

// Run starts the hub's main loop. It accepts a context for graceful
// shutdown.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			log.Println("[broadcast] Hub shutting down...")
			h.closeAllClients()
			close(h.done)
			return
		case client := <-h.register:
			h.handleRegister(client)
		case connID := <-h.unregister:
			h.handleUnregister(connID)
		}
	}
}

// Wait blocks until the hub has stopped.
func (h *Hub) Wait() {
	<-h.done
}

// Register adds a client to the hub.
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Unregister removes a client from the hub.
func (h *Hub) Unregister(connID string) {
	h.unregister <- connID
}

// Bind attaches an identity to an already-registered connection. Called
// by the bridge when the client announces itself.
func (h *Hub) Bind(connID, identityID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	client, ok := h.clients[connID]
	if !ok {
		return
	}
	if client.IdentityID != "" {
		h.unbindLocked(client)
	}
	client.IdentityID = identityID
	if h.identities[identityID] == nil {
		h.identities[identityID] = make(map[string]*Client)
	}
	h.identities[identityID][connID] = client
}

// SendToIdentities writes the frame to every live connection of every
// listed identity. Send failures are best-effort: logged and ignored,
// the read loop notices the dead socket.
func (h *Hub) SendToIdentities(identityIDs []string, frame []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, id := range identityIDs {
		for _, client := range h.identities[id] {
			h.sendToClient(client, frame)
		}
	}
}

// SendToConnection writes the frame to a single connection. Unknown
// connection ids no-op.
func (h *Hub) SendToConnection(connID string, frame []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if client, ok := h.clients[connID]; ok {
		h.sendToClient(client, frame)
	}
}

// ClientCount returns the total number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// IdentityConnectionCount returns the number of live connections bound
// to an identity.
func (h *Hub) IdentityConnectionCount(identityID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.identities[identityID])
}

func (h *Hub) handleRegister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[client.ID] = client
	if client.IdentityID != "" {
		if h.identities[client.IdentityID] == nil {
			h.identities[client.IdentityID] = make(map[string]*Client)
		}
		h.identities[client.IdentityID][client.ID] = client
	}
	log.Printf("[broadcast] Client %s registered (%d total)", client.ID, len(h.clients))
}

func (h *Hub) handleUnregister(connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	client, ok := h.clients[connID]
	if !ok {
		return
	}
	delete(h.clients, connID)
	h.unbindLocked(client)
	log.Printf("[broadcast] Client %s unregistered (%d total)", connID, len(h.clients))
}

func (h *Hub) unbindLocked(client *Client) {
	if client.IdentityID == "" {
		return
	}
	if conns, ok := h.identities[client.IdentityID]; ok {
		delete(conns, client.ID)
		if len(conns) == 0 {
			delete(h.identities, client.IdentityID)
		}
	}
}

func (h *Hub) sendToClient(client *Client, frame []byte) {
	if err := client.Conn.Send(frame); err != nil {
		log.Printf("[broadcast] Failed to send to client %s: %v", client.ID, err)
	}
}

func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, client := range h.clients {
		_ = client.Conn.Close()
	}
	h.clients = make(map[string]*Client)
	h.identities = make(map[string]map[string]*Client)
}
