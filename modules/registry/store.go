// Package registry tracks live transport connections and their session
// metadata.
package registry

import (
	"sync"
	"time"

	"github.com/example/blog-realtime/domain/realtime"
)

// Store provides thread-safe storage for live connections. Unknown
// connection ids are tolerated on every operation: disconnect races with
// in-flight events are expected, not exceptional.
type Store struct {
	mu    sync.RWMutex
	conns map[string]*realtime.Connection
}

// NewStore creates an empty connection store.
func NewStore() *Store {
	return &Store{
		conns: make(map[string]*realtime.Connection),
	}
}

// Add creates the entry for a freshly accepted transport connection.
// The identity is unknown until the client announces itself.
func (s *Store) Add(connID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	s.conns[connID] = &realtime.Connection{
		ID:           connID,
		ConnectedAt:  now,
		LastActivity: now,
		Rooms:        make(map[realtime.RoomRef]struct{}),
	}
}

// Register records the announced identity and display name. Repeated
// announcements from the same connection overwrite in place. If the
// connection was never added (transport race) an entry is created.
func (s *Store) Register(connID, identityID, displayName string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conn, ok := s.conns[connID]
	if !ok {
		now := time.Now()
		conn = &realtime.Connection{
			ID:          connID,
			ConnectedAt: now,
			Rooms:       make(map[realtime.RoomRef]struct{}),
		}
		s.conns[connID] = conn
	}
	conn.IdentityID = identityID
	conn.DisplayName = displayName
	conn.LastActivity = time.Now()
}

// Touch updates the connection's last-activity timestamp. No-op for
// unknown connections.
func (s *Store) Touch(connID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if conn, ok := s.conns[connID]; ok {
		conn.LastActivity = time.Now()
	}
}

// AddRoom records a room on the connection's joined set.
func (s *Store) AddRoom(connID string, ref realtime.RoomRef) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if conn, ok := s.conns[connID]; ok {
		conn.Rooms[ref] = struct{}{}
	}
}

// RemoveRoom drops a room from the connection's joined set.
func (s *Store) RemoveRoom(connID string, ref realtime.RoomRef) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if conn, ok := s.conns[connID]; ok {
		delete(conn.Rooms, ref)
	}
}

// SetFocus sets the single content id the connection is actively
// viewing or editing. Empty clears the focus.
func (s *Store) SetFocus(connID, contentID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if conn, ok := s.conns[connID]; ok {
		conn.ContentFocus = contentID
	}
}

// SetTyping records the connection's typing flag and target.
func (s *Store) SetTyping(connID string, typing bool, target string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if conn, ok := s.conns[connID]; ok {
		conn.Typing = typing
		conn.TypingTarget = target
	}
}

// Get returns a copy of the connection entry.
func (s *Store) Get(connID string) (realtime.Connection, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conn, ok := s.conns[connID]
	if !ok {
		return realtime.Connection{}, false
	}
	return copyConn(conn), true
}

// Remove deletes the entry and returns it so the caller can drive the
// cleanup of dependent room and presence state. The second return is
// false if the connection was already gone.
func (s *Store) Remove(connID string) (realtime.Connection, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conn, ok := s.conns[connID]
	if !ok {
		return realtime.Connection{}, false
	}
	delete(s.conns, connID)
	return copyConn(conn), true
}

// IdentityConnections returns the ids of every live connection bound to
// the identity. Used by disconnect reconciliation.
func (s *Store) IdentityConnections(identityID string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ids []string
	for id, conn := range s.conns {
		if conn.IdentityID == identityID {
			ids = append(ids, id)
		}
	}
	return ids
}

// IdleSince returns the ids of connections whose last activity is
// before the cutoff. Used by the reaper sweep.
func (s *Store) IdleSince(cutoff time.Time) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ids []string
	for id, conn := range s.conns {
		if conn.LastActivity.Before(cutoff) {
			ids = append(ids, id)
		}
	}
	return ids
}

// Count returns the number of live connections.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.conns)
}

func copyConn(conn *realtime.Connection) realtime.Connection {
	out := *conn
	out.Rooms = make(map[realtime.RoomRef]struct{}, len(conn.Rooms))
	for ref := range conn.Rooms {
		out.Rooms[ref] = struct{}{}
	}
	return out
}
