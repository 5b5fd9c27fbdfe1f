// Package presence tracks per-identity online/offline and activity
// state, independent of how many concurrent connections the identity
// holds.
package presence

import (
	"sync"
	"time"

	"github.com/example/blog-realtime/domain/realtime"
)

// Store provides thread-safe presence state. The store is pure state;
// fanning presence changes out to followers is the dispatcher's job.
//
// Each identity tracks the set of live connection ids, so closing one
// of several simultaneous connections does not flip the identity
// offline, and a client re-announcing on the same connection cannot
// inflate the count.
type Store struct {
	mu      sync.RWMutex
	records map[string]*realtime.Presence
	conns   map[string]map[string]struct{} // identityID -> live connection ids
}

// NewStore creates an empty presence store.
func NewStore() *Store {
	return &Store{
		records: make(map[string]*realtime.Presence),
		conns:   make(map[string]map[string]struct{}),
	}
}

// SetOnline marks the identity online over the given connection and
// records activity. Idempotent per (identity, connection): repeated
// announcements on the same connection do not add to the count. Returns
// true when the connection is newly bound to the identity.
func (s *Store) SetOnline(identityID, connID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[identityID]
	if !ok {
		rec = &realtime.Presence{IdentityID: identityID}
		s.records[identityID] = rec
	}
	rec.Status = realtime.StatusOnline
	rec.LastActivity = time.Now()
	rec.ConnectionID = connID

	set, ok := s.conns[identityID]
	if !ok {
		set = make(map[string]struct{})
		s.conns[identityID] = set
	}
	if _, known := set[connID]; known {
		return false
	}
	set[connID] = struct{}{}
	return true
}

// ConnectionClosed removes the connection from the identity's live set
// and returns the remaining count. When the set empties the identity is
// flipped offline. Removing an unknown connection is a no-op that
// reports the current count (reaper vs. disconnect races).
func (s *Store) ConnectionClosed(identityID, connID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	set := s.conns[identityID]
	delete(set, connID)
	if len(set) > 0 {
		return len(set)
	}
	delete(s.conns, identityID)
	if rec, ok := s.records[identityID]; ok {
		rec.Status = realtime.StatusOffline
		rec.ConnectionID = ""
	}
	return 0
}

// SetOffline force-flips the identity offline regardless of refcount.
// Used when the caller has already verified no live connection remains.
func (s *Store) SetOffline(identityID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.conns, identityID)
	if rec, ok := s.records[identityID]; ok {
		rec.Status = realtime.StatusOffline
		rec.ConnectionID = ""
	}
}

// UpdateActivity updates the free-text activity label and timestamp
// without changing online/offline status. No-op for unknown identities.
func (s *Store) UpdateActivity(identityID, label string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec, ok := s.records[identityID]; ok {
		rec.Activity = label
		rec.LastActivity = time.Now()
	}
}

// Get returns the identity's presence snapshot. Unknown identities get
// an offline zero-value snapshot, never an error.
func (s *Store) Get(identityID string) realtime.Presence {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[identityID]
	if !ok {
		return realtime.Presence{IdentityID: identityID, Status: realtime.StatusOffline}
	}
	return *rec
}

// Connections returns the identity's live connection count.
func (s *Store) Connections(identityID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.conns[identityID])
}

// OnlineCount returns the number of identities currently online.
func (s *Store) OnlineCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.conns)
}

// Prune drops offline records whose last activity is older than the
// cutoff, bounding map growth between reaper runs.
func (s *Store) Prune(cutoff time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	pruned := 0
	for id, rec := range s.records {
		if rec.Status == realtime.StatusOffline && rec.LastActivity.Before(cutoff) {
			delete(s.records, id)
			pruned++
		}
	}
	return pruned
}
