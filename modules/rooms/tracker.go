// Package rooms maintains named membership sets for the five room kinds,
// independent of the transport's own broadcast groups, so presence counts
// and member lists can be read synchronously.
package rooms

import (
	"sort"
	"sync"
	"time"

	"github.com/example/blog-realtime/domain/realtime"
)

// Change reports a room whose membership changed during a bulk removal.
type Change struct {
	Ref      realtime.RoomRef
	NewCount int
}

// TypingRemoval reports a typing entry pruned by the sweep.
type TypingRemoval struct {
	Ref         realtime.RoomRef
	IdentityID  string
	DisplayName string
}

// Tracker provides thread-safe membership sets keyed by room reference.
// Rooms are created lazily on first join and deleted when the last
// member leaves; no empty rooms are retained.
type Tracker struct {
	mu      sync.RWMutex
	members map[realtime.RoomRef]map[string]struct{}
	typing  map[realtime.RoomRef]map[string]realtime.TypingEntry
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{
		members: make(map[realtime.RoomRef]map[string]struct{}),
		typing:  make(map[realtime.RoomRef]map[string]realtime.TypingEntry),
	}
}

// Join adds the identity to the room and returns the new member count
// and the full member list. Consumers use the list both to notify the
// others and to tell the joiner who else is present.
func (t *Tracker) Join(ref realtime.RoomRef, identityID string) (int, []string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	set, ok := t.members[ref]
	if !ok {
		set = make(map[string]struct{})
		t.members[ref] = set
	}
	set[identityID] = struct{}{}
	return len(set), memberList(set)
}

// SetTyping adds the identity to a typing room with its auxiliary entry,
// overwriting any previous entry for the same pair.
func (t *Tracker) SetTyping(ref realtime.RoomRef, identityID string, entry realtime.TypingEntry) {
	t.mu.Lock()
	defer t.mu.Unlock()

	set, ok := t.members[ref]
	if !ok {
		set = make(map[string]struct{})
		t.members[ref] = set
	}
	set[identityID] = struct{}{}

	aux, ok := t.typing[ref]
	if !ok {
		aux = make(map[string]realtime.TypingEntry)
		t.typing[ref] = aux
	}
	aux[identityID] = entry
}

// Leave removes the identity from the room and returns the new member
// count. Leaving a room the identity is not in is a no-op and never
// drops the count below zero. The boolean reports whether the identity
// was actually a member.
func (t *Tracker) Leave(ref realtime.RoomRef, identityID string) (int, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.leaveLocked(ref, identityID)
}

func (t *Tracker) leaveLocked(ref realtime.RoomRef, identityID string) (int, bool) {
	set, ok := t.members[ref]
	if !ok {
		return 0, false
	}
	if _, in := set[identityID]; !in {
		return len(set), false
	}
	delete(set, identityID)
	if aux, ok := t.typing[ref]; ok {
		delete(aux, identityID)
		if len(aux) == 0 {
			delete(t.typing, ref)
		}
	}
	if len(set) == 0 {
		delete(t.members, ref)
		return 0, true
	}
	return len(set), true
}

// MembersOf returns a snapshot of the room's member list, empty when
// the room does not exist.
func (t *Tracker) MembersOf(ref realtime.RoomRef) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	set, ok := t.members[ref]
	if !ok {
		return []string{}
	}
	return memberList(set)
}

// Count returns the room's member count, zero when the room does not
// exist.
func (t *Tracker) Count(ref realtime.RoomRef) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.members[ref])
}

// TypingEntries returns a snapshot of the typing entries for a room.
func (t *Tracker) TypingEntries(ref realtime.RoomRef) map[string]realtime.TypingEntry {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make(map[string]realtime.TypingEntry, len(t.typing[ref]))
	for id, entry := range t.typing[ref] {
		out[id] = entry
	}
	return out
}

// RemoveIdentityFromAll walks every room, removes the identity, and
// returns one change per room that actually contained it, so the caller
// can emit one "member left" event per affected room. Used on
// disconnect and by the reaper.
func (t *Tracker) RemoveIdentityFromAll(identityID string) []Change {
	t.mu.Lock()
	defer t.mu.Unlock()

	var changes []Change
	for ref, set := range t.members {
		if _, in := set[identityID]; !in {
			continue
		}
		count, _ := t.leaveLocked(ref, identityID)
		changes = append(changes, Change{Ref: ref, NewCount: count})
	}
	sort.Slice(changes, func(i, j int) bool {
		return changes[i].Ref.String() < changes[j].Ref.String()
	})
	return changes
}

// SweepTyping removes every typing entry older than the cutoff and
// returns the removals so the caller can fan out "stopped typing"
// events. Entries are pruned from membership as well.
func (t *Tracker) SweepTyping(cutoff time.Time) []TypingRemoval {
	t.mu.Lock()
	defer t.mu.Unlock()

	var removed []TypingRemoval
	for ref, aux := range t.typing {
		for id, entry := range aux {
			if entry.Timestamp.Before(cutoff) {
				removed = append(removed, TypingRemoval{
					Ref:         ref,
					IdentityID:  id,
					DisplayName: entry.DisplayName,
				})
			}
		}
	}
	for _, r := range removed {
		t.leaveLocked(r.Ref, r.IdentityID)
	}
	return removed
}

// Stats returns room and member counts per kind, for the analytics
// snapshot endpoint.
func (t *Tracker) Stats() map[realtime.RoomKind]RoomKindStats {
	t.mu.RLock()
	defer t.mu.RUnlock()

	stats := make(map[realtime.RoomKind]RoomKindStats)
	for ref, set := range t.members {
		s := stats[ref.Kind]
		s.Rooms++
		s.Members += len(set)
		stats[ref.Kind] = s
	}
	return stats
}

// RoomKindStats aggregates room and member counts for one room kind.
type RoomKindStats struct {
	Rooms   int `json:"rooms"`
	Members int `json:"members"`
}

func memberList(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
