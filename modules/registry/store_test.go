package registry

import (
	"testing"
	"time"

	"github.com/example/blog-realtime/domain/realtime"
)

func TestStore_AddAndRegister(t *testing.T) {
	store := NewStore()
	store.Add("conn1")

	conn, ok := store.Get("conn1")
	if !ok {
		t.Fatal("Expected connection to exist after Add")
	}
	if conn.IdentityID != "" {
		t.Errorf("Expected empty identity before announce, got %q", conn.IdentityID)
	}

	store.Register("conn1", "u1", "Alice")
	conn, _ = store.Get("conn1")
	if conn.IdentityID != "u1" {
		t.Errorf("Expected IdentityID 'u1', got %q", conn.IdentityID)
	}
	if conn.DisplayName != "Alice" {
		t.Errorf("Expected DisplayName 'Alice', got %q", conn.DisplayName)
	}

	// Repeated announce overwrites in place.
	store.Register("conn1", "u1", "Alice A.")
	conn, _ = store.Get("conn1")
	if conn.DisplayName != "Alice A." {
		t.Errorf("Expected DisplayName 'Alice A.', got %q", conn.DisplayName)
	}
	if store.Count() != 1 {
		t.Errorf("Expected 1 connection, got %d", store.Count())
	}
}

func TestStore_RegisterUnknownConnection(t *testing.T) {
	store := NewStore()

	// Announce racing ahead of Add must still create an entry.
	store.Register("conn1", "u1", "Alice")
	if _, ok := store.Get("conn1"); !ok {
		t.Fatal("Expected Register to create entry for unknown connection")
	}
}

func TestStore_UnknownConnectionNoOps(t *testing.T) {
	store := NewStore()

	// None of these may panic or create entries.
	store.Touch("ghost")
	store.AddRoom("ghost", realtime.ContentRoom("c1"))
	store.RemoveRoom("ghost", realtime.ContentRoom("c1"))
	store.SetFocus("ghost", "c1")
	store.SetTyping("ghost", true, "c1")

	if store.Count() != 0 {
		t.Errorf("Expected no entries, got %d", store.Count())
	}
	if _, ok := store.Remove("ghost"); ok {
		t.Error("Expected Remove of unknown connection to report absence")
	}
}

func TestStore_RoomSet(t *testing.T) {
	store := NewStore()
	store.Add("conn1")

	c1 := realtime.ContentRoom("c1")
	chat := realtime.ChatRoom("room9")
	store.AddRoom("conn1", c1)
	store.AddRoom("conn1", chat)
	store.AddRoom("conn1", c1) // idempotent

	conn, _ := store.Get("conn1")
	if len(conn.Rooms) != 2 {
		t.Fatalf("Expected 2 rooms, got %d", len(conn.Rooms))
	}

	store.RemoveRoom("conn1", c1)
	conn, _ = store.Get("conn1")
	if _, in := conn.Rooms[c1]; in {
		t.Error("Expected content room removed")
	}
	if _, in := conn.Rooms[chat]; !in {
		t.Error("Expected chat room retained")
	}
}

func TestStore_RemoveReturnsEntry(t *testing.T) {
	store := NewStore()
	store.Add("conn1")
	store.Register("conn1", "u1", "Alice")
	store.AddRoom("conn1", realtime.ContentRoom("c1"))

	conn, ok := store.Remove("conn1")
	if !ok {
		t.Fatal("Expected Remove to return the entry")
	}
	if conn.IdentityID != "u1" {
		t.Errorf("Expected removed entry identity 'u1', got %q", conn.IdentityID)
	}
	if len(conn.Rooms) != 1 {
		t.Errorf("Expected removed entry to carry its room set, got %d rooms", len(conn.Rooms))
	}

	// Removing again is a benign no-op (reaper vs. disconnect race).
	if _, ok := store.Remove("conn1"); ok {
		t.Error("Expected second Remove to report absence")
	}
}

func TestStore_IdentityConnections(t *testing.T) {
	store := NewStore()
	store.Add("conn1")
	store.Add("conn2")
	store.Add("conn3")
	store.Register("conn1", "u1", "Alice")
	store.Register("conn2", "u1", "Alice")
	store.Register("conn3", "u2", "Bob")

	conns := store.IdentityConnections("u1")
	if len(conns) != 2 {
		t.Errorf("Expected 2 connections for u1, got %d", len(conns))
	}
	if len(store.IdentityConnections("u3")) != 0 {
		t.Error("Expected no connections for unknown identity")
	}
}

func TestStore_IdleSince(t *testing.T) {
	store := NewStore()
	store.Add("stale")
	store.Add("fresh")

	// Everything is newer than a cutoff in the past.
	if ids := store.IdleSince(time.Now().Add(-time.Minute)); len(ids) != 0 {
		t.Errorf("Expected no idle connections, got %d", len(ids))
	}

	// Touch one and sweep with a cutoff between the two activity times.
	time.Sleep(10 * time.Millisecond)
	cutoff := time.Now()
	store.Touch("fresh")

	ids := store.IdleSince(cutoff)
	if len(ids) != 1 || ids[0] != "stale" {
		t.Errorf("Expected only 'stale' to be idle, got %v", ids)
	}
}

func TestStore_GetReturnsCopy(t *testing.T) {
	store := NewStore()
	store.Add("conn1")

	conn, _ := store.Get("conn1")
	conn.Rooms[realtime.ContentRoom("c1")] = struct{}{}

	again, _ := store.Get("conn1")
	if len(again.Rooms) != 0 {
		t.Error("Mutating a returned copy must not affect the store")
	}
}
