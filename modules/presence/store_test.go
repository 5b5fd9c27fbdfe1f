package presence

import (
	"testing"
	"time"

	"github.com/example/blog-realtime/domain/realtime"
)

func TestStore_OnlineOffline(t *testing.T) {
	store := NewStore()

	store.SetOnline("u1", "conn1")
	rec := store.Get("u1")
	if rec.Status != realtime.StatusOnline {
		t.Errorf("Expected online, got %q", rec.Status)
	}
	if rec.ConnectionID != "conn1" {
		t.Errorf("Expected connection 'conn1', got %q", rec.ConnectionID)
	}

	remaining := store.ConnectionClosed("u1", "conn1")
	if remaining != 0 {
		t.Errorf("Expected 0 remaining connections, got %d", remaining)
	}
	if store.Get("u1").Status != realtime.StatusOffline {
		t.Error("Expected offline after last connection closed")
	}
}

func TestStore_MultiConnectionReconciliation(t *testing.T) {
	store := NewStore()

	// Two tabs for the same identity.
	store.SetOnline("u1", "conn1")
	store.SetOnline("u1", "conn2")

	// One tab closes: the identity stays online.
	remaining := store.ConnectionClosed("u1", "conn1")
	if remaining != 1 {
		t.Errorf("Expected 1 remaining connection, got %d", remaining)
	}
	if store.Get("u1").Status != realtime.StatusOnline {
		t.Error("Expected identity to remain online while another connection lives")
	}

	// The last one closes: offline.
	if remaining := store.ConnectionClosed("u1", "conn2"); remaining != 0 {
		t.Errorf("Expected 0 remaining, got %d", remaining)
	}
	if store.Get("u1").Status != realtime.StatusOffline {
		t.Error("Expected offline after final connection closed")
	}
}

func TestStore_ConnectionClosedUnknown(t *testing.T) {
	store := NewStore()

	// Reaper racing an explicit disconnect: a no-op, never negative.
	if remaining := store.ConnectionClosed("ghost", "conn1"); remaining != 0 {
		t.Errorf("Expected 0 for unknown identity, got %d", remaining)
	}
}

func TestStore_SetOnlineIdempotentPerConnection(t *testing.T) {
	store := NewStore()

	if !store.SetOnline("u1", "conn1") {
		t.Error("Expected first announce to report a new binding")
	}
	// Repeated announce on the same connection: count stays at one.
	if store.SetOnline("u1", "conn1") {
		t.Error("Expected repeated announce to report no new binding")
	}
	if got := store.Connections("u1"); got != 1 {
		t.Errorf("Expected 1 connection after repeated announce, got %d", got)
	}

	// The single real connection closing must flip the identity offline.
	if remaining := store.ConnectionClosed("u1", "conn1"); remaining != 0 {
		t.Errorf("Expected 0 remaining, got %d", remaining)
	}
	if store.Get("u1").Status != realtime.StatusOffline {
		t.Error("Expected offline after the only connection closed")
	}
	if store.OnlineCount() != 0 {
		t.Errorf("Expected online count 0, got %d", store.OnlineCount())
	}
}

func TestStore_ConnectionClosedUnknownConnKeepsOthers(t *testing.T) {
	store := NewStore()
	store.SetOnline("u1", "conn1")

	// Closing a connection the identity never held must not flip it.
	if remaining := store.ConnectionClosed("u1", "ghost"); remaining != 1 {
		t.Errorf("Expected 1 remaining, got %d", remaining)
	}
	if store.Get("u1").Status != realtime.StatusOnline {
		t.Error("Expected u1 still online")
	}
}

func TestStore_UpdateActivity(t *testing.T) {
	store := NewStore()
	store.SetOnline("u1", "conn1")

	store.UpdateActivity("u1", "writing a draft")
	rec := store.Get("u1")
	if rec.Activity != "writing a draft" {
		t.Errorf("Expected activity label, got %q", rec.Activity)
	}
	if rec.Status != realtime.StatusOnline {
		t.Error("UpdateActivity must not change status")
	}

	// Unknown identity: silent no-op.
	store.UpdateActivity("ghost", "x")
	if store.Get("ghost").Activity != "" {
		t.Error("Expected no record created for unknown identity")
	}
}

func TestStore_GetUnknown(t *testing.T) {
	store := NewStore()
	rec := store.Get("nobody")
	if rec.Status != realtime.StatusOffline {
		t.Errorf("Expected offline snapshot for unknown identity, got %q", rec.Status)
	}
	if rec.IdentityID != "nobody" {
		t.Errorf("Expected identity echoed back, got %q", rec.IdentityID)
	}
}

func TestStore_Prune(t *testing.T) {
	store := NewStore()
	store.SetOnline("gone", "conn1")
	store.ConnectionClosed("gone", "conn1")
	store.SetOnline("here", "conn2")

	time.Sleep(10 * time.Millisecond)
	pruned := store.Prune(time.Now())
	if pruned != 1 {
		t.Errorf("Expected 1 record pruned, got %d", pruned)
	}
	if store.Get("here").Status != realtime.StatusOnline {
		t.Error("Online records must survive pruning")
	}
}
