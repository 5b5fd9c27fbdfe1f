package rooms

import (
	"reflect"
	"testing"
	"time"

	"github.com/example/blog-realtime/domain/realtime"
)

func TestTracker_JoinAndLeave(t *testing.T) {
	tracker := NewTracker()
	ref := realtime.ContentRoom("c1")

	count, members := tracker.Join(ref, "u1")
	if count != 1 {
		t.Errorf("Expected count 1 after first join, got %d", count)
	}
	if !reflect.DeepEqual(members, []string{"u1"}) {
		t.Errorf("Expected members [u1], got %v", members)
	}

	count, members = tracker.Join(ref, "u2")
	if count != 2 {
		t.Errorf("Expected count 2, got %d", count)
	}
	if !reflect.DeepEqual(members, []string{"u1", "u2"}) {
		t.Errorf("Expected members [u1 u2], got %v", members)
	}

	// Rejoining does not inflate the count.
	count, _ = tracker.Join(ref, "u1")
	if count != 2 {
		t.Errorf("Expected count 2 after duplicate join, got %d", count)
	}

	count, was := tracker.Leave(ref, "u1")
	if !was {
		t.Error("Expected Leave to report membership")
	}
	if count != 1 {
		t.Errorf("Expected count 1 after leave, got %d", count)
	}
	if got := tracker.MembersOf(ref); !reflect.DeepEqual(got, []string{"u2"}) {
		t.Errorf("Expected members [u2], got %v", got)
	}
}

func TestTracker_LeaveIdempotent(t *testing.T) {
	tracker := NewTracker()
	ref := realtime.ChatRoom("r1")

	// Leaving a room that does not exist.
	count, was := tracker.Leave(ref, "u1")
	if was || count != 0 {
		t.Errorf("Expected (0,false) for unknown room, got (%d,%v)", count, was)
	}

	tracker.Join(ref, "u1")
	tracker.Leave(ref, "u1")

	// Leaving twice never drops below zero.
	count, was = tracker.Leave(ref, "u1")
	if was {
		t.Error("Expected second leave to report non-membership")
	}
	if count < 0 {
		t.Errorf("Count must never go negative, got %d", count)
	}
}

func TestTracker_EmptyRoomsPruned(t *testing.T) {
	tracker := NewTracker()
	ref := realtime.AnalyticsRoom("a1")

	tracker.Join(ref, "u1")
	tracker.Leave(ref, "u1")

	if got := tracker.MembersOf(ref); len(got) != 0 {
		t.Errorf("Expected empty member list, got %v", got)
	}
	if stats := tracker.Stats(); len(stats) != 0 {
		t.Errorf("Expected no rooms retained, got %v", stats)
	}
}

func TestTracker_MembersOfUnknownRoom(t *testing.T) {
	tracker := NewTracker()
	got := tracker.MembersOf(realtime.ContentRoom("nope"))
	if got == nil {
		t.Fatal("MembersOf must return an empty slice, not nil")
	}
	if len(got) != 0 {
		t.Errorf("Expected empty list, got %v", got)
	}
}

func TestTracker_RemoveIdentityFromAll(t *testing.T) {
	tracker := NewTracker()
	content := realtime.ContentRoom("c1")
	chat := realtime.ChatRoom("r1")
	collab := realtime.CollaborationRoom("c1")

	tracker.Join(content, "u1")
	tracker.Join(content, "u2")
	tracker.Join(chat, "u1")
	tracker.Join(collab, "u2")

	changes := tracker.RemoveIdentityFromAll("u1")
	if len(changes) != 2 {
		t.Fatalf("Expected changes for exactly the 2 rooms u1 was in, got %d", len(changes))
	}
	for _, c := range changes {
		switch c.Ref {
		case content:
			if c.NewCount != 1 {
				t.Errorf("Expected content room count 1, got %d", c.NewCount)
			}
		case chat:
			if c.NewCount != 0 {
				t.Errorf("Expected chat room count 0, got %d", c.NewCount)
			}
		default:
			t.Errorf("Unexpected change for room %v", c.Ref)
		}
	}

	for _, ref := range []realtime.RoomRef{content, chat, collab} {
		for _, id := range tracker.MembersOf(ref) {
			if id == "u1" {
				t.Errorf("u1 still a member of %v after removal", ref)
			}
		}
	}

	// Removing an identity in no rooms yields no changes.
	if changes := tracker.RemoveIdentityFromAll("ghost"); len(changes) != 0 {
		t.Errorf("Expected no changes for unknown identity, got %v", changes)
	}
}

func TestTracker_NetJoinProperty(t *testing.T) {
	tracker := NewTracker()
	ref := realtime.ContentRoom("c1")

	ops := []struct {
		join bool
		id   string
	}{
		{true, "u1"}, {true, "u2"}, {false, "u1"},
		{true, "u3"}, {true, "u1"}, {false, "u2"},
		{false, "u9"}, // never joined
	}
	net := map[string]int{}
	for _, op := range ops {
		if op.join {
			tracker.Join(ref, op.id)
			net[op.id] = 1
		} else {
			tracker.Leave(ref, op.id)
			net[op.id] = 0
		}
	}

	want := 0
	for _, n := range net {
		if n > 0 {
			want++
		}
	}
	if got := tracker.Count(ref); got != want {
		t.Errorf("Expected count %d (distinct identities with net join), got %d", want, got)
	}
}

func TestTracker_TypingEntries(t *testing.T) {
	tracker := NewTracker()
	ref := realtime.TypingRoom("c1")

	tracker.SetTyping(ref, "u1", realtime.TypingEntry{
		DisplayName: "Alice",
		Action:      "commenting",
		Timestamp:   time.Now(),
	})

	entries := tracker.TypingEntries(ref)
	if len(entries) != 1 {
		t.Fatalf("Expected 1 typing entry, got %d", len(entries))
	}
	if entries["u1"].Action != "commenting" {
		t.Errorf("Expected action 'commenting', got %q", entries["u1"].Action)
	}

	// Explicit stop clears both the entry and the membership.
	tracker.Leave(ref, "u1")
	if len(tracker.TypingEntries(ref)) != 0 {
		t.Error("Expected typing entries cleared after leave")
	}
	if tracker.Count(ref) != 0 {
		t.Error("Expected typing room pruned after leave")
	}
}

func TestTracker_SweepTyping(t *testing.T) {
	tracker := NewTracker()
	ref := realtime.TypingRoom("c1")
	now := time.Now()

	tracker.SetTyping(ref, "u1", realtime.TypingEntry{
		DisplayName: "Alice",
		Timestamp:   now.Add(-15 * time.Second),
	})
	tracker.SetTyping(ref, "u2", realtime.TypingEntry{
		DisplayName: "Bob",
		Timestamp:   now,
	})

	removed := tracker.SweepTyping(now.Add(-10 * time.Second))
	if len(removed) != 1 {
		t.Fatalf("Expected 1 stale entry removed, got %d", len(removed))
	}
	if removed[0].IdentityID != "u1" || removed[0].DisplayName != "Alice" {
		t.Errorf("Expected u1/Alice removed, got %+v", removed[0])
	}

	entries := tracker.TypingEntries(ref)
	if _, in := entries["u1"]; in {
		t.Error("Expected u1 entry gone after sweep")
	}
	if _, in := entries["u2"]; !in {
		t.Error("Expected fresh u2 entry retained")
	}

	// Sweeping again is a no-op.
	if again := tracker.SweepTyping(now.Add(-10 * time.Second)); len(again) != 0 {
		t.Errorf("Expected idempotent sweep, got %v", again)
	}
}

func TestTracker_Stats(t *testing.T) {
	tracker := NewTracker()
	tracker.Join(realtime.ContentRoom("c1"), "u1")
	tracker.Join(realtime.ContentRoom("c1"), "u2")
	tracker.Join(realtime.ContentRoom("c2"), "u1")
	tracker.Join(realtime.ChatRoom("r1"), "u3")

	stats := tracker.Stats()
	if s := stats[realtime.KindContentViewers]; s.Rooms != 2 || s.Members != 3 {
		t.Errorf("Expected content stats {2 3}, got %+v", s)
	}
	if s := stats[realtime.KindChat]; s.Rooms != 1 || s.Members != 1 {
		t.Errorf("Expected chat stats {1 1}, got %+v", s)
	}
}
