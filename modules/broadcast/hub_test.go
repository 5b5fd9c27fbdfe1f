package broadcast

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// fakeConn records frames written to it.
type fakeConn struct {
	mu     sync.Mutex
	frames [][]byte
	closed bool
	err    error
}

func (c *fakeConn) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.frames = append(c.frames, data)
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) frameCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.frames)
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func startHub(t *testing.T) (*Hub, context.CancelFunc) {
	t.Helper()
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	return hub, cancel
}

func waitForCount(t *testing.T, hub *Hub, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if hub.ClientCount() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("Expected %d clients, got %d", want, hub.ClientCount())
}

func TestHub_RegisterBindDeliver(t *testing.T) {
	hub, cancel := startHub(t)
	defer cancel()

	c1 := &fakeConn{}
	c2 := &fakeConn{}
	hub.Register(&Client{ID: "conn1", Conn: c1})
	hub.Register(&Client{ID: "conn2", Conn: c2})
	waitForCount(t, hub, 2)

	hub.Bind("conn1", "u1")
	hub.Bind("conn2", "u2")

	hub.SendToIdentities([]string{"u1"}, []byte(`{"event":"x"}`))
	if c1.frameCount() != 1 {
		t.Errorf("Expected 1 frame to conn1, got %d", c1.frameCount())
	}
	if c2.frameCount() != 0 {
		t.Errorf("Expected no frames to conn2, got %d", c2.frameCount())
	}
}

func TestHub_MultiConnectionIdentity(t *testing.T) {
	hub, cancel := startHub(t)
	defer cancel()

	c1 := &fakeConn{}
	c2 := &fakeConn{}
	hub.Register(&Client{ID: "conn1", Conn: c1})
	hub.Register(&Client{ID: "conn2", Conn: c2})
	waitForCount(t, hub, 2)

	// Two tabs, one identity: both get the frame.
	hub.Bind("conn1", "u1")
	hub.Bind("conn2", "u1")
	if got := hub.IdentityConnectionCount("u1"); got != 2 {
		t.Fatalf("Expected 2 connections for u1, got %d", got)
	}

	hub.SendToIdentities([]string{"u1"}, []byte(`{}`))
	if c1.frameCount() != 1 || c2.frameCount() != 1 {
		t.Errorf("Expected both tabs to receive the frame, got %d and %d",
			c1.frameCount(), c2.frameCount())
	}

	// One tab goes away; the identity index follows.
	hub.Unregister("conn1")
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && hub.IdentityConnectionCount("u1") != 1 {
		time.Sleep(5 * time.Millisecond)
	}
	if got := hub.IdentityConnectionCount("u1"); got != 1 {
		t.Fatalf("Expected 1 connection for u1 after unregister, got %d", got)
	}

	hub.SendToIdentities([]string{"u1"}, []byte(`{}`))
	if c1.frameCount() != 1 {
		t.Error("Unregistered tab must not receive frames")
	}
	if c2.frameCount() != 2 {
		t.Errorf("Expected surviving tab to receive the frame, got %d", c2.frameCount())
	}
}

func TestHub_SendToConnection(t *testing.T) {
	hub, cancel := startHub(t)
	defer cancel()

	c1 := &fakeConn{}
	hub.Register(&Client{ID: "conn1", Conn: c1})
	waitForCount(t, hub, 1)

	hub.SendToConnection("conn1", []byte(`{}`))
	if c1.frameCount() != 1 {
		t.Errorf("Expected 1 frame, got %d", c1.frameCount())
	}

	// Unknown connection: silent no-op.
	hub.SendToConnection("ghost", []byte(`{}`))
}

func TestHub_SendFailureIsBestEffort(t *testing.T) {
	hub, cancel := startHub(t)
	defer cancel()

	broken := &fakeConn{err: errors.New("connection reset")}
	healthy := &fakeConn{}
	hub.Register(&Client{ID: "conn1", Conn: broken})
	hub.Register(&Client{ID: "conn2", Conn: healthy})
	waitForCount(t, hub, 2)
	hub.Bind("conn1", "u1")
	hub.Bind("conn2", "u2")

	hub.SendToIdentities([]string{"u1", "u2"}, []byte(`{}`))
	if healthy.frameCount() != 1 {
		t.Error("A failing peer must not block delivery to others")
	}
}

func TestHub_ShutdownClosesClients(t *testing.T) {
	hub, cancel := startHub(t)

	c1 := &fakeConn{}
	hub.Register(&Client{ID: "conn1", Conn: c1})
	waitForCount(t, hub, 1)

	cancel()
	hub.Wait()

	if !c1.isClosed() {
		t.Error("Expected client connection closed on shutdown")
	}
	if hub.ClientCount() != 0 {
		t.Errorf("Expected 0 clients after shutdown, got %d", hub.ClientCount())
	}
}
