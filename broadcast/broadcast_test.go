package broadcast

import (
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/imposterparty/roomserver/network"
)

// mockConn records every Send for assertions.
type mockConn struct {
	mu   sync.Mutex
	sent []sentPacket
	fail bool
}

type sentPacket struct {
	msgID uint16
	data  string
}

func (c *mockConn) Send(msgID uint16, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return errors.New("connection broken")
	}
	c.sent = append(c.sent, sentPacket{msgID: msgID, data: string(data)})
	return nil
}

func (c *mockConn) SendJSON(msgID uint16, v interface{}) error { return nil }
func (c *mockConn) Close() error                               { return nil }
func (c *mockConn) RemoteAddr() net.Addr                       { return nil }
func (c *mockConn) SetHeartbeat(interval time.Duration)        {}
func (c *mockConn) ReadPacket() (*network.Packet, error)       { return nil, nil }

func (c *mockConn) packets() []sentPacket {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]sentPacket(nil), c.sent...)
}

func TestBroadcastToRoom(t *testing.T) {
	b := NewRoomBroadcaster()
	c1, c2, other := &mockConn{}, &mockConn{}, &mockConn{}
	b.Register("ROOM1", c1)
	b.Register("ROOM1", c2)
	b.Register("ROOM2", other)

	if err := b.BroadcastToRoom("ROOM1", 301, []byte("hello")); err != nil {
		t.Fatalf("BroadcastToRoom: %v", err)
	}

	for i, c := range []*mockConn{c1, c2} {
		got := c.packets()
		if len(got) != 1 || got[0].msgID != 301 || got[0].data != "hello" {
			t.Errorf("conn %d: unexpected packets %+v", i+1, got)
		}
	}
	if got := other.packets(); len(got) != 0 {
		t.Errorf("other room's connection received %+v", got)
	}
}

func TestBroadcastToRoom_NoListeners(t *testing.T) {
	b := NewRoomBroadcaster()
	if err := b.BroadcastToRoom("EMPTY", 301, nil); !errors.Is(err, ErrNoListeners) {
		t.Fatalf("want ErrNoListeners, got %v", err)
	}
}

func TestUnregister(t *testing.T) {
	b := NewRoomBroadcaster()
	c1, c2 := &mockConn{}, &mockConn{}
	b.Register("ROOM1", c1)
	b.Register("ROOM1", c2)
	b.Unregister("ROOM1", c1)

	if err := b.BroadcastToRoom("ROOM1", 301, []byte("x")); err != nil {
		t.Fatalf("BroadcastToRoom: %v", err)
	}
	if got := c1.packets(); len(got) != 0 {
		t.Errorf("unregistered connection received %+v", got)
	}
	if got := c2.packets(); len(got) != 1 {
		t.Errorf("remaining connection: want 1 packet, got %+v", got)
	}

	b.Unregister("ROOM1", c2)
	if err := b.BroadcastToRoom("ROOM1", 301, nil); !errors.Is(err, ErrNoListeners) {
		t.Fatalf("empty room after unregister: want ErrNoListeners, got %v", err)
	}
}

func TestBroadcastToRoom_SkipsDeadConnections(t *testing.T) {
	b := NewRoomBroadcaster()
	dead, live := &mockConn{fail: true}, &mockConn{}
	b.Register("ROOM1", dead)
	b.Register("ROOM1", live)

	if err := b.BroadcastToRoom("ROOM1", 303, []byte("ping")); err != nil {
		t.Fatalf("a dead connection must not fail the broadcast, got %v", err)
	}
	if got := live.packets(); len(got) != 1 {
		t.Errorf("live connection: want 1 packet, got %+v", got)
	}
}
