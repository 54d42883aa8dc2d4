// broadcast/broadcast.go
package broadcast

import (
	"errors"
	"sync"

	"github.com/imposterparty/roomserver/network"
)

var ErrNoListeners = errors.New("no connections registered for room")

// 广播接口
type Broadcaster interface {
	BroadcastToRoom(code string, msgID uint16, data []byte) error
}

// RoomBroadcaster pushes out-of-band messages (advisory deadline pings and
// the like) to every connection attached to a room. Snapshot delivery does
// NOT go through here; that rides on the store subscription feed so it
// keeps commit order.
type RoomBroadcaster struct {
	mu    sync.RWMutex
	conns map[string]map[network.Connection]struct{}
}

func NewRoomBroadcaster() *RoomBroadcaster {
	return &RoomBroadcaster{
		conns: make(map[string]map[network.Connection]struct{}),
	}
}

func (b *RoomBroadcaster) Register(code string, conn network.Connection) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.conns[code] == nil {
		b.conns[code] = make(map[network.Connection]struct{})
	}
	b.conns[code][conn] = struct{}{}
}

func (b *RoomBroadcaster) Unregister(code string, conn network.Connection) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if set, ok := b.conns[code]; ok {
		delete(set, conn)
		if len(set) == 0 {
			delete(b.conns, code)
		}
	}
}

func (b *RoomBroadcaster) BroadcastToRoom(code string, msgID uint16, data []byte) error {
	b.mu.RLock()
	conns := make([]network.Connection, 0, len(b.conns[code]))
	for conn := range b.conns[code] {
		conns = append(conns, conn)
	}
	b.mu.RUnlock()

	if len(conns) == 0 {
		return ErrNoListeners
	}

	for _, conn := range conns {
		if err := conn.Send(msgID, data); err != nil {
			// the read loop will reap the dead connection
			continue
		}
	}
	return nil
}
