package server

import (
	"encoding/json"
	"net/http"
	"net/rpc"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/imposterparty/roomserver/broadcast"
	"github.com/imposterparty/roomserver/game"
	"github.com/imposterparty/roomserver/logger"
	"github.com/imposterparty/roomserver/models"
	"github.com/imposterparty/roomserver/monitor"
	"github.com/imposterparty/roomserver/network"
	"github.com/imposterparty/roomserver/persistence"
	"github.com/imposterparty/roomserver/room"
	roomserver_rpc "github.com/imposterparty/roomserver/rpc"
	"github.com/imposterparty/roomserver/services"
	"github.com/imposterparty/roomserver/session"
	"github.com/imposterparty/roomserver/timer"
)

// GameServer 游戏网关：把 WebSocket 连接接到会话门面上
type GameServer struct {
	addr           string
	upgrader       websocket.Upgrader
	repo           *room.Repository
	engine         *game.Engine
	sessionManager *session.Manager
	broadcaster    *broadcast.RoomBroadcaster
	timers         *timer.Manager
	archive        *services.ArchiveService
	mon            *monitor.Monitor
	rpcServer      *roomserver_rpc.Server
	shutdownChan   chan struct{}

	mu        sync.Mutex
	deadlines map[string]time.Time // room code -> scheduled advisory deadline
	archived  map[string]int       // room code -> last archived round
}

func NewGameServer(addr, rpcAddr string, repo *room.Repository, engine *game.Engine, archive *services.ArchiveService, mon *monitor.Monitor) *GameServer {
	s := &GameServer{
		addr:           addr,
		repo:           repo,
		engine:         engine,
		sessionManager: session.NewManager(),
		broadcaster:    broadcast.NewRoomBroadcaster(),
		timers:         timer.NewManager(),
		archive:        archive,
		mon:            mon,
		shutdownChan:   make(chan struct{}),
		deadlines:      make(map[string]time.Time),
		archived:       make(map[string]int),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}

	rpcServer, err := roomserver_rpc.NewServer(rpcAddr)
	if err != nil {
		logger.Log.Fatalf("Failed to create RPC server: %v", err)
	}
	s.rpcServer = rpcServer

	adminService := roomserver_rpc.NewAdminService(repo, archive)
	rpc.Register(adminService)

	return s
}

func (s *GameServer) Start() error {
	go s.rpcServer.Start()

	http.HandleFunc("/ws", s.handleWebSocket)
	logger.Log.Infof("Game server listening on %s", s.addr)
	return http.ListenAndServe(s.addr, nil)
}

func (s *GameServer) Shutdown() {
	close(s.shutdownChan)
	s.timers.Stop()
	s.rpcServer.Stop()
}

func (s *GameServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Log.Infof("Failed to upgrade connection: %v", err)
		return
	}
	s.handleConnection(conn)
}

func (s *GameServer) handleConnection(conn *websocket.Conn) {
	wsConn := network.NewWSConnection(conn)
	sess := session.NewSession(uuid.New().String(), s.repo, s.engine)
	sess.SetHandler(func(ev persistence.Event) {
		s.deliver(sess, wsConn, ev)
	})
	s.sessionManager.Add(sess)
	if s.mon != nil {
		s.mon.IncConnectedClients()
	}

	logger.Log.Infof("New connection from %s, session ID: %s", wsConn.RemoteAddr(), sess.ID)

	defer func() {
		logger.Log.Infof("Connection closed from %s, session ID: %s", wsConn.RemoteAddr(), sess.ID)
		s.detach(sess, wsConn)
		s.sessionManager.Remove(sess.ID)
		if s.mon != nil {
			s.mon.DecConnectedClients()
		}
		wsConn.Close()
	}()

	for {
		select {
		case <-s.shutdownChan:
			return
		default:
			packet, err := wsConn.ReadPacket()
			if err != nil {
				return
			}
			s.handlePacket(sess, wsConn, packet)
		}
	}
}

// deliver pushes one subscription event down the wire and runs the
// server-side reactions to it (advisory deadline, archive).
func (s *GameServer) deliver(sess *session.Session, conn network.Connection, ev persistence.Event) {
	switch {
	case ev.Err != nil:
		conn.SendJSON(network.MsgTypeError, errorBody{Error: ev.Err.Error(), Code: codeFor(ev.Err)})

	case ev.Deleted:
		conn.Send(network.MsgTypeRoomDeleted, nil)
		s.broadcaster.Unregister(sess.RoomCode(), conn)

	case ev.Room != nil:
		conn.SendJSON(network.MsgTypeRoomSnapshot, ev.Room)
		if ev.Room.Status == models.StatusDiscussion {
			s.scheduleAdvisory(ev.Room)
		}
		s.maybeArchive(ev.Room)
	}
}

// scheduleAdvisory arranges one DiscussionEnding broadcast per discussion
// deadline. The deadline is display-only; nothing transitions on it.
func (s *GameServer) scheduleAdvisory(snapshot *models.Room) {
	code, endsAt := snapshot.Code, snapshot.DiscussionEndTime
	if endsAt.IsZero() {
		return
	}

	s.mu.Lock()
	if s.deadlines[code].Equal(endsAt) {
		s.mu.Unlock()
		return
	}
	s.deadlines[code] = endsAt
	s.mu.Unlock()

	s.timers.ScheduleAt(endsAt, func() {
		body, _ := json.Marshal(map[string]interface{}{
			"roomCode": code,
			"endedAt":  endsAt,
		})
		s.broadcaster.BroadcastToRoom(code, network.MsgTypeDiscussionEnding, body)
	})
}

// maybeArchive records a resolved round exactly once per (room, round),
// no matter how many connected clients observe the same snapshot.
func (s *GameServer) maybeArchive(snapshot *models.Room) {
	if s.archive == nil || snapshot.Status != models.StatusResolution {
		return
	}

	s.mu.Lock()
	if s.archived[snapshot.Code] >= snapshot.GameConfig.Round {
		s.mu.Unlock()
		return
	}
	s.archived[snapshot.Code] = snapshot.GameConfig.Round
	s.mu.Unlock()

	if err := s.archive.RecordResolution(snapshot); err != nil {
		logger.Log.Errorf("archiving round %d of room %s: %v",
			snapshot.GameConfig.Round, snapshot.Code, err)
	}
}

func (s *GameServer) detach(sess *session.Session, conn network.Connection) {
	if code := sess.RoomCode(); code != "" {
		s.broadcaster.Unregister(code, conn)
	}

	wasHost := sess.IsHost()
	if err := sess.Leave(); err != nil {
		logger.Log.Warnf("session %s leave: %v", sess.ID, err)
		return
	}
	if wasHost && s.mon != nil {
		s.mon.RoomDeleted()
	}
}
