package rpc

import (
	"errors"
	"net"
	"net/rpc"

	"github.com/imposterparty/roomserver/logger"
	"github.com/imposterparty/roomserver/models"
	"github.com/imposterparty/roomserver/room"
	"github.com/imposterparty/roomserver/services"
)

// Server manages the RPC listener.
type Server struct {
	listener net.Listener
	address  string
}

// NewServer creates a new RPC server listening on addr. Services are
// registered by the caller before Start.
func NewServer(addr string) (*Server, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Server{
		listener: listener,
		address:  addr,
	}, nil
}

// Start begins listening for RPC requests.
func (s *Server) Start() {
	logger.Log.Infof("RPC server listening on %s", s.address)
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				logger.Log.Info("RPC server listener closed.")
				return
			}
			logger.Log.Errorf("RPC server accept error: %v", err)
			continue
		}
		go rpc.ServeConn(conn)
	}
}

// Stop closes the RPC listener.
func (s *Server) Stop() {
	if s.listener != nil {
		logger.Log.Info("Stopping RPC server.")
		s.listener.Close()
	}
}

// AdminService exposes room inspection over net/rpc for operators and the
// bot runner. Methods follow the net/rpc signature rules.
type AdminService struct {
	repo    *room.Repository
	archive *services.ArchiveService
}

func NewAdminService(repo *room.Repository, archive *services.ArchiveService) *AdminService {
	return &AdminService{repo: repo, archive: archive}
}

type GetRoomArgs struct {
	Code string
}

type GetRoomReply struct {
	Room *models.Room
}

func (a *AdminService) GetRoom(args *GetRoomArgs, reply *GetRoomReply) error {
	snapshot, err := a.repo.Get(args.Code)
	if err != nil {
		return err
	}
	reply.Room = snapshot
	return nil
}

type PlayerStatsArgs struct {
	PlayerID string
}

type PlayerStatsReply struct {
	Stats *models.PlayerStats
}

func (a *AdminService) PlayerStats(args *PlayerStatsArgs, reply *PlayerStatsReply) error {
	if a.archive == nil {
		return errors.New("archive not configured")
	}
	stats, err := a.archive.PlayerStats(args.PlayerID)
	if err != nil {
		return err
	}
	reply.Stats = stats
	return nil
}
