package server

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/imposterparty/roomserver/game"
	"github.com/imposterparty/roomserver/logger"
	"github.com/imposterparty/roomserver/network"
	"github.com/imposterparty/roomserver/persistence"
	"github.com/imposterparty/roomserver/room"
	"github.com/imposterparty/roomserver/session"
)

type createRoomRequest struct {
	Name              string `json:"name"`
	TargetPlayerCount int    `json:"targetPlayerCount"`
}

type joinRoomRequest struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

type castVoteRequest struct {
	AccusedID string `json:"accusedId"`
}

type joinedBody struct {
	RoomCode string `json:"roomCode"`
	PlayerID string `json:"playerId"`
}

type errorBody struct {
	Code  string `json:"code"`
	Error string `json:"error"`
}

func (s *GameServer) handlePacket(sess *session.Session, conn network.Connection, packet *network.Packet) {
	switch packet.MsgID {
	case network.MsgTypeHeartbeat:
		sess.LastActive = time.Now()

	case network.MsgTypeCreateRoom:
		s.handleCreateRoom(sess, conn, packet)

	case network.MsgTypeJoinRoom:
		s.handleJoinRoom(sess, conn, packet)

	case network.MsgTypeLeaveRoom:
		s.detach(sess, conn)

	case network.MsgTypeStartGame:
		s.act(sess, conn, packet.MsgID, sess.StartGame)

	case network.MsgTypeMarkReady:
		s.act(sess, conn, packet.MsgID, sess.MarkReady)

	case network.MsgTypeRequestVote:
		s.act(sess, conn, packet.MsgID, sess.RequestVote)

	case network.MsgTypeCastVote:
		var req castVoteRequest
		if err := json.Unmarshal(packet.Data, &req); err != nil {
			s.sendError(conn, err)
			return
		}
		s.act(sess, conn, packet.MsgID, func() error {
			return sess.CastVote(req.AccusedID)
		})

	case network.MsgTypeSkipVote:
		s.act(sess, conn, packet.MsgID, sess.SkipVote)

	case network.MsgTypeNextRound:
		s.act(sess, conn, packet.MsgID, sess.NextRound)

	case network.MsgTypeRematch:
		s.act(sess, conn, packet.MsgID, sess.Rematch)

	default:
		logger.Log.Infof("Unknown message type: %d", packet.MsgID)
	}
}

func (s *GameServer) handleCreateRoom(sess *session.Session, conn network.Connection, packet *network.Packet) {
	var req createRoomRequest
	if err := json.Unmarshal(packet.Data, &req); err != nil {
		s.sendError(conn, err)
		return
	}

	code, err := sess.CreateRoom(req.Name, req.TargetPlayerCount)
	if err != nil {
		s.sendError(conn, err)
		return
	}

	s.broadcaster.Register(code, conn)
	if s.mon != nil {
		s.mon.RoomCreated()
	}
	logger.Log.Infof("Session %s created room %s", sess.ID, code)
	conn.SendJSON(network.MsgTypeCreateRoom, joinedBody{RoomCode: code, PlayerID: sess.PlayerID()})
}

func (s *GameServer) handleJoinRoom(sess *session.Session, conn network.Connection, packet *network.Packet) {
	var req joinRoomRequest
	if err := json.Unmarshal(packet.Data, &req); err != nil {
		s.sendError(conn, err)
		return
	}

	if err := sess.JoinRoom(req.Code, req.Name); err != nil {
		s.sendError(conn, err)
		return
	}

	s.broadcaster.Register(req.Code, conn)
	logger.Log.Infof("Session %s joined room %s", sess.ID, req.Code)
	conn.SendJSON(network.MsgTypeJoinRoom, joinedBody{RoomCode: req.Code, PlayerID: sess.PlayerID()})
}

// act runs one transition, records its latency, and reports any failure
// to the client. Successful transitions answer through the snapshot feed,
// not with a reply.
func (s *GameServer) act(sess *session.Session, conn network.Connection, msgID uint16, fn func() error) {
	start := time.Now()
	err := fn()
	if s.mon != nil {
		s.mon.ObserveTransition(time.Since(start), err, errors.Is(err, persistence.ErrConflict))
	}
	if err != nil {
		logger.Log.Warnf("session %s action %d: %v", sess.ID, msgID, err)
		s.sendError(conn, err)
	}
}

func (s *GameServer) sendError(conn network.Connection, err error) {
	conn.SendJSON(network.MsgTypeError, errorBody{Code: codeFor(err), Error: err.Error()})
}

// codeFor maps an error to its wire taxonomy code.
func codeFor(err error) string {
	switch {
	case errors.Is(err, persistence.ErrNotFound):
		return "NOT_FOUND"
	case errors.Is(err, game.ErrInvalidPhase):
		return "INVALID_PHASE"
	case errors.Is(err, room.ErrRoomFull):
		return "ROOM_FULL"
	case errors.Is(err, persistence.ErrConflict):
		return "TRANSIENT_CONFLICT"
	case errors.Is(err, game.ErrNotHost):
		return "NOT_HOST"
	case errors.Is(err, game.ErrNotEnoughPlayers):
		return "NOT_ENOUGH_PLAYERS"
	case errors.Is(err, game.ErrUnknownPlayer):
		return "UNKNOWN_PLAYER"
	default:
		return "STORE_ERROR"
	}
}
