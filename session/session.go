// session/session.go
package session

import (
	"errors"
	"sync"
	"time"

	"github.com/imposterparty/roomserver/game"
	"github.com/imposterparty/roomserver/models"
	"github.com/imposterparty/roomserver/persistence"
	"github.com/imposterparty/roomserver/room"
)

var ErrNotInRoom = errors.New("session is not in a room")

// Session is one client's view of the game: which room and player identity
// it owns, plus the latest snapshot from the room subscription. It never
// re-implements quorum logic; every action goes straight to the engine.
type Session struct {
	ID string

	repo   *room.Repository
	engine *game.Engine

	mu       sync.RWMutex
	roomCode string
	playerID string
	isHost   bool
	snapshot *models.Room
	deleted  bool
	sub      *persistence.Subscription
	handler  func(persistence.Event)

	CreatedAt  time.Time
	LastActive time.Time
}

func NewSession(id string, repo *room.Repository, engine *game.Engine) *Session {
	now := time.Now()
	return &Session{
		ID:         id,
		repo:       repo,
		engine:     engine,
		CreatedAt:  now,
		LastActive: now,
	}
}

// SetHandler registers a callback invoked on every feed event, after the
// session's current snapshot has been updated. Set it before joining.
func (s *Session) SetHandler(fn func(persistence.Event)) {
	s.mu.Lock()
	s.handler = fn
	s.mu.Unlock()
}

// CreateRoom makes a new room with this session as host and subscribes.
func (s *Session) CreateRoom(hostName string, targetPlayerCount int) (string, error) {
	code, playerID, err := s.repo.CreateRoom(hostName, targetPlayerCount)
	if err != nil {
		return "", err
	}
	if err := s.bind(code, playerID, true); err != nil {
		return "", err
	}
	return code, nil
}

// JoinRoom joins an existing room and subscribes.
func (s *Session) JoinRoom(code, playerName string) error {
	playerID, err := s.repo.JoinRoom(code, playerName)
	if err != nil {
		return err
	}
	return s.bind(code, playerID, false)
}

// bind records the room identity, including whether this session created
// the room. Host status is known synchronously at bind time; the snapshot
// arrives later and must not be what Leave's host check depends on.
func (s *Session) bind(code, playerID string, isHost bool) error {
	sub, err := s.repo.Subscribe(code)
	if err != nil {
		return err
	}

	s.mu.Lock()
	prev := s.sub
	s.roomCode = code
	s.playerID = playerID
	s.isHost = isHost
	s.deleted = false
	s.sub = sub
	s.mu.Unlock()

	if prev != nil {
		prev.Cancel()
	}
	go s.consume(sub)
	return nil
}

func (s *Session) consume(sub *persistence.Subscription) {
	for ev := range sub.Events() {
		s.mu.Lock()
		// a stale feed from a previous room must not clobber state
		if s.sub != sub {
			s.mu.Unlock()
			return
		}
		if ev.Room != nil {
			s.snapshot = ev.Room
		}
		if ev.Deleted {
			s.deleted = true
			s.snapshot = nil
		}
		handler := s.handler
		s.mu.Unlock()

		if handler != nil {
			handler(ev)
		}
	}
}

// Leave tears the session out of its room: the host deletes the room, any
// other player just removes themselves. Either way the subscription is
// cancelled and the snapshot cleared.
func (s *Session) Leave() error {
	s.mu.Lock()
	code, playerID := s.roomCode, s.playerID
	isHost := s.isHost
	deleted := s.deleted
	sub := s.sub
	s.roomCode = ""
	s.playerID = ""
	s.isHost = false
	s.snapshot = nil
	s.deleted = false
	s.sub = nil
	s.mu.Unlock()

	if sub != nil {
		sub.Cancel()
	}
	if code == "" || deleted {
		return nil
	}

	if isHost {
		err := s.repo.DeleteRoom(code)
		if errors.Is(err, persistence.ErrNotFound) {
			return nil
		}
		return err
	}
	return s.repo.RemovePlayer(code, playerID)
}

// Snapshot returns the latest delivered room snapshot, or nil before the
// first delivery or after deletion.
func (s *Session) Snapshot() *models.Room {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot
}

// RoomDeleted reports whether the subscribed room has been removed.
func (s *Session) RoomDeleted() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.deleted
}

// CurrentPlayer looks this session's player up in the latest snapshot.
func (s *Session) CurrentPlayer() *models.Player {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.snapshot == nil {
		return nil
	}
	return s.snapshot.Player(s.playerID)
}

// IsHost reports whether this session created the room it is bound to.
func (s *Session) IsHost() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isHost
}

func (s *Session) RoomCode() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.roomCode
}

func (s *Session) PlayerID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.playerID
}

func (s *Session) ids() (string, string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.roomCode == "" {
		return "", "", ErrNotInRoom
	}
	return s.roomCode, s.playerID, nil
}

// --- 动作转发 ---

func (s *Session) StartGame() error {
	code, playerID, err := s.ids()
	if err != nil {
		return err
	}
	_, err = s.engine.StartGame(code, playerID)
	return err
}

func (s *Session) MarkReady() error {
	code, playerID, err := s.ids()
	if err != nil {
		return err
	}
	_, err = s.engine.MarkPlayerReady(code, playerID)
	return err
}

func (s *Session) RequestVote() error {
	code, playerID, err := s.ids()
	if err != nil {
		return err
	}
	_, err = s.engine.VoteToStartVoting(code, playerID)
	return err
}

func (s *Session) CastVote(accusedID string) error {
	code, playerID, err := s.ids()
	if err != nil {
		return err
	}
	_, err = s.engine.CastVote(code, playerID, accusedID)
	return err
}

func (s *Session) SkipVote() error {
	code, playerID, err := s.ids()
	if err != nil {
		return err
	}
	_, err = s.engine.SkipVote(code, playerID)
	return err
}

func (s *Session) NextRound() error {
	code, playerID, err := s.ids()
	if err != nil {
		return err
	}
	_, err = s.engine.NextRound(code, playerID)
	return err
}

func (s *Session) Rematch() error {
	code, playerID, err := s.ids()
	if err != nil {
		return err
	}
	_, err = s.engine.Rematch(code, playerID)
	return err
}
