// room/repository.go
package room

import (
	crand "crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"

	"github.com/imposterparty/roomserver/game"
	"github.com/imposterparty/roomserver/logger"
	"github.com/imposterparty/roomserver/models"
	"github.com/imposterparty/roomserver/persistence"
)

var ErrRoomFull = errors.New("room is full")

const (
	// CodeChars omits ambiguous characters so codes survive being read
	// aloud and typed on a phone.
	CodeChars = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

	DefaultCodeLength  = 6
	DefaultMaxAttempts = 5
	DefaultTargetCount = 10
)

// Repository 房间生命周期操作
type Repository struct {
	store       persistence.RoomStore
	codeLength  int
	maxAttempts int
}

func NewRepository(store persistence.RoomStore) *Repository {
	return &Repository{
		store:       store,
		codeLength:  DefaultCodeLength,
		maxAttempts: DefaultMaxAttempts,
	}
}

// CreateRoom writes a fresh LOBBY room with the creator as its host and
// returns the room code and host player id. Code collisions are retried a
// bounded number of times before the store error surfaces.
func (r *Repository) CreateRoom(hostName string, targetPlayerCount int) (string, string, error) {
	if targetPlayerCount <= 0 {
		targetPlayerCount = DefaultTargetCount
	}

	playerID := uuid.New().String()
	var lastErr error
	for attempt := 0; attempt < r.maxAttempts; attempt++ {
		code := generateCode(r.codeLength)
		room := &models.Room{
			Code:   code,
			Status: models.StatusLobby,
			Players: []models.Player{{
				ID:     playerID,
				Name:   hostName,
				Role:   models.RoleUnassigned,
				IsHost: true,
			}},
			GameConfig: models.GameConfig{
				TargetPlayerCount: targetPlayerCount,
				Round:             1,
			},
			Votes:     make(map[string]string),
			CreatedAt: time.Now(),
		}

		err := r.store.Create(room)
		if err == nil {
			logger.Log.Infof("room %s created by %s", code, hostName)
			return code, playerID, nil
		}
		if !errors.Is(err, persistence.ErrAlreadyExists) {
			return "", "", err
		}
		lastErr = err
	}
	return "", "", fmt.Errorf("could not allocate a unique room code: %w", lastErr)
}

// JoinRoom appends a new non-host player. Existence, phase and capacity are
// checked inside the same transaction as the append, so two simultaneous
// joiners can never both pass the capacity check and overshoot the target.
func (r *Repository) JoinRoom(code, playerName string) (string, error) {
	playerID := uuid.New().String()
	_, err := r.store.Update(code, func(room *models.Room) error {
		if room.Status != models.StatusLobby {
			return game.ErrInvalidPhase
		}
		if len(room.Players) >= room.GameConfig.TargetPlayerCount {
			return ErrRoomFull
		}
		room.Players = append(room.Players, models.Player{
			ID:   playerID,
			Name: playerName,
			Role: models.RoleUnassigned,
		})
		return nil
	})
	if err != nil {
		return "", err
	}
	logger.Log.Infof("player %s joined room %s", playerName, code)
	return playerID, nil
}

// RemovePlayer takes the player out of the room along with their ballot
// and voting request. Removing an absent player, or a player from an
// absent room, is a no-op.
func (r *Repository) RemovePlayer(code, playerID string) error {
	_, err := r.store.Update(code, func(room *models.Room) error {
		if room.Player(playerID) == nil {
			return persistence.ErrRollback
		}

		players := room.Players[:0]
		for _, p := range room.Players {
			if p.ID != playerID {
				players = append(players, p)
			}
		}
		room.Players = players
		delete(room.Votes, playerID)

		requests := room.VotingRequests[:0]
		for _, id := range room.VotingRequests {
			if id != playerID {
				requests = append(requests, id)
			}
		}
		room.VotingRequests = requests

		// the departure may have been the only thing a quorum waited on
		game.ReevaluateQuorums(room)
		return nil
	})
	if errors.Is(err, persistence.ErrNotFound) {
		return nil
	}
	return err
}

// DeleteRoom removes the record entirely; every later operation on the
// code fails with not-found.
func (r *Repository) DeleteRoom(code string) error {
	return r.store.Delete(code)
}

// Get returns the current snapshot.
func (r *Repository) Get(code string) (*models.Room, error) {
	return r.store.Get(code)
}

// Subscribe registers a snapshot listener on the room.
func (r *Repository) Subscribe(code string) (*persistence.Subscription, error) {
	return r.store.Subscribe(code)
}

func generateCode(length int) string {
	code := make([]byte, length)
	for i := range code {
		n, err := crand.Int(crand.Reader, big.NewInt(int64(len(CodeChars))))
		if err != nil {
			// crypto/rand failing means something much worse than a
			// room code is wrong
			panic(err)
		}
		code[i] = CodeChars[n.Int64()]
	}
	return string(code)
}
