package room

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/imposterparty/roomserver/game"
	"github.com/imposterparty/roomserver/logger"
	"github.com/imposterparty/roomserver/models"
	"github.com/imposterparty/roomserver/persistence"
)

func TestMain(m *testing.M) {
	logger.InitSilent()
	m.Run()
}

func newRepo() (*Repository, *persistence.MemoryStore) {
	store := persistence.NewMemoryStore()
	return NewRepository(store), store
}

func TestCreateRoom(t *testing.T) {
	repo, store := newRepo()

	code, hostID, err := repo.CreateRoom("Alice", 4)
	if err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}
	if len(code) != DefaultCodeLength {
		t.Errorf("code length: want %d, got %d (%s)", DefaultCodeLength, len(code), code)
	}
	for _, c := range code {
		if !strings.ContainsRune(CodeChars, c) {
			t.Errorf("code %s contains %q outside the allowed alphabet", code, c)
		}
	}

	room, err := store.Get(code)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if room.Status != models.StatusLobby {
		t.Errorf("new room status: want LOBBY, got %s", room.Status)
	}
	if room.GameConfig.TargetPlayerCount != 4 {
		t.Errorf("target count: want 4, got %d", room.GameConfig.TargetPlayerCount)
	}
	if len(room.Players) != 1 {
		t.Fatalf("want 1 player, got %d", len(room.Players))
	}
	host := room.Players[0]
	if host.ID != hostID || host.Name != "Alice" || !host.IsHost {
		t.Errorf("unexpected host player: %+v", host)
	}
	if host.Role != models.RoleUnassigned {
		t.Errorf("host role before dealing: want unassigned, got %s", host.Role)
	}
	if room.CreatedAt.IsZero() {
		t.Error("createdAt not set")
	}
}

func TestCreateRoom_DefaultTargetCount(t *testing.T) {
	repo, store := newRepo()

	code, _, err := repo.CreateRoom("Alice", 0)
	if err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}
	room, _ := store.Get(code)
	if room.GameConfig.TargetPlayerCount != DefaultTargetCount {
		t.Fatalf("want default target %d, got %d",
			DefaultTargetCount, room.GameConfig.TargetPlayerCount)
	}
}

func TestJoinRoom(t *testing.T) {
	repo, store := newRepo()
	code, _, err := repo.CreateRoom("Alice", 4)
	if err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}

	playerID, err := repo.JoinRoom(code, "Bob")
	if err != nil {
		t.Fatalf("JoinRoom: %v", err)
	}

	room, _ := store.Get(code)
	if len(room.Players) != 2 {
		t.Fatalf("want 2 players, got %d", len(room.Players))
	}
	joined := room.Player(playerID)
	if joined == nil {
		t.Fatal("joined player not in the room")
	}
	if joined.IsHost {
		t.Error("a joiner must not become host")
	}
	if joined.Name != "Bob" {
		t.Errorf("joined name: want Bob, got %s", joined.Name)
	}
}

func TestJoinRoom_Errors(t *testing.T) {
	t.Run("missing room", func(t *testing.T) {
		repo, _ := newRepo()
		if _, err := repo.JoinRoom("NOPE42", "Bob"); !errors.Is(err, persistence.ErrNotFound) {
			t.Fatalf("want ErrNotFound, got %v", err)
		}
	})

	t.Run("full room", func(t *testing.T) {
		repo, _ := newRepo()
		code, _, _ := repo.CreateRoom("Alice", 2)
		if _, err := repo.JoinRoom(code, "Bob"); err != nil {
			t.Fatalf("JoinRoom: %v", err)
		}
		if _, err := repo.JoinRoom(code, "Carol"); !errors.Is(err, ErrRoomFull) {
			t.Fatalf("want ErrRoomFull, got %v", err)
		}
	})

	t.Run("game already started", func(t *testing.T) {
		repo, store := newRepo()
		code, _, _ := repo.CreateRoom("Alice", 6)
		if _, err := store.Update(code, func(room *models.Room) error {
			room.Status = models.StatusSetup
			return nil
		}); err != nil {
			t.Fatalf("Update: %v", err)
		}
		if _, err := repo.JoinRoom(code, "Bob"); !errors.Is(err, game.ErrInvalidPhase) {
			t.Fatalf("want ErrInvalidPhase, got %v", err)
		}
	})
}

func TestJoinRoom_ConcurrentJoinersNeverOvershoot(t *testing.T) {
	const target = 5
	const joiners = 20
	repo, store := newRepo()
	code, _, err := repo.CreateRoom("Alice", target)
	if err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	joined, full := 0, 0
	for i := 0; i < joiners; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := repo.JoinRoom(code, fmt.Sprintf("Joiner %d", i))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				joined++
			case errors.Is(err, ErrRoomFull):
				full++
			default:
				t.Errorf("JoinRoom %d: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	// host takes one seat, so exactly target-1 joiners get in
	if joined != target-1 {
		t.Errorf("want %d successful joins, got %d", target-1, joined)
	}
	if full != joiners-(target-1) {
		t.Errorf("want %d full rejections, got %d", joiners-(target-1), full)
	}

	room, _ := store.Get(code)
	if len(room.Players) != target {
		t.Fatalf("capacity overshot: %d players in a room of %d", len(room.Players), target)
	}
}

func TestRemovePlayer(t *testing.T) {
	repo, store := newRepo()
	code, hostID, _ := repo.CreateRoom("Alice", 4)
	bobID, _ := repo.JoinRoom(code, "Bob")
	carolID, _ := repo.JoinRoom(code, "Carol")

	// seed round state so pruning is observable
	if _, err := store.Update(code, func(room *models.Room) error {
		room.Status = models.StatusVoting
		room.Votes = map[string]string{bobID: carolID, carolID: bobID}
		room.VotingRequests = []string{hostID, bobID, carolID}
		return nil
	}); err != nil {
		t.Fatalf("Update: %v", err)
	}

	if err := repo.RemovePlayer(code, bobID); err != nil {
		t.Fatalf("RemovePlayer: %v", err)
	}

	room, _ := store.Get(code)
	if room.Player(bobID) != nil {
		t.Error("removed player still present")
	}
	if len(room.Players) != 2 {
		t.Errorf("want 2 players, got %d", len(room.Players))
	}
	if _, ok := room.Votes[bobID]; ok {
		t.Error("removed player's ballot not pruned")
	}
	if room.HasVotingRequest(bobID) {
		t.Error("removed player's voting request not pruned")
	}
	// other players' state is untouched
	if room.Votes[carolID] != bobID {
		t.Error("another player's ballot changed")
	}
}

func TestRemovePlayer_SettlesSatisfiedVoteQuorum(t *testing.T) {
	repo, store := newRepo()
	code, hostID, _ := repo.CreateRoom("Alice", 4)
	bobID, _ := repo.JoinRoom(code, "Bob")
	carolID, _ := repo.JoinRoom(code, "Carol")

	// everyone but Carol has voted; her departure satisfies the quorum
	if _, err := store.Update(code, func(room *models.Room) error {
		room.Status = models.StatusVoting
		room.GameConfig.ImposterID = hostID
		room.Votes = map[string]string{hostID: bobID, bobID: hostID}
		return nil
	}); err != nil {
		t.Fatalf("Update: %v", err)
	}

	if err := repo.RemovePlayer(code, carolID); err != nil {
		t.Fatalf("RemovePlayer: %v", err)
	}

	room, _ := store.Get(code)
	if room.Status != models.StatusResolution {
		t.Fatalf("departure satisfied the vote quorum, want RESOLUTION, got %s", room.Status)
	}
	// 1-1 tie settles on the earlier player in order, the host
	if room.VotedOutID != hostID {
		t.Errorf("want %s voted out, got %q", hostID, room.VotedOutID)
	}
	if room.Winner != models.WinnerCivilian {
		t.Errorf("imposter voted out, want CIVILIAN win, got %s", room.Winner)
	}
}

func TestRemovePlayer_AdvancesSatisfiedRequestQuorum(t *testing.T) {
	repo, store := newRepo()
	code, hostID, _ := repo.CreateRoom("Alice", 4)
	bobID, _ := repo.JoinRoom(code, "Bob")
	carolID, _ := repo.JoinRoom(code, "Carol")

	if _, err := store.Update(code, func(room *models.Room) error {
		room.Status = models.StatusDiscussion
		room.VotingRequests = []string{hostID, bobID}
		return nil
	}); err != nil {
		t.Fatalf("Update: %v", err)
	}

	if err := repo.RemovePlayer(code, carolID); err != nil {
		t.Fatalf("RemovePlayer: %v", err)
	}

	room, _ := store.Get(code)
	if room.Status != models.StatusVoting {
		t.Fatalf("departure satisfied the request quorum, want VOTING, got %s", room.Status)
	}
}

func TestRemovePlayer_NoQuorumNoTransition(t *testing.T) {
	repo, store := newRepo()
	code, hostID, _ := repo.CreateRoom("Alice", 4)
	if _, err := repo.JoinRoom(code, "Bob"); err != nil {
		t.Fatalf("JoinRoom: %v", err)
	}
	carolID, _ := repo.JoinRoom(code, "Carol")

	if _, err := store.Update(code, func(room *models.Room) error {
		room.Status = models.StatusVoting
		room.Votes = map[string]string{hostID: carolID}
		return nil
	}); err != nil {
		t.Fatalf("Update: %v", err)
	}

	if err := repo.RemovePlayer(code, carolID); err != nil {
		t.Fatalf("RemovePlayer: %v", err)
	}

	room, _ := store.Get(code)
	if room.Status != models.StatusVoting {
		t.Fatalf("one of two remaining ballots is no quorum, got %s", room.Status)
	}
}

func TestRemovePlayer_NoOps(t *testing.T) {
	repo, _ := newRepo()
	code, _, _ := repo.CreateRoom("Alice", 4)

	if err := repo.RemovePlayer(code, "ghost"); err != nil {
		t.Fatalf("removing an absent player should be a no-op, got %v", err)
	}
	if err := repo.RemovePlayer("NOPE42", "ghost"); err != nil {
		t.Fatalf("removing from an absent room should be a no-op, got %v", err)
	}
}

func TestDeleteRoom(t *testing.T) {
	repo, _ := newRepo()
	code, _, _ := repo.CreateRoom("Alice", 4)

	if err := repo.DeleteRoom(code); err != nil {
		t.Fatalf("DeleteRoom: %v", err)
	}
	if _, err := repo.Get(code); !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("Get after delete: want ErrNotFound, got %v", err)
	}
	if _, err := repo.JoinRoom(code, "Bob"); !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("Join after delete: want ErrNotFound, got %v", err)
	}
}
