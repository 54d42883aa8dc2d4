// game/engine.go
package game

import (
	"math/rand"
	"sync"
	"time"

	"github.com/imposterparty/roomserver/models"
	"github.com/imposterparty/roomserver/persistence"
)

// MinPlayers 开局所需的最少玩家数
const MinPlayers = 3

// DefaultDiscussionTime 讨论阶段的默认时长
const DefaultDiscussionTime = 180 * time.Second

// Options tune the engine. Zero values fall back to defaults; Now and Seed
// exist so tests can pin time and shuffling.
type Options struct {
	Pack           []WordPair
	MinPlayers     int
	DiscussionTime time.Duration
	Now            func() time.Time
	Seed           int64
}

// Engine runs the room state machine. Every transition is one store
// transaction: the quorum check is evaluated against the freshly read
// document inside the same atomic step as the triggering write, so two
// players completing "last" simultaneously can neither both fire a
// transition nor both miss it.
type Engine struct {
	store          persistence.RoomStore
	pack           []WordPair
	minPlayers     int
	discussionTime time.Duration
	now            func() time.Time

	rngMu sync.Mutex
	rng   *rand.Rand
}

func NewEngine(store persistence.RoomStore, opts Options) *Engine {
	e := &Engine{
		store:          store,
		pack:           opts.Pack,
		minPlayers:     opts.MinPlayers,
		discussionTime: opts.DiscussionTime,
		now:            opts.Now,
	}
	if e.pack == nil {
		e.pack = GeneralPack
	}
	if e.minPlayers <= 0 {
		e.minPlayers = MinPlayers
	}
	if e.discussionTime <= 0 {
		e.discussionTime = DefaultDiscussionTime
	}
	if e.now == nil {
		e.now = time.Now
	}
	seed := opts.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	e.rng = rand.New(rand.NewSource(seed))
	return e
}

// StartGame deals the first round: LOBBY -> SETUP. Host only, with the
// minimum player count present.
func (e *Engine) StartGame(code, playerID string) (*models.Room, error) {
	return e.store.Update(code, func(room *models.Room) error {
		if room.Status != models.StatusLobby {
			return ErrInvalidPhase
		}
		p := room.Player(playerID)
		if p == nil {
			return ErrUnknownPlayer
		}
		if !p.IsHost {
			return ErrNotHost
		}
		if len(room.Players) < e.minPlayers {
			return ErrNotEnoughPlayers
		}
		e.deal(room)
		return nil
	})
}

// MarkPlayerReady sets the player's ready flag and, in the same atomic
// step, moves the room to DISCUSSION once every current player is ready.
func (e *Engine) MarkPlayerReady(code, playerID string) (*models.Room, error) {
	return e.store.Update(code, func(room *models.Room) error {
		if room.Status != models.StatusSetup && room.Status != models.StatusClue {
			return ErrInvalidPhase
		}
		p := room.Player(playerID)
		if p == nil {
			return ErrUnknownPlayer
		}
		p.IsReady = true
		if room.AllReady() {
			room.Status = models.StatusDiscussion
			room.DiscussionEndTime = e.now().Add(e.discussionTime)
		}
		return nil
	})
}

// VoteToStartVoting records the player's request to advance to voting and
// flips the room to VOTING once every current player has asked. Requesting
// twice is a no-op, not an error.
func (e *Engine) VoteToStartVoting(code, playerID string) (*models.Room, error) {
	return e.store.Update(code, func(room *models.Room) error {
		if room.Status != models.StatusDiscussion && room.Status != models.StatusClue {
			return ErrInvalidPhase
		}
		if room.Player(playerID) == nil {
			return ErrUnknownPlayer
		}
		if room.HasVotingRequest(playerID) {
			return persistence.ErrRollback
		}
		room.VotingRequests = append(room.VotingRequests, playerID)
		if len(room.VotingRequests) >= len(room.Players) {
			room.Status = models.StatusVoting
		}
		return nil
	})
}

// CastVote records the vote (last write wins for a revoting player) and,
// still inside the transaction, resolves the round once every current
// player has voted. Folding resolution into the vote write is what makes
// the quorum transition exactly-once: there is no window where two "last"
// voters can each observe a full tally and race a separate resolution
// write.
func (e *Engine) CastVote(code, playerID, accusedID string) (*models.Room, error) {
	return e.store.Update(code, func(room *models.Room) error {
		if room.Status != models.StatusVoting {
			return ErrInvalidPhase
		}
		if room.Player(playerID) == nil {
			return ErrUnknownPlayer
		}
		if accusedID != models.VoteSkip && room.Player(accusedID) == nil {
			return ErrUnknownPlayer
		}
		room.Votes[playerID] = accusedID
		if len(room.Votes) >= len(room.Players) {
			resolve(room)
		}
		return nil
	})
}

// SkipVote 放弃指认
func (e *Engine) SkipVote(code, playerID string) (*models.Room, error) {
	return e.CastVote(code, playerID, models.VoteSkip)
}

// NextRound continues with the same word and roles after a "no decision"
// outcome: RESOLUTION -> CLUE, round+1, ready flags and ballots cleared.
func (e *Engine) NextRound(code, playerID string) (*models.Room, error) {
	return e.store.Update(code, func(room *models.Room) error {
		if room.Status != models.StatusResolution {
			return ErrInvalidPhase
		}
		if room.Player(playerID) == nil {
			return ErrUnknownPlayer
		}
		room.Status = models.StatusClue
		room.GameConfig.Round++
		for i := range room.Players {
			room.Players[i].IsReady = false
		}
		room.Votes = make(map[string]string)
		room.VotingRequests = nil
		room.Winner = ""
		room.VotedOutID = ""
		room.DiscussionEndTime = time.Time{}
		return nil
	})
}

// Rematch deals a completely new game from the resolution screen: new
// shuffle, new imposter, new word, round reset to 1. Host only.
func (e *Engine) Rematch(code, playerID string) (*models.Room, error) {
	return e.store.Update(code, func(room *models.Room) error {
		if room.Status != models.StatusResolution {
			return ErrInvalidPhase
		}
		p := room.Player(playerID)
		if p == nil {
			return ErrUnknownPlayer
		}
		if !p.IsHost {
			return ErrNotHost
		}
		if len(room.Players) < e.minPlayers {
			return ErrNotEnoughPlayers
		}
		e.deal(room)
		return nil
	})
}

// ReevaluateQuorums re-runs the count-based quorum checks after the player
// set shrinks. Run inside the same transaction that removed the player:
// the departure of the one player who had not voted (or asked for the
// vote) can satisfy a quorum that no later action would ever revisit.
func ReevaluateQuorums(room *models.Room) {
	if len(room.Players) == 0 {
		return
	}

	switch room.Status {
	case models.StatusDiscussion, models.StatusClue:
		if len(room.VotingRequests) >= len(room.Players) {
			room.Status = models.StatusVoting
		}
	case models.StatusVoting:
		if len(room.Votes) >= len(room.Players) {
			resolve(room)
		}
	}
}

// deal shuffles the players, picks one imposter and one word pair uniformly
// at random, and resets all per-round state. Player order after dealing is
// the shuffled order, not join order.
func (e *Engine) deal(room *models.Room) {
	e.rngMu.Lock()
	e.rng.Shuffle(len(room.Players), func(i, j int) {
		room.Players[i], room.Players[j] = room.Players[j], room.Players[i]
	})
	imposterIdx := e.rng.Intn(len(room.Players))
	pair := pickWord(e.rng, e.pack)
	e.rngMu.Unlock()

	for i := range room.Players {
		if i == imposterIdx {
			room.Players[i].Role = models.RoleImposter
		} else {
			room.Players[i].Role = models.RoleCivilian
		}
		room.Players[i].IsReady = false
	}

	room.Status = models.StatusSetup
	room.GameConfig.Word = pair.Word
	room.GameConfig.Hint = pair.Hint
	room.GameConfig.ImposterID = room.Players[imposterIdx].ID
	room.GameConfig.Round = 1
	room.Votes = make(map[string]string)
	room.VotingRequests = nil
	room.Winner = ""
	room.VotedOutID = ""
	room.DiscussionEndTime = time.Time{}
}

// resolve tallies the ballots and settles the round. Skips never count.
// Ties on the highest count go to the accused player earliest in the
// room's current player order, so the outcome is deterministic. Re-entry
// on an already resolved room is a no-op.
func resolve(room *models.Room) {
	if room.Status == models.StatusResolution {
		return
	}

	counts := make(map[string]int)
	for _, accused := range room.Votes {
		if accused != models.VoteSkip {
			counts[accused]++
		}
	}

	votedOut := ""
	best := 0
	for _, p := range room.Players {
		if c := counts[p.ID]; c > best {
			best = c
			votedOut = p.ID
		}
	}

	room.VotedOutID = votedOut
	if votedOut != "" && votedOut == room.GameConfig.ImposterID {
		room.Winner = models.WinnerCivilian
	} else {
		// includes the all-skip round, which the imposter survives
		room.Winner = models.WinnerImposter
	}
	room.Status = models.StatusResolution
}
