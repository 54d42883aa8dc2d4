// bot/policy.go
package bot

import (
	"math/rand"
	"time"

	"github.com/imposterparty/roomserver/models"
)

// ActionType 机器人下一步要做的事
type ActionType int

const (
	ActionNone ActionType = iota
	ActionMarkReady
	ActionRequestVote
	ActionCastVote
)

// Action is one decision: what to do, whom to accuse, and how long to wait
// first. A zero Delay means act immediately.
type Action struct {
	Type      ActionType
	AccusedID string
	Delay     time.Duration
}

// Delays bound the randomized waits before discussion and voting actions.
type Delays struct {
	RequestVoteMin time.Duration
	RequestVoteMax time.Duration
	CastVoteMin    time.Duration
	CastVoteMax    time.Duration
}

// DefaultDelays matches how the human-speed driver behaves.
var DefaultDelays = Delays{
	RequestVoteMin: 5 * time.Second,
	RequestVoteMax: 15 * time.Second,
	CastVoteMin:    2 * time.Second,
	CastVoteMax:    7 * time.Second,
}

// Policy applies the same rule set a human player would, from snapshots
// alone: ready up when roles are dealt, ask for the vote during
// discussion, and accuse somebody at random during voting. It holds no
// private access to the state machine.
type Policy struct {
	PlayerID string
	Delays   Delays

	rng           *rand.Rand
	requestedVote bool
	voted         bool
}

func NewPolicy(playerID string, seed int64) *Policy {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Policy{
		PlayerID: playerID,
		Delays:   DefaultDelays,
		rng:      rand.New(rand.NewSource(seed)),
	}
}

// Next decides the reaction to one snapshot. Per-phase flags keep the bot
// from spamming the same action while it waits out its delay; they reset
// when the room leaves the phase.
func (p *Policy) Next(room *models.Room) Action {
	me := room.Player(p.PlayerID)
	if me == nil {
		return Action{Type: ActionNone}
	}

	if room.Status != models.StatusDiscussion {
		p.requestedVote = false
	}
	if room.Status != models.StatusVoting {
		p.voted = false
	}

	switch room.Status {
	case models.StatusSetup, models.StatusClue:
		if !me.IsReady {
			return Action{Type: ActionMarkReady}
		}

	case models.StatusDiscussion:
		if !p.requestedVote && !room.HasVotingRequest(p.PlayerID) {
			p.requestedVote = true
			return Action{
				Type:  ActionRequestVote,
				Delay: p.between(p.Delays.RequestVoteMin, p.Delays.RequestVoteMax),
			}
		}

	case models.StatusVoting:
		if !p.voted {
			p.voted = true
			return Action{
				Type:      ActionCastVote,
				AccusedID: p.pickAccused(room),
				Delay:     p.between(p.Delays.CastVoteMin, p.Delays.CastVoteMax),
			}
		}
	}

	return Action{Type: ActionNone}
}

// pickAccused chooses a random player other than the bot itself, falling
// back to a skip in a degenerate single-player room.
func (p *Policy) pickAccused(room *models.Room) string {
	others := make([]string, 0, len(room.Players))
	for _, pl := range room.Players {
		if pl.ID != p.PlayerID {
			others = append(others, pl.ID)
		}
	}
	if len(others) == 0 {
		return models.VoteSkip
	}
	return others[p.rng.Intn(len(others))]
}

func (p *Policy) between(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + time.Duration(p.rng.Int63n(int64(max-min)))
}
