// models/room.go
package models

import (
	"time"
)

// Status 表示房间当前所处的游戏阶段
type Status string

const (
	StatusLobby      Status = "LOBBY"
	StatusSetup      Status = "SETUP"
	StatusDiscussion Status = "DISCUSSION"
	StatusClue       Status = "CLUE"
	StatusVoting     Status = "VOTING"
	StatusResolution Status = "RESOLUTION"
)

// Role is a proper sum over the three player states so that "round not
// started" is distinguishable from "civilian".
type Role string

const (
	RoleUnassigned Role = "UNASSIGNED"
	RoleCivilian   Role = "CIVILIAN"
	RoleImposter   Role = "IMPOSTER"
)

// Winner of a resolved round.
type Winner string

const (
	WinnerCivilian Winner = "CIVILIAN"
	WinnerImposter Winner = "IMPOSTER"
)

// VoteSkip is the sentinel accused id meaning "no accusation"; skip votes
// count toward the voting quorum but never toward the tally.
const VoteSkip = "SKIP"

// Player 房间内的一名玩家
type Player struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Role    Role   `json:"role"`
	IsReady bool   `json:"isReady"`
	IsHost  bool   `json:"isHost"`
}

// GameConfig 一局游戏的配置与本轮秘密信息
type GameConfig struct {
	TargetPlayerCount int    `json:"targetPlayerCount"`
	Word              string `json:"word,omitempty"`
	Hint              string `json:"hint,omitempty"`
	ImposterID        string `json:"imposterId,omitempty"`
	Round             int    `json:"round"`
}

// Room is the single shared record for one game session. All mutation goes
// through the store's per-document transaction; nothing here locks.
type Room struct {
	Code              string            `json:"code"`
	Status            Status            `json:"status"`
	Players           []Player          `json:"players"`
	GameConfig        GameConfig        `json:"gameConfig"`
	Votes             map[string]string `json:"votes"`
	VotingRequests    []string          `json:"votingRequests"`
	Winner            Winner            `json:"winner,omitempty"`
	VotedOutID        string            `json:"votedOutId,omitempty"`
	DiscussionEndTime time.Time         `json:"discussionEndTime,omitempty"`
	CreatedAt         time.Time         `json:"createdAt"`
}

// Clone returns a deep copy. Store implementations hand copies to
// transactions and subscribers so no caller can mutate a committed record.
func (r *Room) Clone() *Room {
	c := *r
	c.Players = make([]Player, len(r.Players))
	copy(c.Players, r.Players)
	c.Votes = make(map[string]string, len(r.Votes))
	for k, v := range r.Votes {
		c.Votes[k] = v
	}
	c.VotingRequests = make([]string, len(r.VotingRequests))
	copy(c.VotingRequests, r.VotingRequests)
	return &c
}

// Player returns the player with the given id, or nil.
func (r *Room) Player(id string) *Player {
	for i := range r.Players {
		if r.Players[i].ID == id {
			return &r.Players[i]
		}
	}
	return nil
}

// Host returns the room's host player, or nil.
func (r *Room) Host() *Player {
	for i := range r.Players {
		if r.Players[i].IsHost {
			return &r.Players[i]
		}
	}
	return nil
}

// AllReady reports whether every current player has marked ready.
func (r *Room) AllReady() bool {
	for i := range r.Players {
		if !r.Players[i].IsReady {
			return false
		}
	}
	return len(r.Players) > 0
}

// HasVotingRequest reports whether the player already asked to move to voting.
func (r *Room) HasVotingRequest(playerID string) bool {
	for _, id := range r.VotingRequests {
		if id == playerID {
			return true
		}
	}
	return false
}
