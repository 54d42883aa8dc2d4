// game/errors.go
package game

import "errors"

var (
	ErrInvalidPhase     = errors.New("action not valid in current phase")
	ErrNotHost          = errors.New("only the host may do this")
	ErrNotEnoughPlayers = errors.New("not enough players to start")
	ErrUnknownPlayer    = errors.New("player not in room")
)
