// persistence/interface.go
package persistence

import (
	"errors"

	"github.com/imposterparty/roomserver/models"
)

// 错误定义
var (
	ErrNotFound      = errors.New("room not found")
	ErrAlreadyExists = errors.New("room already exists")
	// ErrConflict is returned only after a contended transaction has
	// exhausted its retries.
	ErrConflict = errors.New("transaction conflict, retries exhausted")
	ErrRollback = errors.New("transaction rolled back")
)

// RoomStore 房间文档存储接口
//
// Every mutation runs through Update as a single read-modify-write: the
// mutate function receives a private copy of the freshly read document,
// edits it in place, and the store commits the result atomically. Two
// transactions against the same room never interleave; the store picks a
// serial order and all subscribers observe the same snapshot sequence.
// Returning ErrRollback from mutate aborts without committing or notifying.
type RoomStore interface {
	Create(room *models.Room) error
	Get(code string) (*models.Room, error)
	Update(code string, mutate func(room *models.Room) error) (*models.Room, error)
	Delete(code string) error
	Subscribe(code string) (*Subscription, error)
	Close() error
}

// Event is one delivery on a subscription feed: a committed snapshot, the
// deleted signal, or a feed failure.
type Event struct {
	Room    *models.Room
	Deleted bool
	Err     error
}
