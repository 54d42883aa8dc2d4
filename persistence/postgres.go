// persistence/postgres.go
package persistence

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/lib/pq"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/imposterparty/roomserver/logger"
	"github.com/imposterparty/roomserver/models"
)

const roomChannel = "room_changes"

// roomRow 房间文档行，整个房间作为一个 JSONB 文档存储
type roomRow struct {
	ID        uint   `gorm:"primaryKey"`
	Code      string `gorm:"uniqueIndex;not null"`
	Doc       []byte `gorm:"type:jsonb;not null"`
	Version   int64  `gorm:"not null;default:1"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (roomRow) TableName() string { return "room_docs" }

// PostgresStore 使用 GORM 的 PostgreSQL 文档存储
//
// Per-document atomicity comes from an optimistic version check: the commit
// is `UPDATE ... WHERE code = ? AND version = ?`, retried a bounded number
// of times before surfacing ErrConflict. Change notifications ride on
// LISTEN/NOTIFY; subscribers re-read the latest document on every
// notification, so a missed intermediate notification only coalesces.
type PostgresStore struct {
	db         *gorm.DB
	listener   *pq.Listener
	maxRetries int

	mu      sync.Mutex
	subs    map[string]map[*Subscription]struct{}
	closing bool
}

// NewPostgresStore 创建 PostgreSQL 文档存储
func NewPostgresStore(host string, port int, user, password, dbname string, maxRetries int) (*PostgresStore, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		host, port, user, password, dbname)

	gormLogger := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold: time.Second,
			LogLevel:      gormlogger.Silent,
			Colorful:      false,
		},
	)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         gormLogger,
		TranslateError: true,
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := db.AutoMigrate(&roomRow{}); err != nil {
		return nil, err
	}

	if maxRetries <= 0 {
		maxRetries = 5
	}

	s := &PostgresStore{
		db:         db,
		maxRetries: maxRetries,
		subs:       make(map[string]map[*Subscription]struct{}),
	}

	s.listener = pq.NewListener(dsn, 200*time.Millisecond, 10*time.Second,
		func(ev pq.ListenerEventType, err error) {
			if err != nil {
				logger.Log.Warnf("room change listener event %d: %v", ev, err)
			}
		})
	if err := s.listener.Listen(roomChannel); err != nil {
		return nil, err
	}
	go s.dispatch()

	return s, nil
}

// DB exposes the underlying connection so the archive can share it.
func (s *PostgresStore) DB() *gorm.DB {
	return s.db
}

func (s *PostgresStore) Create(room *models.Room) error {
	doc, err := json.Marshal(room)
	if err != nil {
		return err
	}

	row := roomRow{Code: room.Code, Doc: doc, Version: 1}
	if err := s.db.Create(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrAlreadyExists
		}
		return err
	}
	return s.notify(room.Code)
}

func (s *PostgresStore) Get(code string) (*models.Room, error) {
	row, err := s.row(code)
	if err != nil {
		return nil, err
	}
	return decodeRoom(row.Doc)
}

func (s *PostgresStore) Update(code string, mutate func(room *models.Room) error) (*models.Room, error) {
	for attempt := 0; attempt < s.maxRetries; attempt++ {
		row, err := s.row(code)
		if err != nil {
			return nil, err
		}

		room, err := decodeRoom(row.Doc)
		if err != nil {
			return nil, err
		}

		if err := mutate(room); err != nil {
			if errors.Is(err, ErrRollback) {
				return room, nil
			}
			return nil, err
		}

		doc, err := json.Marshal(room)
		if err != nil {
			return nil, err
		}

		res := s.db.Model(&roomRow{}).
			Where("code = ? AND version = ?", code, row.Version).
			Updates(map[string]interface{}{"doc": doc, "version": row.Version + 1})
		if res.Error != nil {
			return nil, res.Error
		}
		if res.RowsAffected == 0 {
			// lost the race, re-read and re-apply
			continue
		}

		if err := s.notify(code); err != nil {
			logger.Log.Warnf("notify after update of room %s failed: %v", code, err)
		}
		return room, nil
	}
	return nil, ErrConflict
}

func (s *PostgresStore) Delete(code string) error {
	res := s.db.Where("code = ?", code).Delete(&roomRow{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return s.notify(code)
}

func (s *PostgresStore) Subscribe(code string) (*Subscription, error) {
	room, err := s.Get(code)
	if err != nil {
		return nil, err
	}

	var sub *Subscription
	sub = newSubscription(func() {
		s.mu.Lock()
		if set, ok := s.subs[code]; ok {
			delete(set, sub)
			if len(set) == 0 {
				delete(s.subs, code)
			}
		}
		s.mu.Unlock()
	})

	s.mu.Lock()
	if s.subs[code] == nil {
		s.subs[code] = make(map[*Subscription]struct{})
	}
	s.subs[code][sub] = struct{}{}
	s.mu.Unlock()

	sub.publish(Event{Room: room})
	return sub, nil
}

func (s *PostgresStore) Close() error {
	s.mu.Lock()
	s.closing = true
	for _, set := range s.subs {
		for sub := range set {
			sub.publish(Event{Deleted: true})
		}
	}
	s.subs = make(map[string]map[*Subscription]struct{})
	s.mu.Unlock()

	if err := s.listener.Close(); err != nil {
		return err
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// dispatch fans LISTEN notifications out to subscribers. The payload is the
// room code; the current document is re-read so every delivery carries the
// latest committed snapshot.
func (s *PostgresStore) dispatch() {
	for n := range s.listener.Notify {
		if n == nil {
			// reconnect marker, nothing to deliver
			continue
		}
		code := n.Extra

		s.mu.Lock()
		targets := make([]*Subscription, 0, len(s.subs[code]))
		for sub := range s.subs[code] {
			targets = append(targets, sub)
		}
		s.mu.Unlock()
		if len(targets) == 0 {
			continue
		}

		room, err := s.Get(code)
		var ev Event
		switch {
		case errors.Is(err, ErrNotFound):
			ev = Event{Deleted: true}
		case err != nil:
			ev = Event{Err: err}
		default:
			ev = Event{Room: room}
		}

		for _, sub := range targets {
			if ev.Room != nil {
				sub.publish(Event{Room: ev.Room.Clone()})
			} else {
				sub.publish(ev)
			}
		}
	}
}

func (s *PostgresStore) notify(code string) error {
	return s.db.Exec("SELECT pg_notify(?, ?)", roomChannel, code).Error
}

func (s *PostgresStore) row(code string) (*roomRow, error) {
	var row roomRow
	if err := s.db.Where("code = ?", code).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &row, nil
}

func decodeRoom(doc []byte) (*models.Room, error) {
	var room models.Room
	if err := json.Unmarshal(doc, &room); err != nil {
		return nil, err
	}
	return &room, nil
}
