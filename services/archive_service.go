// services/archive_service.go
package services

import (
	"errors"

	"gorm.io/gorm"

	"github.com/imposterparty/roomserver/models"
	"github.com/imposterparty/roomserver/persistence"
)

var ErrNotResolved = errors.New("room is not in resolution")

// ArchiveService writes settled rounds to the archive. Many clients observe
// the same RESOLUTION snapshot, so recording is idempotent per
// (room, round).
type ArchiveService struct {
	archive persistence.Archive
}

func NewArchiveService(archive persistence.Archive) *ArchiveService {
	return &ArchiveService{archive: archive}
}

// RecordResolution archives the outcome of a resolved round. Duplicate
// observations of the same round are dropped inside one transaction.
func (s *ArchiveService) RecordResolution(room *models.Room) error {
	if room.Status != models.StatusResolution {
		return ErrNotResolved
	}

	players := make(map[string]interface{}, len(room.Players))
	for _, p := range room.Players {
		players[p.ID] = map[string]interface{}{
			"name": p.Name,
			"role": string(p.Role),
		}
	}
	votes := make(map[string]interface{}, len(room.Votes))
	for voter, accused := range room.Votes {
		votes[voter] = accused
	}

	rec := &models.GormRoundRecord{
		RoomCode:   room.Code,
		Round:      room.GameConfig.Round,
		Word:       room.GameConfig.Word,
		ImposterID: room.GameConfig.ImposterID,
		Winner:     string(room.Winner),
		VotedOutID: room.VotedOutID,
		Players:    players,
		Votes:      votes,
	}

	return s.archive.Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.GormRoundRecord{}).
			Where("room_code = ? AND round = ?", rec.RoomCode, rec.Round).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return nil
		}
		return tx.Create(rec).Error
	})
}

// History returns the archived rounds of a room.
func (s *ArchiveService) History(roomCode string) ([]models.GormRoundRecord, error) {
	return s.archive.RoundRecords(roomCode)
}

// PlayerStats 玩家跨局统计
func (s *ArchiveService) PlayerStats(playerID string) (*models.PlayerStats, error) {
	return s.archive.PlayerStats(playerID)
}
