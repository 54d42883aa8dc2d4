// persistence/archive.go
package persistence

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/imposterparty/roomserver/models"
)

// Archive 回合归档存储接口
type Archive interface {
	SaveRoundRecord(rec *models.GormRoundRecord) error
	RoundRecords(roomCode string) ([]models.GormRoundRecord, error)
	PlayerStats(playerID string) (*models.PlayerStats, error)
	Transaction(fn func(tx *gorm.DB) error) error
}

// GormArchive 使用 GORM 的归档实现，与房间文档存储共享同一个连接
type GormArchive struct {
	db *gorm.DB
}

func NewGormArchive(db *gorm.DB) (*GormArchive, error) {
	if err := db.AutoMigrate(&models.GormRoundRecord{}); err != nil {
		return nil, err
	}
	return &GormArchive{db: db}, nil
}

// SaveRoundRecord 保存一条已结算回合
func (a *GormArchive) SaveRoundRecord(rec *models.GormRoundRecord) error {
	return a.db.Create(rec).Error
}

// RoundRecords 按房间查询归档回合
func (a *GormArchive) RoundRecords(roomCode string) ([]models.GormRoundRecord, error) {
	var recs []models.GormRoundRecord
	err := a.db.Where("room_code = ?", roomCode).Order("round").Find(&recs).Error
	return recs, err
}

// PlayerStats 跨局玩家统计
func (a *GormArchive) PlayerStats(playerID string) (*models.PlayerStats, error) {
	var stats models.PlayerStats

	err := a.db.Raw(
		`
        SELECT
            COUNT(*) as total_rounds,
            SUM(CASE WHEN imposter_id = ? THEN 1 ELSE 0 END) as imposter_games,
            SUM(CASE WHEN imposter_id = ? AND winner = 'IMPOSTER' THEN 1 ELSE 0 END) as imposter_wins,
            SUM(CASE WHEN voted_out_id = ? THEN 1 ELSE 0 END) as times_voted_out
        FROM round_records
        WHERE players @> ?`,
		playerID, playerID, playerID,
		fmt.Sprintf(`{"%s": {}}`, playerID),
	).Scan(&stats).Error

	return &stats, err
}

// Transaction 事务支持
func (a *GormArchive) Transaction(fn func(tx *gorm.DB) error) error {
	return a.db.Transaction(fn)
}
