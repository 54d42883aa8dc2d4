// models/gorm_models.go
package models

import (
	"gorm.io/gorm"
)

// GormRoundRecord 已结算回合的归档记录
type GormRoundRecord struct {
	gorm.Model
	RoomCode   string                 `gorm:"index;not null"`
	Round      int                    `gorm:"not null"`
	Word       string                 `gorm:"not null"`
	ImposterID string                 `gorm:"not null"`
	Winner     string                 `gorm:"not null"`
	VotedOutID string
	Players    map[string]interface{} `gorm:"type:jsonb"`
	Votes      map[string]interface{} `gorm:"type:jsonb"`
}

func (GormRoundRecord) TableName() string { return "round_records" }

// PlayerStats 玩家跨局统计
type PlayerStats struct {
	TotalRounds   int `json:"total_rounds"`
	ImposterWins  int `json:"imposter_wins"`
	ImposterGames int `json:"imposter_games"`
	TimesVotedOut int `json:"times_voted_out"`
}
