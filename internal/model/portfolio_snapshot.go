package model

import (
	"time"

	"gorm.io/datatypes"
)

type PortfolioSnapshot struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	RunID     uint           `gorm:"not null;index" json:"run_id"`
	Cash      float64        `gorm:"not null" json:"cash"`
	Positions datatypes.JSON `json:"positions"`
	LastDate  time.Time      `gorm:"not null" json:"last_date"`
	CreatedAt time.Time      `gorm:"autoCreateTime" json:"created_at"`
}

func (PortfolioSnapshot) TableName() string {
	return "portfolio_snapshots"
}
