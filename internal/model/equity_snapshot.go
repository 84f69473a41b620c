package model

import "time"

type EquitySnapshot struct {
	ID     uint      `gorm:"primaryKey" json:"id"`
	RunID  uint      `gorm:"not null;index" json:"run_id"`
	Date   time.Time `gorm:"not null" json:"date"`
	Equity float64   `gorm:"not null" json:"equity"`
}

func (EquitySnapshot) TableName() string {
	return "equity_snapshots"
}
