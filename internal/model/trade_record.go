package model

import "time"

type TradeRecord struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	RunID     uint      `gorm:"not null;index" json:"run_id"`
	Date      time.Time `gorm:"not null" json:"date"`
	Action    string    `gorm:"not null" json:"action"`
	Symbol    string    `gorm:"not null" json:"symbol"`
	Price     float64   `gorm:"not null" json:"price"`
	Shares    float64   `gorm:"not null" json:"shares"`
	Reason    string    `json:"reason"`
	Balance   float64   `gorm:"not null" json:"balance"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (TradeRecord) TableName() string {
	return "trade_records"
}
