package model

import (
	"time"

	"gorm.io/datatypes"
)

type BacktestRun struct {
	ID           uint           `gorm:"primaryKey" json:"id"`
	StartDate    time.Time      `gorm:"not null" json:"start_date"`
	EndDate      time.Time      `gorm:"not null" json:"end_date"`
	Variant      string         `gorm:"not null" json:"variant"`
	InitialCash  float64        `gorm:"not null" json:"initial_cash"`
	FinalEquity  float64        `gorm:"not null" json:"final_equity"`
	TotalReturn  float64        `json:"total_return_pct"`
	TotalTrades  int            `json:"total_trades"`
	WinRate      float64        `json:"win_rate"`
	ProfitFactor float64        `json:"profit_factor"`
	MaxDrawdown  float64        `json:"max_drawdown_pct"`
	Diagnostics  datatypes.JSON `json:"diagnostics"`
	CreatedAt    time.Time      `gorm:"autoCreateTime" json:"created_at"`
}

func (BacktestRun) TableName() string {
	return "backtest_runs"
}
