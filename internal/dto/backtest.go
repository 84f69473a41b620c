package dto

import "time"

type TradeAction string

const (
	ActionBuy  TradeAction = "BUY"
	ActionSell TradeAction = "SELL"
)

// BacktestRequest defines the parameters of one simulation run. Zero values
// fall back to the configured defaults.
type BacktestRequest struct {
	Symbols     []string  `json:"symbols" validate:"omitempty,min=1"`
	StartDate   time.Time `json:"start_date" validate:"required"`
	EndDate     time.Time `json:"end_date" validate:"required,gtfield=StartDate"`
	InitialCash float64   `json:"initial_cash" validate:"omitempty,gt=0"`
	Variant     string    `json:"variant" validate:"omitempty,oneof=classic super trailing"`
	Persist     bool      `json:"persist"`
}

// TradeRecord is one executed BUY or SELL, append-only and chronological.
type TradeRecord struct {
	Date    time.Time   `json:"date"`
	Action  TradeAction `json:"action"`
	Symbol  string      `json:"symbol"`
	Price   float64     `json:"price"`
	Shares  float64     `json:"shares"`
	Reason  string      `json:"reason"`
	Balance float64     `json:"balance"` // cash after the trade
}

// EquityPoint is the mark-to-market valuation of one simulated date.
type EquityPoint struct {
	Date   time.Time `json:"date"`
	Equity float64   `json:"equity"`
}

// PositionSnapshot describes one open holding at the end of a run.
type PositionSnapshot struct {
	Symbol       string    `json:"symbol"`
	Shares       float64   `json:"shares"`
	EntryPrice   float64   `json:"entry_price"`
	EntryDate    time.Time `json:"entry_date"`
	HighestPrice float64   `json:"highest_price"`
	StopPrice    float64   `json:"stop_price,omitempty"`
}

// PortfolioSnapshot is sufficient to resume or display the account state
// without replaying history.
type PortfolioSnapshot struct {
	Cash      float64            `json:"cash"`
	Positions []PositionSnapshot `json:"positions"`
	LastDate  time.Time          `json:"last_date"`
}

// Diagnostic records a per-symbol failure that degraded candidate diversity
// but did not stop the run.
type Diagnostic struct {
	Symbol string `json:"symbol"`
	Stage  string `json:"stage"` // "fetch", "train", "predict"
	Error  string `json:"error"`
}

// BacktestSummary aggregates performance metrics over the closed trades and
// the equity curve.
type BacktestSummary struct {
	InitialCash   float64 `json:"initial_cash"`
	FinalEquity   float64 `json:"final_equity"`
	TotalReturn   float64 `json:"total_return_pct"`
	TotalTrades   int     `json:"total_trades"`
	WinningTrades int     `json:"winning_trades"`
	LosingTrades  int     `json:"losing_trades"`
	WinRate       float64 `json:"win_rate"`
	ProfitFactor  float64 `json:"profit_factor"`
	MaxDrawdown   float64 `json:"max_drawdown_pct"`
}

type BacktestResult struct {
	StartDate   time.Time         `json:"start_date"`
	EndDate     time.Time         `json:"end_date"`
	Variant     string            `json:"variant"`
	Trades      []TradeRecord     `json:"trades"`
	EquityCurve []EquityPoint     `json:"equity_curve"`
	Portfolio   PortfolioSnapshot `json:"portfolio"`
	Summary     BacktestSummary   `json:"summary"`
	Diagnostics []Diagnostic      `json:"diagnostics,omitempty"`
}
