package dto

import "time"

// ScanSignal is one symbol's evaluation from the daily market scan.
type ScanSignal struct {
	Symbol        string  `json:"symbol"`
	Price         float64 `json:"price"`
	MomentumScore float64 `json:"momentum_score"` // price / EMA60
	Score         float64 `json:"score"`          // predictor output
	Eligible      bool    `json:"eligible"`
	Note          string  `json:"note,omitempty"`
}

// ScanReport is the output of one daily scan over the whole universe.
type ScanReport struct {
	ScanTime      time.Time    `json:"scan_time"`
	MarketIndex   string       `json:"market_index"`
	MarketBullish bool         `json:"market_bullish"`
	TopPicks      []ScanSignal `json:"top_picks"`
	Signals       []ScanSignal `json:"signals"`
	Narrative     string       `json:"narrative,omitempty"`
	Diagnostics   []Diagnostic `json:"diagnostics,omitempty"`
}
