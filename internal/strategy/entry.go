package strategy

import (
	"sort"

	"golang-rotation/config"
	"golang-rotation/internal/indicator"
)

const (
	VariantClassic  = "classic"
	VariantSuper    = "super"
	VariantTrailing = "trailing"
)

// Candidate is a symbol that passed the trend pre-filter on one date and is
// awaiting predictor scoring.
type Candidate struct {
	Symbol   string
	Price    float64
	Momentum float64 // close / EMA60
	Score    float64 // predictor output, filled after ranking
}

// EntryFilter applies the cheap trend checks that run before the expensive
// predictor call.
type EntryFilter struct {
	cfg config.Strategy
}

func NewEntryFilter(cfg config.Strategy) *EntryFilter {
	return &EntryFilter{cfg: cfg}
}

// Evaluate checks one symbol's bar at index i against the trend pre-filter
// and returns its candidate entry. Undefined indicator values make the
// symbol ineligible, never zero-filled.
func (f *EntryFilter) Evaluate(s *indicator.Series, i int) (Candidate, bool) {
	if !indicator.Valid(i, s.Close, s.MA30, s.MA30Slope, s.EMA60) {
		return Candidate{}, false
	}
	price := s.Close[i]
	if s.MA30Slope[i] <= 0 {
		return Candidate{}, false
	}
	if price <= s.MA30[i]*f.cfg.MABreakoutBuffer {
		return Candidate{}, false
	}
	// Guard the momentum ratio against a degenerate reference.
	if s.EMA60[i] <= 0 {
		return Candidate{}, false
	}
	return Candidate{
		Symbol:   s.Symbol,
		Price:    price,
		Momentum: price / s.EMA60[i],
	}, true
}

// RankTopMomentum keeps the strongest candidates by relative strength. Ties
// break by symbol so the selection is deterministic across runs.
func (f *EntryFilter) RankTopMomentum(candidates []Candidate) []Candidate {
	sort.Slice(candidates, func(a, b int) bool {
		if candidates[a].Momentum != candidates[b].Momentum {
			return candidates[a].Momentum > candidates[b].Momentum
		}
		return candidates[a].Symbol < candidates[b].Symbol
	})
	if f.cfg.TopKMomentum > 0 && len(candidates) > f.cfg.TopKMomentum {
		candidates = candidates[:f.cfg.TopKMomentum]
	}
	return candidates
}

// MarketBullish gates entries on the broad index trading above its long EMA.
// When the regime filter is disabled, or the index data is not usable, the
// gate stays open.
func (f *EntryFilter) MarketBullish(index *indicator.Series, i int) bool {
	if !f.cfg.MarketRegimeFilter || index == nil {
		return true
	}
	if !indicator.Valid(i, index.Close, index.EMA60) {
		return true
	}
	return index.Close[i] > index.EMA60[i]
}

// SortByScore orders scored candidates by predictor output descending, with
// the symbol tie-break keeping ranking stable.
func SortByScore(candidates []Candidate) {
	sort.Slice(candidates, func(a, b int) bool {
		if candidates[a].Score != candidates[b].Score {
			return candidates[a].Score > candidates[b].Score
		}
		return candidates[a].Symbol < candidates[b].Symbol
	})
}
