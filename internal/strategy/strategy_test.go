package strategy

import (
	"math"
	"testing"
	"time"

	"golang-rotation/config"
	"golang-rotation/internal/dto"
	"golang-rotation/internal/indicator"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStrategyConfig() config.Strategy {
	return config.Strategy{
		StopLossPct:           0.10,
		TakeProfitPct:         0.20,
		TimeStopDays:          20,
		TrailingActivationPct: 0.05,
		StrongDropTolerance:   0.05,
		WeakDropTolerance:     0.025,
		SuperProfitPct:        0.30,
		SuperDropPct:          0.10,
		MABreakoutBuffer:      1.01,
		TopKMomentum:          3,
	}
}

func TestExitPrecedenceStopLossBeatsTimeStop(t *testing.T) {
	rules := NewExitRules(testStrategyConfig(), VariantTrailing)

	// Both the hard stop and the time stop qualify; rule order must pick
	// the stop loss.
	reason, ok := EvaluateExit(rules, ExitContext{
		Price:        88,
		EntryPrice:   100,
		PnlPct:       -0.12,
		MaxPnlPct:    0,
		DropFromPeak: -0.12,
		DaysHeld:     25,
		EMA20:        math.NaN(),
	})

	require.True(t, ok)
	assert.Equal(t, ReasonStopLoss, reason)
	assert.True(t, IsStopLossReason(reason))
}

func TestExitRules(t *testing.T) {
	cfg := testStrategyConfig()

	tests := []struct {
		name       string
		variant    string
		ctx        ExitContext
		wantReason string
		wantExit   bool
	}{
		{
			name:       "classic take profit at threshold",
			variant:    VariantClassic,
			ctx:        ExitContext{Price: 125, EntryPrice: 100, PnlPct: 0.25, MaxPnlPct: 0.25, DaysHeld: 4, EMA20: math.NaN()},
			wantReason: ReasonTakeProfit,
			wantExit:   true,
		},
		{
			name:     "classic holds below take profit",
			variant:  VariantClassic,
			ctx:      ExitContext{Price: 110, EntryPrice: 100, PnlPct: 0.10, MaxPnlPct: 0.10, DaysHeld: 4, EMA20: math.NaN()},
			wantExit: false,
		},
		{
			name:       "atr stop price breached",
			variant:    VariantClassic,
			ctx:        ExitContext{Price: 94, EntryPrice: 100, PnlPct: -0.06, StopPrice: 95, DaysHeld: 2, EMA20: math.NaN()},
			wantReason: ReasonATRStop,
			wantExit:   true,
		},
		{
			name:       "super profit lock fires on retracement",
			variant:    VariantSuper,
			ctx:        ExitContext{Price: 117, EntryPrice: 100, PnlPct: 0.17, MaxPnlPct: 0.35, DropFromPeak: -0.133, DaysHeld: 8, EMA20: math.NaN()},
			wantReason: ReasonSuperProfitLock,
			wantExit:   true,
		},
		{
			name:     "super lock needs the profit threshold first",
			variant:  VariantSuper,
			ctx:      ExitContext{Price: 99, EntryPrice: 100, PnlPct: -0.01, MaxPnlPct: 0.12, DropFromPeak: -0.116, DaysHeld: 8, EMA20: math.NaN()},
			wantExit: false,
		},
		{
			name:       "trailing strong regime tolerates less than 5pct drop",
			variant:    VariantTrailing,
			ctx:        ExitContext{Price: 109, EntryPrice: 100, PnlPct: 0.09, MaxPnlPct: 0.15, DropFromPeak: -0.052, DaysHeld: 6, EMA20: 105},
			wantReason: ReasonTrailingStrong,
			wantExit:   true,
		},
		{
			name:     "trailing strong regime survives a 4pct drop",
			variant:  VariantTrailing,
			ctx:      ExitContext{Price: 110, EntryPrice: 100, PnlPct: 0.10, MaxPnlPct: 0.15, DropFromPeak: -0.04, DaysHeld: 6, EMA20: 105},
			wantExit: false,
		},
		{
			name:       "trailing weak regime uses the tighter tolerance",
			variant:    VariantTrailing,
			ctx:        ExitContext{Price: 106, EntryPrice: 100, PnlPct: 0.06, MaxPnlPct: 0.10, DropFromPeak: -0.03, DaysHeld: 6, EMA20: 108},
			wantReason: ReasonTrailingWeak,
			wantExit:   true,
		},
		{
			name:     "trailing inactive before activation threshold",
			variant:  VariantTrailing,
			ctx:      ExitContext{Price: 101, EntryPrice: 100, PnlPct: 0.01, MaxPnlPct: 0.03, DropFromPeak: -0.02, DaysHeld: 6, EMA20: 108},
			wantExit: false,
		},
		{
			name:       "time stop in profit",
			variant:    VariantTrailing,
			ctx:        ExitContext{Price: 101, EntryPrice: 100, PnlPct: 0.01, MaxPnlPct: 0.01, DaysHeld: 20, EMA20: math.NaN()},
			wantReason: ReasonTimeStopProfit,
			wantExit:   true,
		},
		{
			name:       "time stop in loss",
			variant:    VariantTrailing,
			ctx:        ExitContext{Price: 98, EntryPrice: 100, PnlPct: -0.02, MaxPnlPct: 0.01, DaysHeld: 20, EMA20: math.NaN()},
			wantReason: ReasonTimeStopLoss,
			wantExit:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rules := NewExitRules(cfg, tt.variant)
			reason, ok := EvaluateExit(rules, tt.ctx)

			assert.Equal(t, tt.wantExit, ok)
			assert.Equal(t, tt.wantReason, reason)
		})
	}
}

func trendingSeries(t *testing.T, symbol string, slope float64, n int) *indicator.Series {
	t.Helper()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]dto.StockOHLCV, n)
	for i := range bars {
		c := 100 + slope*float64(i)
		bars[i] = dto.StockOHLCV{
			Open: c, High: c * 1.005, Low: c * 0.995, Close: c,
			Volume:    1_000_000,
			Timestamp: base.AddDate(0, 0, i).Unix(),
		}
	}
	return indicator.Build(symbol, bars, time.UTC)
}

func TestEntryFilterEvaluate(t *testing.T) {
	f := NewEntryFilter(testStrategyConfig())

	t.Run("uptrend passes", func(t *testing.T) {
		s := trendingSeries(t, "UP", 1.0, 100)
		c, ok := f.Evaluate(s, 99)

		require.True(t, ok)
		assert.Equal(t, "UP", c.Symbol)
		assert.Greater(t, c.Momentum, 1.0)
	})

	t.Run("downtrend is rejected", func(t *testing.T) {
		s := trendingSeries(t, "DOWN", -1.0, 100)
		_, ok := f.Evaluate(s, 99)
		assert.False(t, ok)
	})

	t.Run("warm-up bars are ineligible", func(t *testing.T) {
		s := trendingSeries(t, "UP", 1.0, 100)
		_, ok := f.Evaluate(s, 10)
		assert.False(t, ok)
	})

	t.Run("flat price is rejected", func(t *testing.T) {
		s := trendingSeries(t, "FLAT", 0, 100)
		_, ok := f.Evaluate(s, 99)
		assert.False(t, ok)
	})
}

func TestRankTopMomentum(t *testing.T) {
	f := NewEntryFilter(testStrategyConfig())
	in := []Candidate{
		{Symbol: "AAA", Momentum: 1.02},
		{Symbol: "BBB", Momentum: 1.10},
		{Symbol: "CCC", Momentum: 1.05},
		{Symbol: "DDD", Momentum: 1.08},
		{Symbol: "EEE", Momentum: 1.05},
	}

	got := f.RankTopMomentum(in)

	require.Len(t, got, 3)
	assert.Equal(t, "BBB", got[0].Symbol)
	assert.Equal(t, "DDD", got[1].Symbol)
	// CCC and EEE tie on momentum; symbol order breaks the tie.
	assert.Equal(t, "CCC", got[2].Symbol)
}

func TestSortByScore(t *testing.T) {
	candidates := []Candidate{
		{Symbol: "AAA", Score: 0.61},
		{Symbol: "BBB", Score: 0.74},
		{Symbol: "CCC", Score: -999},
	}
	SortByScore(candidates)

	assert.Equal(t, "BBB", candidates[0].Symbol)
	assert.Equal(t, "AAA", candidates[1].Symbol)
	assert.Equal(t, "CCC", candidates[2].Symbol)
}

func TestMarketBullish(t *testing.T) {
	cfg := testStrategyConfig()
	cfg.MarketRegimeFilter = true
	f := NewEntryFilter(cfg)

	up := trendingSeries(t, "IDX", 1.0, 100)
	assert.True(t, f.MarketBullish(up, 99))

	down := trendingSeries(t, "IDX", -1.0, 100)
	assert.False(t, f.MarketBullish(down, 99))

	// Gate stays open without usable index data.
	assert.True(t, f.MarketBullish(nil, 0))
	assert.True(t, f.MarketBullish(up, 5))
}
