package service

import (
	"context"
	"testing"
	"time"

	"golang-rotation/config"
	"golang-rotation/internal/dto"
	"golang-rotation/internal/indicator"
	"golang-rotation/internal/strategy"
	"golang-rotation/pkg/logger"
	"golang-rotation/pkg/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubMarketData struct {
	series map[string]*indicator.Series
	diags  []dto.Diagnostic
}

func (s *stubMarketData) Load(_ context.Context, symbols []string, _, _ time.Time) (map[string]*indicator.Series, []dto.Diagnostic) {
	out := make(map[string]*indicator.Series)
	for _, symbol := range symbols {
		if ser, ok := s.series[symbol]; ok {
			out[symbol] = ser
		}
	}
	return out, s.diags
}

// stubPredictor pops one score per call and falls back to the sentinel once
// the queue is drained.
type stubPredictor struct {
	scores []float64
	calls  int
}

func (p *stubPredictor) Predict(context.Context, *indicator.Series, time.Time) float64 {
	p.calls++
	if len(p.scores) == 0 {
		return -999
	}
	score := p.scores[0]
	p.scores = p.scores[1:]
	return score
}

func (p *stubPredictor) Diagnostics() []dto.Diagnostic { return nil }

func engineConfig() *config.Config {
	return &config.Config{
		Backtest: config.Backtest{
			InitialCash:    1000,
			TransactionFee: 2,
			Frequency:      utils.FrequencyDaily,
			WarmupDays:     100,
		},
		Strategy: config.Strategy{
			Variant:              strategy.VariantClassic,
			MaxPositions:         1,
			AllocationPct:        1.0,
			StopLossPct:          0.15,
			TakeProfitPct:        0.20,
			TimeStopDays:         20,
			MABreakoutBuffer:     0.9,
			TopKMomentum:         3,
			EntryCooldownDays:    5,
			StopLossCooldownDays: 10,
		},
		Predictor: config.Predictor{
			LookBack:            10,
			ForecastDays:        5,
			ConfidenceThreshold: 0.55,
		},
	}
}

var testBase = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func seriesFromCloses(symbol string, closes []float64) *indicator.Series {
	bars := make([]dto.StockOHLCV, len(closes))
	for i, c := range closes {
		bars[i] = dto.StockOHLCV{
			Open: c, High: c * 1.005, Low: c * 0.995, Close: c,
			Volume:    1_000_000,
			Timestamp: testBase.AddDate(0, 0, i).Unix(),
		}
	}
	return indicator.Build(symbol, bars, time.UTC)
}

// scenarioCloses prefixes a rising warm-up so the entry filter passes on the
// first simulated date, where the given closes begin.
func scenarioCloses(scenario ...float64) []float64 {
	closes := make([]float64, 0, 100+len(scenario))
	for i := 0; i < 100; i++ {
		closes = append(closes, 50+0.5*float64(i))
	}
	return append(closes, scenario...)
}

func newTestEngine(cfg *config.Config, data *stubMarketData, pred *stubPredictor) BacktestService {
	return NewBacktestService(cfg, logger.Nop(), data, func() SignalPredictor { return pred }, nil, time.UTC)
}

func runScenario(t *testing.T, cfg *config.Config, closes []float64, scenarioDays int, pred *stubPredictor) *dto.BacktestResult {
	t.Helper()
	data := &stubMarketData{series: map[string]*indicator.Series{"AAA": seriesFromCloses("AAA", closes)}}
	engine := newTestEngine(cfg, data, pred)

	start := testBase.AddDate(0, 0, 100)
	result, err := engine.Run(context.Background(), dto.BacktestRequest{
		Symbols:   []string{"AAA"},
		StartDate: start,
		EndDate:   start.AddDate(0, 0, scenarioDays-1),
	})
	require.NoError(t, err)
	return result
}

func TestRunTakeProfitScenario(t *testing.T) {
	closes := scenarioCloses(100, 102, 103, 102, 125)
	result := runScenario(t, engineConfig(), closes, 5, &stubPredictor{scores: []float64{0.9}})

	require.Len(t, result.Trades, 2)

	buy := result.Trades[0]
	assert.Equal(t, dto.ActionBuy, buy.Action)
	assert.Equal(t, 100.0, buy.Price)
	assert.InDelta(t, 9.98, buy.Shares, 1e-9)
	assert.InDelta(t, 0.0, buy.Balance, 1e-9)

	sell := result.Trades[1]
	assert.Equal(t, dto.ActionSell, sell.Action)
	assert.Equal(t, 125.0, sell.Price)
	assert.Equal(t, strategy.ReasonTakeProfit, sell.Reason)
	assert.InDelta(t, 1245.5, sell.Balance, 1e-9)
	assert.Equal(t, testBase.AddDate(0, 0, 104), sell.Date)

	assert.InDelta(t, 1245.5, result.Summary.FinalEquity, 1e-9)
	assert.Equal(t, 1, result.Summary.WinningTrades)
}

func TestRunStopLossScenario(t *testing.T) {
	closes := scenarioCloses(100, 95, 85)
	result := runScenario(t, engineConfig(), closes, 3, &stubPredictor{scores: []float64{0.9}})

	require.Len(t, result.Trades, 2)

	sell := result.Trades[1]
	assert.Equal(t, dto.ActionSell, sell.Action)
	assert.Equal(t, 85.0, sell.Price)
	assert.Equal(t, strategy.ReasonStopLoss, sell.Reason)
	assert.InDelta(t, 846.3, sell.Balance, 1e-9)

	assert.Equal(t, 1, result.Summary.LosingTrades)
}

func TestRunTimeStopScenario(t *testing.T) {
	scenario := []float64{100}
	for i := 0; i < 20; i++ {
		scenario = append(scenario, 101)
	}
	result := runScenario(t, engineConfig(), scenarioCloses(scenario...), 21, &stubPredictor{scores: []float64{0.9}})

	require.Len(t, result.Trades, 2)

	sell := result.Trades[1]
	assert.Equal(t, dto.ActionSell, sell.Action)
	assert.Equal(t, 101.0, sell.Price)
	assert.Equal(t, strategy.ReasonTimeStopProfit, sell.Reason)
	assert.Equal(t, testBase.AddDate(0, 0, 120), sell.Date)
	assert.InDelta(t, 9.98*101-2, sell.Balance, 1e-9)
}

func TestRunRoundTripAccounting(t *testing.T) {
	closes := scenarioCloses(100, 102, 103, 102, 125)
	result := runScenario(t, engineConfig(), closes, 5, &stubPredictor{scores: []float64{0.9}})

	require.Len(t, result.Trades, 2)
	buy, sell := result.Trades[0], result.Trades[1]

	wantShares := (1000.0 - 2.0) / buy.Price
	assert.InDelta(t, wantShares, buy.Shares, 1e-9)
	assert.InDelta(t, wantShares*sell.Price-2.0, sell.Balance, 1e-9)
}

func TestRunEquityContinuity(t *testing.T) {
	scenario := []float64{100}
	for i := 0; i < 30; i++ {
		scenario = append(scenario, 100+float64(i%3))
	}
	result := runScenario(t, engineConfig(), scenarioCloses(scenario...), 31, &stubPredictor{scores: []float64{0.9}})

	require.Len(t, result.EquityCurve, 31)
	for i, p := range result.EquityCurve {
		assert.Equal(t, testBase.AddDate(0, 0, 100+i), p.Date)
	}
}

func TestRunCashNeverNegative(t *testing.T) {
	closes := scenarioCloses(100, 95, 85, 90, 95, 100, 105, 110)
	result := runScenario(t, engineConfig(), closes, 8, &stubPredictor{scores: []float64{0.9, 0.9, 0.9}})

	for _, trade := range result.Trades {
		assert.GreaterOrEqual(t, trade.Balance, -1e-9, "trade on %s", trade.Date)
	}
	for _, p := range result.EquityCurve {
		assert.Greater(t, p.Equity, 0.0)
	}
}

// A date on which the symbol does not trade produces no transactions, and
// the equity carries forward the last known mark.
func TestRunMarksToMarketOnNonTradingDays(t *testing.T) {
	cfg := engineConfig()

	// History ends at day 104; the simulation runs three days past it.
	closes := scenarioCloses(100, 102, 103, 102, 110)
	result := runScenario(t, cfg, closes, 8, &stubPredictor{scores: []float64{0.9}})

	require.Len(t, result.EquityCurve, 8)
	lastMark := result.EquityCurve[4].Equity
	for i := 5; i < 8; i++ {
		assert.Equal(t, lastMark, result.EquityCurve[i].Equity)
	}

	for _, trade := range result.Trades {
		assert.False(t, trade.Date.After(testBase.AddDate(0, 0, 104)))
	}
}

// Altering bars after date D must not change any decision made at or
// before D.
func TestRunHasNoLookAhead(t *testing.T) {
	scenario := make([]float64, 40)
	for i := range scenario {
		scenario[i] = 100 + float64(i%7) - float64(i%3)
	}
	closes := scenarioCloses(scenario...)

	cutoff := testBase.AddDate(0, 0, 119) // day 19 of the scenario

	full := runScenario(t, engineConfig(), closes, 40, &stubPredictor{scores: []float64{0.9, 0.9, 0.9, 0.9, 0.9}})

	data := &stubMarketData{series: map[string]*indicator.Series{"AAA": seriesFromCloses("AAA", closes[:120])}}
	engine := newTestEngine(engineConfig(), data, &stubPredictor{scores: []float64{0.9, 0.9, 0.9, 0.9, 0.9}})
	start := testBase.AddDate(0, 0, 100)
	truncated, err := engine.Run(context.Background(), dto.BacktestRequest{
		Symbols:   []string{"AAA"},
		StartDate: start,
		EndDate:   cutoff,
	})
	require.NoError(t, err)

	var fullTrades []dto.TradeRecord
	for _, trade := range full.Trades {
		if !trade.Date.After(cutoff) {
			fullTrades = append(fullTrades, trade)
		}
	}
	assert.Equal(t, fullTrades, truncated.Trades)

	for i, p := range truncated.EquityCurve {
		assert.Equal(t, full.EquityCurve[i].Equity, p.Equity)
	}
}

// While flat with no qualifying candidate, the entry gate advances so the
// predictor is not consulted every single day.
func TestRunEntryGateThrottlesPredictorCalls(t *testing.T) {
	scenario := make([]float64, 20)
	for i := range scenario {
		scenario[i] = 100 + 0.5*float64(i)
	}

	pred := &stubPredictor{} // always below threshold
	runScenario(t, engineConfig(), scenarioCloses(scenario...), 20, pred)

	// Scans on days 0, 5, 10, 15 only.
	assert.Equal(t, 4, pred.calls)
}

// A stop-loss exit puts the symbol on cooldown; re-entry is blocked until
// the window elapses even when the filter and predictor approve.
func TestRunStopLossCooldownBlocksReentry(t *testing.T) {
	cfg := engineConfig()
	cfg.Strategy.StopLossCooldownDays = 10

	scenario := []float64{100, 85}
	for i := 0; i < 18; i++ {
		scenario = append(scenario, 90+float64(i))
	}
	result := runScenario(t, cfg, scenarioCloses(scenario...), 20, &stubPredictor{scores: []float64{0.9, 0.9, 0.9, 0.9, 0.9, 0.9}})

	stopDate := testBase.AddDate(0, 0, 101)
	for _, trade := range result.Trades {
		if trade.Action == dto.ActionBuy && trade.Date.After(stopDate) {
			assert.False(t, trade.Date.Before(stopDate.AddDate(0, 0, 10)),
				"re-entry at %s inside cooldown", trade.Date)
		}
	}
}

func TestRunAtMostOnePositionForSingleSlot(t *testing.T) {
	cfg := engineConfig()
	closesA := scenarioCloses(100, 101, 102, 103, 104, 105, 106, 107)
	closesB := scenarioCloses(50, 51, 52, 53, 54, 55, 56, 57)

	data := &stubMarketData{series: map[string]*indicator.Series{
		"AAA": seriesFromCloses("AAA", closesA),
		"BBB": seriesFromCloses("BBB", closesB),
	}}
	engine := newTestEngine(cfg, data, &stubPredictor{scores: []float64{0.9, 0.9, 0.9, 0.9}})

	start := testBase.AddDate(0, 0, 100)
	result, err := engine.Run(context.Background(), dto.BacktestRequest{
		Symbols:   []string{"AAA", "BBB"},
		StartDate: start,
		EndDate:   start.AddDate(0, 0, 7),
	})
	require.NoError(t, err)

	open := 0
	for _, trade := range result.Trades {
		if trade.Action == dto.ActionBuy {
			open++
		} else {
			open--
		}
		assert.LessOrEqual(t, open, cfg.Strategy.MaxPositions)
	}
	assert.LessOrEqual(t, len(result.Portfolio.Positions), cfg.Strategy.MaxPositions)
}

// With two slots and a fractional allocation, each entry is budgeted at
// current equity times the allocation, capped at available cash, and the
// position count never exceeds the slot limit.
func TestRunMultiSlotAllocationBudget(t *testing.T) {
	cfg := engineConfig()
	cfg.Strategy.MaxPositions = 2
	cfg.Strategy.AllocationPct = 0.5

	closes := scenarioCloses(100, 101, 102, 103, 104)
	data := &stubMarketData{series: map[string]*indicator.Series{
		"AAA": seriesFromCloses("AAA", closes),
		"BBB": seriesFromCloses("BBB", closes),
	}}
	engine := newTestEngine(cfg, data, &stubPredictor{scores: []float64{0.9, 0.8}})

	start := testBase.AddDate(0, 0, 100)
	result, err := engine.Run(context.Background(), dto.BacktestRequest{
		Symbols:   []string{"AAA", "BBB"},
		StartDate: start,
		EndDate:   start.AddDate(0, 0, 4),
	})
	require.NoError(t, err)

	require.Len(t, result.Trades, 2)

	first := result.Trades[0]
	assert.Equal(t, dto.ActionBuy, first.Action)
	assert.Equal(t, "AAA", first.Symbol)
	// Half of the 1000 starting equity, minus the fee, at 100.
	assert.InDelta(t, 4.98, first.Shares, 1e-9)
	assert.InDelta(t, 500.0, first.Balance, 1e-9)

	second := result.Trades[1]
	assert.Equal(t, dto.ActionBuy, second.Action)
	assert.Equal(t, "BBB", second.Symbol)
	// Equity is 998 after the first fee, so the second budget shrinks.
	assert.InDelta(t, 4.97, second.Shares, 1e-9)
	assert.InDelta(t, 1.0, second.Balance, 1e-9)

	require.Len(t, result.Portfolio.Positions, 2)

	open := 0
	for _, trade := range result.Trades {
		if trade.Action == dto.ActionBuy {
			open++
		} else {
			open--
		}
		assert.LessOrEqual(t, open, cfg.Strategy.MaxPositions)
		assert.GreaterOrEqual(t, trade.Balance, -1e-9)
	}
}

// A symbol whose history clears the trend filter but cannot yet supply the
// model's training window is excluded from candidacy instead of scored.
func TestRunExcludesShortHistoryFromCandidacy(t *testing.T) {
	cfg := engineConfig()
	cfg.Predictor.LookBack = 40

	rising := func(n int) []float64 {
		closes := make([]float64, n)
		for i := range closes {
			closes[i] = 50 + 0.5*float64(i)
		}
		return closes
	}

	pred := &stubPredictor{scores: []float64{0.9}}
	data := &stubMarketData{series: map[string]*indicator.Series{"AAA": seriesFromCloses("AAA", rising(70))}}
	engine := newTestEngine(cfg, data, pred)

	start := testBase.AddDate(0, 0, 69)
	result, err := engine.Run(context.Background(), dto.BacktestRequest{
		Symbols:   []string{"AAA"},
		StartDate: start,
		EndDate:   start,
	})
	require.NoError(t, err)
	assert.Equal(t, 0, pred.calls)
	assert.Empty(t, result.Trades)

	// The same setup with a longer history is scored as usual.
	pred = &stubPredictor{scores: []float64{0.9}}
	data = &stubMarketData{series: map[string]*indicator.Series{"AAA": seriesFromCloses("AAA", rising(110))}}
	engine = newTestEngine(cfg, data, pred)

	start = testBase.AddDate(0, 0, 109)
	_, err = engine.Run(context.Background(), dto.BacktestRequest{
		Symbols:   []string{"AAA"},
		StartDate: start,
		EndDate:   start,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, pred.calls)
}

func TestRunFetchFailuresDegradeToDiagnostics(t *testing.T) {
	cfg := engineConfig()
	data := &stubMarketData{
		series: map[string]*indicator.Series{"AAA": seriesFromCloses("AAA", scenarioCloses(100, 101, 102))},
		diags:  []dto.Diagnostic{{Symbol: "BBB", Stage: "fetch", Error: "no data returned"}},
	}
	engine := newTestEngine(cfg, data, &stubPredictor{scores: []float64{0.9}})

	start := testBase.AddDate(0, 0, 100)
	result, err := engine.Run(context.Background(), dto.BacktestRequest{
		Symbols:   []string{"AAA", "BBB"},
		StartDate: start,
		EndDate:   start.AddDate(0, 0, 2),
	})
	require.NoError(t, err)

	require.Len(t, result.EquityCurve, 3)
	require.Len(t, result.Diagnostics, 1)
	assert.Equal(t, "BBB", result.Diagnostics[0].Symbol)
}

func TestRunRejectsInvalidRequests(t *testing.T) {
	engine := newTestEngine(engineConfig(), &stubMarketData{}, &stubPredictor{})

	_, err := engine.Run(context.Background(), dto.BacktestRequest{
		StartDate: testBase,
		EndDate:   testBase.AddDate(0, 0, 5),
	})
	assert.Error(t, err) // no symbols anywhere

	_, err = engine.Run(context.Background(), dto.BacktestRequest{
		Symbols:   []string{"AAA"},
		StartDate: testBase.AddDate(0, 0, 5),
		EndDate:   testBase,
	})
	assert.Error(t, err) // end precedes start
}

func TestPortfolioInvariants(t *testing.T) {
	p := NewPortfolio(1000)

	require.NoError(t, p.Buy("AAA", 9.98, 100, 2, testBase))
	assert.InDelta(t, 0.0, p.Cash(), 1e-9)

	err := p.Buy("AAA", 1, 100, 2, testBase)
	assert.ErrorIs(t, err, ErrPositionExists)

	err = p.Buy("BBB", 10, 100, 2, testBase)
	assert.ErrorIs(t, err, ErrInsufficientCash)

	_, err = p.Sell("CCC", 100, 2, testBase)
	assert.ErrorIs(t, err, ErrPositionNotFound)

	pos, err := p.Sell("AAA", 125, 2, testBase.AddDate(0, 0, 4))
	require.NoError(t, err)
	assert.InDelta(t, 9.98, pos.Shares, 1e-9)
	assert.InDelta(t, 1245.5, p.Cash(), 1e-9)
	assert.Equal(t, 0, p.OpenPositions())
}

func TestPortfolioEquityFallsBackToEntryPrice(t *testing.T) {
	p := NewPortfolio(1000)
	require.NoError(t, p.Buy("AAA", 5, 100, 2, testBase))

	// No observed price yet: mark at entry.
	assert.InDelta(t, 498+5*100, p.Equity(nil), 1e-9)

	assert.InDelta(t, 498+5*120, p.Equity(map[string]float64{"AAA": 120}), 1e-9)
}

func TestMaxDrawdownPct(t *testing.T) {
	curve := []dto.EquityPoint{
		{Equity: 1000}, {Equity: 1200}, {Equity: 900}, {Equity: 1100}, {Equity: 1300},
	}
	assert.InDelta(t, 25.0, maxDrawdownPct(curve), 1e-9)
	assert.Equal(t, 0.0, maxDrawdownPct(nil))
}
