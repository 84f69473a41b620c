package service

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"golang-rotation/config"
	"golang-rotation/internal/dto"
	"golang-rotation/internal/indicator"
	"golang-rotation/internal/predictor"
	"golang-rotation/internal/repository"
	"golang-rotation/internal/strategy"
	"golang-rotation/pkg/logger"
	"golang-rotation/pkg/utils"
)

// SignalPredictor is the engine's view of the model layer: score a symbol
// using only bars strictly before the as-of date, and report failures as
// diagnostics instead of errors.
type SignalPredictor interface {
	Predict(ctx context.Context, series *indicator.Series, asOf time.Time) float64
	Diagnostics() []dto.Diagnostic
}

// PredictorFactory builds a fresh predictor per run so model caches have a
// well-defined lifetime of exactly one simulation.
type PredictorFactory func() SignalPredictor

type BacktestService interface {
	Run(ctx context.Context, req dto.BacktestRequest) (*dto.BacktestResult, error)
}

type backtestService struct {
	cfg          *config.Config
	log          *logger.Logger
	marketData   MarketDataService
	newPredictor PredictorFactory
	backtestRepo repository.BacktestRepository
	loc          *time.Location
}

func NewBacktestService(
	cfg *config.Config,
	log *logger.Logger,
	marketData MarketDataService,
	newPredictor PredictorFactory,
	backtestRepo repository.BacktestRepository,
	loc *time.Location,
) BacktestService {
	return &backtestService{
		cfg:          cfg,
		log:          log,
		marketData:   marketData,
		newPredictor: newPredictor,
		backtestRepo: backtestRepo,
		loc:          loc,
	}
}

// runState is the mutable walk-forward state for one simulation. It is owned
// by a single Run call; nothing here outlives the run.
type runState struct {
	portfolio     *Portfolio
	lastPrices    map[string]float64
	cooldownUntil map[string]time.Time
	nextEntryDate time.Time
	trades        []dto.TradeRecord
	equityCurve   []dto.EquityPoint
	grossWins     float64
	grossLosses   float64
	winningTrades int
	losingTrades  int
}

// Run executes the walk-forward simulation over the requested date range.
// Each simulated date advances through four stages in fixed order: price
// observation, exit evaluation, entry evaluation, mark-to-market.
func (s *backtestService) Run(ctx context.Context, req dto.BacktestRequest) (*dto.BacktestResult, error) {
	symbols := req.Symbols
	if len(symbols) == 0 {
		symbols = s.cfg.Backtest.Universe
	}
	if len(symbols) == 0 {
		return nil, fmt.Errorf("no symbols to simulate")
	}

	initialCash := req.InitialCash
	if initialCash <= 0 {
		initialCash = s.cfg.Backtest.InitialCash
	}
	if initialCash <= 0 {
		return nil, fmt.Errorf("initial cash must be positive")
	}

	variant := req.Variant
	if variant == "" {
		variant = s.cfg.Strategy.Variant
	}

	start := utils.TruncateToDay(req.StartDate.In(s.loc))
	end := utils.TruncateToDay(req.EndDate.In(s.loc))
	if end.Before(start) {
		return nil, fmt.Errorf("end date %s precedes start date %s", utils.FormatDate(end), utils.FormatDate(start))
	}

	loadSymbols := symbols
	if s.cfg.Strategy.MarketRegimeFilter && s.cfg.Backtest.MarketIndex != "" && !utils.ContainsString(symbols, s.cfg.Backtest.MarketIndex) {
		loadSymbols = append(append([]string{}, symbols...), s.cfg.Backtest.MarketIndex)
	}

	series, diags := s.marketData.Load(ctx, loadSymbols, start, end)
	indexSeries := series[s.cfg.Backtest.MarketIndex]

	s.log.InfoContext(ctx, "Starting backtest",
		logger.StringField("variant", variant),
		logger.DateField("start", start),
		logger.DateField("end", end),
		logger.IntField("symbols", len(symbols)),
		logger.FloatField("initial_cash", initialCash),
	)

	rules := strategy.NewExitRules(s.cfg.Strategy, variant)
	filter := strategy.NewEntryFilter(s.cfg.Strategy)
	pred := s.newPredictor()

	state := &runState{
		portfolio:     NewPortfolio(initialCash),
		lastPrices:    make(map[string]float64),
		cooldownUntil: make(map[string]time.Time),
		nextEntryDate: start,
	}

	for _, date := range utils.DateRange(start, end, s.cfg.Backtest.Frequency) {
		if !utils.ShouldContinue(ctx, s.log) {
			return nil, ctx.Err()
		}

		tradedIdx := s.observePrices(state, series, symbols, date)

		if err := s.evaluateExits(state, series, rules, tradedIdx, date); err != nil {
			return nil, err
		}

		s.evaluateEntries(ctx, state, series, indexSeries, filter, pred, symbols, tradedIdx, date)

		state.equityCurve = append(state.equityCurve, dto.EquityPoint{
			Date:   date,
			Equity: state.portfolio.Equity(state.lastPrices),
		})
	}

	result := s.buildResult(state, pred, diags, initialCash, start, end, variant)

	s.log.InfoContext(ctx, "Backtest finished",
		logger.FloatField("final_equity", result.Summary.FinalEquity),
		logger.FloatField("total_return_pct", result.Summary.TotalReturn),
		logger.IntField("trades", len(result.Trades)),
		logger.IntField("diagnostics", len(result.Diagnostics)),
	)

	if req.Persist && s.backtestRepo != nil {
		runID, err := s.backtestRepo.SaveRun(ctx, result)
		if err != nil {
			s.log.ErrorContext(ctx, "Failed to persist backtest run", logger.ErrorField(err))
			return nil, fmt.Errorf("failed to persist backtest run: %w", err)
		}
		s.log.InfoContext(ctx, "Backtest run persisted", logger.IntField("run_id", int(runID)))
	}

	return result, nil
}

// observePrices records the last known price of every symbol that traded on
// this date and returns symbol -> bar index for the date.
func (s *backtestService) observePrices(state *runState, series map[string]*indicator.Series, symbols []string, date time.Time) map[string]int {
	tradedIdx := make(map[string]int)
	for _, symbol := range symbols {
		ser, ok := series[symbol]
		if !ok {
			continue
		}
		if i, traded := ser.IndexOf(date); traded {
			tradedIdx[symbol] = i
			state.lastPrices[symbol] = ser.Close[i]
		}
	}
	return tradedIdx
}

// evaluateExits runs the exit rule list over every open position whose
// symbol traded this date. A sell against a missing position is a fatal
// invariant violation.
func (s *backtestService) evaluateExits(state *runState, series map[string]*indicator.Series, rules []strategy.ExitRule, tradedIdx map[string]int, date time.Time) error {
	fee := s.cfg.Backtest.TransactionFee

	var held []string
	for symbol := range tradedIdx {
		if state.portfolio.Holds(symbol) {
			held = append(held, symbol)
		}
	}
	sort.Strings(held)

	for _, symbol := range held {
		i := tradedIdx[symbol]
		ser := series[symbol]
		price := ser.Close[i]

		pos, _ := state.portfolio.Position(symbol)
		if price > pos.HighestPrice {
			pos.HighestPrice = price
		}

		ema20 := math.NaN()
		if indicator.Valid(i, ser.EMA20) {
			ema20 = ser.EMA20[i]
		}

		exitCtx := strategy.ExitContext{
			Price:        price,
			EntryPrice:   pos.EntryPrice,
			PnlPct:       (price - pos.EntryPrice) / pos.EntryPrice,
			MaxPnlPct:    (pos.HighestPrice - pos.EntryPrice) / pos.EntryPrice,
			DropFromPeak: (price - pos.HighestPrice) / pos.HighestPrice,
			StopPrice:    pos.StopPrice,
			DaysHeld:     utils.DaysBetween(pos.EntryDate, date),
			EMA20:        ema20,
		}

		reason, fired := strategy.EvaluateExit(rules, exitCtx)
		if !fired {
			continue
		}

		closed, err := state.portfolio.Sell(symbol, price, fee, date)
		if err != nil {
			return err
		}

		realized := closed.Shares * (price - closed.EntryPrice)
		if realized > 0 {
			state.winningTrades++
			state.grossWins += realized
		} else {
			state.losingTrades++
			state.grossLosses += -realized
		}

		state.trades = append(state.trades, dto.TradeRecord{
			Date:    date,
			Action:  dto.ActionSell,
			Symbol:  symbol,
			Price:   price,
			Shares:  closed.Shares,
			Reason:  reason,
			Balance: state.portfolio.Cash(),
		})

		if strategy.IsStopLossReason(reason) && s.cfg.Strategy.StopLossCooldownDays > 0 {
			state.cooldownUntil[symbol] = date.AddDate(0, 0, s.cfg.Strategy.StopLossCooldownDays)
		}
	}
	return nil
}

// evaluateEntries scans for new positions when a slot is open and the entry
// gate has come due. When no candidate qualifies the gate advances, so the
// engine does not invoke the predictor every single flat day.
func (s *backtestService) evaluateEntries(
	ctx context.Context,
	state *runState,
	series map[string]*indicator.Series,
	indexSeries *indicator.Series,
	filter *strategy.EntryFilter,
	pred SignalPredictor,
	symbols []string,
	tradedIdx map[string]int,
	date time.Time,
) {
	if state.portfolio.OpenPositions() >= s.cfg.Strategy.MaxPositions {
		return
	}
	if date.Before(state.nextEntryDate) {
		return
	}

	entered := false
	defer func() {
		if !entered {
			state.nextEntryDate = date.AddDate(0, 0, s.cfg.Strategy.EntryCooldownDays)
		}
	}()

	if !s.marketBullish(filter, indexSeries, date) {
		return
	}

	minBars := s.cfg.Predictor.LookBack + s.cfg.Predictor.ForecastDays
	var candidates []strategy.Candidate
	for _, symbol := range symbols {
		i, traded := tradedIdx[symbol]
		if !traded || state.portfolio.Holds(symbol) {
			continue
		}
		if until, cooling := state.cooldownUntil[symbol]; cooling && date.Before(until) {
			continue
		}
		// Too little history means ineligible, not "score it anyway". The
		// model needs its own runway past the indicator warm-up, so both
		// floors apply.
		if i+1 < minBars || !predictor.SufficientHistory(series[symbol], date, s.cfg.Predictor) {
			continue
		}
		if c, ok := filter.Evaluate(series[symbol], i); ok {
			candidates = append(candidates, c)
		}
	}
	if len(candidates) == 0 {
		return
	}

	candidates = filter.RankTopMomentum(candidates)
	for j := range candidates {
		candidates[j].Score = pred.Predict(ctx, series[candidates[j].Symbol], date)
	}
	strategy.SortByScore(candidates)

	fee := s.cfg.Backtest.TransactionFee
	for _, c := range candidates {
		if state.portfolio.OpenPositions() >= s.cfg.Strategy.MaxPositions {
			break
		}
		if c.Score < s.cfg.Predictor.ConfidenceThreshold {
			break
		}

		budget := state.portfolio.Cash()
		if s.cfg.Strategy.MaxPositions > 1 {
			budget = math.Min(state.portfolio.Equity(state.lastPrices)*s.cfg.Strategy.AllocationPct, budget)
		}
		shares := (budget - fee) / c.Price
		if shares <= 0 {
			continue
		}

		if err := state.portfolio.Buy(c.Symbol, shares, c.Price, fee, date); err != nil {
			// Buy can only fail on an engine sequencing bug; surface loudly.
			s.log.ErrorContext(ctx, "Entry rejected by portfolio invariant",
				logger.StringField("symbol", c.Symbol),
				logger.ErrorField(err),
			)
			continue
		}
		entered = true

		if s.cfg.Strategy.ATRStopMultiplier > 0 {
			ser := series[c.Symbol]
			if i, ok := tradedIdx[c.Symbol]; ok && indicator.Valid(i, ser.ATR) {
				if pos, held := state.portfolio.Position(c.Symbol); held {
					pos.StopPrice = c.Price - s.cfg.Strategy.ATRStopMultiplier*ser.ATR[i]
				}
			}
		}

		state.trades = append(state.trades, dto.TradeRecord{
			Date:    date,
			Action:  dto.ActionBuy,
			Symbol:  c.Symbol,
			Price:   c.Price,
			Shares:  shares,
			Reason:  fmt.Sprintf("entry score=%.3f", c.Score),
			Balance: state.portfolio.Cash(),
		})
	}
}

func (s *backtestService) marketBullish(filter *strategy.EntryFilter, indexSeries *indicator.Series, date time.Time) bool {
	if indexSeries == nil {
		return filter.MarketBullish(nil, 0)
	}
	i, ok := indexSeries.IndexOf(date)
	if !ok {
		i = indexSeries.LastIndexBefore(date)
	}
	return filter.MarketBullish(indexSeries, i)
}

func (s *backtestService) buildResult(state *runState, pred SignalPredictor, fetchDiags []dto.Diagnostic, initialCash float64, start, end time.Time, variant string) *dto.BacktestResult {
	finalEquity := initialCash
	if n := len(state.equityCurve); n > 0 {
		finalEquity = state.equityCurve[n-1].Equity
	}

	summary := dto.BacktestSummary{
		InitialCash:   initialCash,
		FinalEquity:   finalEquity,
		TotalReturn:   (finalEquity - initialCash) / initialCash * 100,
		TotalTrades:   state.winningTrades + state.losingTrades,
		WinningTrades: state.winningTrades,
		LosingTrades:  state.losingTrades,
		MaxDrawdown:   maxDrawdownPct(state.equityCurve),
	}
	if summary.TotalTrades > 0 {
		summary.WinRate = float64(state.winningTrades) / float64(summary.TotalTrades) * 100
	}
	if state.grossLosses > 0 {
		summary.ProfitFactor = state.grossWins / state.grossLosses
	}

	return &dto.BacktestResult{
		StartDate:   start,
		EndDate:     end,
		Variant:     variant,
		Trades:      state.trades,
		EquityCurve: state.equityCurve,
		Portfolio:   state.portfolio.Snapshot(end),
		Summary:     summary,
		Diagnostics: append(fetchDiags, pred.Diagnostics()...),
	}
}

// maxDrawdownPct is the deepest peak-to-trough retracement of the equity
// curve, in percent (positive number).
func maxDrawdownPct(curve []dto.EquityPoint) float64 {
	var peak, maxDD float64
	for _, p := range curve {
		if p.Equity > peak {
			peak = p.Equity
		}
		if peak > 0 {
			if dd := (peak - p.Equity) / peak * 100; dd > maxDD {
				maxDD = dd
			}
		}
	}
	return maxDD
}

// DefaultPredictorFactory wires the real model layer.
func DefaultPredictorFactory(log *logger.Logger, cfg config.Predictor) PredictorFactory {
	return func() SignalPredictor {
		return predictor.New(log, cfg)
	}
}
