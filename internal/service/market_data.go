package service

import (
	"context"
	"sync"
	"time"

	"golang-rotation/config"
	"golang-rotation/internal/dto"
	"golang-rotation/internal/indicator"
	"golang-rotation/internal/repository"
	"golang-rotation/pkg/logger"

	"golang.org/x/sync/errgroup"
)

// MarketDataService loads full bar histories and precomputes indicator
// frames for the engine. Symbols that fail to load are reported as
// diagnostics, never as a run-aborting error.
type MarketDataService interface {
	Load(ctx context.Context, symbols []string, start, end time.Time) (map[string]*indicator.Series, []dto.Diagnostic)
}

type marketDataService struct {
	cfg       *config.Config
	log       *logger.Logger
	yahooRepo repository.YahooFinanceRepository
	loc       *time.Location
}

func NewMarketDataService(cfg *config.Config, log *logger.Logger, yahooRepo repository.YahooFinanceRepository, loc *time.Location) MarketDataService {
	return &marketDataService{
		cfg:       cfg,
		log:       log,
		yahooRepo: yahooRepo,
		loc:       loc,
	}
}

// Load fetches every symbol concurrently, reaching back far enough before
// start to cover indicator and predictor warm-up. The returned map holds
// one immutable Series per symbol that loaded successfully.
func (s *marketDataService) Load(ctx context.Context, symbols []string, start, end time.Time) (map[string]*indicator.Series, []dto.Diagnostic) {
	fetchStart := start.AddDate(0, 0, -s.cfg.Backtest.WarmupDays)

	var (
		mu     sync.Mutex
		series = make(map[string]*indicator.Series, len(symbols))
		diags  []dto.Diagnostic
	)

	g, gCtx := errgroup.WithContext(ctx)
	if s.cfg.YahooFinance.MaxConcurrentFetch > 0 {
		g.SetLimit(s.cfg.YahooFinance.MaxConcurrentFetch)
	}

	for _, symbol := range symbols {
		symbol := symbol
		g.Go(func() error {
			data, err := s.yahooRepo.Get(gCtx, dto.GetStockDataParam{
				Symbol:    symbol,
				StartDate: fetchStart,
				EndDate:   end,
				Interval:  "1d",
			})
			if err != nil {
				s.log.WarnContext(gCtx, "Failed to load symbol history",
					logger.StringField("symbol", symbol),
					logger.ErrorField(err),
				)
				mu.Lock()
				diags = append(diags, dto.Diagnostic{Symbol: symbol, Stage: "fetch", Error: err.Error()})
				mu.Unlock()
				return nil
			}

			frame := indicator.Build(symbol, data.OHLCV, s.loc)
			mu.Lock()
			series[symbol] = frame
			mu.Unlock()

			s.log.DebugContext(gCtx, "Loaded symbol history",
				logger.StringField("symbol", symbol),
				logger.IntField("bars", frame.Len()),
			)
			return nil
		})
	}

	// Workers never return errors; Wait only observes context cancellation.
	_ = g.Wait()

	return series, diags
}
