package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang-rotation/config"
	"golang-rotation/internal/dto"
	"golang-rotation/internal/repository"
	"golang-rotation/internal/strategy"
	"golang-rotation/pkg/logger"
	"golang-rotation/pkg/telegram"
	"golang-rotation/pkg/utils"
)

// ScannerService evaluates the configured universe against the live entry
// filter and predictor, outside any simulation. The daily scheduler and the
// scan CLI command both drive it.
type ScannerService interface {
	Scan(ctx context.Context) (*dto.ScanReport, error)
}

// ModelStore is implemented by predictors that can persist their trained
// models between scans.
type ModelStore interface {
	SaveModels(dir string) error
	LoadModels(dir string) error
}

type scannerService struct {
	cfg          *config.Config
	log          *logger.Logger
	marketData   MarketDataService
	newPredictor PredictorFactory
	geminiRepo   repository.AIRepository
	notifier     *telegram.Notifier
	loc          *time.Location
}

func NewScannerService(
	cfg *config.Config,
	log *logger.Logger,
	marketData MarketDataService,
	newPredictor PredictorFactory,
	geminiRepo repository.AIRepository,
	notifier *telegram.Notifier,
	loc *time.Location,
) ScannerService {
	return &scannerService{
		cfg:          cfg,
		log:          log,
		marketData:   marketData,
		newPredictor: newPredictor,
		geminiRepo:   geminiRepo,
		notifier:     notifier,
		loc:          loc,
	}
}

// Scan runs one full-universe evaluation as of the latest available bar and
// pushes the report to the configured notification channels.
func (s *scannerService) Scan(ctx context.Context) (*dto.ScanReport, error) {
	if len(s.cfg.Backtest.Universe) == 0 {
		return nil, fmt.Errorf("no universe configured")
	}

	now := utils.TruncateToDay(time.Now().In(s.loc))

	loadSymbols := s.cfg.Backtest.Universe
	if s.cfg.Strategy.MarketRegimeFilter && s.cfg.Backtest.MarketIndex != "" && !utils.ContainsString(loadSymbols, s.cfg.Backtest.MarketIndex) {
		loadSymbols = append(append([]string{}, loadSymbols...), s.cfg.Backtest.MarketIndex)
	}

	series, diags := s.marketData.Load(ctx, loadSymbols, now, now)
	indexSeries := series[s.cfg.Backtest.MarketIndex]

	filter := strategy.NewEntryFilter(s.cfg.Strategy)
	pred := s.newPredictor()

	// Reuse models trained by earlier scans so the daily run does not start
	// from scratch every time.
	store, persistModels := pred.(ModelStore)
	if persistModels && s.cfg.Predictor.ModelDir != "" {
		if err := store.LoadModels(s.cfg.Predictor.ModelDir); err != nil {
			s.log.DebugContext(ctx, "No saved models to restore", logger.ErrorField(err))
		}
	}

	report := &dto.ScanReport{
		ScanTime:    now,
		MarketIndex: s.cfg.Backtest.MarketIndex,
	}

	report.MarketBullish = true
	if indexSeries != nil && indexSeries.Len() > 0 {
		report.MarketBullish = filter.MarketBullish(indexSeries, indexSeries.Len()-1)
	}

	var eligible []strategy.Candidate
	for _, symbol := range s.cfg.Backtest.Universe {
		ser, ok := series[symbol]
		if !ok || ser.Len() == 0 {
			continue
		}
		i := ser.Len() - 1

		signal := dto.ScanSignal{
			Symbol: symbol,
			Price:  ser.Close[i],
		}

		c, pass := filter.Evaluate(ser, i)
		if pass {
			signal.MomentumScore = c.Momentum
			signal.Eligible = true
			eligible = append(eligible, c)
		} else {
			signal.Note = "trend filter rejected"
		}
		report.Signals = append(report.Signals, signal)
	}

	// Score only the momentum leaders; as-of one day past the last bar so
	// the latest close is part of the inference window.
	eligible = filter.RankTopMomentum(eligible)
	asOf := now.AddDate(0, 0, 1)
	for j := range eligible {
		eligible[j].Score = pred.Predict(ctx, series[eligible[j].Symbol], asOf)
	}
	strategy.SortByScore(eligible)

	for _, c := range eligible {
		if c.Score < s.cfg.Predictor.ConfidenceThreshold {
			continue
		}
		report.TopPicks = append(report.TopPicks, dto.ScanSignal{
			Symbol:        c.Symbol,
			Price:         c.Price,
			MomentumScore: c.Momentum,
			Score:         c.Score,
			Eligible:      true,
		})
	}

	report.Diagnostics = append(diags, pred.Diagnostics()...)

	if persistModels && s.cfg.Predictor.ModelDir != "" {
		if err := store.SaveModels(s.cfg.Predictor.ModelDir); err != nil {
			s.log.WarnContext(ctx, "Failed to save models", logger.ErrorField(err))
		}
	}

	if s.geminiRepo != nil && len(report.TopPicks) > 0 {
		narrative, err := s.geminiRepo.NarrateScan(ctx, report)
		if err != nil {
			s.log.WarnContext(ctx, "Scan narrative generation failed", logger.ErrorField(err))
		} else {
			report.Narrative = narrative
		}
	}

	if s.notifier != nil {
		if err := s.notifier.SendMessage(ctx, formatScanMessage(report)); err != nil {
			s.log.WarnContext(ctx, "Scan notification failed", logger.ErrorField(err))
		}
	}

	s.log.InfoContext(ctx, "Market scan completed",
		logger.DateField("scan_time", report.ScanTime),
		logger.IntField("signals", len(report.Signals)),
		logger.IntField("top_picks", len(report.TopPicks)),
	)

	return report, nil
}

func formatScanMessage(report *dto.ScanReport) string {
	var b strings.Builder
	fmt.Fprintf(&b, "*Daily Scan %s*\n", utils.FormatDate(report.ScanTime))

	regime := "bullish"
	if !report.MarketBullish {
		regime = "bearish"
	}
	fmt.Fprintf(&b, "Market (%s): %s\n\n", report.MarketIndex, regime)

	if len(report.TopPicks) == 0 {
		b.WriteString("No candidates passed the filters today.")
	} else {
		b.WriteString("*Top picks:*\n")
		for _, pick := range report.TopPicks {
			fmt.Fprintf(&b, "- `%s` @ %.2f (momentum %.3f, score %.3f)\n",
				pick.Symbol, pick.Price, pick.MomentumScore, pick.Score)
		}
	}

	if report.Narrative != "" {
		b.WriteString("\n")
		b.WriteString(report.Narrative)
	}
	return b.String()
}
