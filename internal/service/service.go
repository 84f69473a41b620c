package service

import (
	"golang-rotation/config"
	"golang-rotation/internal/repository"
	"golang-rotation/pkg/logger"
	"golang-rotation/pkg/telegram"
	"golang-rotation/pkg/utils"
)

type Service struct {
	MarketDataService MarketDataService
	BacktestService   BacktestService
	ScannerService    ScannerService
	SchedulerService  SchedulerService
}

func NewService(
	cfg *config.Config,
	log *logger.Logger,
	repo *repository.Repository,
	notifier *telegram.Notifier,
) *Service {
	loc := utils.GetMarketTimeLocation()

	marketData := NewMarketDataService(cfg, log, repo.YahooFinanceRepo, loc)
	newPredictor := DefaultPredictorFactory(log, cfg.Predictor)

	backtestService := NewBacktestService(cfg, log, marketData, newPredictor, repo.BacktestRepo, loc)
	scannerService := NewScannerService(cfg, log, marketData, newPredictor, repo.GeminiAIRepo, notifier, loc)
	schedulerService := NewSchedulerService(cfg, log, scannerService, loc)

	return &Service{
		MarketDataService: marketData,
		BacktestService:   backtestService,
		ScannerService:    scannerService,
		SchedulerService:  schedulerService,
	}
}
