package repository

import (
	"golang-rotation/config"
	"golang-rotation/pkg/logger"

	"gorm.io/gorm"
)

type Repository struct {
	YahooFinanceRepo YahooFinanceRepository
	BacktestRepo     BacktestRepository
	GeminiAIRepo     AIRepository
}

func NewRepository(cfg *config.Config, db *gorm.DB, log *logger.Logger) (*Repository, error) {
	repo := &Repository{
		YahooFinanceRepo: NewYahooFinanceRepository(cfg, log),
		BacktestRepo:     NewBacktestRepository(db),
	}

	if cfg.Gemini.Enabled {
		geminiAIRepo, err := NewGeminiAIRepository(cfg, log)
		if err != nil {
			return nil, err
		}
		repo.GeminiAIRepo = geminiAIRepo
	}

	return repo, nil
}
