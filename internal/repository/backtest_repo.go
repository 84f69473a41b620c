package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"golang-rotation/internal/dto"
	"golang-rotation/internal/model"

	"gorm.io/gorm"
)

type BacktestRepository interface {
	SaveRun(ctx context.Context, result *dto.BacktestResult) (uint, error)
	GetRun(ctx context.Context, id uint) (*model.BacktestRun, error)
	ListRuns(ctx context.Context, limit int) ([]model.BacktestRun, error)
	GetTrades(ctx context.Context, runID uint) ([]model.TradeRecord, error)
	GetEquityCurve(ctx context.Context, runID uint) ([]model.EquitySnapshot, error)
	GetPortfolio(ctx context.Context, runID uint) (*model.PortfolioSnapshot, error)
}

type backtestRepository struct {
	db *gorm.DB
}

func NewBacktestRepository(db *gorm.DB) BacktestRepository {
	return &backtestRepository{db: db}
}

// SaveRun persists a completed simulation atomically: the run header, its
// trade ledger, the equity curve and the final portfolio snapshot.
func (r *backtestRepository) SaveRun(ctx context.Context, result *dto.BacktestResult) (uint, error) {
	diags, err := json.Marshal(result.Diagnostics)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal diagnostics: %w", err)
	}
	positions, err := json.Marshal(result.Portfolio.Positions)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal positions: %w", err)
	}

	run := model.BacktestRun{
		StartDate:    result.StartDate,
		EndDate:      result.EndDate,
		Variant:      result.Variant,
		InitialCash:  result.Summary.InitialCash,
		FinalEquity:  result.Summary.FinalEquity,
		TotalReturn:  result.Summary.TotalReturn,
		TotalTrades:  result.Summary.TotalTrades,
		WinRate:      result.Summary.WinRate,
		ProfitFactor: result.Summary.ProfitFactor,
		MaxDrawdown:  result.Summary.MaxDrawdown,
		Diagnostics:  diags,
	}

	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&run).Error; err != nil {
			return fmt.Errorf("failed to create backtest run: %w", err)
		}

		if len(result.Trades) > 0 {
			trades := make([]model.TradeRecord, len(result.Trades))
			for i, t := range result.Trades {
				trades[i] = model.TradeRecord{
					RunID:   run.ID,
					Date:    t.Date,
					Action:  string(t.Action),
					Symbol:  t.Symbol,
					Price:   t.Price,
					Shares:  t.Shares,
					Reason:  t.Reason,
					Balance: t.Balance,
				}
			}
			if err := tx.CreateInBatches(trades, 500).Error; err != nil {
				return fmt.Errorf("failed to create trade records: %w", err)
			}
		}

		if len(result.EquityCurve) > 0 {
			snapshots := make([]model.EquitySnapshot, len(result.EquityCurve))
			for i, p := range result.EquityCurve {
				snapshots[i] = model.EquitySnapshot{
					RunID:  run.ID,
					Date:   p.Date,
					Equity: p.Equity,
				}
			}
			if err := tx.CreateInBatches(snapshots, 500).Error; err != nil {
				return fmt.Errorf("failed to create equity snapshots: %w", err)
			}
		}

		portfolio := model.PortfolioSnapshot{
			RunID:     run.ID,
			Cash:      result.Portfolio.Cash,
			Positions: positions,
			LastDate:  result.Portfolio.LastDate,
		}
		if err := tx.Create(&portfolio).Error; err != nil {
			return fmt.Errorf("failed to create portfolio snapshot: %w", err)
		}

		return nil
	})
	if err != nil {
		return 0, err
	}

	return run.ID, nil
}

func (r *backtestRepository) GetRun(ctx context.Context, id uint) (*model.BacktestRun, error) {
	var run model.BacktestRun
	if err := r.db.WithContext(ctx).First(&run, id).Error; err != nil {
		return nil, err
	}
	return &run, nil
}

func (r *backtestRepository) ListRuns(ctx context.Context, limit int) ([]model.BacktestRun, error) {
	var runs []model.BacktestRun
	q := r.db.WithContext(ctx).Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&runs).Error; err != nil {
		return nil, err
	}
	return runs, nil
}

func (r *backtestRepository) GetTrades(ctx context.Context, runID uint) ([]model.TradeRecord, error) {
	var trades []model.TradeRecord
	if err := r.db.WithContext(ctx).Where("run_id = ?", runID).Order("date ASC, id ASC").Find(&trades).Error; err != nil {
		return nil, err
	}
	return trades, nil
}

func (r *backtestRepository) GetEquityCurve(ctx context.Context, runID uint) ([]model.EquitySnapshot, error) {
	var points []model.EquitySnapshot
	if err := r.db.WithContext(ctx).Where("run_id = ?", runID).Order("date ASC").Find(&points).Error; err != nil {
		return nil, err
	}
	return points, nil
}

func (r *backtestRepository) GetPortfolio(ctx context.Context, runID uint) (*model.PortfolioSnapshot, error) {
	var snapshot model.PortfolioSnapshot
	if err := r.db.WithContext(ctx).Where("run_id = ?", runID).Order("created_at DESC").First(&snapshot).Error; err != nil {
		return nil, err
	}
	return &snapshot, nil
}
