package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"golang-rotation/internal/dto"
	"golang-rotation/internal/repository"
	"golang-rotation/internal/service"
	"golang-rotation/pkg/utils"

	"github.com/spf13/cobra"
)

var (
	backtestSymbols []string
	backtestStart   string
	backtestEnd     string
	backtestVariant string
	backtestCash    float64
	backtestPersist bool
)

var backtestCmd = &cobra.Command{
	Use:   "backtest",
	Short: "Run one walk-forward simulation and print the result as JSON",
	RunE:  runBacktestCmd,
}

func init() {
	backtestCmd.Flags().StringSliceVar(&backtestSymbols, "symbols", nil, "symbols to simulate (defaults to the configured universe)")
	backtestCmd.Flags().StringVar(&backtestStart, "start", "", "simulation start date (YYYY-MM-DD)")
	backtestCmd.Flags().StringVar(&backtestEnd, "end", "", "simulation end date (YYYY-MM-DD)")
	backtestCmd.Flags().StringVar(&backtestVariant, "variant", "", "strategy variant: classic, super or trailing")
	backtestCmd.Flags().Float64Var(&backtestCash, "cash", 0, "initial cash (defaults to configuration)")
	backtestCmd.Flags().BoolVar(&backtestPersist, "persist", false, "store the run in the database")
}

func runBacktestCmd(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	appDep, err := NewAppDependency(ctx)
	if err != nil {
		log.Fatalf("Failed to create app dependency: %v", err)
	}
	defer appDep.Close()

	repo, err := repository.NewRepository(appDep.cfg, appDep.db.DB, appDep.log)
	if err != nil {
		log.Fatalf("Failed to create repository: %v", err)
	}

	req := dto.BacktestRequest{
		Symbols:     backtestSymbols,
		InitialCash: backtestCash,
		Variant:     backtestVariant,
		Persist:     backtestPersist,
	}

	startStr := backtestStart
	if startStr == "" {
		startStr = appDep.cfg.Backtest.StartDate
	}
	endStr := backtestEnd
	if endStr == "" {
		endStr = appDep.cfg.Backtest.EndDate
	}
	if req.StartDate, err = utils.ParseDate(startStr); err != nil {
		return fmt.Errorf("invalid start date %q: %w", startStr, err)
	}
	if req.EndDate, err = utils.ParseDate(endStr); err != nil {
		return fmt.Errorf("invalid end date %q: %w", endStr, err)
	}

	services := service.NewService(appDep.cfg, appDep.log, repo, appDep.notifier)

	result, err := services.BacktestService.Run(ctx, req)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}
