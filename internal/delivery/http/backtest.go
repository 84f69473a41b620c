package http

import (
	"net/http"
	"strconv"

	"golang-rotation/internal/dto"

	"github.com/labstack/echo/v4"
)

func (h *HttpAPIHandler) SetupBacktest(base *echo.Group) {
	backtestGroup := base.Group("/backtest")
	backtestGroup.POST("", h.runBacktest)
	backtestGroup.GET("/runs", h.listRuns)
	backtestGroup.GET("/runs/:id", h.getRun)
	backtestGroup.GET("/runs/:id/trades", h.getTrades)
	backtestGroup.GET("/runs/:id/equity", h.getEquityCurve)
	backtestGroup.GET("/runs/:id/portfolio", h.getPortfolio)
}

func (h *HttpAPIHandler) runBacktest(c echo.Context) error {
	ctx := c.Request().Context()

	req := new(dto.BacktestRequest)
	if err := c.Bind(req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	if err := h.validator.Struct(req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	result, err := h.service.BacktestService.Run(ctx, *req)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to run backtest"})
	}

	return c.JSON(http.StatusOK, result)
}

func (h *HttpAPIHandler) listRuns(c echo.Context) error {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))

	runs, err := h.repo.BacktestRepo.ListRuns(c.Request().Context(), limit)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to list runs"})
	}
	return c.JSON(http.StatusOK, runs)
}

func (h *HttpAPIHandler) getRun(c echo.Context) error {
	id, err := runID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid run id"})
	}

	run, err := h.repo.BacktestRepo.GetRun(c.Request().Context(), id)
	if err != nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "run not found"})
	}
	return c.JSON(http.StatusOK, run)
}

func (h *HttpAPIHandler) getTrades(c echo.Context) error {
	id, err := runID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid run id"})
	}

	trades, err := h.repo.BacktestRepo.GetTrades(c.Request().Context(), id)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to load trades"})
	}
	return c.JSON(http.StatusOK, trades)
}

func (h *HttpAPIHandler) getEquityCurve(c echo.Context) error {
	id, err := runID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid run id"})
	}

	points, err := h.repo.BacktestRepo.GetEquityCurve(c.Request().Context(), id)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to load equity curve"})
	}
	return c.JSON(http.StatusOK, points)
}

func (h *HttpAPIHandler) getPortfolio(c echo.Context) error {
	id, err := runID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid run id"})
	}

	snapshot, err := h.repo.BacktestRepo.GetPortfolio(c.Request().Context(), id)
	if err != nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "portfolio not found"})
	}
	return c.JSON(http.StatusOK, snapshot)
}

func runID(c echo.Context) (uint, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	return uint(id), err
}
