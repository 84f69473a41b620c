package http

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

func (h *HttpAPIHandler) SetupScan(base *echo.Group) {
	scanGroup := base.Group("/scan")
	scanGroup.POST("", h.runScan)
}

func (h *HttpAPIHandler) runScan(c echo.Context) error {
	report, err := h.service.ScannerService.Scan(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to run scan"})
	}
	return c.JSON(http.StatusOK, report)
}
