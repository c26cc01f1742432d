package handlers

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/verdantcart/storefront/internal/service/analytics"
)

type AnalyticsHandler struct {
	Analytics *analytics.Service
}

// GetAnalytics reports totals plus per-day sales for the trailing week.
func (h *AnalyticsHandler) GetAnalytics(c echo.Context) error {
	end := time.Now().UTC()
	start := end.AddDate(0, 0, -7)

	report, err := h.Analytics.Report(c.Request().Context(), start, end)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, report)
}
