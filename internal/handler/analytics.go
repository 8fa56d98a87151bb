package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/citylib/library-service/internal/service"
)

// AnalyticsHandler serves the reporting surface.
type AnalyticsHandler struct {
	Service *service.AnalyticsService
}

// NewAnalyticsHandler returns an AnalyticsHandler over the reporting
// service.
func NewAnalyticsHandler(svc *service.AnalyticsService) *AnalyticsHandler {
	return &AnalyticsHandler{Service: svc}
}

// Summary handles GET /api/v1/analytics/summary.  from and to take
// "2006-01-02" dates; omitted bounds default to the trailing 30 days.
func (h *AnalyticsHandler) Summary(c echo.Context) error {
	from, err := queryDate(c, "from")
	if err != nil {
		return jsonError(c, http.StatusBadRequest, "invalid_request", "from must be a YYYY-MM-DD date")
	}
	to, err := queryDate(c, "to")
	if err != nil {
		return jsonError(c, http.StatusBadRequest, "invalid_request", "to must be a YYYY-MM-DD date")
	}

	summary, err := h.Service.Summary(c.Request().Context(), from, to)
	if err != nil {
		return writeDomainError(c, err)
	}
	return c.JSON(http.StatusOK, summary)
}

func queryDate(c echo.Context, name string) (time.Time, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return time.Time{}, nil
	}
	return time.Parse("2006-01-02", raw)
}
