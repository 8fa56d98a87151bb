package handler

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// HealthHandler reports liveness plus a database reachability check, so
// load balancers and monitoring can tell a wedged instance from a slow
// one.
type HealthHandler struct {
	DB      *sql.DB
	started time.Time
}

// NewHealthHandler returns a HealthHandler marking now as start time.
func NewHealthHandler(db *sql.DB) *HealthHandler {
	return &HealthHandler{DB: db, started: time.Now()}
}

// Check handles GET /health.  A failing database ping degrades the
// response to 503 while still reporting uptime.
func (h *HealthHandler) Check(c echo.Context) error {
	pingCtx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()

	status, overall, dbStatus := http.StatusOK, "ok", "up"
	if err := h.DB.PingContext(pingCtx); err != nil {
		status, overall, dbStatus = http.StatusServiceUnavailable, "degraded", "down"
	}

	return c.JSON(status, map[string]any{
		"status":   overall,
		"database": dbStatus,
		"uptime":   time.Since(h.started).Round(time.Second).String(),
	})
}
