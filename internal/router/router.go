// Package router wires the HTTP surface: versioned API routes, the
// health check and the metrics endpoint.
package router

import (
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"

	"github.com/citylib/library-service/internal/config"
	"github.com/citylib/library-service/internal/handler"
	"github.com/citylib/library-service/internal/metrics"
	"github.com/citylib/library-service/internal/middleware"
	"github.com/citylib/library-service/internal/ratelimit"
)

// Deps carries everything the route table needs.
type Deps struct {
	Books     *handler.BookHandler
	Members   *handler.MemberHandler
	Borrows   *handler.BorrowHandler
	Analytics *handler.AnalyticsHandler
	Health    *handler.HealthHandler
	Metrics   *metrics.BorrowMetrics

	RateLimitCfg config.RateLimitConfig
	Limiter      *ratelimit.Limiter
	CacheCfg     config.CacheConfig
	Redis        *redis.Client
}

// Register builds the full route table on e.  Operational endpoints
// (/health, /metrics) sit outside the rate limiter; the /api/v1 group
// carries correlation, rate limiting and the response cache for reads.
func Register(e *echo.Echo, d Deps) {
	e.Use(echomw.Recover())
	e.Use(middleware.Correlation())

	e.GET("/health", d.Health.Check)
	e.GET("/metrics", echo.WrapHandler(d.Metrics.Handler()))

	api := e.Group("/api/v1", middleware.RateLimit(d.RateLimitCfg, d.Limiter))
	cached := middleware.ResponseCache(d.CacheCfg, d.Redis)

	api.POST("/books", d.Books.Create)
	api.GET("/books", d.Books.List, cached)
	api.GET("/books/:id", d.Books.Get)
	api.PUT("/books/:id", d.Books.Update)
	api.GET("/books/:id/details", d.Books.Details)

	api.POST("/members", d.Members.Create)
	api.GET("/members", d.Members.List, cached)
	api.GET("/members/:id", d.Members.Get)
	api.PUT("/members/:id", d.Members.Update)
	api.GET("/members/:id/details", d.Members.Details)

	api.POST("/borrows", d.Borrows.Borrow)
	api.POST("/borrows/:id/return", d.Borrows.Return)
	api.GET("/borrows", d.Borrows.List)
	api.GET("/borrows/:id", d.Borrows.Get)

	api.GET("/analytics/summary", d.Analytics.Summary, cached)
}
