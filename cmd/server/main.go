package main

import (
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"

	"github.com/citylib/library-service/internal/config"
	"github.com/citylib/library-service/internal/database"
	"github.com/citylib/library-service/internal/handler"
	"github.com/citylib/library-service/internal/metrics"
	"github.com/citylib/library-service/internal/queue"
	"github.com/citylib/library-service/internal/ratelimit"
	"github.com/citylib/library-service/internal/repository"
	"github.com/citylib/library-service/internal/router"
	"github.com/citylib/library-service/internal/service"
)

func main() {
	_ = godotenv.Load() // .env is optional; real deployments use the environment

	cfg := config.Load()
	rlCfg := config.LoadRateLimitConfig()
	cacheCfg := config.LoadCacheConfig()

	db, err := database.Open(database.Params{
		User:            cfg.DBUser,
		Pass:            cfg.DBPass,
		Host:            cfg.DBHost,
		Port:            cfg.DBPort,
		Name:            cfg.DBName,
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
		PingTimeout:     cfg.DBPingTimeout,
	})
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	rdb := config.NewRedisClient() // nil disables the response cache

	bookRepo := repository.NewBookRepo(db)
	memberRepo := repository.NewMemberRepo(db)
	borrowRepo := repository.NewBorrowRepo(db)
	analyticsRepo := repository.NewAnalyticsRepo(db)

	borrowMetrics := metrics.New()
	borrowSvc := service.NewBorrowService(bookRepo, memberRepo, borrowRepo, borrowMetrics,
		cfg.MaxActiveBorrows, time.Duration(cfg.BorrowDurationDays)*24*time.Hour)
	analyticsSvc := service.NewAnalyticsService(analyticsRepo, cfg.LowStockRatio)

	limiter := ratelimit.New(rlCfg.Limit, rlCfg.Window, rlCfg.IdleTTL)
	limiter.Start()
	defer limiter.Stop()

	go func() {
		if err := queue.StartBorrowConsumer(); err != nil {
			log.Printf("borrow consumer stopped: %v", err)
		}
	}()

	e := echo.New()
	e.HideBanner = true
	router.Register(e, router.Deps{
		Books:        handler.NewBookHandler(bookRepo, borrowRepo, cfg.MaxPageSize),
		Members:      handler.NewMemberHandler(memberRepo, borrowRepo, cfg.MaxPageSize),
		Borrows:      handler.NewBorrowHandler(borrowSvc, borrowRepo, cfg.MaxPageSize),
		Analytics:    handler.NewAnalyticsHandler(analyticsSvc),
		Health:       handler.NewHealthHandler(db),
		Metrics:      borrowMetrics,
		RateLimitCfg: rlCfg,
		Limiter:      limiter,
		CacheCfg:     cacheCfg,
		Redis:        rdb,
	})

	addr := ":" + cfg.Port
	log.Printf("listening on %s (env=%s)", addr, cfg.Env)
	if err := e.Start(addr); err != nil {
		log.Fatal(err)
	}
}
