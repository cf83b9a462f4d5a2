package main

import (
	"log"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/campuskit/room-reservation/internal/activity"
	"github.com/campuskit/room-reservation/internal/cache"
	"github.com/campuskit/room-reservation/internal/config"
	"github.com/campuskit/room-reservation/internal/database"
	"github.com/campuskit/room-reservation/internal/handler"
	"github.com/campuskit/room-reservation/internal/queue"
	"github.com/campuskit/room-reservation/internal/repository"
	"github.com/campuskit/room-reservation/internal/router"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	logger, err := newLogger(cfg.Env)
	if err != nil {
		log.Fatalf("logger init: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		logger.Fatal("database open", zap.Error(err))
	}
	defer db.Close()

	rdb := config.NewRedisClient()
	if rdb == nil {
		logger.Warn("redis unavailable, status cache and rate limiting disabled")
	}
	statuses := cache.NewRoomStatusCache(rdb)

	publisher := queue.NewPublisher(queue.BrokerURL(), logger)

	userRepo := repository.NewUserRepo(db)
	tokenRepo := repository.NewTokenRepo(db)
	roomRepo := repository.NewRoomRepo(db)
	scheduleRepo := repository.NewScheduleRepo(db)
	usageRepo := repository.NewUsageRepo(db)
	activityRepo := repository.NewActivityRepo(db)

	audit := activity.NewLogger(activityRepo, publisher, logger)

	h := router.Handlers{
		Auth:       handler.NewAuthHandler(cfg, userRepo, tokenRepo),
		Rooms:      handler.NewRoomHandler(roomRepo, usageRepo, statuses),
		Schedules:  handler.NewScheduleHandler(roomRepo, scheduleRepo, userRepo, audit, publisher),
		Usages:     handler.NewUsageHandler(roomRepo, scheduleRepo, usageRepo, audit, publisher),
		Activities: handler.NewActivityHandler(activityRepo),
	}

	// Background consumers: replay lost audit entries and keep the Redis
	// status mirror current. Each loop reconnects on its own.
	go queue.RunConsumer(queue.QueueActivityFallback, queue.NewActivityFallbackHandler(activityRepo), logger)
	for _, q := range queue.StatusQueues() {
		go queue.RunConsumer(q, queue.NewRoomStatusHandler(statuses), logger)
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())

	router.RegisterRoutes(e)
	router.RegisterAuth(e, h.Auth)
	router.RegisterAPI(e, h, cfg.JWTSecret, config.LoadRateLimitConfig(), rdb)

	addr := ":" + cfg.Port
	logger.Info("listening", zap.String("addr", addr), zap.String("env", cfg.Env))
	if err := e.Start(addr); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

func newLogger(env string) (*zap.Logger, error) {
	if env == "prod" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}
