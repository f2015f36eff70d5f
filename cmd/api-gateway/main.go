package main

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/duetapp/duet-api/api/swagger"
	"github.com/duetapp/duet-api/internal/handler"
	"github.com/duetapp/duet-api/internal/middleware"
	"github.com/duetapp/duet-api/internal/repository"
	"github.com/duetapp/duet-api/internal/service"
	"github.com/duetapp/duet-api/pkg/cache"
	"github.com/duetapp/duet-api/pkg/config"
	"github.com/duetapp/duet-api/pkg/database"
	"github.com/duetapp/duet-api/pkg/jobs"
	"github.com/duetapp/duet-api/pkg/logger"
	corsmiddleware "github.com/duetapp/duet-api/pkg/middleware/cors"
	reqidmiddleware "github.com/duetapp/duet-api/pkg/middleware/requestid"
)

// @title Duet Scheduling API
// @version 1.0.0
// @description Availability scheduling and booking service
// @BasePath /api/v1
// @schemes http

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	var cacheRepo service.CacheRepository
	if cfg.Search.CacheEnabled {
		redisClient, err := cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Sugar().Warnw("redis unavailable, search caching disabled", "error", err)
		} else {
			defer redisClient.Close()
			cacheRepo = repository.NewCacheRepository(redisClient, logr)
		}
	}

	slotRepo := repository.NewSlotRepository(db)
	bookingRepo := repository.NewBookingRepository(db)
	userRepo := repository.NewUserRepository(db)
	auditRepo := repository.NewAuditRepository(db)

	metricsSvc := service.NewMetricsService()
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Search.CacheTTL, logr, cfg.Search.CacheEnabled)

	var notifier *service.NotificationService
	if cfg.Notifications.Enabled {
		notifier = service.NewNotificationService(nil, jobs.Config{
			Workers: cfg.Notifications.Workers,
			Buffer:  cfg.Notifications.BufferSize,
			Retries: cfg.Notifications.MaxRetries,
			Backoff: cfg.Notifications.RetryDelay,
			Logger:  logr,
		}, logr)
		notifier.Start(context.Background())
		defer notifier.Stop()
	}
	var slotNotifier service.Notifier
	if notifier != nil {
		slotNotifier = notifier
	}

	conflictSvc := service.NewConflictService(slotRepo, logr)
	bookingSvc := service.NewBookingService(bookingRepo, slotRepo, db, auditRepo, slotNotifier, metricsSvc, nil, logr)
	slotSvc := service.NewSlotService(slotRepo, conflictSvc, bookingSvc, db, auditRepo, slotNotifier, nil, logr, service.SlotPolicyConfig{
		MinDuration:     cfg.Scheduling.MinSlotDuration,
		MaxDuration:     cfg.Scheduling.MaxSlotDuration,
		MaxFutureDays:   cfg.Scheduling.MaxFutureDays,
		DefaultTimezone: cfg.Scheduling.DefaultTimezone,
	})
	recurringSvc := service.NewRecurringService(slotSvc, slotRepo, nil, logr, cfg.Scheduling.MaxFutureDays)
	schedulingSvc := service.NewSchedulingService(slotSvc, slotRepo, userRepo, conflictSvc, nil, cacheSvc, metricsSvc, nil, logr)
	exportSvc := service.NewExportService(slotRepo, bookingRepo, logr)
	authSvc := service.NewAuthService(userRepo, auditRepo, nil, logr, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		AccessTokenExpiry: cfg.JWT.Expiration,
		Issuer:            cfg.JWT.Issuer,
	})

	authHandler := handler.NewAuthHandler(authSvc)
	slotHandler := handler.NewSlotHandler(slotSvc, recurringSvc, metricsSvc)
	bookingHandler := handler.NewBookingHandler(bookingSvc)
	schedulingHandler := handler.NewSchedulingHandler(schedulingSvc)
	exportHandler := handler.NewExportHandler(exportSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.POST("/auth/login", authHandler.Login)

	authed := api.Group("")
	authed.Use(middleware.JWT(authSvc))

	authed.POST("/auth/refresh", authHandler.Refresh)

	authed.GET("/slots", slotHandler.List)
	authed.POST("/slots", slotHandler.Create)
	authed.GET("/slots/:id", slotHandler.Get)
	authed.PATCH("/slots/:id", slotHandler.Update)
	authed.DELETE("/slots/:id", slotHandler.Delete)
	authed.POST("/slots/:id/cancel", slotHandler.Cancel)
	authed.GET("/slots/:id/bookings", bookingHandler.ListForSlot)
	authed.POST("/slots/recurring", slotHandler.GenerateRecurring)
	authed.POST("/slots/:id/recurring/cancel", slotHandler.CancelRecurring)
	authed.POST("/slots/bulk", schedulingHandler.BulkCreate)
	authed.POST("/slots/check-conflicts", schedulingHandler.CheckConflicts)
	authed.POST("/search/available", schedulingHandler.Search)

	authed.GET("/bookings", bookingHandler.ListMine)
	authed.POST("/bookings", bookingHandler.Book)
	authed.POST("/bookings/:id/confirm", bookingHandler.Confirm)
	authed.POST("/bookings/:id/cancel", bookingHandler.Cancel)
	authed.POST("/bookings/:id/complete", bookingHandler.Complete)

	if cfg.Exports.Enabled {
		authed.GET("/exports/schedule", exportHandler.Schedule)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
