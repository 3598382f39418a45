package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/noah-isme/shift-exchange-api/api/swagger"
	"github.com/noah-isme/shift-exchange-api/internal/handler"
	"github.com/noah-isme/shift-exchange-api/internal/middleware"
	"github.com/noah-isme/shift-exchange-api/internal/models"
	"github.com/noah-isme/shift-exchange-api/internal/repository"
	"github.com/noah-isme/shift-exchange-api/internal/service"
	"github.com/noah-isme/shift-exchange-api/pkg/cache"
	"github.com/noah-isme/shift-exchange-api/pkg/config"
	"github.com/noah-isme/shift-exchange-api/pkg/database"
	"github.com/noah-isme/shift-exchange-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/shift-exchange-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/shift-exchange-api/pkg/middleware/requestid"
)

// @title Shift Exchange API
// @version 0.1.0
// @description Coordination engine for shift giveaways, swaps and pickups
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

	exchangeRepo := repository.NewExchangeRepository(db)
	rosterRepo := repository.NewRosterRepository(db)
	userRepo := repository.NewUserRepository(db)

	validate := validator.New()

	authService := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "shift-exchange-api",
	})

	metricsService := service.NewMetricsService()

	engineOpts := []service.ExchangeServiceOption{
		service.WithTransitionRecorder(metricsService),
	}
	var redisNotifier *service.RedisNotifier
	if cfg.Notifications.Enabled {
		redisClient, err := cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Sugar().Fatalw("failed to connect to redis", "error", err)
		}
		defer redisClient.Close()
		redisNotifier = service.NewRedisNotifier(context.Background(), redisClient, cfg.Notifications, logr)
		defer redisNotifier.Stop()
		engineOpts = append(engineOpts, service.WithNotifier(redisNotifier))
	}

	exchangeService := service.NewExchangeService(exchangeRepo, rosterRepo, userRepo, cfg.Exchange.OrgID, logr, engineOpts...)
	queryService := service.NewExchangeQueryService(exchangeRepo, cfg.Exchange.OrgID, cfg.Exchange.PoolMaxSize, logr)

	var exportService *service.ExportService
	if cfg.Exports.Enabled {
		exportService = service.NewExportService(exchangeRepo, cfg.Exchange.OrgID, cfg.Exports.MaxRows, logr)
	}

	authHandler := handler.NewAuthHandler(authService)
	metricsHandler := handler.NewMetricsHandler(metricsService)
	var exchangeHandler *handler.ExchangeHandler
	if exportService != nil {
		exchangeHandler = handler.NewExchangeHandler(exchangeService, queryService, exportService)
	} else {
		exchangeHandler = handler.NewExchangeHandler(exchangeService, queryService, nil)
	}

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(middleware.AccessLog(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsService))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := db.PingContext(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	auth.POST("/login", authHandler.Login)
	auth.POST("/refresh", authHandler.Refresh)
	auth.GET("/me", middleware.JWT(authService), authHandler.Me)

	if cfg.Exchange.Enabled {
		exchanges := api.Group("/exchanges", middleware.JWT(authService))
		exchanges.POST("", exchangeHandler.Create)
		exchanges.GET("/pool", exchangeHandler.Pool)
		exchanges.GET("/queue", middleware.RBAC(models.RoleManager, models.RoleAdmin), exchangeHandler.Queue)
		exchanges.GET("/mine", exchangeHandler.Mine)
		exchanges.GET("/stats", middleware.RBAC(models.RoleManager, models.RoleAdmin), exchangeHandler.Stats)
		exchanges.GET("/export", middleware.RBAC(models.RoleManager, models.RoleAdmin), exchangeHandler.Export)
		exchanges.GET("/:id", exchangeHandler.Get)
		exchanges.POST("/:id/claim", exchangeHandler.Claim)
		exchanges.POST("/:id/decline", exchangeHandler.Decline)
		exchanges.POST("/:id/approve", middleware.RBAC(models.RoleManager, models.RoleAdmin), exchangeHandler.Approve)
		exchanges.POST("/:id/reject", middleware.RBAC(models.RoleManager, models.RoleAdmin), exchangeHandler.Reject)
		exchanges.POST("/:id/cancel", exchangeHandler.Cancel)
		exchanges.POST("/:id/complete", middleware.RBAC(models.RoleManager, models.RoleAdmin), exchangeHandler.Complete)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
