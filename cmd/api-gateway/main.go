package main

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/regenworks/regenworks-api/api/swagger"
	"github.com/regenworks/regenworks-api/internal/handler"
	"github.com/regenworks/regenworks-api/internal/middleware"
	"github.com/regenworks/regenworks-api/internal/repository"
	"github.com/regenworks/regenworks-api/internal/service"
	"github.com/regenworks/regenworks-api/pkg/cache"
	"github.com/regenworks/regenworks-api/pkg/config"
	"github.com/regenworks/regenworks-api/pkg/database"
	"github.com/regenworks/regenworks-api/pkg/jobs"
	"github.com/regenworks/regenworks-api/pkg/logger"
	corsmiddleware "github.com/regenworks/regenworks-api/pkg/middleware/cors"
	reqidmiddleware "github.com/regenworks/regenworks-api/pkg/middleware/requestid"
)

// @title RegenWorks API
// @version 1.0.0
// @description Waste recycling ledger with per-project hash-linked provenance chains
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

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to redis", "error", err)
	}
	defer redisClient.Close()

	metricsSvc := service.NewMetricsService()

	// repositories
	ledgerRepo := repository.NewLedgerRepository(db, cfg.Ledger.AppendRetries, metricsSvc)
	flowRepo := repository.NewFlowRepository(db, metricsSvc)
	projectRepo := repository.NewProjectRepository(db)
	materialRepo := repository.NewMaterialRepository(db)
	userRepo := repository.NewUserRepository(db)
	mirrorRepo := repository.NewMirrorRepository(redisClient, cfg.Mirror.Namespace)
	cacheRepo := repository.NewCacheRepository(redisClient, cfg.Ledger.ChainCacheTTL)

	// services
	mirrorSvc := service.NewMirrorService(mirrorRepo, cfg.Mirror.Enabled, jobs.QueueConfig{
		Workers:    cfg.Mirror.Workers,
		BufferSize: cfg.Mirror.BufferSize,
		MaxRetries: cfg.Mirror.MaxRetries,
		RetryDelay: cfg.Mirror.RetryDelay,
		Logger:     logr,
	}, metricsSvc, logr)
	ledgerSvc := service.NewLedgerService(ledgerRepo, projectRepo, flowRepo, cacheRepo, mirrorSvc, logr)
	flowSvc := service.NewMaterialFlowService(flowRepo, materialRepo, cacheRepo, mirrorSvc, service.MaterialFlowConfig{
		BatchThresholdGrams:    cfg.Ledger.BatchThresholdGrams,
		BatchWindow:            cfg.Ledger.BatchWindow,
		DefaultItemWeightGrams: cfg.Ledger.DefaultItemWeightGrams,
		ProjectStartFraction:   cfg.Ledger.ProjectStartFraction,
		TopContributorFraction: cfg.Ledger.TopContributorFraction,
	}, logr)
	projectSvc := service.NewProjectService(projectRepo, logr)
	authSvc := service.NewAuthService(userRepo, nil, logr, service.AuthConfig{
		Secret:     cfg.JWT.Secret,
		Expiration: cfg.JWT.Expiration,
		Issuer:     cfg.JWT.Issuer,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	mirrorSvc.Start(ctx)
	defer mirrorSvc.Stop()

	// handlers
	authHandler := handler.NewAuthHandler(authSvc)
	scanHandler := handler.NewScanHandler(flowSvc, metricsSvc)
	projectHandler := handler.NewProjectHandler(projectSvc)
	ledgerHandler := handler.NewLedgerHandler(ledgerSvc, nil, metricsSvc)
	if cfg.Mirror.Enabled {
		ledgerHandler = handler.NewLedgerHandler(ledgerSvc, mirrorSvc, metricsSvc)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "postgres": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	r.GET("/metrics", gin.WrapH(metricsSvc.Handler()))

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	{
		api.POST("/auth/login", authHandler.Login)

		api.POST("/scans", middleware.JWT(authSvc), scanHandler.Record)
		api.GET("/batches/:batchId", scanHandler.GetBatch)
		api.POST("/batches/:batchId/link", middleware.JWT(authSvc), scanHandler.Link)

		api.GET("/projects", projectHandler.List)
		api.GET("/projects/:projectId", middleware.OptionalJWT(authSvc), projectHandler.Detail)

		api.POST("/projects/:projectId/ledger", middleware.JWT(authSvc), ledgerHandler.Append)
		api.GET("/projects/:projectId/ledger", ledgerHandler.Chain)
		api.GET("/projects/:projectId/ledger/verify", ledgerHandler.Verify)
		api.GET("/projects/:projectId/ledger/export", ledgerHandler.Export)
		api.GET("/projects/:projectId/ledger/mirror", ledgerHandler.Mirror)

		api.GET("/me/contributions/chain", middleware.JWT(authSvc), ledgerHandler.MyContributions)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
