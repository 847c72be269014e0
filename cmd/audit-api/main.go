package main

import (
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/studyflow/audit-api/api/swagger"
	"github.com/studyflow/audit-api/internal/handler"
	"github.com/studyflow/audit-api/internal/middleware"
	"github.com/studyflow/audit-api/internal/repository"
	"github.com/studyflow/audit-api/internal/service"
	"github.com/studyflow/audit-api/pkg/cache"
	"github.com/studyflow/audit-api/pkg/config"
	"github.com/studyflow/audit-api/pkg/database"
	"github.com/studyflow/audit-api/pkg/logger"
	corsmiddleware "github.com/studyflow/audit-api/pkg/middleware/cors"
	reqidmiddleware "github.com/studyflow/audit-api/pkg/middleware/requestid"
)

// @title StudyFlow Audit API
// @version 0.1.0
// @description Degree requirement resolution service for the StudyFlow scheduler
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

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
		logr.Sugar().Fatalw("failed to connect database", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, quick progress cache disabled", zap.Error(err))
		redisClient = nil
	}

	catalogRepo := repository.NewCatalogRepository(db)
	ledgerRepo := repository.NewLedgerRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	snapshotRepo := repository.NewSnapshotRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	metricsSvc := service.NewMetricsService()
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Audit.QuickProgressTTL, logr)
	engine := service.NewAuditService(catalogRepo, ledgerRepo, enrollmentRepo, nil, logr,
		cfg.Audit.RecommendedLimit, cfg.Audit.RemainingPreview)
	auditSvc := service.NewAuditCacheService(engine, snapshotRepo, catalogRepo, ledgerRepo, cacheSvc, metricsSvc, logr)
	catalogSvc := service.NewCatalogService(catalogRepo, enrollmentRepo, logr)
	exportSvc := service.NewExportService(auditSvc, logr)
	tokenSvc := service.NewTokenService(cfg.JWT.Secret)

	auditHandler := handler.NewAuditHandler(auditSvc, exportSvc)
	catalogHandler := handler.NewCatalogHandler(catalogSvc)
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
	api.Use(middleware.JWT(tokenSvc))
	{
		audits := api.Group("/audits")
		audits.POST("/run", auditHandler.Run)
		audits.GET("/cached", auditHandler.Cached)
		audits.POST("/what-if", auditHandler.WhatIf)
		audits.DELETE("/cache", auditHandler.Invalidate)
		audits.GET("/progress", auditHandler.Progress)
		audits.GET("/export", auditHandler.Export)

		api.GET("/programs", catalogHandler.ListPrograms)
		api.GET("/programs/:id", catalogHandler.GetProgram)
		api.GET("/enrollments", catalogHandler.ListEnrollments)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
