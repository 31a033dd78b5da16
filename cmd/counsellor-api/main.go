package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/guidexpert/counsellor-api/api/swagger"
	"github.com/guidexpert/counsellor-api/internal/handler"
	"github.com/guidexpert/counsellor-api/internal/middleware"
	"github.com/guidexpert/counsellor-api/internal/models"
	"github.com/guidexpert/counsellor-api/internal/repository"
	"github.com/guidexpert/counsellor-api/internal/service"
	"github.com/guidexpert/counsellor-api/pkg/cache"
	"github.com/guidexpert/counsellor-api/pkg/config"
	"github.com/guidexpert/counsellor-api/pkg/database"
	"github.com/guidexpert/counsellor-api/pkg/jobs"
	"github.com/guidexpert/counsellor-api/pkg/logger"
	corsmiddleware "github.com/guidexpert/counsellor-api/pkg/middleware/cors"
	reqidmiddleware "github.com/guidexpert/counsellor-api/pkg/middleware/requestid"
	"github.com/guidexpert/counsellor-api/pkg/storage"
)

// @title GuideXpert Counsellor API
// @version 1.0.0
// @description Student directory and reporting backend for the counsellor portal
// @BasePath /api/v1
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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	if cfg.Database.RunMigrations {
		if err := database.Migrate(ctx, db); err != nil {
			logr.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	var redisClient *redis.Client
	if cfg.Cache.Enabled {
		redisClient, err = cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Warn("redis unavailable, list cache disabled", zap.Error(err))
			redisClient = nil
		}
	}

	validate := validator.New()

	userRepo := repository.NewUserRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	profileRepo := repository.NewProfileRepository(db)
	reportRepo := repository.NewReportRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             cfg.JWT.Issuer,
	})
	metricsSvc := service.NewMetricsService()
	studentSvc := service.NewStudentService(studentRepo, cacheRepo, metricsSvc, validate, logr, cfg.Cache.ListTTL)
	profileSvc := service.NewProfileService(profileRepo, validate, logr, cfg.Referral.PublicBaseURL)

	var reportSvc *service.ReportService
	var reportQueue *jobs.Queue
	if cfg.Reports.Enabled {
		store, err := storage.NewLocalStorage(cfg.Reports.StorageDir)
		if err != nil {
			logr.Fatal("failed to init report storage", zap.Error(err))
		}
		signer := storage.NewSignedURLSigner(cfg.Reports.SignedURLSecret, cfg.Reports.SignedURLTTL)

		reportSvc = service.NewReportService(reportRepo, studentRepo, nil, store, signer, logr, service.ReportServiceConfig{
			APIPrefix: cfg.APIPrefix,
			ResultTTL: cfg.Reports.SignedURLTTL,
		})
		reportQueue = jobs.NewQueue("reports", reportSvc.Process, jobs.QueueConfig{
			Workers:    cfg.Reports.WorkerConcurrency,
			MaxRetries: cfg.Reports.WorkerRetries,
			Logger:     logr,
		})
		reportSvc.SetQueue(reportQueue)
		reportQueue.Start(ctx)
		defer reportQueue.Stop()

		if err := reportSvc.RecoverQueued(ctx); err != nil {
			logr.Warn("failed to recover queued reports", zap.Error(err))
		}
		go cleanupReports(ctx, store, cfg.Reports, logr)
	}

	authHandler := handler.NewAuthHandler(authSvc)
	studentHandler := handler.NewStudentHandler(studentSvc)
	profileHandler := handler.NewProfileHandler(profileSvc)
	healthHandler := handler.NewHealthHandler(db, metricsSvc)
	var reportHandler *handler.ReportHandler
	if reportSvc != nil {
		reportHandler = handler.NewReportHandler(reportSvc)
	}

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", healthHandler.Health)
	r.GET("/ready", healthHandler.Ready)
	r.GET("/metrics", healthHandler.Metrics)
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	auth.POST("/login", authHandler.Login)
	auth.POST("/refresh", authHandler.Refresh)
	auth.POST("/logout", middleware.JWT(authSvc), authHandler.Logout)
	auth.POST("/password", middleware.JWT(authSvc), authHandler.ChangePassword)
	auth.POST("/register", middleware.JWT(authSvc), middleware.RequireRoles(models.RoleAdmin), authHandler.Register)

	counsellor := api.Group("/counsellor")
	counsellor.Use(middleware.JWT(authSvc), middleware.RequireRoles(models.RoleAdmin, models.RoleCounsellor))

	students := counsellor.Group("/students")
	students.GET("", studentHandler.List)
	students.POST("", studentHandler.Create)
	students.GET("/export", studentHandler.Export)
	students.PATCH("/bulk/status", studentHandler.BulkStatus)
	students.DELETE("/bulk", studentHandler.BulkDelete)
	students.GET("/:id", studentHandler.Get)
	students.PATCH("/:id", studentHandler.Update)
	students.DELETE("/:id", studentHandler.Delete)
	students.POST("/:id/restore", studentHandler.Restore)

	counsellor.GET("/profile", profileHandler.Get)
	counsellor.PUT("/profile", profileHandler.Update)

	if reportHandler != nil {
		counsellor.POST("/reports", reportHandler.Create)
		counsellor.GET("/reports", reportHandler.List)
		counsellor.GET("/reports/:id", reportHandler.Get)
		// download is authenticated by its signed token, not the JWT
		api.GET("/counsellor/reports/:id/download", reportHandler.Download)
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: r,
	}

	go func() {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
}

func cleanupReports(ctx context.Context, store *storage.LocalStorage, cfg config.ReportsConfig, logr *zap.Logger) {
	ticker := time.NewTicker(cfg.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deleted, err := store.CleanupOlderThan(cfg.SignedURLTTL)
			if err != nil {
				logr.Warn("report cleanup failed", zap.Error(err))
				continue
			}
			if len(deleted) > 0 {
				logr.Info("expired reports removed", zap.Int("count", len(deleted)))
			}
		}
	}
}
