package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/fgc-kenya/admissions-api/api/swagger"
	"github.com/fgc-kenya/admissions-api/internal/handler"
	"github.com/fgc-kenya/admissions-api/internal/middleware"
	"github.com/fgc-kenya/admissions-api/internal/repository"
	"github.com/fgc-kenya/admissions-api/internal/service"
	"github.com/fgc-kenya/admissions-api/pkg/cache"
	"github.com/fgc-kenya/admissions-api/pkg/config"
	"github.com/fgc-kenya/admissions-api/pkg/database"
	"github.com/fgc-kenya/admissions-api/pkg/jobs"
	"github.com/fgc-kenya/admissions-api/pkg/logger"
	"github.com/fgc-kenya/admissions-api/pkg/mailer"
	corsmiddleware "github.com/fgc-kenya/admissions-api/pkg/middleware/cors"
	reqidmiddleware "github.com/fgc-kenya/admissions-api/pkg/middleware/requestid"

	"github.com/go-playground/validator/v10"
)

// @title FGC Kenya Admissions API
// @version 1.0.0
// @description Membership, authentication and admissions workflow for FIRST Global Team Kenya
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
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to redis", "error", err)
	}
	defer redisClient.Close()

	validate := validator.New()
	if err := service.RegisterValidators(validate); err != nil {
		logr.Sugar().Fatalw("failed to register validators", "error", err)
	}

	userRepo := repository.NewUserRepository(db)
	otpRepo := repository.NewOTPRepository(db)
	sessionRepo := repository.NewSessionRepository(db)
	applicationRepo := repository.NewApplicationRepository(db)
	cohortRepo := repository.NewCohortRepository(db)
	auditRepo := repository.NewAuditRepository(db)

	metricsSvc := service.NewMetricsService()

	notificationSvc := service.NewNotificationService(
		mailer.NewSMTP(cfg.SMTP, cfg.Mail),
		cfg.Mail.AdmissionsInbox,
		jobs.QueueConfig{
			Workers:    cfg.Mail.Workers,
			BufferSize: 256,
			MaxRetries: cfg.Mail.MaxRetries,
			RetryDelay: cfg.Mail.RetryDelay,
			Logger:     logr,
		},
		metricsSvc,
		logr,
	)

	otpSvc := service.NewOTPService(otpRepo, redisClient, notificationSvc, metricsSvc, logr, cfg.OTP)
	authSvc := service.NewAuthService(userRepo, sessionRepo, otpSvc, auditRepo, validate, metricsSvc, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.AccessExpiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             cfg.JWT.Issuer,
	})
	userSvc := service.NewUserService(userRepo, sessionRepo, auditRepo, validate, logr)
	applicationSvc := service.NewApplicationService(applicationRepo, userRepo, auditRepo, notificationSvc, validate, metricsSvc, logr)
	cohortSvc := service.NewCohortService(cohortRepo, userRepo, auditRepo, validate, logr)
	auditSvc := service.NewAuditService(auditRepo, logr)
	exportSvc := service.NewExportService(applicationRepo, userRepo, logr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	notificationSvc.Start(ctx)
	defer notificationSvc.Stop()

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
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
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "database unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	r.GET("/metrics", gin.WrapH(metricsSvc.Handler()))

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	router := &handler.Router{
		Auth:         handler.NewAuthHandler(authSvc, cfg.Cookies, cfg.JWT.AccessExpiration, cfg.JWT.RefreshExpiration),
		Users:        handler.NewUserHandler(userSvc),
		Applications: handler.NewApplicationHandler(applicationSvc),
		Cohorts:      handler.NewCohortHandler(cohortSvc),
		Audit:        handler.NewAuditHandler(auditSvc),
		Exports:      handler.NewExportHandler(exportSvc),
		AuthService:  authSvc,
		RateLimiter:  middleware.NewRateLimiter(redisClient, cfg.RateLimit, logr),
		Config:       cfg,
	}
	router.Register(r)

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}
