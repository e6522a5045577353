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
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/src-permit-api/api/swagger"
	"github.com/noah-isme/src-permit-api/internal/handler"
	"github.com/noah-isme/src-permit-api/internal/middleware"
	"github.com/noah-isme/src-permit-api/internal/models"
	"github.com/noah-isme/src-permit-api/internal/repository"
	"github.com/noah-isme/src-permit-api/internal/service"
	"github.com/noah-isme/src-permit-api/pkg/cache"
	"github.com/noah-isme/src-permit-api/pkg/config"
	"github.com/noah-isme/src-permit-api/pkg/credential"
	"github.com/noah-isme/src-permit-api/pkg/database"
	"github.com/noah-isme/src-permit-api/pkg/export"
	"github.com/noah-isme/src-permit-api/pkg/logger"
	"github.com/noah-isme/src-permit-api/pkg/mailer"
	corsmiddleware "github.com/noah-isme/src-permit-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/src-permit-api/pkg/middleware/requestid"
	"github.com/noah-isme/src-permit-api/pkg/permitcode"
	"github.com/noah-isme/src-permit-api/pkg/qrcode"
)

// @title SRC Permit API
// @version 1.0.0
// @description Issues, verifies and revokes student representative council permits.
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

type handlers struct {
	auth    *handler.AuthHandler
	users   *handler.UserHandler
	student *handler.StudentHandler
	permits *handler.PermitHandler
	metrics *handler.MetricsHandler
}

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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect database", zap.Error(err))
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, caching disabled", zap.Error(err))
		redisClient = nil
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	validate := validator.New()
	hasher := credential.NewHasher(credential.Cost)
	qr := qrcode.NewRenderer(cfg.Permits.QRSize)
	slips := export.NewPDFExporter()
	tables := export.NewCSVExporter()

	permitRepo := repository.NewPermitRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	userRepo := repository.NewUserRepository(db)
	auditRepo := repository.NewAuditRepository(db)

	metricsSvc := service.NewMetricsService()
	var cacheSvc *service.CacheService
	if redisClient != nil {
		cacheSvc = service.NewCacheService(repository.NewCacheRepository(redisClient, "src-permit"), metricsSvc, cfg.Permits.StatsCacheTTL, logr, cfg.Redis.Enabled)
	}

	notifier := service.NewNotificationService(mailer.NewSMTP(cfg.SMTP), qr, slips, cfg.Notifications, metricsSvc, logr)
	notifier.Start(ctx)
	defer notifier.Stop()

	permitSvc := service.NewPermitService(
		permitRepo,
		studentRepo,
		auditRepo,
		permitcode.NewGenerator(nil),
		hasher,
		qr,
		cfg.Permits,
		validate,
		logr,
		service.PermitServiceDeps{
			Cache:    cacheSvc,
			Metrics:  metricsSvc,
			Notifier: notifier,
			Slips:    slips,
			CSV:      tables,
		},
	)
	authSvc := service.NewAuthService(userRepo, auditRepo, hasher, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             cfg.JWT.Issuer,
	})
	userSvc := service.NewUserService(userRepo, auditRepo, hasher, validate, logr)
	studentSvc := service.NewStudentService(studentRepo, auditRepo, tables, validate, logr)

	h := handlers{
		auth:    handler.NewAuthHandler(authSvc),
		users:   handler.NewUserHandler(userSvc),
		student: handler.NewStudentHandler(studentSvc),
		permits: handler.NewPermitHandler(permitSvc),
		metrics: handler.NewMetricsHandler(metricsSvc, db),
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", h.metrics.Health)
	r.GET("/metrics", h.metrics.Prometheus)
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	registerRoutes(r.Group(cfg.APIPrefix), h, authSvc, auditRepo)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
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

func registerRoutes(api *gin.RouterGroup, h handlers, tokens middleware.TokenValidator, audit middleware.AuditWriter) {
	staff := middleware.RequireRoles(models.RoleSuperAdmin, models.RoleAdmin, models.RoleStaff)
	admins := middleware.RequireRoles(models.RoleSuperAdmin, models.RoleAdmin)

	auth := api.Group("/auth")
	auth.POST("/login", h.auth.Login)
	auth.POST("/refresh", h.auth.Refresh)

	authed := auth.Group("", middleware.JWT(tokens))
	authed.POST("/logout", h.auth.Logout)
	authed.POST("/change-password", h.auth.ChangePassword)
	authed.GET("/me", h.auth.Me)

	// QR links resolve here without a session.
	api.POST("/permits/verify", h.permits.Verify)
	api.GET("/permits/verify/:code", h.permits.VerifyByPath)

	protected := api.Group("", middleware.JWT(tokens))

	permits := protected.Group("/permits", staff)
	permits.POST("", h.permits.Create)
	permits.GET("", h.permits.List)
	permits.GET("/stats", h.permits.Stats)
	permits.GET("/export", h.permits.Export)
	permits.GET("/:id", h.permits.Get)
	permits.GET("/:id/validity", h.permits.Validity)
	permits.GET("/:id/slip", h.permits.Slip)
	permits.POST("/:id/revoke", admins, h.permits.Revoke)

	students := protected.Group("/students", staff)
	students.GET("", h.student.List)
	students.GET("/:id", h.student.Get)
	students.POST("", middleware.Audit(audit, models.AuditActionStudentCreate, "student"), h.student.Create)
	students.POST("/import", h.student.Import)

	users := protected.Group("/users")
	users.GET("", admins, h.users.List)
	users.POST("", admins, h.users.Create)
	users.GET("/:id", middleware.RBAC(string(models.RoleSuperAdmin), string(models.RoleAdmin), "SELF"), h.users.Get)
	users.PUT("/:id", admins, h.users.Update)
	users.DELETE("/:id", admins, h.users.Delete)
}
