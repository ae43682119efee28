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

	_ "github.com/noah-isme/sgpm-api/api/swagger"
	"github.com/noah-isme/sgpm-api/internal/handler"
	"github.com/noah-isme/sgpm-api/internal/middleware"
	"github.com/noah-isme/sgpm-api/internal/models"
	"github.com/noah-isme/sgpm-api/internal/repository"
	"github.com/noah-isme/sgpm-api/internal/service"
	"github.com/noah-isme/sgpm-api/pkg/cache"
	"github.com/noah-isme/sgpm-api/pkg/config"
	"github.com/noah-isme/sgpm-api/pkg/database"
	"github.com/noah-isme/sgpm-api/pkg/jobs"
	"github.com/noah-isme/sgpm-api/pkg/logger"
	"github.com/noah-isme/sgpm-api/pkg/mailer"
	corsmiddleware "github.com/noah-isme/sgpm-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/sgpm-api/pkg/middleware/requestid"
	"github.com/noah-isme/sgpm-api/pkg/storage"
)

// @title SGPM API
// @version 1.0.0
// @description Improvement plan workflow for faculty staff
// @BasePath /api
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
		// Dashboards fall back to direct queries when redis is unavailable.
		logr.Sugar().Warnw("redis unavailable, caching disabled", "error", err)
		redisClient = nil
	}

	fileStore, err := storage.NewLocalStorage(cfg.Evidence.StorageDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to init evidence storage", "error", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	userRepo := repository.NewUserRepository(db)
	schoolRepo := repository.NewSchoolRepository(db)
	planRepo := repository.NewPlanRepository(db)
	actionRepo := repository.NewActionRepository(db)
	evidenceRepo := repository.NewEvidenceRepository(db)
	incidentRepo := repository.NewIncidentRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	validate := validator.New()
	metricsSvc := service.NewMetricsService()
	auditSvc := service.NewAuditService(auditRepo, logr)

	smtpMailer := mailer.NewSMTP(cfg.SMTP)
	var notificationSvc *service.NotificationService
	emailQueue := jobs.NewQueue("notification-email", func(ctx context.Context, job jobs.Job) error {
		return notificationSvc.HandleEmailJob(ctx, job)
	}, jobs.QueueConfig{
		Workers:    cfg.Notifications.QueueWorkers,
		MaxRetries: cfg.Notifications.QueueRetries,
		Logger:     logr,
	})
	notificationSvc = service.NewNotificationService(notificationRepo, userRepo, smtpMailer, emailQueue, cfg.Notifications.EmailEnabled, logr)
	emailQueue.Start(ctx)
	defer emailQueue.Stop()

	authSvc := service.NewAuthService(userRepo, auditSvc, notificationSvc, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "sgpm-api",
	})
	planSvc := service.NewPlanService(planRepo, userRepo, schoolRepo, actionRepo, incidentRepo, auditSvc, notificationSvc, cacheRepo, validate, logr)
	actionSvc := service.NewActionService(actionRepo, planRepo, cfg.Actions.StrictFlow, validate, logr)
	signer := storage.NewSignedURLSigner(cfg.Evidence.SignedURLSecret, cfg.Evidence.SignedURLTTL)
	evidenceSvc := service.NewEvidenceService(evidenceRepo, actionRepo, planRepo, fileStore, signer, notificationSvc, service.EvidenceLimits{
		MaxFileSizeBytes: cfg.Evidence.MaxFileSizeBytes,
		AllowedMIMEs:     cfg.Evidence.AllowedMIMEs,
	}, logr)
	incidentSvc := service.NewIncidentService(incidentRepo, userRepo, auditSvc, validate, logr)
	userSvc := service.NewUserService(userRepo, auditSvc, validate, logr)
	schoolSvc := service.NewSchoolService(schoolRepo, validate, logr)
	dashboardSvc := service.NewDashboardService(planRepo, userRepo, schoolRepo, cacheRepo, metricsSvc, cfg.Dashboard.CacheTTL, logr)

	authHandler := handler.NewAuthHandler(authSvc)
	planHandler := handler.NewPlanHandler(planSvc)
	actionHandler := handler.NewActionHandler(actionSvc)
	evidenceHandler := handler.NewEvidenceHandler(evidenceSvc)
	incidentHandler := handler.NewIncidentHandler(incidentSvc)
	notificationHandler := handler.NewNotificationHandler(notificationSvc)
	auditHandler := handler.NewAuditHandler(auditSvc)
	userHandler := handler.NewUserHandler(userSvc)
	schoolHandler := handler.NewSchoolHandler(schoolSvc)
	dashboardHandler := handler.NewDashboardHandler(dashboardSvc, metricsSvc)

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
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	r.GET("/metrics", gin.WrapH(metricsSvc.Handler()))

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	{
		auth.POST("/login", authHandler.Login)
		auth.POST("/refresh", authHandler.Refresh)

		authed := auth.Group("", middleware.JWT(authSvc))
		authed.POST("/logout", authHandler.Logout)
		authed.POST("/change-password", authHandler.ChangePassword)
		authed.GET("/me", authHandler.Me)
	}

	// Signed download links carry their own credential.
	api.GET("/evidencias/descargar", evidenceHandler.Download)

	protected := api.Group("", middleware.JWT(authSvc))

	planes := protected.Group("/planes")
	{
		planes.GET("", planHandler.List)
		planes.GET("/:id", planHandler.Get)
		planes.POST("", middleware.RequireRoles(models.RoleDirector, models.RoleAdmin), planHandler.Create)
		planes.POST("/:id/decision", middleware.RequireRoles(models.RoleDean), planHandler.DeanDecision)
		planes.POST("/:id/reenviar", middleware.RequireRoles(models.RoleDirector), planHandler.Resubmit)
		planes.POST("/:id/cerrar", middleware.RequireRoles(models.RoleDirector, models.RoleAdmin), planHandler.Close)
		planes.GET("/:id/aprobaciones", planHandler.ListApprovals)
		planes.POST("/:id/aprobaciones", middleware.RequireRoles(models.RoleAdmin), planHandler.RecordApproval)
		planes.GET("/:id/acciones", actionHandler.ListByPlan)
		planes.POST("/:id/acciones", actionHandler.Create)
	}

	protected.DELETE("/aprobaciones/:approvalId", middleware.RequireRoles(models.RoleAdmin), planHandler.DeleteApproval)

	acciones := protected.Group("/acciones")
	{
		acciones.PUT("/:actionId/estado", actionHandler.UpdateState)
		acciones.GET("/:actionId/evidencias", evidenceHandler.ListByAction)
		acciones.POST("/:actionId/evidencias", evidenceHandler.Upload)
	}

	protected.GET("/evidencias/:id/descarga", evidenceHandler.DownloadURL)

	incidencias := protected.Group("/incidencias")
	{
		incidencias.GET("", incidentHandler.List)
		incidencias.GET("/:id", incidentHandler.Get)
		incidencias.POST("", middleware.RequireRoles(models.RoleDirector, models.RoleAdmin), incidentHandler.Create)
		incidencias.PUT("/:id/estado", middleware.RequireRoles(models.RoleDirector, models.RoleAdmin), incidentHandler.UpdateState)
	}

	notificaciones := protected.Group("/notificaciones")
	{
		notificaciones.GET("", notificationHandler.List)
		notificaciones.PUT("/leidas", notificationHandler.MarkAllRead)
		notificaciones.PUT("/:id/leida", notificationHandler.MarkRead)
	}

	auditoria := protected.Group("/auditoria", middleware.RequireRoles(models.RoleAdmin))
	{
		auditoria.GET("", auditHandler.Query)
		auditoria.GET("/estadisticas", auditHandler.Statistics)
	}

	usuarios := protected.Group("/usuarios")
	{
		usuarios.GET("", middleware.RequireRoles(models.RoleAdmin, models.RoleDean, models.RoleDirector), userHandler.List)
		usuarios.GET("/:id", middleware.RBAC(string(models.RoleAdmin), "SELF"), userHandler.Get)
		usuarios.POST("", middleware.RequireRoles(models.RoleAdmin), userHandler.Create)
		usuarios.PUT("/:id", middleware.RequireRoles(models.RoleAdmin), userHandler.Update)
		usuarios.DELETE("/:id", middleware.RequireRoles(models.RoleAdmin), userHandler.Delete)
	}

	escuelas := protected.Group("/escuelas")
	{
		escuelas.GET("", schoolHandler.List)
		escuelas.GET("/:id", schoolHandler.Get)
		escuelas.POST("", middleware.RequireRoles(models.RoleAdmin), schoolHandler.Create)
		escuelas.PUT("/:id", middleware.RequireRoles(models.RoleAdmin), schoolHandler.Update)
	}

	dashboard := protected.Group("/dashboard")
	{
		dashboard.GET("", dashboardHandler.Summary)
		dashboard.GET("/reporte", middleware.RequireRoles(models.RoleDean), dashboardHandler.FacultyReport)
		dashboard.GET("/reporte/exportar", middleware.RequireRoles(models.RoleDean), dashboardHandler.ExportFacultyReport)
		dashboard.GET("/sistema", middleware.RequireRoles(models.RoleAdmin), dashboardHandler.SystemMetrics)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Errorw("server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("shutdown incomplete", "error", err)
	}
	if err := cacheRepo.Close(); err != nil {
		logr.Sugar().Warnw("redis close failed", "error", err)
	}
}
