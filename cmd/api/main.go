package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/guardianlink/guardianlink-api/api/swagger"
	"github.com/guardianlink/guardianlink-api/internal/handler"
	"github.com/guardianlink/guardianlink-api/internal/middleware"
	"github.com/guardianlink/guardianlink-api/internal/models"
	"github.com/guardianlink/guardianlink-api/internal/repository"
	"github.com/guardianlink/guardianlink-api/internal/service"
	"github.com/guardianlink/guardianlink-api/pkg/cache"
	"github.com/guardianlink/guardianlink-api/pkg/config"
	"github.com/guardianlink/guardianlink-api/pkg/database"
	"github.com/guardianlink/guardianlink-api/pkg/logger"
	corsmiddleware "github.com/guardianlink/guardianlink-api/pkg/middleware/cors"
	reqidmiddleware "github.com/guardianlink/guardianlink-api/pkg/middleware/requestid"
)

// @title GuardianLink API
// @version 1.0.0
// @description School management API: assignment request workflow, rosters, attendance, marks and fees
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
		logr.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		// Redis only backs the dashboard cache; the API works without it.
		logr.Warn("redis unavailable, continuing without cache", zap.Error(err))
		redisClient = nil
	}

	validate := validator.New()

	// Repositories.
	userRepo := repository.NewUserRepository(db)
	teacherRepo := repository.NewTeacherRepository(db)
	roleRequestRepo := repository.NewRoleRequestRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	attendanceRepo := repository.NewAttendanceRepository(db)
	markRepo := repository.NewMarkRepository(db)
	feeRepo := repository.NewFeeRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	// Services.
	metricsSvc := service.NewMetricsService()
	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "guardianlink-api",
	})
	userSvc := service.NewUserService(userRepo, validate, logr)
	teacherSvc := service.NewTeacherService(teacherRepo, validate, logr)
	roleRequestSvc := service.NewRoleRequestService(roleRequestRepo, teacherSvc, userRepo, validate, logr)
	studentSvc := service.NewStudentService(studentRepo, validate, logr)
	attendanceSvc := service.NewAttendanceService(attendanceRepo, studentRepo, teacherSvc, validate, logr)
	markSvc := service.NewMarkService(markRepo, studentRepo, teacherSvc, validate, logr)
	feeSvc := service.NewFeeService(feeRepo, studentRepo, validate, logr)
	dashboardSvc := service.NewDashboardService(studentRepo, teacherRepo, roleRequestRepo, feeRepo,
		teacherSvc, cacheRepo, metricsSvc, cfg.Dashboard.CacheTTL, logr)
	// Mutations that move the admin counters drop the cached summary so it
	// never serves stale numbers for a full TTL.
	roleRequestSvc.SetSummaryInvalidator(dashboardSvc)
	teacherSvc.SetSummaryInvalidator(dashboardSvc)
	studentSvc.SetSummaryInvalidator(dashboardSvc)
	feeSvc.SetSummaryInvalidator(dashboardSvc)
	exportSvc := service.NewExportService(teacherRepo, nil, nil, logr)
	importSvc := service.NewImportService(studentSvc, teacherSvc, metricsSvc, service.ImportConfig{
		WorkerConcurrency: cfg.Imports.WorkerConcurrency,
		WorkerRetries:     cfg.Imports.WorkerRetries,
		MaxRows:           cfg.Imports.MaxRows,
	}, logr)

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	importSvc.Start(rootCtx)
	defer importSvc.Stop()

	// Handlers.
	authHandler := handler.NewAuthHandler(authSvc)
	userHandler := handler.NewUserHandler(userSvc)
	teacherHandler := handler.NewTeacherHandler(teacherSvc, exportSvc)
	roleRequestHandler := handler.NewRoleRequestHandler(roleRequestSvc, metricsSvc)
	studentHandler := handler.NewStudentHandler(studentSvc)
	attendanceHandler := handler.NewAttendanceHandler(attendanceSvc)
	markHandler := handler.NewMarkHandler(markSvc)
	feeHandler := handler.NewFeeHandler(feeSvc)
	dashboardHandler := handler.NewDashboardHandler(dashboardSvc)
	importHandler := handler.NewImportHandler(importSvc)
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
	r.GET("/ready", metricsHandler.Health)
	r.GET("/metrics", metricsHandler.Prometheus)
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	{
		auth.POST("/login", authHandler.Login)
		auth.POST("/refresh", authHandler.Refresh)
		auth.POST("/logout", middleware.JWT(authSvc), authHandler.Logout)
		auth.POST("/change-password", middleware.JWT(authSvc), authHandler.ChangePassword)
		auth.GET("/me", middleware.JWT(authSvc), authHandler.Me)
	}

	secured := api.Group("")
	secured.Use(middleware.JWT(authSvc))

	adminOnly := middleware.RequireRoles(models.RoleAdmin)
	staff := middleware.RequireRoles(models.RoleAdmin, models.RoleTeacher)

	secured.GET("/departments", roleRequestHandler.Departments)

	requests := secured.Group("/role-requests")
	{
		requests.POST("", middleware.RequireRoles(models.RoleTeacher), roleRequestHandler.Submit)
		requests.GET("", staff, roleRequestHandler.List)
		requests.GET("/:id", staff, roleRequestHandler.Get)
		requests.POST("/:id/approve", adminOnly, roleRequestHandler.Approve)
		requests.POST("/:id/reject", adminOnly, roleRequestHandler.Reject)
		requests.DELETE("/:id", staff, roleRequestHandler.Delete)
	}

	teachers := secured.Group("/teachers")
	{
		teachers.GET("", staff, teacherHandler.List)
		teachers.GET("/me", middleware.RequireRoles(models.RoleTeacher), teacherHandler.Me)
		teachers.GET("/export", adminOnly, teacherHandler.ExportRoster)
		teachers.GET("/:id", staff, teacherHandler.Get)
		teachers.POST("", adminOnly, teacherHandler.Create)
		teachers.PUT("/:id", adminOnly, teacherHandler.Update)
		teachers.DELETE("/:id", adminOnly, teacherHandler.Deactivate)
	}

	students := secured.Group("/students")
	{
		students.GET("", staff, studentHandler.List)
		students.GET("/:id", staff, studentHandler.Get)
		students.POST("", adminOnly, studentHandler.Create)
		students.PUT("/:id", adminOnly, studentHandler.Update)
		students.DELETE("/:id", adminOnly, studentHandler.Delete)
	}

	attendance := secured.Group("/attendance")
	{
		attendance.POST("", staff, attendanceHandler.Record)
		attendance.GET("", staff, attendanceHandler.List)
	}

	marks := secured.Group("/marks")
	{
		marks.POST("", staff, markHandler.Enter)
		marks.GET("", staff, markHandler.List)
	}

	fees := secured.Group("/fees")
	{
		fees.PUT("", adminOnly, feeHandler.Upsert)
		fees.GET("", middleware.RequireRoles(models.RoleAdmin, models.RoleTeacher, models.RoleParent), feeHandler.List)
	}

	dashboard := secured.Group("/dashboard")
	{
		dashboard.GET("/admin", adminOnly, dashboardHandler.AdminSummary)
		dashboard.GET("/teacher", middleware.RequireRoles(models.RoleTeacher), dashboardHandler.TeacherSummary)
	}

	imports := secured.Group("/imports")
	{
		imports.POST("", adminOnly, importHandler.Submit)
		imports.GET("/:id", adminOnly, importHandler.Get)
	}

	users := secured.Group("/users")
	{
		users.GET("", adminOnly, userHandler.List)
		users.GET("/:id", adminOnly, userHandler.Get)
		users.POST("", adminOnly, userHandler.Create)
		users.PUT("/:id", adminOnly, userHandler.Update)
		users.DELETE("/:id", adminOnly, userHandler.Deactivate)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Info("server starting", zap.String("addr", addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Fatal("server failed", zap.Error(err))
		}
	}()

	<-rootCtx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
}
