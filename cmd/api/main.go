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
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/gaon-dev/gaon-api/api/swagger"
	"github.com/gaon-dev/gaon-api/internal/handler"
	"github.com/gaon-dev/gaon-api/internal/middleware"
	"github.com/gaon-dev/gaon-api/internal/models"
	"github.com/gaon-dev/gaon-api/internal/repository"
	"github.com/gaon-dev/gaon-api/internal/service"
	"github.com/gaon-dev/gaon-api/pkg/cache"
	"github.com/gaon-dev/gaon-api/pkg/config"
	"github.com/gaon-dev/gaon-api/pkg/database"
	"github.com/gaon-dev/gaon-api/pkg/jobs"
	"github.com/gaon-dev/gaon-api/pkg/logger"
	corsmiddleware "github.com/gaon-dev/gaon-api/pkg/middleware/cors"
	reqidmiddleware "github.com/gaon-dev/gaon-api/pkg/middleware/requestid"
	"github.com/gaon-dev/gaon-api/pkg/storage"
)

// @title Gaon Study Hall API
// @version 1.0.0
// @description Attendance, scheduling and monthly reporting for the study hall
// @BasePath /
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

	location, err := time.LoadLocation(cfg.Attendance.Timezone)
	if err != nil {
		logr.Sugar().Fatalw("invalid timezone", "timezone", cfg.Attendance.Timezone, "error", err)
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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	validate := validator.New()

	attendanceRepo := repository.NewAttendanceRepository(db)
	penaltyRepo := repository.NewPenaltyRepository(db)
	scheduleRepo := repository.NewScheduleRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	userRepo := repository.NewUserRepository(db)
	reportJobRepo := repository.NewReportJobRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	rules := service.NewAttendanceRules(cfg.Attendance.LateGrace, cfg.Attendance.AbsentCutoff)
	metricsSvc := service.NewMetricsService()
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Dashboard.CacheTTL, logr, cfg.Dashboard.Enabled)

	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "gaon-api",
	})
	attendanceSvc := service.NewAttendanceService(attendanceRepo, scheduleRepo, penaltyRepo, rules, location, validate, logr)
	scheduleSvc := service.NewScheduleService(scheduleRepo, validate, logr)
	studentSvc := service.NewStudentService(studentRepo, validate, logr)
	dashboardSvc := service.NewDashboardService(scheduleRepo, attendanceRepo, rules, location, cacheSvc, cfg.Dashboard.CacheTTL, logr)

	var reportSvc *service.ReportService
	if cfg.Reports.Enabled {
		store, err := storage.NewLocalStorage(cfg.Reports.StorageDir)
		if err != nil {
			logr.Sugar().Fatalw("failed to init report storage", "error", err)
		}
		signer := storage.NewSignedURLSigner(cfg.Reports.SignedURLSecret, cfg.Reports.SignedURLTTL)
		reportSvc = service.NewReportService(service.ReportServiceDeps{
			Events:     attendanceRepo,
			Schedules:  scheduleRepo,
			Students:   studentRepo,
			ReportJobs: reportJobRepo,
			Rules:      rules,
			Location:   location,
			Store:      store,
			Signer:     signer,
			Metrics:    metricsSvc,
			Logger:     logr,
		}, jobs.QueueConfig{
			Workers:    cfg.Reports.WorkerConcurrency,
			MaxRetries: cfg.Reports.WorkerRetries,
			Logger:     logr,
		})
		reportSvc.Start(ctx)
		defer reportSvc.Stop()
	}

	if cfg.Sweeper.Enabled {
		sweeper := service.NewAbsenceSweeper(attendanceSvc, cfg.Sweeper.Interval, metricsSvc, logr)
		sweeper.Start(ctx)
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

	metricsHandler := handler.NewMetricsHandler(metricsSvc)
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

	registerRoutes(r, cfg, authSvc, attendanceSvc, scheduleSvc, studentSvc, dashboardSvc, reportSvc, metricsSvc, location)

	addr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{Addr: addr, Handler: r}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logr.Warn("graceful shutdown failed", zap.Error(err))
	}
}

func registerRoutes(
	r *gin.Engine,
	cfg *config.Config,
	authSvc *service.AuthService,
	attendanceSvc *service.AttendanceService,
	scheduleSvc *service.ScheduleService,
	studentSvc *service.StudentService,
	dashboardSvc *service.DashboardService,
	reportSvc *service.ReportService,
	metricsSvc *service.MetricsService,
	location *time.Location,
) {
	authHandler := handler.NewAuthHandler(authSvc)
	attendanceHandler := handler.NewAttendanceHandler(attendanceSvc, dashboardSvc, metricsSvc)
	scheduleHandler := handler.NewScheduleHandler(scheduleSvc)
	studentHandler := handler.NewStudentHandler(studentSvc)
	dashboardHandler := handler.NewDashboardHandler(dashboardSvc, location)

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	auth.POST("/login", authHandler.Login)
	auth.POST("/refresh", authHandler.Refresh)
	auth.POST("/logout", middleware.JWT(authSvc), authHandler.Logout)
	auth.GET("/me", middleware.JWT(authSvc), authHandler.Me)

	adminOnly := middleware.RequireRoles(models.RoleAdmin)
	adminOrSelf := middleware.RBAC(string(models.RoleAdmin), "SELF")

	students := api.Group("/students", middleware.JWT(authSvc))
	students.GET("", adminOnly, studentHandler.List)
	students.GET("/:id", adminOnly, studentHandler.Get)
	students.POST("", adminOnly, studentHandler.Create)
	students.PUT("/:id", adminOnly, studentHandler.Update)

	attendance := api.Group("/attendance", middleware.JWT(authSvc))
	attendance.POST("/:studentId/check-in", adminOrSelf, attendanceHandler.CheckIn)
	attendance.POST("/:studentId/check-out", adminOrSelf, attendanceHandler.CheckOut)
	attendance.POST("/:studentId/outing/start", adminOrSelf, attendanceHandler.StartOuting)
	attendance.POST("/:studentId/outing/end", adminOrSelf, attendanceHandler.EndOuting)
	attendance.POST("/:studentId/excuse-late", adminOnly, attendanceHandler.ExcuseLate)
	attendance.POST("/:studentId/excuse-absent", adminOnly, attendanceHandler.ExcuseAbsent)
	attendance.GET("/:studentId", adminOrSelf, attendanceHandler.Get)

	api.PUT("/attendance-records/:id", middleware.JWT(authSvc), adminOnly, attendanceHandler.UpdateTimes)

	schedules := api.Group("/schedules", middleware.JWT(authSvc))
	schedules.PUT("", adminOnly, scheduleHandler.Upsert)
	schedules.GET("/students/:studentId", adminOrSelf, scheduleHandler.ListForStudent)
	schedules.GET("/day/:day", adminOnly, scheduleHandler.ListForDay)
	schedules.DELETE("/:id", adminOnly, scheduleHandler.Delete)

	requests := api.Group("/schedule-requests", middleware.JWT(authSvc))
	requests.POST("", scheduleHandler.RequestChange)
	requests.GET("", adminOnly, scheduleHandler.PendingRequests)
	requests.POST("/:id/approve", adminOnly, scheduleHandler.Approve)
	requests.POST("/:id/reject", adminOnly, scheduleHandler.Reject)

	api.GET("/dashboard/daily", middleware.JWT(authSvc), adminOnly, dashboardHandler.Daily)

	if reportSvc != nil {
		reportHandler := handler.NewReportHandler(reportSvc)
		reports := api.Group("/reports")
		reports.GET("/monthly/:studentId", middleware.JWT(authSvc), adminOrSelf, reportHandler.Monthly)
		reports.POST("/exports", middleware.JWT(authSvc), adminOnly, reportHandler.RequestExport)
		reports.GET("/exports/:id", middleware.JWT(authSvc), adminOnly, reportHandler.GetExport)
		reports.GET("/exports/:id/url", middleware.JWT(authSvc), adminOnly, reportHandler.ExportURL)
		reports.GET("/download", reportHandler.Download)
	}
}
