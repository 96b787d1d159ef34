package main

import (
	"context"
	"errors"
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

	_ "github.com/noah-isme/task-manager-api/api/swagger"
	"github.com/noah-isme/task-manager-api/internal/handler"
	"github.com/noah-isme/task-manager-api/internal/middleware"
	"github.com/noah-isme/task-manager-api/internal/models"
	"github.com/noah-isme/task-manager-api/internal/repository"
	"github.com/noah-isme/task-manager-api/internal/service"
	"github.com/noah-isme/task-manager-api/pkg/cache"
	"github.com/noah-isme/task-manager-api/pkg/config"
	"github.com/noah-isme/task-manager-api/pkg/database"
	"github.com/noah-isme/task-manager-api/pkg/jobs"
	"github.com/noah-isme/task-manager-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/task-manager-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/task-manager-api/pkg/middleware/requestid"
	"github.com/noah-isme/task-manager-api/pkg/storage"
)

// @title Task Manager API
// @version 1.0.0
// @description Task tracking service with JWT auth, RBAC and audit trails
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

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to database", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, statistics caching disabled", "error", err)
		redisClient = nil
	}

	validate := validator.New()
	metricsSvc := service.NewMetricsService()

	cacheRepo := repository.NewCacheRepository(redisClient, logr)
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Statistics.CacheTTL, logr, redisClient != nil)

	userRepo := repository.NewUserRepository(db)
	tokenRepo := repository.NewTokenRepository(db)
	taskRepo := repository.NewTaskRepository(db)
	statusRepo := repository.NewStatusRepository(db)
	commentRepo := repository.NewCommentRepository(db)
	logRepo := repository.NewLogRepository(db)
	exportJobRepo := repository.NewExportJobRepository(db)

	tokenSvc := service.NewTokenService(service.TokenConfig{
		Secret:             cfg.JWT.Secret,
		Issuer:             cfg.JWT.Issuer,
		Audience:           cfg.JWT.Audience,
		AccessTokenExpiry:  cfg.JWT.AccessTokenExpiry,
		RefreshTokenExpiry: cfg.JWT.RefreshTokenExpiry,
	})
	authSvc := service.NewAuthService(userRepo, tokenRepo, logRepo, tokenSvc, validate, logr)
	userSvc := service.NewUserService(userRepo, logRepo, validate, logr)
	taskSvc := service.NewTaskService(taskRepo, statusRepo, logRepo, cacheSvc, validate, logr)
	statusSvc := service.NewStatusService(statusRepo, logRepo, cacheSvc, validate, logr)
	commentSvc := service.NewCommentService(commentRepo, taskRepo, logRepo, validate, logr)
	loggingSvc := service.NewLoggingService(logRepo, logr)
	statsSvc := service.NewStatsService(taskRepo, userRepo, cacheSvc, cfg.Statistics.CacheTTL, logr)

	exportStore, err := storage.NewLocalStorage(cfg.Exports.StorageDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to prepare export storage", "error", err)
	}
	signer := storage.NewSignedURLSigner(cfg.Exports.SignedURLSecret, cfg.Exports.SignedURLTTL)
	exportSvc := service.NewExportService(exportJobRepo, taskRepo, logRepo, exportStore, signer, metricsSvc, service.ExportConfig{
		APIPrefix: cfg.APIPrefix,
		ResultTTL: cfg.Exports.SignedURLTTL,
	}, logr)

	queue := jobs.NewQueue("exports", exportSvc.HandleJob, jobs.QueueConfig{
		Workers:    cfg.Exports.WorkerConcurrency,
		MaxRetries: cfg.Exports.WorkerRetries,
		Logger:     logr,
	})
	exportSvc.BindQueue(queue)
	queue.Start(context.Background())
	defer queue.Stop()

	authHandler := handler.NewAuthHandler(authSvc)
	userHandler := handler.NewUserHandler(userSvc)
	taskHandler := handler.NewTaskHandler(taskSvc, commentSvc, loggingSvc)
	statusHandler := handler.NewStatusHandler(statusSvc)
	logHandler := handler.NewLogHandler(loggingSvc)
	statsHandler := handler.NewStatsHandler(statsSvc, exportSvc, metricsSvc)
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
	api.Use(middleware.Transaction(db, logr))

	auth := api.Group("/auth")
	auth.POST("/login", authHandler.Login)
	auth.POST("/register", authHandler.Register)
	auth.POST("/refresh-token", authHandler.Refresh)

	authed := auth.Group("", middleware.JWT(tokenSvc))
	authed.POST("/revoke-token", authHandler.Revoke)
	authed.POST("/change-password", authHandler.ChangePassword)
	authed.GET("/me", authHandler.Me)
	authed.GET("/sessions", authHandler.Sessions)

	tasks := api.Group("/tasks", middleware.JWT(tokenSvc))
	tasks.GET("", taskHandler.List)
	tasks.GET("/my", taskHandler.ListMine)
	tasks.POST("", middleware.RequirePermission(service.PermissionTasksCreate), taskHandler.Create)
	tasks.GET("/:id", taskHandler.Get)
	tasks.PUT("/:id", middleware.RequirePermission(service.PermissionTasksEdit), taskHandler.Update)
	tasks.DELETE("/:id", middleware.RequirePermission(service.PermissionTasksDelete), taskHandler.Delete)
	tasks.PUT("/:id/status", middleware.RequirePermission(service.PermissionTasksEdit), taskHandler.ChangeStatus)
	tasks.GET("/:id/comments", taskHandler.ListComments)
	tasks.POST("/:id/comments", taskHandler.CreateComment)
	tasks.GET("/:id/history", taskHandler.StatusHistory)

	comments := api.Group("/comments", middleware.JWT(tokenSvc))
	comments.PUT("/:commentId", taskHandler.UpdateComment)
	comments.DELETE("/:commentId", taskHandler.DeleteComment)

	statuses := api.Group("/status", middleware.JWT(tokenSvc))
	statuses.GET("", statusHandler.List)
	statuses.GET("/:id", statusHandler.Get)
	statuses.POST("", middleware.RequireRole(models.RoleAdmin), statusHandler.Create)
	statuses.PUT("/:id", middleware.RequireRole(models.RoleAdmin), statusHandler.Update)
	statuses.DELETE("/:id", middleware.RequireRole(models.RoleAdmin), statusHandler.Delete)

	users := api.Group("/users", middleware.JWT(tokenSvc))
	users.GET("", userHandler.List)
	users.GET("/:id", userHandler.Get)
	users.POST("", middleware.RequirePermission(service.PermissionUsersManage), userHandler.Create)
	users.PUT("/:id", middleware.RequirePermission(service.PermissionUsersManage), userHandler.Update)
	users.DELETE("/:id", middleware.RequirePermission(service.PermissionUsersManage), userHandler.Delete)
	users.PUT("/:id/roles", middleware.RequirePermission(service.PermissionRolesAssign), userHandler.AssignRoles)

	api.GET("/roles", middleware.JWT(tokenSvc), userHandler.ListRoles)
	api.GET("/permissions", middleware.JWT(tokenSvc), userHandler.ListPermissions)

	logs := api.Group("/logs", middleware.JWT(tokenSvc))
	logs.GET("/login", middleware.RequireRole(models.RoleAdmin), logHandler.LoginLogs)
	logs.GET("/activity", middleware.RequireRole(models.RoleAdmin), logHandler.ActivityLogs)
	logs.GET("/task-status", logHandler.TaskStatusHistory)

	stats := api.Group("/statistics", middleware.JWT(tokenSvc))
	stats.GET("/users/count", statsHandler.UserCount)
	stats.GET("/tasks/count", statsHandler.TaskCount)
	stats.GET("/summary", statsHandler.Summary)
	stats.GET("/system", statsHandler.SystemMetrics)
	stats.POST("/export", statsHandler.Export)
	stats.GET("/export/:id", statsHandler.ExportStatus)

	// Downloads authenticate through the signed token in the query string,
	// not a bearer token, so the route sits outside the JWT group.
	api.GET("/statistics/export/:id/download", statsHandler.ExportDownload)

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logr.Sugar().Infow("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logr.Sugar().Errorw("forced shutdown", "error", err)
	}
}
