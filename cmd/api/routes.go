package main

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/noah-isme/turmas-api/internal/handler"
	"github.com/noah-isme/turmas-api/internal/middleware"
	"github.com/noah-isme/turmas-api/internal/models"
	"github.com/noah-isme/turmas-api/pkg/config"
	"github.com/noah-isme/turmas-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/turmas-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/turmas-api/pkg/middleware/requestid"
)

const (
	auditResourceClass      = "scheduled_class"
	auditResourceEnrollment = "enrollment"
)

func newRouter(cfg *config.Config, deps *services, logr *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(deps.metrics))
	r.Use(middleware.WithResponseMeta())

	metricsHandler := handler.NewMetricsHandler(deps.metrics, deps.db)
	r.GET("/health", metricsHandler.Health)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	classHandler := handler.NewClassHandler(deps.classes)
	conclusionHandler := handler.NewConclusionHandler(deps.conclusions, deps.notifications, nil)
	enrollmentHandler := handler.NewEnrollmentHandler(deps.enrollments)
	certificateHandler := handler.NewCertificateHandler(deps.certificates)
	settingsHandler := handler.NewNotificationSettingsHandler(deps.settings)

	api := r.Group(cfg.APIPrefix)

	public := api.Group("/certificates")
	public.GET("/verify/:code", certificateHandler.Verify)
	public.GET("/download/:token", certificateHandler.Download)

	secured := api.Group("")
	secured.Use(middleware.JWT(deps.auth))

	staff := middleware.RequireRoles(models.RoleAdmin, models.RoleCoordinator)
	teaching := middleware.RequireRoles(models.RoleAdmin, models.RoleCoordinator, models.RoleInstructor)

	classes := secured.Group("/classes")
	classes.GET("", teaching, classHandler.List)
	classes.GET("/:id", teaching, classHandler.Get)
	classes.POST("", staff, classHandler.Create)
	classes.PUT("/:id", staff, classHandler.Update)
	classes.DELETE("/:id", staff, middleware.Audit(deps.audit, logr, "DELETE", auditResourceClass), classHandler.Delete)
	classes.POST("/:id/conclude", teaching, middleware.Audit(deps.audit, logr, "CONCLUDE", auditResourceClass), conclusionHandler.Conclude)
	classes.POST("/:id/results/notify", staff, middleware.Audit(deps.audit, logr, "NOTIFY_RESULTS", auditResourceClass), conclusionHandler.NotifyResults)
	classes.GET("/:id/notifications", staff, conclusionHandler.NotificationLogs)
	classes.GET("/:id/evaluations", teaching, conclusionHandler.Evaluations)

	enrollments := secured.Group("/enrollments")
	enrollments.GET("", staff, enrollmentHandler.List)
	enrollments.GET("/:id", staff, enrollmentHandler.Get)
	enrollments.PUT("/:id", staff, middleware.Audit(deps.audit, logr, "UPDATE", auditResourceEnrollment), enrollmentHandler.Update)
	enrollments.DELETE("/:id", staff, middleware.Audit(deps.audit, logr, "DELETE", auditResourceEnrollment), enrollmentHandler.Delete)
	enrollments.POST("/:id/certificate", staff, certificateHandler.Issue)

	secured.GET("/users/:userID/enrollments",
		middleware.RBAC(string(models.RoleAdmin), string(models.RoleCoordinator), middleware.SelfParam),
		enrollmentHandler.ListByUser)

	settings := secured.Group("/notifications/settings", staff)
	settings.GET("", settingsHandler.Get)
	settings.POST("/refresh", settingsHandler.Refresh)

	return r
}
