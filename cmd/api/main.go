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
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	_ "github.com/noah-isme/turmas-api/api/swagger"
	"github.com/noah-isme/turmas-api/internal/repository"
	"github.com/noah-isme/turmas-api/internal/service"
	"github.com/noah-isme/turmas-api/pkg/cache"
	"github.com/noah-isme/turmas-api/pkg/config"
	"github.com/noah-isme/turmas-api/pkg/database"
	"github.com/noah-isme/turmas-api/pkg/events"
	"github.com/noah-isme/turmas-api/pkg/export"
	"github.com/noah-isme/turmas-api/pkg/jobs"
	"github.com/noah-isme/turmas-api/pkg/logger"
	"github.com/noah-isme/turmas-api/pkg/mail"
	"github.com/noah-isme/turmas-api/pkg/observability"
	"github.com/noah-isme/turmas-api/pkg/storage"
)

// @title Turmas API
// @version 1.0.0
// @description Class lifecycle, conclusion and result notification service
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

	flush, err := observability.InitSentry(cfg.Sentry.DSN, cfg.Env, cfg.Sentry.Release)
	if err != nil {
		logr.Warn("sentry disabled", zap.Error(err))
	}
	defer flush()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect database", zap.Error(err))
	}
	defer db.Close() //nolint:errcheck

	if cfg.Database.AutoMigrate {
		if err := database.Migrate(db.DB); err != nil {
			logr.Fatal("failed to apply migrations", zap.Error(err))
		}
	}

	redisClient, err := cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, caching disabled", zap.Error(err))
		redisClient = nil
	}
	if redisClient != nil {
		defer redisClient.Close() //nolint:errcheck
	}

	sender, err := mail.NewSender(cfg.Mail, logr)
	if err != nil {
		logr.Fatal("failed to configure mail sender", zap.Error(err))
	}

	metrics := service.NewMetricsService()

	queue, closeEvents := startEventQueue(ctx, cfg.Events, logr)
	defer closeEvents()

	deps, err := buildServices(cfg, db, redisClient, sender, metrics, queue, logr)
	if err != nil {
		logr.Fatal("failed to build services", zap.Error(err))
	}

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}
	router := newRouter(cfg, deps, logr)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
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

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
}

// startEventQueue wires the Kafka publisher behind the retrying job queue.
// It returns a nil queue when events are disabled.
func startEventQueue(ctx context.Context, cfg config.EventsConfig, logr *zap.Logger) (*jobs.Queue, func()) {
	if !cfg.Enabled || len(cfg.Brokers) == 0 {
		return nil, func() {}
	}
	publisher := events.NewKafkaPublisher(events.NewKafkaWriter(cfg.Brokers, cfg.Topic))
	queue := jobs.NewQueue("lifecycle-events", service.PublishEventJob(publisher), jobs.QueueConfig{
		Workers:    cfg.Workers,
		MaxRetries: cfg.MaxRetries,
		Logger:     logr,
	})
	queue.Start(ctx)
	return queue, func() {
		queue.Stop()
		if err := publisher.Close(); err != nil {
			logr.Warn("failed to close kafka writer", zap.Error(err))
		}
	}
}

type services struct {
	db            *sqlx.DB
	metrics       *service.MetricsService
	auth          *service.AuthService
	classes       *service.ScheduledClassService
	conclusions   *service.ConclusionService
	enrollments   *service.EnrollmentService
	notifications *service.NotificationService
	settings      *service.NotificationSettingsService
	certificates  *service.CertificateService
	audit         *repository.AuditRepository
}

func buildServices(cfg *config.Config, db *sqlx.DB, redisClient *redis.Client, sender mail.Sender, metrics *service.MetricsService, queue *jobs.Queue, logr *zap.Logger) (*services, error) {
	validate := validator.New()

	classRepo := repository.NewScheduledClassRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	evaluationRepo := repository.NewEvaluationRepository(db)
	directoryRepo := repository.NewDirectoryRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)

	cacheRepo := repository.NewCacheRepository(redisClient, "turmas", logr)
	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Notifications.SettingsTTL, logr, redisClient != nil)

	var lifecycle *service.LifecycleEvents
	if queue != nil {
		lifecycle = service.NewLifecycleEvents(queue, logr)
	}

	settingsSvc := service.NewNotificationSettingsService(notificationRepo, cacheSvc, cfg.Notifications.SettingsTTL, logr)

	files, err := storage.NewLocalStorage(cfg.Certificates.StorageDir)
	if err != nil {
		return nil, fmt.Errorf("certificate storage: %w", err)
	}
	signer := storage.NewSignedURLSigner(cfg.Certificates.SignedURLSecret, cfg.Certificates.SignedURLTTL)

	notifications := service.NewNotificationService(settingsSvc, notificationRepo, classRepo, enrollmentRepo, directoryRepo,
		sender, cfg.Notifications.Enabled, metrics, logr)
	certificates := service.NewCertificateService(enrollmentRepo, directoryRepo, export.NewCertificateRenderer(), files, signer, cacheSvc,
		service.CertificateServiceConfig{
			IssuerName:    cfg.Certificates.IssuerName,
			PublicBaseURL: cfg.Certificates.PublicBaseURL,
			APIPrefix:     cfg.APIPrefix,
			CacheTTL:      cfg.Certificates.VerifyCacheTTL,
		}, logr)
	conclusions := service.NewConclusionService(classRepo, evaluationRepo, enrollmentRepo, directoryRepo,
		lifecycle, metrics, observability.NewReporter(), logr)

	return &services{
		db:            db,
		metrics:       metrics,
		auth:          service.NewAuthService(cfg.JWT.Secret),
		classes:       service.NewScheduledClassService(classRepo, directoryRepo, validate, logr),
		conclusions:   conclusions,
		enrollments:   service.NewEnrollmentService(enrollmentRepo, cacheSvc, validate, logr),
		notifications: notifications,
		settings:      settingsSvc,
		certificates:  certificates,
		audit:         repository.NewAuditRepository(db),
	}, nil
}
