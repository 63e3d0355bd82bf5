package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/mail"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	_ "github.com/swebuk/portal-api/api/swagger"
	"github.com/swebuk/portal-api/internal/handler"
	"github.com/swebuk/portal-api/internal/repository"
	"github.com/swebuk/portal-api/internal/service"
	"github.com/swebuk/portal-api/pkg/cache"
	"github.com/swebuk/portal-api/pkg/config"
	"github.com/swebuk/portal-api/pkg/database"
	"github.com/swebuk/portal-api/pkg/export"
	"github.com/swebuk/portal-api/pkg/jobs"
	"github.com/swebuk/portal-api/pkg/logger"
	portalmail "github.com/swebuk/portal-api/pkg/mail"
	"github.com/swebuk/portal-api/pkg/messaging"
	"github.com/swebuk/portal-api/pkg/storage"
)

// @title Swebuk Portal API
// @version 1.0.0
// @description Club portal: final year projects, academic sessions, clusters, events and blog.
// @BasePath /api/v1
// @schemes http https
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
		logr.Fatal("database unavailable", zap.Error(err))
	}
	defer db.Close() //nolint:errcheck

	redisClient, err := cache.NewRedis(cfg.Redis, cfg.Cache.Enabled)
	if err != nil {
		logr.Warn("redis unavailable, dashboard cache disabled", zap.Error(err))
		redisClient = nil
	}

	app, err := build(cfg, db, redisClient, logr)
	if err != nil {
		logr.Fatal("failed to wire application", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app.notifications.Start(ctx)
	defer app.notifications.Stop()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           app.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env, "storage", cfg.Storage.Backend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Warn("graceful shutdown failed", zap.Error(err))
	}
	logr.Info("server stopped")
}

type application struct {
	router        *gin.Engine
	notifications *service.NotificationService
}

func build(cfg *config.Config, db *sqlx.DB, redisClient *redis.Client, logr *zap.Logger) (*application, error) {
	validate := validator.New()
	metrics := service.NewMetricsService()
	exporter := export.NewRenderer()

	profiles := repository.NewProfileRepository(db)
	fyps := repository.NewFYPRepository(db)
	submissions := repository.NewSubmissionRepository(db)
	sessions := repository.NewSessionRepository(db)
	clusters := repository.NewClusterRepository(db)
	memberships := repository.NewMembershipRepository(db)
	events := repository.NewEventRepository(db)
	posts := repository.NewPostRepository(db)

	var cacheRepo service.CacheRepository
	if redisClient != nil {
		cacheRepo = repository.NewCacheRepository(redisClient)
	}
	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Cache.DashboardTTL, logr, redisClient != nil)

	store, localFiles, err := newObjectStore(cfg.Storage)
	if err != nil {
		return nil, err
	}
	signer := storage.NewSignedURLSigner(cfg.Storage.SignedURLSecret, cfg.Storage.SignedURLTTL)

	notifications := service.NewNotificationService(newPublisher(cfg.Kafka, logr), newMailer(cfg.Mail, logr), metrics, logr, jobs.Options{
		Workers:    cfg.Notifications.Workers,
		MaxRetries: cfg.Notifications.Retries,
		Logger:     logr,
	})

	authSvc := service.NewAuthService(profiles, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             cfg.JWT.Issuer,
	})
	userSvc := service.NewUserService(profiles, cacheSvc, logr)
	fypSvc := service.NewFYPService(service.FYPServiceParams{
		Projects:    fyps,
		Submissions: submissions,
		Profiles:    profiles,
		Store:       store,
		Signer:      signer,
		Exporter:    exporter,
		Cache:       cacheSvc,
		Notifier:    notifications,
		Metrics:     metrics,
		Validator:   validate,
		Logger:      logr,
		Config: service.FYPConfig{
			Upload:       service.UploadPolicy{MaxSize: cfg.Storage.MaxFileSizeBytes, AllowedMIMEs: cfg.Storage.AllowedMIMEs},
			DownloadPath: cfg.APIPrefix + "/files/download",
		},
	})
	downloadSvc := service.NewDownloadService(signer, localFiles, submissions, logr)
	sessionSvc := service.NewSessionService(sessions, profiles, cacheSvc, notifications, metrics, validate, logr)
	clusterSvc := service.NewClusterService(clusters, memberships, profiles, cacheSvc, notifications, validate, logr)
	eventSvc := service.NewEventService(service.EventServiceParams{
		Events:                   events,
		Profiles:                 profiles,
		Exporter:                 exporter,
		Cache:                    cacheSvc,
		Notifier:                 notifications,
		Validator:                validate,
		Logger:                   logr,
		GuestRegistrationEnabled: cfg.Events.GuestRegistrationEnabled,
	})
	blogSvc := service.NewBlogService(posts, profiles, cacheSvc, validate, logr)
	dashboardSvc := service.NewDashboardService(service.DashboardServiceParams{
		Profiles:    profiles,
		FYPs:        fyps,
		Submissions: submissions,
		Memberships: memberships,
		Clusters:    clusters,
		Events:      events,
		Posts:       posts,
		Cache:       cacheSvc,
		Logger:      logr,
		CacheTTL:    cfg.Cache.DashboardTTL,
	})

	checks := map[string]handler.ReadinessCheck{"postgres": db.PingContext}
	if redisClient != nil {
		checks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}

	router := newRouter(cfg, logr, routeDeps{
		auth:      authSvc,
		metrics:   metrics,
		audit:     profiles,
		health:    handler.NewMetricsHandler(metrics.Handler(), checks),
		auths:     handler.NewAuthHandler(authSvc),
		users:     handler.NewUserHandler(userSvc),
		fyps:      handler.NewFYPHandler(fypSvc),
		files:     handler.NewFileHandler(downloadSvc),
		sessions:  handler.NewSessionHandler(sessionSvc),
		clusters:  handler.NewClusterHandler(clusterSvc),
		events:    handler.NewEventHandler(eventSvc),
		posts:     handler.NewBlogHandler(blogSvc),
		dashboard: handler.NewDashboardHandler(dashboardSvc),
	})

	return &application{router: router, notifications: notifications}, nil
}

// newObjectStore returns the configured store and, for the local backend,
// the same store as a file opener for signed downloads.
func newObjectStore(cfg config.StorageConfig) (storage.ObjectStore, interface {
	Open(key string) (*os.File, error)
}, error) {
	if cfg.Backend == config.StorageBackendCloudinary {
		remote, err := storage.NewCloudinaryStorage(cfg.CloudinaryURL, cfg.CloudinaryFolder)
		if err != nil {
			return nil, nil, fmt.Errorf("cloudinary storage: %w", err)
		}
		return remote, nil, nil
	}
	local, err := storage.NewLocalStorage(cfg.Dir)
	if err != nil {
		return nil, nil, err
	}
	return local, local, nil
}

func newPublisher(cfg config.KafkaConfig, logr *zap.Logger) messaging.Publisher {
	if !cfg.Enabled {
		return messaging.NewLogPublisher(logr)
	}
	publisher, err := messaging.NewKafkaPublisher(messaging.KafkaConfig{
		Brokers:  cfg.Brokers,
		Topic:    cfg.Topic,
		Username: cfg.Username,
		Password: cfg.Password,
	})
	if err != nil {
		logr.Warn("kafka unavailable, publishing to log", zap.Error(err))
		return messaging.NewLogPublisher(logr)
	}
	return publisher
}

func newMailer(cfg config.MailConfig, logr *zap.Logger) portalmail.Mailer {
	if !cfg.Enabled || cfg.SendgridKey == "" {
		return portalmail.NewLogMailer(logr)
	}
	return portalmail.NewSendgridMailer(cfg.SendgridKey, mail.Address{Name: cfg.FromName, Address: cfg.FromAddress}, "[Swebuk] ")
}
