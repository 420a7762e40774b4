// Command api serves the AI Video Pro HTTP API and runs its background
// workers in the same process.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/aivideopro/aivideopro/internal/auth"
	"github.com/aivideopro/aivideopro/internal/cache"
	"github.com/aivideopro/aivideopro/internal/config"
	"github.com/aivideopro/aivideopro/internal/dispatch"
	"github.com/aivideopro/aivideopro/internal/handler"
	"github.com/aivideopro/aivideopro/internal/metrics"
	"github.com/aivideopro/aivideopro/internal/middleware"
	"github.com/aivideopro/aivideopro/internal/repository"
	"github.com/aivideopro/aivideopro/internal/server"
	"github.com/aivideopro/aivideopro/internal/service"
	"github.com/aivideopro/aivideopro/internal/statusfeed"
	"github.com/aivideopro/aivideopro/internal/storage"
	"github.com/aivideopro/aivideopro/internal/webhook"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	// .env is a development convenience; deployments set the environment.
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	logger := newLogger(cfg)

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("api stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	repo, err := repository.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database %s: %s", redactURL(cfg.DatabaseURL), sanitizeError(err, cfg.DatabaseURL))
	}
	defer repo.Close()

	cacheClient, err := cache.New(ctx, cfg.RedisURL, cache.Options{PoolSize: cfg.RedisPoolSize})
	if err != nil {
		return fmt.Errorf("connect redis %s: %s", redactURL(cfg.RedisURL), sanitizeError(err, cfg.RedisURL))
	}
	defer cacheClient.Close()
	logger.Info("connected", "database", redactURL(cfg.DatabaseURL), "redis", redactURL(cfg.RedisURL))

	recorder := metrics.NewInMemory()
	webhookRepo := webhook.NewRepository(repo.Pool())
	dispatcher := dispatch.NewPublisher(cacheClient.Client(), logger)
	dispatcher.SetTimeout(cfg.DispatchTimeout)
	jobService := service.NewJobService(
		repo,
		cacheClient,
		dispatcher,
		webhook.NewPublisher(webhookRepo, logger),
		recorder,
		logger,
		service.JobServiceOptions{Mode: cfg.EditMode, CostCredits: cfg.EditCostCredits},
	)
	accountService := service.NewAccountService(repo, logger, cfg.SignupCredits)

	uploader, err := newUploader(ctx, cfg)
	if err != nil {
		return err
	}

	rt := routes{
		root:     handler.New(version),
		health:   handler.NewHealthHandler(handler.HealthCheck{Name: "postgres", Checker: repo}, handler.HealthCheck{Name: "redis", Checker: cacheClient}),
		metrics:  handler.NewMetricsHandler(recorder),
		edit:     handler.NewEditHandler(jobService, logger),
		jobs:     handler.NewJobHandler(jobService, logger),
		accounts: handler.NewAccountHandler(accountService, logger),
		apiKeys:  handler.NewAPIKeyHandler(logger, repo, cacheClient),
		webhooks: handler.NewWebhookHandler(webhookRepo, logger, webhook.ValidationOptions{AllowInsecure: cfg.WebhookAllowInsecure}),
		uploads:  handler.NewUploadHandler(uploader, logger),
		oauth:    handler.NewOAuthHandler(newOAuthProvider(cfg), cacheClient, accountService, logger),
		status:   handler.NewStatusHandler(jobService, cfg.BackendCallbackSecret, logger),
		admin:    handler.NewAdminHandler(accountService, repo, recorder, logger, version),
	}

	r := setupRouter(rt,
		middleware.AuthConfig{Logger: logger, Keys: repo, Cache: cacheClient},
		middleware.RateLimitConfig{
			Logger:     logger,
			Limiter:    cacheClient,
			APIEnabled: cfg.RateLimitAPIEnabled,
			IPEnabled:  cfg.RateLimitPublicEnabled,
			IPRPS:      cfg.RateLimitPublicRPS,
			IPBurst:    cfg.RateLimitPublicBurst,
		},
		cfg, logger)

	srv := server.New(r, server.Config{
		Port:            cfg.AppPort,
		ReadTimeout:     cfg.ReadTimeout,
		WriteTimeout:    cfg.WriteTimeout,
		ShutdownTimeout: cfg.ShutdownTimeout,
	}, logger)

	// Components stop after the HTTP server, newest first.
	if cfg.WebhookWorkerEnabled {
		worker := webhook.NewWorker(webhookRepo, logger, recorder, webhook.WorkerConfig{
			BatchSize:           cfg.WebhookBatchSize,
			PollInterval:        cfg.WebhookPollInterval,
			Concurrency:         cfg.WebhookConcurrency,
			AllowPrivateTargets: cfg.WebhookAllowInsecure,
		})
		srv.Background("webhook-worker", worker.Run)
	}
	srv.Background("job-sweeper", service.NewSweeper(jobService, cfg.JobTimeout, cfg.JobSweepInterval, logger).Run)

	if err := addStatusFeeds(srv, cfg, cacheClient, jobService, logger); err != nil {
		return err
	}

	logger.Info("starting server",
		"port", cfg.AppPort,
		"base_url", cfg.BaseURL,
		"env", cfg.AppEnv,
		"edit_mode", cfg.EditMode,
		"version", version,
	)
	return srv.Run(ctx)
}

// newUploader is nil when no bucket is configured; the upload route then
// answers 503.
func newUploader(ctx context.Context, cfg *config.Config) (handler.Uploader, error) {
	if !cfg.UploadsEnabled() {
		return nil, nil
	}
	uploads, err := storage.New(ctx, storage.Config{
		Bucket:        cfg.S3Bucket,
		Region:        cfg.S3Region,
		Endpoint:      cfg.S3Endpoint,
		PublicBaseURL: cfg.S3PublicBaseURL,
		URLTTL:        cfg.UploadURLTTL,
		MaxBytes:      cfg.UploadMaxBytes,
	})
	if err != nil {
		return nil, fmt.Errorf("configure uploads: %w", err)
	}
	return uploads, nil
}

func newOAuthProvider(cfg *config.Config) handler.OAuthProvider {
	if !cfg.OAuthEnabled() {
		return nil
	}
	return auth.NewGoogleProvider(
		cfg.GoogleClientID,
		cfg.GoogleClientSecret,
		strings.TrimRight(cfg.BaseURL, "/")+"/auth/google/callback",
	)
}

// addStatusFeeds starts the optional Kafka and Redis Stream consumers of
// backend status reports.
func addStatusFeeds(srv *server.Server, cfg *config.Config, cacheClient *cache.Cache, jobs *service.JobService, logger *slog.Logger) error {
	if brokers := cfg.GetKafkaBrokers(); len(brokers) > 0 {
		consumer, err := statusfeed.NewKafkaConsumer(statusfeed.KafkaConfig{
			Brokers: brokers,
			Topic:   cfg.KafkaStatusTopic,
			GroupID: cfg.KafkaGroupID,
		}, jobs, logger)
		if err != nil {
			return fmt.Errorf("kafka consumer: %w", err)
		}
		srv.OnShutdown("kafka-consumer-close", func(context.Context) error {
			return consumer.Close()
		})
		srv.Background("kafka-consumer", consumer.Run)
	}

	if cfg.StatusStreamEnabled {
		stream := statusfeed.NewStreamConsumer(cacheClient.Client(), jobs, logger, statusfeed.NewConsumerID())
		srv.Background("status-stream", stream.Run)
	}
	return nil
}
