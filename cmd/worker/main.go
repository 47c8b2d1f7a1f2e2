package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/mindhaventaylor/ai-selfi-sub000/internal/blob"
	"github.com/mindhaventaylor/ai-selfi-sub000/internal/genai"
	"github.com/mindhaventaylor/ai-selfi-sub000/internal/http/handlers"
	httpapi "github.com/mindhaventaylor/ai-selfi-sub000/internal/http/httpapi"
	"github.com/mindhaventaylor/ai-selfi-sub000/internal/infra"
	"github.com/mindhaventaylor/ai-selfi-sub000/internal/notify"
	"github.com/mindhaventaylor/ai-selfi-sub000/internal/retry"
	"github.com/mindhaventaylor/ai-selfi-sub000/internal/store"
	"github.com/mindhaventaylor/ai-selfi-sub000/internal/worker"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: db connection failed")
	}
	defer pool.Close()

	runner := infra.NewSQLRunner(pool, logger)

	blobStore, err := newBlobStore(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: storage setup failed")
	}

	var bus notify.Bus
	if cfg.RedisAddr != "" {
		bus, err = notify.NewRedisBus(cfg.RedisAddr, cfg.RedisChannel, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("worker: redis connection failed")
		}
	} else {
		bus = notify.NewChannelBus()
	}
	defer bus.Close()

	client, err := genai.NewClient(genai.Options{
		APIKey:             cfg.GeminiAPIKey,
		BaseURL:            cfg.GeminiBaseURL,
		Model:              cfg.GeminiModel,
		Logger:             &logger,
		FallbackRetryDelay: cfg.RetryFallback,
		MaxRetryDelay:      cfg.RetryMaxDelay,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: generation client setup failed")
	}

	policy := retry.Policy{
		MaxAttempts: cfg.MaxCallAttempts,
		BaseDelay:   cfg.RetryBaseDelay,
		MaxDelay:    cfg.RetryMaxDelay,
		JitterBound: cfg.RetryJitter,
		Retryable:   genai.IsRetryable,
	}

	run := worker.NewRunner(
		store.NewJobStore(runner),
		store.NewBatchStore(runner),
		store.NewPhotoStore(runner),
		client,
		blobStore,
		bus,
		policy,
		worker.Config{
			WorkerID:      cfg.WorkerID,
			PollInterval:  cfg.PollInterval,
			LockTimeout:   cfg.LockTimeout,
			ImageDelay:    cfg.ImageDelay,
			RetryMaxDelay: cfg.RetryMaxDelay,
		},
		logger,
	)

	webhook := &handlers.WebhookHandler{Log: logger, Waker: run}
	server := infra.NewHTTPServer(cfg, cfg.WorkerPort, httpapi.NewWorkerRouter(webhook))

	go func() {
		logger.Info().Msgf("worker intake listening on :%s", cfg.WorkerPort)
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("worker: intake server failed")
		}
	}()

	if err := run.Run(ctx); err != nil && err != context.Canceled {
		logger.Error().Err(err).Msg("worker: loop exited")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("worker: intake shutdown failed")
	}
	logger.Info().Msg("worker: stopped")
}

func newBlobStore(ctx context.Context, cfg *infra.Config) (blob.Store, error) {
	switch cfg.StorageDriver {
	case "gcs":
		return blob.NewGCSStore(ctx, cfg.GCSBucket, cfg.GCSCDNDomain)
	case "minio":
		return blob.NewMinioStore(ctx, cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
	default:
		path := cfg.StoragePath
		if path == "" {
			path = "./storage"
		}
		if abs, err := filepath.Abs(path); err == nil {
			path = abs
		}
		return blob.NewFileStore(path, cfg.StorageBaseURL)
	}
}
