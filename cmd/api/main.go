package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/mindhaventaylor/ai-selfi-sub000/internal/http/handlers"
	httpapi "github.com/mindhaventaylor/ai-selfi-sub000/internal/http/httpapi"
	"github.com/mindhaventaylor/ai-selfi-sub000/internal/infra"
	"github.com/mindhaventaylor/ai-selfi-sub000/internal/notify"
	"github.com/mindhaventaylor/ai-selfi-sub000/internal/store"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx := context.Background()
	dbpool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: db connection failed")
	}
	defer dbpool.Close()

	runner := infra.NewSQLRunner(dbpool, logger)

	var bus notify.Bus
	if cfg.RedisAddr != "" {
		bus, err = notify.NewRedisBus(cfg.RedisAddr, cfg.RedisChannel, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("api: redis connection failed")
		}
	} else {
		bus = notify.NewChannelBus()
	}
	defer bus.Close()

	app := &handlers.App{
		Log:         logger,
		Jobs:        store.NewJobStore(runner),
		Batches:     store.NewBatchStore(runner),
		Photos:      store.NewPhotoStore(runner),
		Bus:         bus,
		WebhookURLs: cfg.WorkerWebhookURLs,
		HTTPClient:  &http.Client{Timeout: 10 * time.Second},
	}

	router := httpapi.NewRouter(app)
	server := infra.NewHTTPServer(cfg, cfg.Port, router)

	go func() {
		logger.Info().Msgf("API listening on :%s", cfg.Port)
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("api: http server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("api: shutdown failed")
	}
	logger.Info().Msg("api: stopped")
}
