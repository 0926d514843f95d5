package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"videoexpress/internal/adapter/repo"
	"videoexpress/internal/credit"
	"videoexpress/internal/infra"
	"videoexpress/internal/providers/fal"
	"videoexpress/internal/service"
	"videoexpress/internal/storage"
)

// stalePendingAge is how long a job may sit pending before the startup pass
// assumes the submission goroutine died with a previous process.
const stalePendingAge = time.Minute

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

	storagePath := cfg.StoragePath
	if !filepath.IsAbs(storagePath) {
		if abs, err := filepath.Abs(storagePath); err == nil {
			storagePath = abs
		}
	}
	fileStore, err := storage.NewFileStore(storagePath, cfg.StorageBaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to configure storage")
	}

	var creditStore credit.Store
	if cfg.CreditFilePath != "" {
		creditStore, err = credit.NewFileStore(cfg.CreditFilePath)
		if err != nil {
			logger.Fatal().Err(err).Msg("worker: failed to configure credit file store")
		}
	} else {
		creditStore = repo.NewCreditRepository(pool)
	}
	guard := credit.NewGuard(creditStore, cfg.CreditLimit, &logger)

	falClient := fal.NewClient(fal.Options{
		APIKey:     cfg.FalAPIKey,
		BaseURL:    cfg.FalBaseURL,
		Model:      cfg.FalModel,
		HTTPClient: &http.Client{Timeout: cfg.SubmitTimeout},
		Logger:     &logger,
		Simulation: cfg.FalSimulation,
		Credits:    guard,
	})

	jobs := repo.NewJobRepository(pool)
	orch := service.NewOrchestrator(service.Options{
		Jobs:            jobs,
		Store:           fileStore,
		Client:          falClient,
		Guard:           guard,
		Logger:          &logger,
		MaxImageBytes:   cfg.MaxImageBytes,
		DownloadTimeout: cfg.DownloadTimeout,
	})

	// Recover jobs stranded by a crash between row creation and submission.
	if err := orch.ResubmitStalePending(ctx, stalePendingAge); err != nil {
		logger.Error().Err(err).Msg("worker: stale pending recovery failed")
	}

	poller := service.NewPoller(service.PollerOptions{
		Jobs:         jobs,
		Orchestrator: orch,
		Client:       falClient,
		Logger:       &logger,
		Interval:     cfg.PollInterval,
		JobTimeout:   cfg.JobTimeout,
		Concurrency:  cfg.PollConcurrency,
	})

	if err := poller.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal().Err(err).Msg("worker: stopped with error")
	}
	logger.Info().Msg("worker: stopped")
}
