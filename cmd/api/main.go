package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"

	"videoexpress/internal/adapter/repo"
	"videoexpress/internal/credit"
	"videoexpress/internal/http/handlers"
	"videoexpress/internal/http/httpapi"
	"videoexpress/internal/infra"
	"videoexpress/internal/providers/fal"
	"videoexpress/internal/service"
	"videoexpress/internal/storage"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx := context.Background()
	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect database")
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
		logger.Fatal().Err(err).Msg("failed to configure storage")
	}

	var creditStore credit.Store
	if cfg.CreditFilePath != "" {
		creditStore, err = credit.NewFileStore(cfg.CreditFilePath)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to configure credit file store")
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

	orch := service.NewOrchestrator(service.Options{
		Jobs:            repo.NewJobRepository(pool),
		Store:           fileStore,
		Client:          falClient,
		Guard:           guard,
		Logger:          &logger,
		MaxImageBytes:   cfg.MaxImageBytes,
		DownloadTimeout: cfg.DownloadTimeout,
	})

	app := &handlers.App{
		Jobs:          orch,
		Credits:       guard,
		Store:         fileStore,
		Logger:        &logger,
		MaxImageBytes: cfg.MaxImageBytes,
	}

	router := httpapi.NewRouter(app, httpapi.RouterOptions{
		JWTSecret:          cfg.JWTSecret,
		CORSAllowedOrigins: cfg.AllowedOrigins,
		RateLimitPerMinute: cfg.RateLimitPerMin,
		StaticDir:          fileStore.BasePath(),
		Logger:             logger,
	})

	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Msgf("API listening on :%s", cfg.Port)
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	logger.Info().Msg("server stopped")
}
