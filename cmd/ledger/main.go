package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"ledger/internal/cli"
	apphttp "ledger/internal/http"
	"ledger/internal/services"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"))
	cfg := cli.LoadAndValidateConfig(logger)

	store := cli.InitStore(context.Background(), logger, cfg)

	var publisher services.EventPublisher
	if client := cli.InitAMQP(logger, cfg, false); client != nil {
		publisher = client
	}

	// ledgerSvc owns the store and the publisher.
	ledgerSvc := services.NewLedger(store, publisher)
	defer ledgerSvc.Close()

	if cfg.SeedDefaults {
		n, err := ledgerSvc.SeedDefaults(context.Background())
		if err != nil {
			logger.Error("Failed to seed default accounts", "error", err)
			os.Exit(1)
		}
		if n > 0 {
			logger.Info("Seeded default accounts", "created", n)
		}
	}

	materializer := services.NewMaterializer(store, publisher)
	reports := services.NewReports(store, cfg.ProjectionDays)

	srv := apphttp.NewServer(apphttp.Options{
		Addr:               ":" + cfg.Port,
		RequestTimeout:     cfg.RequestTimeout,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		Logger:             logger,
	}, ledgerSvc, materializer, reports, store)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
	})

	logger.Info("Starting ledger server", "port", cfg.Port, "backend", cfg.DataBackend)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", "error", err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
