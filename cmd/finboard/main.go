package main

import (
	"context"
	"errors"
	"net/http"
	"os"

	"finboard/internal/backend"
	"finboard/internal/cli"
	apphttp "finboard/internal/http"
	applog "finboard/internal/log"
	"finboard/internal/metrics"
	"finboard/internal/services"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger()
	cfg := cli.LoadAndValidateConfig(logger)

	backendConfig, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	source, err := backend.NewFactory(logger).CreateBackend(ctx, backendConfig)
	if err != nil {
		logger.Error("Failed to initialize backend", "error", err, "backend", backendConfig.Type)
		os.Exit(1)
	}

	// Datasets are read once; a missing or malformed input stops the
	// process before the listener starts.
	data, err := backend.LoadDatasets(ctx, source.Reader, backendConfig.TaxDataset, backendConfig.TipsDataset)
	if source.Cleanup != nil {
		if cerr := source.Cleanup(); cerr != nil {
			logger.Warn("Backend cleanup failed", "error", cerr)
		}
	}
	if err != nil {
		logger.Error("Failed to load datasets", "error", err, "backend", backendConfig.Type)
		os.Exit(1)
	}

	m := metrics.New()
	m.SetDatasetRows("tax", data.Tax.Len())
	m.SetDatasetRows("tips", data.Tips.Len())

	srv := apphttp.NewServer(apphttp.Options{
		Addr:            ":" + cfg.Port,
		ReadTimeout:     cfg.ReadTimeout,
		WriteTimeout:    cfg.WriteTimeout,
		ExportRateLimit: cfg.ExportRateLimit,
		ChartCacheSize:  cfg.ChartCacheSize,
		ChartCacheTTL:   cfg.ChartCacheTTL,
		TrustedProxies:  cfg.TrustedProxies,
		Logger:          applog.Wrap(logger, applog.ComponentHTTP),
		Metrics:         m,
	}, services.NewDashboardService(data.Tax, data.Tips))

	done := cli.GracefulShutdown(logger, cfg.ShutdownTimeout, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
	})

	logger.Info("Starting finboard server",
		"port", cfg.Port,
		"backend", backendConfig.Type,
		"tax_dataset", data.Tax.Name(),
		"tips_dataset", data.Tips.Name())
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", "error", err, "port", cfg.Port)
		os.Exit(1)
	}

	<-done.Done()
	logger.Info("Server stopped gracefully")
}
