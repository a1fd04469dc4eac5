// Command finboard-import copies the configured tax and tips tables into the
// SQLite snapshot read by DATA_BACKEND=sqlite.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"finboard/internal/backend"
	"finboard/internal/cli"
	"finboard/internal/config"
	"finboard/internal/dataset"
	"finboard/internal/sheets"
	"finboard/internal/storage"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger()

	// The snapshot is the destination here, so the tables come from the
	// data directory when the server itself is configured for sqlite.
	cfg := config.Load()
	if cfg.DataBackend == string(backend.SQLiteBackend) {
		cfg.DataBackend = string(backend.FileBackend)
	}
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}

	backendConfig, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	source, err := backend.NewFactory(logger).CreateBackend(ctx, backendConfig)
	if err != nil {
		logger.Error("Failed to initialize source", "error", err, "backend", backendConfig.Type)
		os.Exit(1)
	}
	if source.Cleanup != nil {
		defer source.Cleanup()
	}

	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("Failed to open snapshot database", "error", err, "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer repo.Close()

	binders := []struct {
		name string
		bind func(*dataset.Table) error
	}{
		{backendConfig.TaxDataset, func(t *dataset.Table) error { _, err := dataset.BindTax(t); return err }},
		{backendConfig.TipsDataset, func(t *dataset.Table) error { _, err := dataset.BindTips(t); return err }},
	}
	for _, b := range binders {
		if err := importTable(ctx, source.Reader, repo, b.name, b.bind); err != nil {
			logger.Error("Import failed", "error", err, "table", b.name)
			os.Exit(1)
		}
	}

	tables, err := repo.ListTables(ctx)
	if err != nil {
		logger.Error("Failed to list snapshots", "error", err)
		os.Exit(1)
	}
	for _, t := range tables {
		logger.Info("Snapshot", "table", t.Name, "rows", t.Rows, "text", t.Text, "imported_at", t.ImportedAt)
	}
	logger.Info("Import completed", "db_path", cfg.SQLiteDBPath, "tables", len(tables))
}

// importTable reads one table, checks that it binds and stores it. A table
// that would fail to load in the server is never written.
func importTable(ctx context.Context, source sheets.TableReader, dest sheets.TableWriter, name string, bind func(*dataset.Table) error) error {
	t, err := source.ReadTable(ctx, name)
	if err != nil {
		return fmt.Errorf("read %s: %w", name, err)
	}
	if err := bind(t); err != nil {
		return fmt.Errorf("check %s: %w", name, err)
	}
	return dest.ImportTable(ctx, t)
}
