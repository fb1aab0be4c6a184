package main

import (
	"context"
	"errors"
	"fmt"

	"caisse/internal/config"
	"caisse/internal/log"
	"caisse/internal/reconcile"
	"caisse/internal/sources"
	"caisse/internal/sources/memory"
	"caisse/internal/sources/rest"
	"caisse/internal/storage"
)

// Revenue sources accepted by -import-from.
const (
	importFromAPI    = "api"
	importFromMemory = "memory"
)

// importRevenue copies the revenue records of p into the SQLite store at
// SQLITE_DB_PATH, reading them from the persistence API or from the JSON
// files of MEMORY_DATA_DIR.
func importRevenue(ctx context.Context, cfg *config.Config, logger *log.Logger, p reconcile.Period, from string) (int, error) {
	src, err := revenueSource(cfg, logger, from)
	if err != nil {
		return 0, err
	}
	if cfg.SQLiteDBPath == "" {
		return 0, errors.New("-import-revenue needs SQLITE_DB_PATH")
	}
	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath, logger)
	if err != nil {
		return 0, err
	}
	defer repo.Close()
	return repo.ImportRevenue(ctx, src, p)
}

// revenueSource picks the import source; the API when configured, else the
// memory files.
func revenueSource(cfg *config.Config, logger *log.Logger, from string) (sources.RevenueSource, error) {
	if from == "" {
		from = importFromMemory
		if cfg.PersistenceAPIURL != "" {
			from = importFromAPI
		}
	}
	switch from {
	case importFromAPI:
		if cfg.PersistenceAPIURL == "" {
			return nil, errors.New("-import-from api needs PERSISTENCE_API_URL")
		}
		return rest.NewClient(rest.Config{
			BaseURL:         cfg.PersistenceAPIURL,
			Token:           cfg.PersistenceAPIToken,
			RevenuePath:     cfg.RevenuePath,
			CashEntriesPath: cfg.CashEntriesPath,
			Timeout:         cfg.HTTPClientTimeout,
		}, logger), nil
	case importFromMemory:
		if cfg.MemoryDataDir == "" {
			return nil, errors.New("-import-from memory needs MEMORY_DATA_DIR")
		}
		return memory.NewFromFiles(cfg.MemoryDataDir)
	default:
		return nil, fmt.Errorf("unknown import source %q: want %s or %s", from, importFromAPI, importFromMemory)
	}
}
