package backend

import (
	"context"
	"errors"
	"fmt"
	"time"

	"caisse/internal/cache"
	"caisse/internal/core"
	"caisse/internal/log"
	"caisse/internal/sources"
	"caisse/internal/sources/memory"
	"caisse/internal/sources/rest"
	"caisse/internal/storage"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *log.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *log.Logger) Factory {
	if logger == nil {
		logger = log.Discard()
	}
	return &DefaultFactory{
		logger: logger.WithComponent(log.ComponentBackend),
	}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	var (
		result *BackendResult
		err    error
	)
	switch config.Type {
	case APIBackend:
		result = f.createAPIBackend(config)
	case SQLiteBackend:
		result, err = f.createSQLiteBackend(config)
	case MemoryBackend:
		result, err = f.createMemoryBackend(config)
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
	if err != nil {
		return nil, err
	}

	f.wrapRevenueCache(result, config)
	return result, nil
}

func (f *DefaultFactory) createAPIBackend(config Config) *BackendResult {
	client := rest.NewClient(rest.Config{
		BaseURL:         config.APIURL,
		Token:           config.APIToken,
		RevenuePath:     config.RevenuePath,
		CashEntriesPath: config.CashEntriesPath,
		Timeout:         config.HTTPTimeout,
	}, f.logger)

	f.logger.Info("Initialized persistence API backend",
		log.FieldBackend, config.Type.String(),
		"base_url", config.APIURL)

	return &BackendResult{Store: client, Revenue: client}
}

func (f *DefaultFactory) createSQLiteBackend(config Config) (*BackendResult, error) {
	repo, err := storage.NewSQLiteRepository(config.SQLiteDBPath, f.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
	}

	f.logger.Info("Initialized SQLite backend",
		log.FieldBackend, config.Type.String(),
		"db_path", config.SQLiteDBPath)

	return &BackendResult{
		Store:   repo,
		Revenue: repo,
		Ready:   repo.Ping,
		Cleanup: repo.Close,
	}, nil
}

func (f *DefaultFactory) createMemoryBackend(config Config) (*BackendResult, error) {
	var store *memory.Store
	if config.DataDirectory == "" {
		store = memory.New(nil, nil)
	} else {
		var err error
		store, err = memory.NewFromFiles(config.DataDirectory)
		if err != nil {
			return nil, fmt.Errorf("failed to load memory backend: %w", err)
		}
	}

	f.logger.Info("Initialized memory backend",
		log.FieldBackend, config.Type.String(),
		"data_directory", config.DataDirectory)

	return &BackendResult{Store: store, Revenue: store}, nil
}

// wrapRevenueCache puts the revenue LRU in front of the backend. Cash
// entries are never cached.
func (f *DefaultFactory) wrapRevenueCache(result *BackendResult, config Config) {
	if config.RevenueCacheSize <= 0 {
		return
	}
	lru := cache.NewLRUCache[[]core.RevenueRecord](config.RevenueCacheSize, config.RevenueCacheTTL)
	result.Revenue = cache.NewRevenueSource(result.Revenue, lru, f.logger)

	if config.RevenueCacheTTL > 0 {
		manager := cache.NewManager(f.logger)
		manager.Register(lru)
		manager.StartCleanup(cleanupInterval(config.RevenueCacheTTL))
		result.Cleanup = chain(manager.Stop, result.Cleanup)
	}
}

func cleanupInterval(ttl time.Duration) time.Duration {
	if ttl < time.Minute {
		return ttl
	}
	return ttl / 2
}

func chain(stop func(), next CleanupFunc) CleanupFunc {
	return func() error {
		stop()
		if next != nil {
			return next()
		}
		return nil
	}
}

// Close runs the cleanup function, if any.
func (r *BackendResult) Close() error {
	if r == nil || r.Cleanup == nil {
		return nil
	}
	return r.Cleanup()
}

// IsReady reports backend readiness for /readyz.
func (r *BackendResult) IsReady(ctx context.Context) error {
	if r == nil || r.Store == nil {
		return errors.New("backend not initialized")
	}
	if r.Ready == nil {
		return nil
	}
	return r.Ready(ctx)
}

var _ sources.Backend = (*storage.SQLiteRepository)(nil)
