package backend

import (
	"context"
	"time"

	"caisse/internal/sources"
)

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// BackendResult contains the data sources and optional cleanup function.
// Revenue is the cached view over Store's revenue records.
type BackendResult struct {
	Store   sources.Backend
	Revenue sources.RevenueSource
	// Ready reports whether the backend can serve requests. Nil means always ready.
	Ready   func(ctx context.Context) error
	Cleanup CleanupFunc
}

// Factory creates backends based on configuration
type Factory interface {
	// CreateBackend creates a backend instance based on the provided config
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config holds configuration for backend creation
type Config struct {
	// Backend type
	Type BackendType

	// Persistence API specific
	APIURL          string
	APIToken        string
	RevenuePath     string
	CashEntriesPath string
	HTTPTimeout     time.Duration

	// SQLite specific
	SQLiteDBPath string

	// Memory backend specific; empty starts with no data
	DataDirectory string

	// Revenue cache; size 0 disables it
	RevenueCacheTTL  time.Duration
	RevenueCacheSize int
}

// BackendType represents the type of backend
type BackendType string

const (
	APIBackend    BackendType = "api"
	SQLiteBackend BackendType = "sqlite"
	MemoryBackend BackendType = "memory"
)

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case APIBackend, SQLiteBackend, MemoryBackend:
		return true
	default:
		return false
	}
}
