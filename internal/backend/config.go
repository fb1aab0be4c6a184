package backend

import (
	"fmt"

	"caisse/internal/config"
)

// FromAppConfig converts the application config to backend config
func FromAppConfig(appConfig *config.Config) (Config, error) {
	if appConfig == nil {
		return Config{}, fmt.Errorf("app config is nil")
	}

	backendType := BackendType(appConfig.DataBackend)
	if !backendType.IsValid() {
		return Config{}, fmt.Errorf("invalid backend type in config: %s", appConfig.DataBackend)
	}

	return Config{
		Type: backendType,

		APIURL:          appConfig.PersistenceAPIURL,
		APIToken:        appConfig.PersistenceAPIToken,
		RevenuePath:     appConfig.RevenuePath,
		CashEntriesPath: appConfig.CashEntriesPath,
		HTTPTimeout:     appConfig.HTTPClientTimeout,

		SQLiteDBPath:  appConfig.SQLiteDBPath,
		DataDirectory: appConfig.MemoryDataDir,

		RevenueCacheTTL:  appConfig.RevenueCacheTTL,
		RevenueCacheSize: appConfig.RevenueCacheSize,
	}, nil
}

// Validate validates the backend configuration
func (c Config) Validate() error {
	if !c.Type.IsValid() {
		return fmt.Errorf("invalid backend type: %s", c.Type)
	}

	switch c.Type {
	case APIBackend:
		if c.APIURL == "" {
			return fmt.Errorf("persistence API URL is required for api backend")
		}
	case SQLiteBackend:
		if c.SQLiteDBPath == "" {
			return fmt.Errorf("SQLite database path is required for sqlite backend")
		}
	case MemoryBackend:
		// an empty data directory starts with no data
	}

	if c.RevenueCacheSize < 0 {
		return fmt.Errorf("revenue cache size must not be negative")
	}
	return nil
}

// GetBackendTypes returns all valid backend types
func GetBackendTypes() []BackendType {
	return []BackendType{APIBackend, SQLiteBackend, MemoryBackend}
}

// GetBackendTypeStrings returns all valid backend type strings
func GetBackendTypeStrings() []string {
	types := GetBackendTypes()
	strings := make([]string, len(types))
	for i, t := range types {
		strings[i] = t.String()
	}
	return strings
}
