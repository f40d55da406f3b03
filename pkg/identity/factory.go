package identity

import (
	"context"
	"fmt"
)

// StoreConfig contains configuration for creating a store
type StoreConfig struct {
	// PostgresURL is required for PostgreSQL stores
	PostgresURL string
	// AutoMigrate applies the embedded schema when opening a PostgreSQL store
	AutoMigrate bool
	// SQLiteDSN is required for SQLite stores
	SQLiteDSN string
	// DataDir is required for file-based stores
	DataDir string
}

// NewStore creates a store based on the persistence type
func NewStore(ctx context.Context, persistenceType string, config StoreConfig) (Store, error) {
	switch persistenceType {
	case "memory", "inmem", "":
		return NewInMemoryStore(), nil
	case "file":
		if config.DataDir == "" {
			return nil, fmt.Errorf("dataDir required for file store")
		}
		return NewFileStore(config.DataDir)
	case "sqlite":
		if config.SQLiteDSN == "" {
			return nil, fmt.Errorf("dsn required for sqlite store")
		}
		return OpenSQLiteStore(ctx, config.SQLiteDSN)
	case "postgres", "postgresql":
		if config.PostgresURL == "" {
			return nil, fmt.Errorf("connection url required for postgres store")
		}
		return OpenPostgresStore(ctx, config.PostgresURL, config.AutoMigrate)
	default:
		return nil, fmt.Errorf("unsupported persistence type: %s (supported: memory, file, sqlite, postgres)", persistenceType)
	}
}
