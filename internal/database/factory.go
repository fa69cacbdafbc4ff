package database

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"bk-go/internal/config"
)

// NewSQLStoreFromConfig opens the SQL backend selected by cfg.Type.
// The schema is not touched; callers check or apply migrations.
func NewSQLStoreFromConfig(ctx context.Context, cfg config.StoreConfig) (*SQLStore, error) {
	switch cfg.Type {
	case "sqlite":
		if cfg.SQLitePath == "" {
			return nil, fmt.Errorf("sqlite_path required for sqlite store")
		}
		if cfg.SQLitePath != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0700); err != nil {
				return nil, fmt.Errorf("creating database directory: %w", err)
			}
		}
		return OpenSQLite(cfg.SQLitePath)
	case "postgres":
		if cfg.PostgresDSN == "" {
			return nil, fmt.Errorf("postgres_dsn required for postgres store")
		}
		return OpenPostgres(ctx, cfg.PostgresDSN)
	default:
		return nil, fmt.Errorf("not a sql store type: %s", cfg.Type)
	}
}
