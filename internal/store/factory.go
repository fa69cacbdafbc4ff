package store

import (
	"context"
	"fmt"

	"bk-go/internal/bk"
	"bk-go/internal/config"
	"bk-go/internal/database"
)

// NewRecordStoreFromConfig opens the backend selected by cfg.Type. SQL
// backends are returned as *database.SQLStore so callers can manage the
// schema.
func NewRecordStoreFromConfig(ctx context.Context, cfg config.StoreConfig) (bk.RecordStore, error) {
	switch cfg.Type {
	case "memory":
		return NewMemoryStore(), nil
	case "filesystem":
		if cfg.FSRoot == "" {
			return nil, fmt.Errorf("filesystem store requires fs_root to be set")
		}
		return NewFileSystemStore(cfg.FSRoot)
	case "sqlite", "postgres":
		return database.NewSQLStoreFromConfig(ctx, cfg)
	case "s3":
		return NewS3Store(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown store type: %s", cfg.Type)
	}
}
