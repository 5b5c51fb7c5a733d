package streams

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/aura-live/backend/config"
	"github.com/aura-live/backend/internal/live"
	"github.com/aura-live/backend/pkg/database"
)

// Open connects the store selected by cfg.Driver and applies its schema.
// The returned func releases the connection pool.
func Open(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) (live.Store, func(), error) {
	switch cfg.Driver {
	case "postgres":
		pool, err := database.NewPostgresPool(ctx, cfg.DSN(), logger)
		if err != nil {
			return nil, nil, err
		}
		return NewRepository(pool), pool.Close, nil
	case "sqlite":
		db, err := database.NewSQLite(ctx, cfg.SQLitePath, logger)
		if err != nil {
			return nil, nil, err
		}
		return NewSQLiteRepository(db), func() { _ = db.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}
