package storage

import (
	"context"
	"fmt"

	"NewsRelay/internal/config"
	"NewsRelay/internal/ports"
)

// Open selects the RunState backend named by cfg.Driver.
func Open(ctx context.Context, cfg config.StateConfig) (ports.StateStore, error) {
	key := cfg.Key
	if key == "" {
		key = "newsrelay"
	}

	switch cfg.Driver {
	case config.DriverFile, "":
		return NewFileStore(cfg.DSN)
	case config.DriverSQLite, config.DriverPostgres:
		return OpenSQL(ctx, cfg.Driver, cfg.DSN, key)
	case config.DriverRedis:
		return NewRedisStoreWithURL(ctx, cfg.DSN, key)
	default:
		return nil, fmt.Errorf("unsupported state driver %q", cfg.Driver)
	}
}
