package main

import (
	"context"
	"fmt"

	"ephemeral-paste/internal/config"
	"ephemeral-paste/internal/storage"
	"ephemeral-paste/internal/storage/boltstore"
	"ephemeral-paste/internal/storage/redisstore"
)

func openStore(ctx context.Context, cfg *config.Config) (storage.Store, error) {
	switch cfg.Store {
	case config.StoreRedis:
		return redisstore.Open(ctx, cfg.Redis)
	case config.StoreBolt:
		return boltstore.Open(cfg.DataPath)
	case config.StoreSQLite:
		return openSQLite(cfg.DataPath)
	default:
		return nil, fmt.Errorf("unknown store %q", cfg.Store)
	}
}
