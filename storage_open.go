package authclient

import (
	"context"
	"fmt"

	"github.com/MrEthical07/authclient/storage"
	"github.com/redis/go-redis/v9"
)

// OpenStorage opens the backend described by cfg. The returned close
// function releases backend resources and is never nil.
func OpenStorage(ctx context.Context, cfg StorageConfig) (storage.Storage, func() error, error) {
	noop := func() error { return nil }

	switch cfg.Backend {
	case "", StorageMemory:
		return storage.NewMemory(), noop, nil
	case StorageFile:
		if cfg.FilePath == "" {
			return nil, noop, fmt.Errorf("authclient: file storage requires a path")
		}
		return storage.NewFile(cfg.FilePath), noop, nil
	case StorageRedis:
		rdb := redis.NewClient(&redis.Options{
			Addr: cfg.RedisAddr,
			DB:   cfg.RedisDB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			return nil, noop, fmt.Errorf("authclient: redis storage: %w: %w", storage.ErrUnavailable, err)
		}
		return storage.NewRedis(rdb, cfg.RedisPrefix, cfg.RedisTTL), rdb.Close, nil
	default:
		return nil, noop, fmt.Errorf("authclient: unsupported storage backend %q", cfg.Backend)
	}
}
