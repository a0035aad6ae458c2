package control

import (
	"context"
	"fmt"

	"github.com/vietddude/deliverycal/internal/core/config"
	"github.com/vietddude/deliverycal/internal/infra/cache"
)

// OpenStore initializes the cache store selected by cfg. The returned close
// function releases backend connections and is never nil.
func OpenStore(ctx context.Context, cfg Config) (cache.Store, func() error, error) {
	noop := func() error { return nil }

	switch cfg.CacheBackend {
	case "", config.BackendFile:
		store, err := cache.NewFileStore(cfg.CacheDir)
		if err != nil {
			return nil, noop, fmt.Errorf("failed to init file cache: %w", err)
		}
		return store, noop, nil

	case config.BackendMemory:
		return cache.NewMemoryStore(), noop, nil

	case config.BackendRedis:
		store, err := cache.NewRedisStore(ctx, cfg.Redis, cfg.CacheRetention)
		if err != nil {
			return nil, noop, fmt.Errorf("failed to init redis cache: %w", err)
		}
		return store, store.Close, nil

	case config.BackendPostgres:
		store, err := cache.NewPostgresStore(ctx, cfg.Database, cfg.CacheRetention)
		if err != nil {
			return nil, noop, fmt.Errorf("failed to init postgres cache: %w", err)
		}
		return store, store.Close, nil

	default:
		return nil, noop, fmt.Errorf("unknown cache backend %q", cfg.CacheBackend)
	}
}
