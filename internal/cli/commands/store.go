package commands

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/conduit-lang/seedling/internal/config"
	"github.com/conduit-lang/seedling/internal/demo"
	"github.com/conduit-lang/seedling/internal/repository/memory"
	"github.com/conduit-lang/seedling/internal/repository/redisstore"
	"github.com/conduit-lang/seedling/internal/repository/sqlstore"
	"github.com/conduit-lang/seedling/internal/seed"
)

// openStore opens the repository selected by cfg.Store. The returned close
// function releases its connections.
func openStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (seed.Repository, func() error, error) {
	switch cfg.Store {
	case config.StoreMemory:
		return memory.New(), func() error { return nil }, nil

	case config.StoreSQL:
		store, err := sqlstore.Open(cfg.Database.Driver, cfg.Database.URL, sqlstore.WithLogger(logger))
		if err != nil {
			return nil, nil, err
		}
		if err := store.CreateTables(ctx, demo.Types()...); err != nil {
			store.Close()
			return nil, nil, err
		}
		return store, store.Close, nil

	case config.StoreRedis:
		store, err := redisstore.Open(redisstore.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Prefix:   cfg.Redis.Prefix,
		}, redisstore.WithLogger(logger))
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil

	default:
		return nil, nil, fmt.Errorf("unknown store %q", cfg.Store)
	}
}
