package storedriver

import (
	"context"
	"fmt"

	"elevenlab/config"
	"elevenlab/store"
	"elevenlab/store/memstore"
	"elevenlab/store/mongostore"
	"elevenlab/store/pgstore"
)

// Open returns the store selected by cfg.StoreDriver.
func Open(ctx context.Context, cfg config.Config) (store.Store, error) {
	switch cfg.StoreDriver {
	case config.StoreMemory:
		return memstore.New(), nil
	case config.StorePostgres:
		st, err := pgstore.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		return st, nil
	case config.StoreMongo:
		st, err := mongostore.Open(ctx, cfg.MongoURI, cfg.MongoDB)
		if err != nil {
			return nil, fmt.Errorf("mongo: %w", err)
		}
		return st, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}
