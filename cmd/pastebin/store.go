package main

import (
	"github.com/pkg/errors"

	"pastebin-lite/internal/config"
	"pastebin-lite/internal/storage"
	"pastebin-lite/internal/storage/boltstore"
	"pastebin-lite/internal/storage/cachedstore"
	"pastebin-lite/internal/storage/memstore"
	"pastebin-lite/internal/storage/pgstore"
	"pastebin-lite/internal/storage/redisstore"
	"pastebin-lite/internal/storage/sqlitestore"
)

func openStore(cfg *config.Config) (storage.Store, error) {
	var (
		store storage.Store
		err   error
	)
	switch cfg.StoreDriver {
	case config.DriverBolt:
		store, err = boltstore.Open(cfg.DataPath)
	case config.DriverSQLite:
		store, err = sqlitestore.Open(cfg.DataPath)
	case config.DriverRedis:
		store, err = redisstore.Open(cfg.RedisURL, redisstore.Options{Grace: cfg.RedisGrace})
	case config.DriverPostgres:
		store, err = pgstore.Open(cfg.PostgresDSN)
	case config.DriverMemory:
		store = memstore.New()
	default:
		return nil, errors.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
	if err != nil {
		return nil, err
	}
	if cfg.CacheSize <= 0 {
		return store, nil
	}
	cached, err := cachedstore.New(store, cfg.CacheSize, cfg.CacheTTL)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	return cached, nil
}
