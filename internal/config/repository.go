package config

import (
	"context"
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"

	"task-sync/internal/repository/sqlite"
	"task-sync/internal/store"
)

// StoreConfig translates the storage section for store.Open.
func (c *Config) StoreConfig(logger log.FieldLogger) store.Config {
	return store.Config{
		Path:          c.GetDatabasePath(),
		FallbackDir:   c.Storage.FallbackDir,
		RedisURL:      c.Storage.RedisURL,
		ForceDegraded: c.Storage.ForceDegraded,
		DirPerm:       os.FileMode(c.Storage.DirPermissions),
		Logger:        logger,
	}
}

// OpenStore opens the local store using the configuration system
func OpenStore(ctx context.Context, config *Config, logger log.FieldLogger) (*store.Store, error) {
	s, err := store.Open(ctx, config.StoreConfig(logger))
	if err != nil {
		return nil, fmt.Errorf("failed to open local store: %w", err)
	}
	return s, nil
}

// OpenTestStore opens an in-memory store for testing
func OpenTestStore(ctx context.Context) (*store.Store, error) {
	repo, err := sqlite.New(ctx, ":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to initialize test database: %w", err)
	}
	return store.New(repo, nil), nil
}
