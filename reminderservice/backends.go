package reminderservice

import (
	"context"
	"fmt"
	"log/slog"

	"cloud.google.com/go/firestore"

	"github.com/tinywideclouds/go-reminder-service/internal/credential"
	"github.com/tinywideclouds/go-reminder-service/internal/storage/cache"
	fsStore "github.com/tinywideclouds/go-reminder-service/internal/storage/firestore"
	pgStore "github.com/tinywideclouds/go-reminder-service/internal/storage/postgres"
	"github.com/tinywideclouds/go-reminder-service/pkg/dispatch"
	"github.com/tinywideclouds/go-reminder-service/reminderservice/config"
)

// Backends holds the storage and cache clients selected by configuration.
type Backends struct {
	Store dispatch.Store
	// TokenCache shares bearer credentials through Redis; nil when Redis is disabled.
	TokenCache credential.TokenCache

	closers []func()
}

// OpenBackends connects the configured store, decorating it with the Redis
// read-aside cache when Redis is enabled.
func OpenBackends(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Backends, error) {
	b := &Backends{}

	switch cfg.StorageBackend {
	case config.StoragePostgres:
		db, err := pgStore.New(ctx, pgStore.Config{
			URL:          cfg.Postgres.URL,
			MaxConns:     cfg.Postgres.MaxConns,
			QueryTimeout: cfg.Postgres.QueryTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("postgres connection failed: %w", err)
		}
		b.closers = append(b.closers, db.Close)
		if err := db.Migrate(ctx); err != nil {
			b.Close()
			return nil, fmt.Errorf("postgres migration failed: %w", err)
		}
		b.Store = pgStore.NewStore(db)
	default:
		fsClient, err := firestore.NewClient(ctx, cfg.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("firestore client failed: %w", err)
		}
		b.closers = append(b.closers, func() { _ = fsClient.Close() })
		b.Store = fsStore.NewFirestoreStore(fsClient, logger)
	}
	logger.Info("Store initialized", "type", cfg.StorageBackend)

	if cfg.Redis.Enabled {
		logger.Info("Initializing Redis Cache layer...", "addr", cfg.Redis.Addr)
		redisClient, err := cache.NewRedisClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		b.closers = append(b.closers, func() { _ = redisClient.Close() })
		b.Store = cache.NewCachedStore(b.Store, redisClient, cfg.Redis.TokenTTL, logger)
		b.TokenCache = cache.NewAssertionCache(redisClient, nil, logger)
		logger.Info("Store upgraded", "type", "redis_cached_"+cfg.StorageBackend)
	}

	return b, nil
}

// Close releases the clients in reverse order of creation.
func (b *Backends) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
	b.closers = nil
}
