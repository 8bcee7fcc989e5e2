package cache

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tinywideclouds/go-reminder-service/pkg/dispatch"
)

// CacheClient defines the subset of Redis commands we need.
type CacheClient interface {
	// Get decodes the value into dest, or returns an error (ErrMiss when absent).
	Get(ctx context.Context, key string, dest any) error
	// Set stores the value with a TTL.
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	// Del removes the key.
	Del(ctx context.Context, key string) error
}

// CachedStore is a Decorator that adds Read-Aside caching of token lists to
// any dispatch.Store. Preferences pass straight through.
type CachedStore struct {
	realStore dispatch.Store
	cache     CacheClient
	ttl       time.Duration
	logger    *slog.Logger
}

// NewCachedStore creates the decorator.
func NewCachedStore(realStore dispatch.Store, cache CacheClient, ttl time.Duration, logger *slog.Logger) *CachedStore {
	return &CachedStore{
		realStore: realStore,
		cache:     cache,
		ttl:       ttl,
		logger:    logger.With("component", "CachedStore"),
	}
}

// --- READ PATH (Read-Aside) ---

func (s *CachedStore) ListTokens(ctx context.Context, userID string) ([]dispatch.DeviceToken, error) {
	key := s.cacheKey(userID)

	var cached []dispatch.DeviceToken
	if err := s.cache.Get(ctx, key, &cached); err == nil {
		return cached, nil
	}

	fresh, err := s.realStore.ListTokens(ctx, userID)
	if err != nil {
		return nil, err
	}

	// Caching is an optimization; if Redis is down we just serve from the DB.
	if err := s.cache.Set(ctx, key, fresh, s.ttl); err != nil {
		s.logger.Debug("Failed to populate token cache", "user", userID, "err", err)
	}
	return fresh, nil
}

func (s *CachedStore) GetPreference(ctx context.Context, userID string) (*dispatch.NotificationPreference, error) {
	return s.realStore.GetPreference(ctx, userID)
}

// --- WRITE PATHS (Invalidate-on-Write) ---

func (s *CachedStore) RegisterToken(ctx context.Context, token dispatch.DeviceToken) error {
	if err := s.realStore.RegisterToken(ctx, token); err != nil {
		return err
	}
	return s.invalidate(ctx, token.UserID)
}

// DeleteToken must clear the cache so a pruned token is not sent to again.
func (s *CachedStore) DeleteToken(ctx context.Context, token dispatch.DeviceToken) error {
	if err := s.realStore.DeleteToken(ctx, token); err != nil {
		return err
	}
	return s.invalidate(ctx, token.UserID)
}

func (s *CachedStore) SetPreference(ctx context.Context, pref dispatch.NotificationPreference) error {
	return s.realStore.SetPreference(ctx, pref)
}

// --- Helpers ---

func (s *CachedStore) invalidate(ctx context.Context, userID string) error {
	if err := s.cache.Del(ctx, s.cacheKey(userID)); err != nil {
		return fmt.Errorf("failed to invalidate token cache for %s: %w", userID, err)
	}
	return nil
}

func (s *CachedStore) cacheKey(userID string) string {
	return fmt.Sprintf("notify:tokens:%s", userID)
}
