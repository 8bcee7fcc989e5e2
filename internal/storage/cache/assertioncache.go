package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tinywideclouds/go-reminder-service/internal/credential"
)

// AssertionCache shares bearer credentials between service instances.
// It satisfies credential.TokenCache.
type AssertionCache struct {
	cache  CacheClient
	now    func() time.Time
	logger *slog.Logger
}

func NewAssertionCache(cache CacheClient, now func() time.Time, logger *slog.Logger) *AssertionCache {
	if now == nil {
		now = time.Now
	}
	return &AssertionCache{cache: cache, now: now, logger: logger.With("component", "AssertionCache")}
}

func (c *AssertionCache) Get(ctx context.Context, key string) (credential.Assertion, bool) {
	var a credential.Assertion
	if err := c.cache.Get(ctx, c.cacheKey(key), &a); err != nil {
		if !errors.Is(err, ErrMiss) {
			c.logger.Warn("Assertion cache read failed", "err", err)
		}
		return credential.Assertion{}, false
	}
	return a, true
}

func (c *AssertionCache) Set(ctx context.Context, key string, a credential.Assertion) {
	ttl := a.ExpiresAt.Sub(c.now())
	if ttl <= 0 {
		return
	}
	if err := c.cache.Set(ctx, c.cacheKey(key), a, ttl); err != nil {
		c.logger.Warn("Assertion cache write failed", "err", err)
	}
}

func (c *AssertionCache) cacheKey(key string) string {
	return fmt.Sprintf("notify:assertion:%s", key)
}
