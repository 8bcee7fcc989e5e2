package credential

import (
	"context"
	"log/slog"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"
)

// DefaultRefreshBefore is how long before expiry a cached assertion is replaced.
const DefaultRefreshBefore = 5 * time.Minute

// TokenCache stores assertions by credential identity.
type TokenCache interface {
	// Get returns the cached assertion, or false on a miss. Backend errors
	// are reported as misses.
	Get(ctx context.Context, key string) (Assertion, bool)
	Set(ctx context.Context, key string, a Assertion)
}

// Caching memoises the assertions of another Source until they come close to
// expiry. Concurrent callers share a single mint.
type Caching struct {
	next          Source
	cache         TokenCache
	key           string
	refreshBefore time.Duration
	now           func() time.Time
	group         singleflight.Group
	logger        *slog.Logger
}

// NewCaching wraps next. key should identify the credential (see
// ServiceAccount.CacheKey). A non-positive refreshBefore uses
// DefaultRefreshBefore and a nil clock uses time.Now.
func NewCaching(next Source, cache TokenCache, key string, refreshBefore time.Duration, now func() time.Time, logger *slog.Logger) *Caching {
	if refreshBefore <= 0 {
		refreshBefore = DefaultRefreshBefore
	}
	if now == nil {
		now = time.Now
	}
	return &Caching{
		next:          next,
		cache:         cache,
		key:           key,
		refreshBefore: refreshBefore,
		now:           now,
		logger:        logger.With("component", "CachingCredentialSource"),
	}
}

func (c *Caching) Bearer(ctx context.Context) (Assertion, error) {
	if a, ok := c.lookup(ctx); ok {
		return a, nil
	}

	// The mint is shared, so it must not inherit one caller's cancellation.
	mintCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(c.key, func() (any, error) {
		// Another caller may have refreshed while we waited.
		if a, ok := c.lookup(mintCtx); ok {
			return a, nil
		}
		a, err := c.next.Bearer(mintCtx)
		if err != nil {
			return nil, err
		}
		c.cache.Set(mintCtx, c.key, a)
		c.logger.Debug("Minted new bearer credential", "expires_at", a.ExpiresAt)
		return a, nil
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		return Assertion{}, ctx.Err()
	}
	if res.Err != nil {
		return Assertion{}, res.Err
	}
	if res.Shared {
		c.logger.Debug("Shared in-flight credential mint")
	}
	return res.Val.(Assertion), nil
}

func (c *Caching) lookup(ctx context.Context) (Assertion, bool) {
	a, ok := c.cache.Get(ctx, c.key)
	if !ok || !a.ValidAt(c.now(), c.refreshBefore) {
		return Assertion{}, false
	}
	return a, true
}

// MemoryCache is an in-process TokenCache.
type MemoryCache struct {
	items *gocache.Cache
}

// NewMemoryCache creates an empty cache. Expired items are dropped lazily on
// read; no janitor goroutine is started.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{items: gocache.New(gocache.NoExpiration, 0)}
}

func (m *MemoryCache) Get(_ context.Context, key string) (Assertion, bool) {
	v, ok := m.items.Get(key)
	if !ok {
		return Assertion{}, false
	}
	a, ok := v.(Assertion)
	return a, ok
}

func (m *MemoryCache) Set(_ context.Context, key string, a Assertion) {
	ttl := a.ExpiresAt.Sub(a.IssuedAt)
	if ttl <= 0 {
		return
	}
	m.items.Set(key, a, ttl)
}
