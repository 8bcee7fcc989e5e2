package cache_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/tinywideclouds/go-reminder-service/internal/storage/cache"
	"github.com/tinywideclouds/go-reminder-service/pkg/dispatch"
)

// --- Mocks ---
type MockCache struct {
	mock.Mock
}

func (m *MockCache) Get(ctx context.Context, key string, dest any) error {
	args := m.Called(ctx, key, dest)
	return args.Error(0)
}
func (m *MockCache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	return m.Called(ctx, key, value, ttl).Error(0)
}
func (m *MockCache) Del(ctx context.Context, key string) error {
	return m.Called(ctx, key).Error(0)
}

type MockRealStore struct {
	mock.Mock
}

func (m *MockRealStore) GetPreference(ctx context.Context, userID string) (*dispatch.NotificationPreference, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*dispatch.NotificationPreference), args.Error(1)
}
func (m *MockRealStore) SetPreference(ctx context.Context, pref dispatch.NotificationPreference) error {
	return m.Called(ctx, pref).Error(0)
}
func (m *MockRealStore) RegisterToken(ctx context.Context, token dispatch.DeviceToken) error {
	return m.Called(ctx, token).Error(0)
}
func (m *MockRealStore) ListTokens(ctx context.Context, userID string) ([]dispatch.DeviceToken, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]dispatch.DeviceToken), args.Error(1)
}
func (m *MockRealStore) DeleteToken(ctx context.Context, token dispatch.DeviceToken) error {
	return m.Called(ctx, token).Error(0)
}

// memCache is a JSON-encoding CacheClient backed by a map.
type memCache struct {
	mu    sync.Mutex
	items map[string][]byte
	ttls  map[string]time.Duration
}

func newMemCache() *memCache {
	return &memCache{items: map[string][]byte{}, ttls: map[string]time.Duration{}}
}

func (c *memCache) Get(_ context.Context, key string, dest any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	raw, ok := c.items[key]
	if !ok {
		return cache.ErrMiss
	}
	return json.Unmarshal(raw, dest)
}

func (c *memCache) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = raw
	c.ttls[key] = ttl
	return nil
}

func (c *memCache) Del(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
	return nil
}

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

const (
	userID   = "2c1b9a8e-7f6d-4c5b-a3e2-1d0c9b8a7f6e"
	cacheKey = "notify:tokens:2c1b9a8e-7f6d-4c5b-a3e2-1d0c9b8a7f6e"
)

func TestCachedStore_ImmediateInvalidation(t *testing.T) {
	ctx := context.Background()
	mockCache := new(MockCache)
	mockDB := new(MockRealStore)

	store := cache.NewCachedStore(mockDB, mockCache, 1*time.Hour, newTestLogger())

	t.Run("Delete invalidates cache immediately", func(t *testing.T) {
		token := dispatch.DeviceToken{UserID: userID, PushToken: "dead-token"}
		mockDB.On("DeleteToken", ctx, token).Return(nil)
		mockCache.On("Del", ctx, cacheKey).Return(nil)

		err := store.DeleteToken(ctx, token)

		require.NoError(t, err)
		mockDB.AssertExpectations(t)
		mockCache.AssertExpectations(t)
	})

	t.Run("Subsequent List hits DB (Cache Miss)", func(t *testing.T) {
		mockCache.On("Get", ctx, cacheKey, mock.Anything).Return(cache.ErrMiss).Once()

		empty := []dispatch.DeviceToken{}
		mockDB.On("ListTokens", ctx, userID).Return(empty, nil).Once()
		mockCache.On("Set", ctx, cacheKey, empty, time.Hour).Return(nil).Once()

		tokens, err := store.ListTokens(ctx, userID)

		require.NoError(t, err)
		require.Empty(t, tokens)
		mockDB.AssertExpectations(t)
		mockCache.AssertExpectations(t)
	})
}

func TestCachedStore_CacheHitSkipsDB(t *testing.T) {
	ctx := context.Background()
	mockCache := new(MockCache)
	mockDB := new(MockRealStore)
	store := cache.NewCachedStore(mockDB, mockCache, time.Hour, newTestLogger())

	cached := []dispatch.DeviceToken{{UserID: userID, PushToken: "t1"}}
	mockCache.On("Get", ctx, cacheKey, mock.Anything).Run(func(args mock.Arguments) {
		dest := args.Get(2).(*[]dispatch.DeviceToken)
		*dest = cached
	}).Return(nil)

	tokens, err := store.ListTokens(ctx, userID)

	require.NoError(t, err)
	assert.Equal(t, cached, tokens)
	mockDB.AssertNotCalled(t, "ListTokens", mock.Anything, mock.Anything)
}

func TestCachedStore_WritesAndPassThrough(t *testing.T) {
	ctx := context.Background()

	t.Run("Failed DB write leaves cache alone", func(t *testing.T) {
		mockCache := new(MockCache)
		mockDB := new(MockRealStore)
		store := cache.NewCachedStore(mockDB, mockCache, time.Hour, newTestLogger())
		token := dispatch.DeviceToken{UserID: userID, PushToken: "t"}
		mockDB.On("RegisterToken", ctx, token).Return(errors.New("db down"))

		err := store.RegisterToken(ctx, token)

		require.Error(t, err)
		mockCache.AssertNotCalled(t, "Del", mock.Anything, mock.Anything)
	})

	t.Run("Register invalidates", func(t *testing.T) {
		c := newMemCache()
		mockDB := new(MockRealStore)
		store := cache.NewCachedStore(mockDB, c, time.Hour, newTestLogger())
		stale := []dispatch.DeviceToken{{UserID: userID, PushToken: "old"}}
		require.NoError(t, c.Set(ctx, cacheKey, stale, time.Hour))

		token := dispatch.DeviceToken{UserID: userID, PushToken: "new"}
		mockDB.On("RegisterToken", ctx, token).Return(nil)
		require.NoError(t, store.RegisterToken(ctx, token))

		fresh := []dispatch.DeviceToken{stale[0], token}
		mockDB.On("ListTokens", ctx, userID).Return(fresh, nil).Once()
		tokens, err := store.ListTokens(ctx, userID)
		require.NoError(t, err)
		assert.Equal(t, fresh, tokens)

		// Second read is served from the refilled cache.
		tokens, err = store.ListTokens(ctx, userID)
		require.NoError(t, err)
		assert.Equal(t, fresh, tokens)
		mockDB.AssertNumberOfCalls(t, "ListTokens", 1)
	})

	t.Run("Preferences are not cached", func(t *testing.T) {
		mockCache := new(MockCache)
		mockDB := new(MockRealStore)
		store := cache.NewCachedStore(mockDB, mockCache, time.Hour, newTestLogger())
		pref := dispatch.NotificationPreference{UserID: userID, MealRemindersEnabled: true}
		mockDB.On("SetPreference", ctx, pref).Return(nil)
		mockDB.On("GetPreference", ctx, userID).Return(&pref, nil)

		require.NoError(t, store.SetPreference(ctx, pref))
		got, err := store.GetPreference(ctx, userID)

		require.NoError(t, err)
		assert.Equal(t, &pref, got)
		mockCache.AssertNotCalled(t, "Get", mock.Anything, mock.Anything, mock.Anything)
	})
}
