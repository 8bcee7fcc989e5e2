package credential_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tinywideclouds/go-reminder-service/internal/credential"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeClock is a settable clock shared by the fake source and the cache.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// countingSource mints opaque assertions valid for one hour from the clock.
type countingSource struct {
	clock *fakeClock
	calls atomic.Int32
	delay time.Duration
	err   error
}

func (s *countingSource) Bearer(_ context.Context) (credential.Assertion, error) {
	n := s.calls.Add(1)
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	if s.err != nil {
		return credential.Assertion{}, s.err
	}
	now := s.clock.Now()
	return credential.Assertion{
		Token:     fmt.Sprintf("assertion-%d", n),
		IssuedAt:  now,
		ExpiresAt: now.Add(time.Hour),
	}, nil
}

func TestCaching_ReusesUntilRefreshWindow(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: fixedNow}
	src := &countingSource{clock: clock}
	caching := credential.NewCaching(src, credential.NewMemoryCache(), "key", 5*time.Minute, clock.Now, newTestLogger())

	first, err := caching.Bearer(ctx)
	require.NoError(t, err)
	assert.Equal(t, "assertion-1", first.Token)

	clock.Set(fixedNow.Add(30 * time.Minute))
	again, err := caching.Bearer(ctx)
	require.NoError(t, err)
	assert.Equal(t, first.Token, again.Token)
	assert.Equal(t, int32(1), src.calls.Load())

	// Inside the five minute refresh window the assertion is replaced.
	clock.Set(fixedNow.Add(56 * time.Minute))
	refreshed, err := caching.Bearer(ctx)
	require.NoError(t, err)
	assert.Equal(t, "assertion-2", refreshed.Token)
	assert.Equal(t, int32(2), src.calls.Load())
}

func TestCaching_ConcurrentCallersShareOneMint(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: fixedNow}
	src := &countingSource{clock: clock, delay: 50 * time.Millisecond}
	caching := credential.NewCaching(src, credential.NewMemoryCache(), "key", 0, clock.Now, newTestLogger())

	var wg sync.WaitGroup
	tokens := make([]string, 20)
	for i := range tokens {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a, err := caching.Bearer(ctx)
			assert.NoError(t, err)
			tokens[i] = a.Token
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), src.calls.Load())
	for _, tok := range tokens {
		assert.Equal(t, "assertion-1", tok)
	}
}

// gatedSource blocks each mint until release is closed, failing early if
// its context is cancelled first.
type gatedSource struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once
	calls   atomic.Int32
}

func (s *gatedSource) Bearer(ctx context.Context) (credential.Assertion, error) {
	s.calls.Add(1)
	s.once.Do(func() { close(s.started) })
	select {
	case <-s.release:
	case <-ctx.Done():
		return credential.Assertion{}, ctx.Err()
	}
	return credential.Assertion{Token: "gated", IssuedAt: fixedNow, ExpiresAt: fixedNow.Add(time.Hour)}, nil
}

func TestCaching_CancelledLeaderDoesNotFailWaiters(t *testing.T) {
	src := &gatedSource{started: make(chan struct{}), release: make(chan struct{})}
	caching := credential.NewCaching(src, credential.NewMemoryCache(), "key", 0, func() time.Time { return fixedNow }, newTestLogger())

	leaderCtx, cancel := context.WithCancel(context.Background())
	leaderErr := make(chan error, 1)
	go func() {
		_, err := caching.Bearer(leaderCtx)
		leaderErr <- err
	}()
	<-src.started

	type result struct {
		a   credential.Assertion
		err error
	}
	waiter := make(chan result, 1)
	go func() {
		a, err := caching.Bearer(context.Background())
		waiter <- result{a, err}
	}()
	time.Sleep(20 * time.Millisecond)

	cancel()
	select {
	case err := <-leaderErr:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("cancelled leader did not return")
	}

	close(src.release)
	select {
	case r := <-waiter:
		require.NoError(t, r.err)
		assert.Equal(t, "gated", r.a.Token)
	case <-time.After(time.Second):
		t.Fatal("waiter did not receive the shared mint")
	}
	assert.Equal(t, int32(1), src.calls.Load())
}

func TestCaching_ErrorsAreNotCached(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: fixedNow}
	src := &countingSource{clock: clock, err: credential.ErrInvalidKey}
	caching := credential.NewCaching(src, credential.NewMemoryCache(), "key", 0, clock.Now, newTestLogger())

	_, err := caching.Bearer(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, credential.ErrInvalidKey))

	src.err = nil
	a, err := caching.Bearer(ctx)
	require.NoError(t, err)
	assert.Equal(t, "assertion-2", a.Token)
}

func TestCaching_WithSelfSignedSource(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: fixedNow}
	sa := newTestAccount(t, newTestKey(t))
	caching := credential.NewCaching(credential.NewSelfSigned(sa, clock.Now), credential.NewMemoryCache(), sa.CacheKey(), 0, clock.Now, newTestLogger())

	first, err := caching.Bearer(ctx)
	require.NoError(t, err)
	clock.Set(fixedNow.Add(time.Minute))
	second, err := caching.Bearer(ctx)
	require.NoError(t, err)

	assert.Equal(t, first.Token, second.Token)
	assert.Equal(t, fixedNow, first.IssuedAt.UTC())
}

func TestMemoryCache(t *testing.T) {
	ctx := context.Background()
	cache := credential.NewMemoryCache()

	_, ok := cache.Get(ctx, "missing")
	assert.False(t, ok)

	a := credential.Assertion{Token: "tok", IssuedAt: fixedNow, ExpiresAt: fixedNow.Add(time.Hour)}
	cache.Set(ctx, "k", a)
	got, ok := cache.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, a, got)

	// An assertion without a validity window is never stored.
	cache.Set(ctx, "empty", credential.Assertion{Token: "x", IssuedAt: fixedNow, ExpiresAt: fixedNow})
	_, ok = cache.Get(ctx, "empty")
	assert.False(t, ok)
}
