package catalog

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestCache(ttl, stale time.Duration) (*Cache, *fakeClock) {
	clock := &fakeClock{now: time.Date(2024, 3, 21, 8, 0, 0, 0, time.UTC)}
	c := NewCache(ttl, stale, nil)
	c.now = clock.Now
	return c, clock
}

// counter returns a Loader yielding 1, 2, 3...
func counter(calls *int32) Loader {
	return func(context.Context) (interface{}, error) {
		return int(atomic.AddInt32(calls, 1)), nil
	}
}

func TestCache_Get(t *testing.T) {
	ctx := context.Background()
	c, clock := newTestCache(time.Minute, 10*time.Minute)
	var calls int32

	val, cached, err := c.Get(ctx, "k", counter(&calls))
	require.NoError(t, err)
	assert.Equal(t, 1, val)
	assert.False(t, cached)

	// fresh
	clock.Advance(30 * time.Second)
	val, cached, err = c.Get(ctx, "k", counter(&calls))
	require.NoError(t, err)
	assert.Equal(t, 1, val)
	assert.True(t, cached)

	// stale: old value served, refreshed in the background
	clock.Advance(time.Minute)
	val, cached, err = c.Get(ctx, "k", counter(&calls))
	require.NoError(t, err)
	assert.Equal(t, 1, val)
	assert.True(t, cached)
	c.Wait()

	val, cached, err = c.Get(ctx, "k", counter(&calls))
	require.NoError(t, err)
	assert.Equal(t, 2, val)
	assert.True(t, cached)

	// expired past the stale window: synchronous load
	clock.Advance(time.Hour)
	val, cached, err = c.Get(ctx, "k", counter(&calls))
	require.NoError(t, err)
	assert.Equal(t, 3, val)
	assert.False(t, cached)
	assert.EqualValues(t, 3, atomic.LoadInt32(&calls))
}

func TestCache_SingleBackgroundRefresh(t *testing.T) {
	ctx := context.Background()
	c, clock := newTestCache(time.Minute, 10*time.Minute)
	var calls int32

	_, _, err := c.Get(ctx, "k", counter(&calls))
	require.NoError(t, err)
	clock.Advance(2 * time.Minute)

	release := make(chan struct{})
	slow := func(ctx context.Context) (interface{}, error) {
		<-release
		return counter(&calls)(ctx)
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			val, cached, err := c.Get(ctx, "k", slow)
			assert.NoError(t, err)
			assert.Equal(t, 1, val)
			assert.True(t, cached)
		}()
	}
	wg.Wait()
	close(release)
	c.Wait()

	assert.EqualValues(t, 2, atomic.LoadInt32(&calls))
}

func TestCache_InvalidateDuringRefresh(t *testing.T) {
	ctx := context.Background()
	c, clock := newTestCache(time.Minute, 10*time.Minute)

	_, _, err := c.Get(ctx, "k", func(context.Context) (interface{}, error) { return "v1", nil })
	require.NoError(t, err)
	clock.Advance(2 * time.Minute)

	started, release := make(chan struct{}), make(chan struct{})
	outdated := func(context.Context) (interface{}, error) {
		close(started)
		<-release
		return "outdated", nil
	}
	val, cached, err := c.Get(ctx, "k", outdated)
	require.NoError(t, err)
	assert.Equal(t, "v1", val)
	assert.True(t, cached)

	<-started
	c.Invalidate()
	close(release)
	c.Wait()

	// the refresh started before the invalidation must not be stored
	assert.Equal(t, 0, c.Len())
	val, cached, err = c.Get(ctx, "k", func(context.Context) (interface{}, error) { return "v2", nil })
	require.NoError(t, err)
	assert.Equal(t, "v2", val)
	assert.False(t, cached)
}

func TestCache_LoadError(t *testing.T) {
	ctx := context.Background()
	c, clock := newTestCache(time.Minute, 10*time.Minute)
	errBoom := errors.New("boom")

	_, _, err := c.Get(ctx, "k", func(context.Context) (interface{}, error) { return nil, errBoom })
	assert.Equal(t, errBoom, err)
	assert.Equal(t, 0, c.Len())

	var calls int32
	_, _, err = c.Get(ctx, "k", counter(&calls))
	require.NoError(t, err)

	// a failed refresh keeps serving the stale value and allows another refresh
	clock.Advance(2 * time.Minute)
	val, _, err := c.Get(ctx, "k", func(context.Context) (interface{}, error) { return nil, errBoom })
	require.NoError(t, err)
	assert.Equal(t, 1, val)
	c.Wait()

	val, cached, err := c.Get(ctx, "k", counter(&calls))
	require.NoError(t, err)
	assert.Equal(t, 1, val)
	assert.True(t, cached)
	c.Wait()

	val, _, err = c.Get(ctx, "k", counter(&calls))
	require.NoError(t, err)
	assert.Equal(t, 2, val)
}

func TestCache_Disabled(t *testing.T) {
	c := NewCache(0, 0, nil)
	var calls int32
	for i := 1; i <= 3; i++ {
		val, cached, err := c.Get(context.Background(), "k", counter(&calls))
		require.NoError(t, err)
		assert.Equal(t, i, val)
		assert.False(t, cached)
	}
}
