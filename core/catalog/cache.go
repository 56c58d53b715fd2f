package catalog

import (
	"context"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/saudamart/sauda/core"
)

// Loader loads the value of a cache entry.
type Loader func(ctx context.Context) (interface{}, error)

type cacheEntry struct {
	value      interface{}
	loadedAt   time.Time
	refreshing bool
}

// Cache keeps query results fresh for ttl. Past ttl and within the stale window,
// the stale value is served while a single background refresh runs.
// Past the stale window the value is loaded synchronously.
//
// Invalidate drops every entry; loads started before an invalidation are never stored.
// Cached values are shared and must not be mutated.
type Cache struct {
	ttl    time.Duration
	stale  time.Duration
	logger core.Logger

	mu      sync.Mutex
	gen     uint64
	entries map[string]*cacheEntry

	group singleflight.Group
	wg    sync.WaitGroup
	now   func() time.Time
}

// NewCache returns a Cache. A ttl <= 0 disables caching.
func NewCache(ttl, stale time.Duration, logger core.Logger) *Cache {
	if stale < 0 {
		stale = 0
	}
	return &Cache{
		ttl:     ttl,
		stale:   stale,
		logger:  logger,
		entries: make(map[string]*cacheEntry),
		now:     time.Now,
	}
}

// Get returns the value for key, loading it when missing or expired.
// cached reports whether the value was served from the cache.
func (c *Cache) Get(ctx context.Context, key string, load Loader) (val interface{}, cached bool, err error) {
	if c == nil || c.ttl <= 0 {
		val, err = load(ctx)
		return val, false, err
	}

	c.mu.Lock()
	gen := c.gen
	if e, ok := c.entries[key]; ok {
		age := c.now().Sub(e.loadedAt)
		if age < c.ttl {
			c.mu.Unlock()
			return e.value, true, nil
		}
		if age < c.ttl+c.stale {
			if !e.refreshing {
				e.refreshing = true
				c.wg.Add(1)
				go c.refresh(key, gen, load)
			}
			c.mu.Unlock()
			return e.value, true, nil
		}
	}
	c.mu.Unlock()

	val, err, _ = c.group.Do(c.flightKey(gen, key), func() (interface{}, error) {
		v, err := load(ctx)
		if err != nil {
			return nil, err
		}
		c.store(gen, key, v)
		return v, nil
	})
	return val, false, err
}

func (c *Cache) refresh(key string, gen uint64, load Loader) {
	defer c.wg.Done()

	_, err, _ := c.group.Do(c.flightKey(gen, key), func() (interface{}, error) {
		v, err := load(context.Background())
		if err != nil {
			return nil, err
		}
		c.store(gen, key, v)
		return v, nil
	})
	if err != nil {
		c.mu.Lock()
		if e, ok := c.entries[key]; ok && c.gen == gen {
			e.refreshing = false
		}
		c.mu.Unlock()
		if c.logger != nil {
			c.logger.Warn("catalog.Cache: refreshing "+key, err)
		}
	}
}

// store saves v unless the cache was invalidated since the load started.
func (c *Cache) store(gen uint64, key string, v interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		return
	}
	c.entries[key] = &cacheEntry{value: v, loadedAt: c.now()}
}

func (c *Cache) flightKey(gen uint64, key string) string {
	return strconv.FormatUint(gen, 10) + "/" + key
}

// Invalidate drops every entry.
func (c *Cache) Invalidate() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.gen++
	c.entries = make(map[string]*cacheEntry)
	c.mu.Unlock()
}

// Len returns the number of entries.
func (c *Cache) Len() int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Wait blocks until running background refreshes are done.
func (c *Cache) Wait() {
	if c != nil {
		c.wg.Wait()
	}
}
