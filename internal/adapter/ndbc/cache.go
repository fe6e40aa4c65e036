package ndbc

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/couchcryptid/swell-fusion/internal/domain"
)

// CachedFetcher wraps an ObservationFetcher with an in-memory LRU cache so
// repeated validation sweeps over the same window don't hammer NDBC.
// Windows are bucketed to the hour for cache keys.
type CachedFetcher struct {
	inner domain.ObservationFetcher
	cache *lruCache
}

// NewCachedFetcher creates a cache decorator around a fetcher.
func NewCachedFetcher(inner domain.ObservationFetcher, maxEntries int) *CachedFetcher {
	return &CachedFetcher{
		inner: inner,
		cache: newLRUCache(maxEntries),
	}
}

func (c *CachedFetcher) Observations(ctx context.Context, station string, from, to time.Time) ([]domain.Observation, error) {
	key := fmt.Sprintf("%s|%s|%s", station,
		from.UTC().Truncate(time.Hour).Format(time.RFC3339),
		to.UTC().Truncate(time.Hour).Format(time.RFC3339),
	)
	if obs, ok := c.cache.get(key); ok {
		return obs, nil
	}
	obs, err := c.inner.Observations(ctx, station, from, to)
	if err != nil {
		return obs, err
	}
	// Only cache non-empty windows so a late-reporting buoy can still be
	// retried by the next sweep.
	if len(obs) > 0 {
		c.cache.put(key, obs)
	}
	return obs, nil
}

// lruCache is a simple thread-safe LRU cache for observation windows.
type lruCache struct {
	maxEntries int
	mu         sync.Mutex
	entries    map[string]*entry
	head       *entry // most recently used
	tail       *entry // least recently used
}

type entry struct {
	key   string
	value []domain.Observation
	prev  *entry
	next  *entry
}

func newLRUCache(maxEntries int) *lruCache {
	return &lruCache{
		maxEntries: maxEntries,
		entries:    make(map[string]*entry),
	}
}

func (c *lruCache) get(key string) ([]domain.Observation, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	c.moveToFront(e)
	return e.value, true
}

func (c *lruCache) put(key string, value []domain.Observation) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.value = value
		c.moveToFront(e)
		return
	}

	e := &entry{key: key, value: value}
	c.entries[key] = e
	c.addToFront(e)

	if len(c.entries) > c.maxEntries {
		c.evictTail()
	}
}

func (c *lruCache) moveToFront(e *entry) {
	if e == c.head {
		return
	}
	c.remove(e)
	c.addToFront(e)
}

func (c *lruCache) addToFront(e *entry) {
	e.next = c.head
	e.prev = nil
	if c.head != nil {
		c.head.prev = e
	}
	c.head = e
	if c.tail == nil {
		c.tail = e
	}
}

func (c *lruCache) remove(e *entry) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		c.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		c.tail = e.prev
	}
}

func (c *lruCache) evictTail() {
	if c.tail == nil {
		return
	}
	delete(c.entries, c.tail.key)
	c.remove(c.tail)
}
