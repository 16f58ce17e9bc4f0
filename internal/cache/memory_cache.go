// Package cache memoises values that are expensive to recompute, such as the
// critical path analysis of an unchanged graph.
package cache

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/ZanzyTHEbar/errbuilder-go"
)

// InMemoryCache provides a simple thread-safe in-memory cache with a TTL.
type InMemoryCache struct {
	store  map[string]cacheItem
	mutex  sync.RWMutex
	ttl    time.Duration
	logger *slog.Logger

	stop     chan struct{}
	stopOnce sync.Once
}

type cacheItem struct {
	value      interface{}
	expiration int64
}

// Option configures an InMemoryCache.
type Option func(*InMemoryCache)

// WithLogger sets the logger used for cache traces.
func WithLogger(logger *slog.Logger) Option {
	return func(c *InMemoryCache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithCleanupInterval starts a background sweep of expired items. Call Close
// to stop it.
func WithCleanupInterval(interval time.Duration) Option {
	return func(c *InMemoryCache) {
		if interval > 0 {
			go c.cleanupLoop(interval)
		}
	}
}

// NewInMemoryCache creates a new in-memory cache with a default TTL.
func NewInMemoryCache(defaultTTL time.Duration, options ...Option) *InMemoryCache {
	c := &InMemoryCache{
		store:  make(map[string]cacheItem),
		ttl:    defaultTTL,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		stop:   make(chan struct{}),
	}
	for _, option := range options {
		option(c)
	}
	return c
}

// Get retrieves an item from the cache.
func (c *InMemoryCache) Get(ctx context.Context, key string) (interface{}, error) {
	if err := errbuilder.WrapIfContextDone(ctx, nil); err != nil {
		return nil, err
	}

	c.mutex.RLock()
	item, found := c.store[key]
	c.mutex.RUnlock()

	if !found {
		return nil, errbuilder.NotFoundErr(errbuilder.GenericErr("cache item not found", nil))
	}
	if time.Now().UnixNano() > item.expiration {
		c.evict(key)
		c.logger.Debug("cache item expired", "key", key)
		return nil, errbuilder.NotFoundErr(errbuilder.GenericErr("cache item expired", nil))
	}
	return item.value, nil
}

// evict removes key if it is still expired. A concurrent Set may have
// refreshed it in the meantime.
func (c *InMemoryCache) evict(key string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if item, ok := c.store[key]; ok && time.Now().UnixNano() > item.expiration {
		delete(c.store, key)
	}
}

// Set adds or updates an item in the cache.
func (c *InMemoryCache) Set(ctx context.Context, key string, value interface{}) error {
	if err := errbuilder.WrapIfContextDone(ctx, nil); err != nil {
		return err
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.store[key] = cacheItem{
		value:      value,
		expiration: time.Now().Add(c.ttl).UnixNano(),
	}
	c.logger.Debug("cache item set", "key", key)
	return nil
}

// Len returns the number of stored items, expired or not.
func (c *InMemoryCache) Len() int {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return len(c.store)
}

// Close stops the background sweep, if any.
func (c *InMemoryCache) Close() {
	c.stopOnce.Do(func() { close(c.stop) })
}

func (c *InMemoryCache) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.evictExpired()
		}
	}
}

func (c *InMemoryCache) evictExpired() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	now := time.Now().UnixNano()
	for key, item := range c.store {
		if now > item.expiration {
			delete(c.store, key)
		}
	}
}
