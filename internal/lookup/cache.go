package lookup

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache stores resolved ids by lookup key.
type Cache interface {
	Get(ctx context.Context, key string) (int, bool, error)
	Set(ctx context.Context, key string, id int) error
}

// CacheMetrics is the interface for recording cache metrics.
// This allows the cache to be decoupled from the metrics package.
type CacheMetrics interface {
	RecordCacheHit(cacheType string)
	RecordCacheMiss(cacheType string)
	UpdateCacheSize(cacheType string, size int)
}

type memoryEntry struct {
	id      int
	expires time.Time
}

// MemoryCache is an in-process LRU cache with optional expiry.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	order   []string // LRU order, oldest first
	maxSize int
	ttl     time.Duration
	now     func() time.Time
	metrics CacheMetrics
}

// NewMemoryCache creates a memory cache. A ttl of 0 disables expiry.
func NewMemoryCache(maxSize int, ttl time.Duration) *MemoryCache {
	if maxSize <= 0 {
		maxSize = 10000
	}
	return &MemoryCache{
		entries: make(map[string]memoryEntry),
		order:   make([]string, 0, 64),
		maxSize: maxSize,
		ttl:     ttl,
		now:     time.Now,
	}
}

// SetMetrics sets the metrics recorder for this cache.
func (c *MemoryCache) SetMetrics(metrics CacheMetrics) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.metrics = metrics
}

// Get retrieves an id from the cache.
func (c *MemoryCache) Get(_ context.Context, key string) (int, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if ok && c.ttl > 0 && c.now().After(e.expires) {
		delete(c.entries, key)
		c.remove(key)
		ok = false
	}
	if !ok {
		if c.metrics != nil {
			c.metrics.RecordCacheMiss("lookup")
		}
		return 0, false, nil
	}

	if c.metrics != nil {
		c.metrics.RecordCacheHit("lookup")
	}
	c.remove(key)
	c.order = append(c.order, key)
	return e.id, true, nil
}

// Set stores an id, evicting the least recently used entry when full.
func (c *MemoryCache) Set(_ context.Context, key string, id int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := memoryEntry{id: id}
	if c.ttl > 0 {
		e.expires = c.now().Add(c.ttl)
	}

	if _, exists := c.entries[key]; exists {
		c.entries[key] = e
		c.remove(key)
		c.order = append(c.order, key)
		return nil
	}

	for len(c.entries) >= c.maxSize && len(c.order) > 0 {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}

	c.entries[key] = e
	c.order = append(c.order, key)

	if c.metrics != nil {
		c.metrics.UpdateCacheSize("lookup", len(c.entries))
	}
	return nil
}

// remove drops key from the LRU order (must hold lock).
func (c *MemoryCache) remove(key string) {
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			return
		}
	}
}

// Size returns the current cache size.
func (c *MemoryCache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// RedisCache shares resolved ids between processes.
type RedisCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisCache connects to Redis. Returns error if connection fails.
func NewRedisCache(url string, ttl time.Duration) (*RedisCache, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	return NewRedisCacheWithClient(client, ttl), nil
}

// NewRedisCacheWithClient wraps an existing client.
func NewRedisCacheWithClient(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, prefix: "reel:", ttl: ttl}
}

// Get retrieves an id. A missing key is not an error.
func (rc *RedisCache) Get(ctx context.Context, key string) (int, bool, error) {
	val, err := rc.client.Get(ctx, rc.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("reading lookup cache: %w", err)
	}
	id, err := strconv.Atoi(val)
	if err != nil {
		return 0, false, nil
	}
	return id, true, nil
}

// Set stores an id with the configured expiry.
func (rc *RedisCache) Set(ctx context.Context, key string, id int) error {
	if err := rc.client.Set(ctx, rc.prefix+key, strconv.Itoa(id), rc.ttl).Err(); err != nil {
		return fmt.Errorf("writing lookup cache: %w", err)
	}
	return nil
}

// Ping checks the connection.
func (rc *RedisCache) Ping(ctx context.Context) error {
	return rc.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (rc *RedisCache) Close() error {
	return rc.client.Close()
}
