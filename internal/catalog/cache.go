package catalog

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

const cacheKeyPrefix = "catalog:product:"

// Cache is a read-through Redis cache for product snapshots. Concurrent
// misses for the same product collapse into a single repository load.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
	group  singleflight.Group
}

// NewCache builds a Cache. A zero ttl defaults to one minute.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &Cache{client: client, ttl: ttl}
}

// GetOrLoad returns the cached product or loads and caches it.
func (c *Cache) GetOrLoad(ctx context.Context, id int64, load func(context.Context) (Product, error)) (Product, error) {
	if c == nil || c.client == nil {
		return load(ctx)
	}
	key := cacheKeyPrefix + strconv.FormatInt(id, 10)
	if raw, err := c.client.Get(ctx, key).Bytes(); err == nil {
		var p Product
		if err := json.Unmarshal(raw, &p); err == nil {
			return p, nil
		}
		// Corrupt entry; drop it and fall through to the loader.
		_ = c.client.Del(ctx, key).Err()
	}
	v, err, _ := c.group.Do(key, func() (any, error) {
		p, err := load(ctx)
		if err != nil {
			return Product{}, err
		}
		if raw, err := json.Marshal(p); err == nil {
			_ = c.client.Set(ctx, key, raw, c.ttl).Err()
		}
		return p, nil
	})
	if err != nil {
		return Product{}, err
	}
	return v.(Product), nil
}

// Invalidate drops the cached snapshot for a product.
func (c *Cache) Invalidate(ctx context.Context, id int64) {
	if c == nil || c.client == nil {
		return
	}
	key := cacheKeyPrefix + strconv.FormatInt(id, 10)
	_ = c.client.Del(ctx, key).Err()
}
