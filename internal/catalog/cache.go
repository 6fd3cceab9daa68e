package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

const productKeyPrefix = "catalog:product:"

// Cache keeps JSON copies of single products in Redis. Concurrent misses on
// the same id share one load.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
	group  singleflight.Group
}

// NewCache instantiates the cache helper.
func NewCache(client *redis.Client, ttl time.Duration, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{client: client, ttl: ttl, logger: logger}
}

// Fetch returns the cached product or populates it using load. Redis
// failures degrade to a direct load.
func (c *Cache) Fetch(ctx context.Context, id uuid.UUID, load func(context.Context) (Product, error)) (Product, error) {
	if c == nil || c.client == nil {
		return load(ctx)
	}
	key := productKey(id)
	payload, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var p Product
		if err := json.Unmarshal(payload, &p); err == nil {
			return p, nil
		}
		c.logger.Warn("catalog cache decode", slog.String("key", key))
	case !errors.Is(err, redis.Nil):
		c.logger.Warn("catalog cache get", slog.String("key", key), slog.Any("error", err))
	}

	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		p, err := load(ctx)
		if err != nil {
			return Product{}, err
		}
		raw, err := json.Marshal(p)
		if err != nil {
			return p, nil
		}
		if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
			c.logger.Warn("catalog cache set", slog.String("key", key), slog.Any("error", err))
		}
		return p, nil
	})
	if err != nil {
		return Product{}, err
	}
	return v.(Product), nil
}

// Invalidate removes the cached entries of ids.
func (c *Cache) Invalidate(ctx context.Context, ids ...uuid.UUID) {
	if c == nil || c.client == nil || len(ids) == 0 {
		return
	}
	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, productKey(id))
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		c.logger.Warn("catalog cache invalidate", slog.Int("keys", len(keys)), slog.Any("error", err))
	}
}

func productKey(id uuid.UUID) string {
	return productKeyPrefix + id.String()
}
