package stock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// CountsCache memoises status counts between ledger mutations.
type CountsCache interface {
	Counts(ctx context.Context, category Category, loader func(context.Context) (StatusCounts, error)) (StatusCounts, error)
	Bump(ctx context.Context, category Category) error
}

// Cache stores status counts in Redis under per-category versioned keys.
// Mutations bump the version, so stale entries simply age out.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache instantiates the cache helper.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &Cache{client: client, ttl: ttl}
}

func versionKey(category Category) string {
	return "stock:" + string(category) + ":version"
}

// Version returns the current cache version for category, initialising when missing.
func (c *Cache) Version(ctx context.Context, category Category) (int64, error) {
	if c == nil || c.client == nil {
		return 0, nil
	}
	key := versionKey(category)
	ver, err := c.client.Get(ctx, key).Int64()
	if errors.Is(err, redis.Nil) {
		// SETNX so two cold readers agree on the first version.
		if err := c.client.SetNX(ctx, key, 1, 0).Err(); err != nil {
			return 0, err
		}
		return c.client.Get(ctx, key).Int64()
	}
	if err != nil {
		return 0, err
	}
	return ver, nil
}

// BuildKey composes the cache key with the current version.
func (c *Cache) BuildKey(ctx context.Context, category Category, parts ...string) (string, error) {
	joined := strings.Join(append([]string{"stock", string(category)}, parts...), ":")
	if c == nil || c.client == nil {
		return joined, nil
	}
	ver, err := c.Version(ctx, category)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s:%d", joined, ver), nil
}

// Counts loads cached status counts or populates them using loader. Redis
// failures degrade to calling loader directly.
func (c *Cache) Counts(ctx context.Context, category Category, loader func(context.Context) (StatusCounts, error)) (StatusCounts, error) {
	if c == nil || c.client == nil {
		return loader(ctx)
	}
	key, err := c.BuildKey(ctx, category, "counts")
	if err != nil {
		return loader(ctx)
	}
	payload, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		var counts StatusCounts
		if err := json.Unmarshal(payload, &counts); err == nil {
			return counts, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		return loader(ctx)
	}
	counts, err := loader(ctx)
	if err != nil {
		return StatusCounts{}, err
	}
	raw, err := json.Marshal(counts)
	if err != nil {
		return counts, nil
	}
	_ = c.client.Set(ctx, key, raw, c.ttl).Err()
	return counts, nil
}

// Bump invalidates cached reads for category.
func (c *Cache) Bump(ctx context.Context, category Category) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Incr(ctx, versionKey(category)).Err()
}
