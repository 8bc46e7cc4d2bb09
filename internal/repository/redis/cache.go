package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// Cache is a read-through JSON cache for venue data. A nil *Cache is valid
// and always goes to the loader.
type Cache struct {
	rdb *redis.Client
	sf  singleflight.Group
}

func New(client *redis.Client) *Cache {
	return &Cache{rdb: client}
}

func (c *Cache) getBytes(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := c.rdb.Get(ctx, key).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		return nil, false, nil
	case err != nil:
		return nil, false, err
	}
	return b, true, nil
}

// setJSON stores val with ttl stretched by up to 10% so keys written
// together do not expire together.
func (c *Cache) setJSON(ctx context.Context, key string, val any, ttl time.Duration) error {
	b, err := json.Marshal(val)
	if err != nil {
		return err
	}
	if ttl > 0 {
		ttl += time.Duration(rand.Int63n(int64(ttl)/10 + 1))
	}
	return c.rdb.Set(ctx, key, b, ttl).Err()
}

func getJSON[T any](ctx context.Context, c *Cache, key string) (T, bool) {
	var out T

	b, ok, err := c.getBytes(ctx, key)
	if err != nil || !ok {
		return out, false
	}
	if err := json.Unmarshal(b, &out); err != nil {
		// stale layout from an older release: reload
		return out, false
	}

	return out, true
}

// GetOrSetJSON reads key, or loads and stores it. Concurrent misses on the
// same key share one loader call. Cache failures fall through to the
// loader so redis outages degrade to direct store reads; loader errors are
// returned unwrapped and never cached.
func GetOrSetJSON[T any](
	ctx context.Context,
	c *Cache,
	key string,
	ttl time.Duration,
	loader func(ctx context.Context) (T, error),
) (T, error) {
	if c == nil {
		return loader(ctx)
	}

	if v, ok := getJSON[T](ctx, c, key); ok {
		return v, nil
	}

	vAny, err, _ := c.sf.Do(key, func() (any, error) {
		if v, ok := getJSON[T](ctx, c, key); ok {
			return v, nil
		}
		v, err := loader(ctx)
		if err != nil {
			return nil, err
		}
		_ = c.setJSON(ctx, key, v, ttl)
		return v, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}

	v, ok := vAny.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("cache %s: unexpected %T", key, vAny)
	}

	return v, nil
}

// InvalidateVenue drops the cached schedule so the next read reloads it.
func (c *Cache) InvalidateVenue(ctx context.Context, venueID string) error {
	if c == nil {
		return nil
	}

	key := KeyVenueSchedule(venueID)
	c.sf.Forget(key)

	return c.rdb.Del(ctx, key).Err()
}
