// Package cache wraps Redis for short-lived counters.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Options configure the Redis connection.
type Options struct {
	Addrs    []string
	Password string
	DB       int
	Cluster  bool
}

type Cache struct {
	client redis.UniversalClient // works with both single and cluster
}

// NewCache builds a cluster client when Cluster is set and more than one
// address is given, and a single node client otherwise.
func NewCache(opts Options) (*Cache, error) {
	if len(opts.Addrs) == 0 {
		return nil, fmt.Errorf("at least one redis address is required")
	}

	var rdb redis.UniversalClient
	if opts.Cluster && len(opts.Addrs) > 1 {
		rdb = redis.NewClusterClient(&redis.ClusterOptions{
			Addrs:    opts.Addrs,
			Password: opts.Password,
		})
	} else {
		rdb = redis.NewClient(&redis.Options{
			Addr:     opts.Addrs[0],
			Password: opts.Password,
			DB:       opts.DB,
		})
	}

	return &Cache{client: rdb}, nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client redis.UniversalClient) *Cache {
	return &Cache{client: client}
}

// Hit increments the fixed-window counter for key and returns the count and
// the time left in the window. The window starts on the first hit.
func (c *Cache) Hit(ctx context.Context, namespace, key string, window time.Duration) (int64, time.Duration, error) {
	countKey := namespace + ":" + key

	cnt, err := c.client.Incr(ctx, countKey).Result()
	if err != nil {
		return 0, 0, fmt.Errorf("failed to increment counter: %w", err)
	}

	ttl, err := c.client.TTL(ctx, countKey).Result()
	if err != nil {
		return 0, 0, fmt.Errorf("failed to read counter ttl: %w", err)
	}

	// a negative ttl means the expiry was never set, e.g. the process died
	// between INCR and EXPIRE on an earlier hit
	if cnt == 1 || ttl < 0 {
		if err := c.client.Expire(ctx, countKey, window).Err(); err != nil {
			return 0, 0, fmt.Errorf("failed to set counter expiry: %w", err)
		}
		ttl = window
	}

	return cnt, ttl, nil
}

func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *Cache) Close() error {
	return c.client.Close()
}
