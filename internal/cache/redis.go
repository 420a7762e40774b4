// Package cache keeps short-lived state in Redis: job snapshots, resolved
// API key contexts and rate limit buckets.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrCacheMiss is returned when a key is absent.
var ErrCacheMiss = errors.New("cache miss")

// Options tune the connection pool. Zero values keep the defaults.
type Options struct {
	PoolSize     int
	MinIdleConns int
}

const (
	defaultPoolSize     = 10
	defaultMinIdleConns = 2
)

type Cache struct {
	client *redis.Client
}

// New dials redisURL and fails if the server does not answer PING.
func New(ctx context.Context, redisURL string, opts Options) (*Cache, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	opt.PoolSize = cmpOr(opts.PoolSize, defaultPoolSize)
	opt.MinIdleConns = cmpOr(opts.MinIdleConns, defaultMinIdleConns)
	opt.PoolTimeout = 4 * time.Second
	opt.ConnMaxIdleTime = 5 * time.Minute

	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &Cache{client: client}, nil
}

func cmpOr(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}

// NewWithClient wraps an existing client. Used by tests.
func NewWithClient(client *redis.Client) *Cache {
	return &Cache{client: client}
}

func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *Cache) Close() error {
	return c.client.Close()
}

// Client exposes the connection for the dispatch stream and status feed,
// which share the pool.
func (c *Cache) Client() *redis.Client {
	return c.client
}
