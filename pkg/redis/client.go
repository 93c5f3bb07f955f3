package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wonny/factorlab/pkg/config"
)

// Client wraps the Redis client. A disabled client turns every cache call into a no-op.
type Client struct {
	rdb     *redis.Client
	enabled bool
	cfg     config.RedisConfig
}

// New creates a Redis client, or a disabled one when REDIS_ENABLED is false
func New(ctx context.Context, cfg *config.Config) (*Client, error) {
	if !cfg.Redis.Enabled {
		return &Client{enabled: false, cfg: cfg.Redis}, nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.Redis.Host, cfg.Redis.Port),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	return &Client{rdb: rdb, enabled: true, cfg: cfg.Redis}, nil
}

// Disabled returns a client that never touches the network
func Disabled() *Client {
	return &Client{enabled: false}
}

// Close closes the Redis connection
func (c *Client) Close() error {
	if c.rdb != nil {
		return c.rdb.Close()
	}
	return nil
}

// Enabled returns whether Redis is enabled
func (c *Client) Enabled() bool {
	return c != nil && c.enabled
}

// Redis returns the underlying redis client
func (c *Client) Redis() *redis.Client {
	return c.rdb
}

// TTL returns the configured default expiry, falling back to TTLDaily
func (c *Client) TTL() time.Duration {
	if c == nil || c.cfg.TTL <= 0 {
		return TTLDaily
	}
	return c.cfg.TTL
}
