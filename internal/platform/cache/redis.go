// Package cache opens the Redis client shared by recognition locks.
package cache

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/revrec/internal/revrec"
)

// Options accepts either host:port or a redis:// (rediss://) URL.
func Options(addr string) (*redis.Options, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, revrec.Invalid("REDIS_ADDR", "must not be empty")
	}
	if strings.Contains(addr, "://") {
		opts, err := redis.ParseURL(addr)
		if err != nil {
			return nil, revrec.Invalid("REDIS_ADDR", "%v", err)
		}
		return opts, nil
	}
	return &redis.Options{Addr: addr}, nil
}

// New connects to Redis and pings it. An unreachable server is reported as
// revrec.ErrExternalIO.
func New(ctx context.Context, addr string) (*redis.Client, error) {
	opts, err := Options(addr)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, revrec.ExternalIO("redis ping", fmt.Errorf("platform/cache: %w", err))
	}
	return client, nil
}
