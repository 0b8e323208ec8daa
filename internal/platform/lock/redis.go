package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DefaultTTL bounds how long a crashed holder can block a contract.
const DefaultTTL = 2 * time.Minute

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis implements a best-effort distributed lock with SET NX PX.
type Redis struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewRedis constructs a Redis-backed locker.
func NewRedis(client redis.UniversalClient, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Redis{client: client, ttl: ttl}
}

// Acquire sets key to a random token if absent. The returned release only
// deletes the key while it still carries that token.
func (r *Redis) Acquire(ctx context.Context, key string) (func(context.Context) error, error) {
	token := uuid.NewString()
	ok, err := r.client.SetNX(ctx, key, token, r.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("platform/lock: acquire %s: %w", key, err)
	}
	if !ok {
		return nil, ErrLocked
	}
	return func(ctx context.Context) error {
		if err := releaseScript.Run(ctx, r.client, []string{key}, token).Err(); err != nil {
			return fmt.Errorf("platform/lock: release %s: %w", key, err)
		}
		return nil
	}, nil
}
