package lock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestLocalRejectsSecondHolder(t *testing.T) {
	ctx := context.Background()
	l := NewLocal()
	key := RecognitionKey("t1", "c1")

	release, err := l.Acquire(ctx, key)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if _, err := l.Acquire(ctx, key); !errors.Is(err, ErrLocked) {
		t.Fatalf("expected ErrLocked, got %v", err)
	}
	if _, err := l.Acquire(ctx, RecognitionKey("t1", "c2")); err != nil {
		t.Fatalf("other contract should be free: %v", err)
	}
	if err := release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	if l.Held(key) {
		t.Fatalf("key should be free after release")
	}
	_ = release(ctx)
	if _, err := l.Acquire(ctx, key); err != nil {
		t.Fatalf("reacquire: %v", err)
	}
}

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return srv, client
}

func TestRedisLockLifecycle(t *testing.T) {
	ctx := context.Background()
	srv, client := newRedis(t)
	locker := NewRedis(client, time.Minute)
	key := RecognitionKey("t1", "c1")

	release, err := locker.Acquire(ctx, key)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if _, err := locker.Acquire(ctx, key); !errors.Is(err, ErrLocked) {
		t.Fatalf("expected ErrLocked, got %v", err)
	}
	if ttl := srv.TTL(key); ttl <= 0 || ttl > time.Minute {
		t.Fatalf("unexpected ttl %v", ttl)
	}
	if err := release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	if srv.Exists(key) {
		t.Fatalf("key should be deleted on release")
	}
}

func TestRedisReleaseKeepsForeignToken(t *testing.T) {
	ctx := context.Background()
	srv, client := newRedis(t)
	locker := NewRedis(client, time.Second)
	key := RecognitionKey("t1", "c1")

	release, err := locker.Acquire(ctx, key)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	srv.FastForward(2 * time.Second)
	if _, err := locker.Acquire(ctx, key); err != nil {
		t.Fatalf("expired lock should be acquirable: %v", err)
	}
	if err := release(ctx); err != nil {
		t.Fatalf("stale release: %v", err)
	}
	if !srv.Exists(key) {
		t.Fatalf("stale release must not delete the new holder's key")
	}
}
