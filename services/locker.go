package services

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// Locker serializes work on one key across instances. Acquire returns false
// when someone else holds the key.
type Locker interface {
	Acquire(ctx context.Context, key string) (release func(), ok bool, err error)
}

var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0`)

type RedisLocker struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

func NewRedisLocker(client *redis.Client, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &RedisLocker{client: client, ttl: ttl, prefix: "payment_lock:"}
}

func (l *RedisLocker) Acquire(ctx context.Context, key string) (func(), bool, error) {
	token := uuid.NewString()
	k := l.prefix + key
	ok, err := l.client.SetNX(ctx, k, token, l.ttl).Result()
	if err != nil || !ok {
		return func() {}, false, err
	}
	// Only deletes the key while it still holds our token.
	release := func() {
		_ = releaseScript.Run(context.Background(), l.client, []string{k}, token).Err()
	}
	return release, true, nil
}

// NoopLocker always grants the lock.
type NoopLocker struct{}

func (NoopLocker) Acquire(context.Context, string) (func(), bool, error) {
	return func() {}, true, nil
}
