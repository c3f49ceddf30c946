package lock

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisLock is a Locker shared by every process using the same Redis. A short
// TTL keeps a crashed holder from blocking an entity forever.
type RedisLock struct {
	client  *redis.Client
	prefix  string
	ttl     time.Duration
	retries int
	backoff time.Duration
}

// NewRedisLock creates a RedisLock.
func NewRedisLock(client *redis.Client, ttl time.Duration, retries int, backoff time.Duration) *RedisLock {
	return &RedisLock{
		client:  client,
		prefix:  "clubd:lock:",
		ttl:     ttl,
		retries: retries,
		backoff: backoff,
	}
}

// Lock implements Locker.
func (l *RedisLock) Lock(ctx context.Context, key string) (func(), error) {
	token, ok, err := l.acquire(ctx, l.prefix+key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotAcquired
	}
	return func() {
		// The caller's context may already be done; release on a fresh one.
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := l.release(releaseCtx, l.prefix+key, token); err != nil {
			log.Printf("Warning: failed to release lock %s: %v", key, err)
		}
	}, nil
}

func (l *RedisLock) acquire(ctx context.Context, key string) (string, bool, error) {
	token := uuid.NewString()
	for attempt := 0; attempt <= l.retries; attempt++ {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return "", false, err
		}
		if ok {
			return token, true, nil
		}
		if attempt < l.retries {
			select {
			case <-time.After(l.backoff):
			case <-ctx.Done():
				return "", false, ctx.Err()
			}
		}
	}
	return "", false, nil
}

func (l *RedisLock) release(ctx context.Context, key, token string) error {
	if key == "" || token == "" {
		return errors.New("key and token are required")
	}
	return releaseLua.Run(ctx, l.client, []string{key}, token).Err()
}

var releaseLua = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)
