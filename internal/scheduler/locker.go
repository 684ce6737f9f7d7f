package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var ErrLockNotHeld = errors.New("lock not held")

// Locker is a distributed mutex keyed by name.
type Locker interface {
	// TryLock returns ok=false when someone else holds key.
	TryLock(ctx context.Context, key string, ttl time.Duration) (token string, ok bool, err error)
	Unlock(ctx context.Context, key, token string) error
}

type RedisLocker struct {
	Client *redis.Client
}

func NewRedisLocker(client *redis.Client) *RedisLocker {
	return &RedisLocker{Client: client}
}

// unlockScript deletes the key only while it still holds our token.
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

func (l *RedisLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	token := uuid.NewString()
	ok, err := l.Client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("acquire %s: %w", key, err)
	}
	if !ok {
		return "", false, nil
	}
	return token, true, nil
}

func (l *RedisLocker) Unlock(ctx context.Context, key, token string) error {
	n, err := unlockScript.Run(ctx, l.Client, []string{key}, token).Int64()
	if err != nil {
		return fmt.Errorf("release %s: %w", key, err)
	}
	if n == 0 {
		return ErrLockNotHeld
	}
	return nil
}
