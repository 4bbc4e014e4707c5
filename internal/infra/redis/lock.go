package redis

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"github.com/bmosoluciones/now-lms-payments/internal/domain"
	"github.com/bmosoluciones/now-lms-payments/internal/infra/metrics"
)

const (
	lockAttempts   = 5
	lockRetryDelay = 50 * time.Millisecond
)

// RedisLocker serializes checkout attempts per (user, course). It is a
// convenience fast path: the payment store's compare-and-set remains the
// correctness guarantee even if a lock expires mid-flight.
type RedisLocker struct {
	cli *redis.Client
}

func NewLocker(c *Client) *RedisLocker {
	return &RedisLocker{cli: c.Raw()}
}

// TryLock takes the key with a random token, retrying a few times before
// reporting the lock busy. The token gates Unlock so an expired holder
// cannot release a successor's lock.
func (l *RedisLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	token := uuid.NewString()
	for i := 0; i < lockAttempts; i++ {
		ok, err := l.cli.SetNX(ctx, key, token, ttl).Result()
		if err == nil && ok {
			if i == 0 {
				metrics.IncLockAcquisition("acquired")
			} else {
				metrics.IncLockAcquisition("contended")
			}
			return token, nil
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(lockRetryDelay):
		}
	}
	metrics.IncLockAcquisition("busy")
	return "", domain.ErrLockBusy
}

var luaUnlock = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end`)

func (l *RedisLocker) Unlock(ctx context.Context, key, token string) error {
	_, err := luaUnlock.Run(ctx, l.cli, []string{key}, token).Result()
	return err
}
