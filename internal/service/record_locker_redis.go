package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var redisUnlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisRecordLocker is an advisory lock shared by every replica. The lock expires after ttl
// so a crashed holder cannot block a record forever.
type RedisRecordLocker struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
	retry  time.Duration
}

func NewRedisRecordLocker(client redis.UniversalClient, prefix string, ttl time.Duration) *RedisRecordLocker {
	if prefix == "" {
		prefix = "paygw"
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &RedisRecordLocker{client: client, prefix: prefix, ttl: ttl, retry: 25 * time.Millisecond}
}

func (l *RedisRecordLocker) key(transactionID uint) string {
	return fmt.Sprintf("%s:lock:transaction:%d", l.prefix, transactionID)
}

func (l *RedisRecordLocker) Lock(ctx context.Context, transactionID uint) (func(), error) {
	key := l.key(transactionID)
	token := uuid.NewString()
	deadline := time.Now().Add(l.ttl)

	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrLockUnavailable, err)
		}
		if ok {
			break
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("%w: transaction %d held too long", ErrLockUnavailable, transactionID)
		}
		timer := time.NewTimer(l.retry)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	return func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		if err := redisUnlockScript.Run(releaseCtx, l.client, []string{key}, token).Err(); err != nil {
			slog.WarnContext(ctx, "release transaction lock failed", "transaction_id", transactionID, "error", err)
		}
	}, nil
}
