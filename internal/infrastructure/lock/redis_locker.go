package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// luaReleaseIfMatch deletes the lock only while it still carries our token,
// so a holder whose lease lapsed cannot free someone else's lock.
const luaReleaseIfMatch = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('DEL', KEYS[1])
end
return 0
`

const (
	defaultLockPrefix    = "stockhold:lock:"
	defaultLease         = 10 * time.Second
	defaultRetryInterval = 25 * time.Millisecond
	releaseTimeout       = 2 * time.Second
)

// RedisLocker is a lease-based lock shared by every instance using the same
// Redis. The lease bounds how long a crashed holder can block a key.
type RedisLocker struct {
	client        redis.UniversalClient
	prefix        string
	lease         time.Duration
	retryInterval time.Duration
	logger        *zap.Logger
}

// RedisLockerOption is a functional option for RedisLocker
type RedisLockerOption func(*RedisLocker)

// WithKeyPrefix sets the Redis key prefix
func WithKeyPrefix(prefix string) RedisLockerOption {
	return func(l *RedisLocker) {
		l.prefix = prefix
	}
}

// WithRetryInterval sets how often a waiting caller retries
func WithRetryInterval(d time.Duration) RedisLockerOption {
	return func(l *RedisLocker) {
		l.retryInterval = d
	}
}

// NewRedisLocker creates a new RedisLocker
func NewRedisLocker(client redis.UniversalClient, lease time.Duration, logger *zap.Logger, opts ...RedisLockerOption) *RedisLocker {
	if lease <= 0 {
		lease = defaultLease
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	l := &RedisLocker{
		client:        client,
		prefix:        defaultLockPrefix,
		lease:         lease,
		retryInterval: defaultRetryInterval,
		logger:        logger,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Acquire retries SET NX until it wins or wait elapses
func (l *RedisLocker) Acquire(ctx context.Context, key string, wait time.Duration) (func(), error) {
	redisKey := l.prefix + key
	token := uuid.NewString()
	deadline := time.Now().Add(wait)

	for {
		ok, err := l.client.SetNX(ctx, redisKey, token, l.lease).Result()
		if err != nil {
			return nil, fmt.Errorf("lock %s: %w", key, err)
		}
		if ok {
			return l.releaser(redisKey, token), nil
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, ErrLockTimeout
		}
		backoff := l.retryInterval
		if backoff > remaining {
			backoff = remaining
		}

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

func (l *RedisLocker) releaser(redisKey, token string) func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
		defer cancel()
		if err := l.client.Eval(ctx, luaReleaseIfMatch, []string{redisKey}, token).Err(); err != nil {
			l.logger.Warn("Failed to release lock, lease will expire",
				zap.String("key", redisKey),
				zap.Error(err),
			)
		}
	}
}
