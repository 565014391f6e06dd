package lock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	// ErrLockNotAcquired is returned when the wait for a key times out.
	ErrLockNotAcquired = errors.New("lock not acquired")
	// ErrLockNotHeld is returned when releasing a key whose token changed.
	ErrLockNotHeld = errors.New("lock not held")
)

var releaseScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`)

const (
	// DefaultTTL bounds how long a crashed holder can block a key.
	DefaultTTL = 30 * time.Second
	// DefaultWait bounds how long Lock waits for a busy key.
	DefaultWait = 10 * time.Second
)

// RedisLocker serialises keys across processes.
type RedisLocker struct {
	rdb       redis.UniversalClient
	keyPrefix string
	ttl       time.Duration
	wait      time.Duration
}

// RedisOption configures a RedisLocker.
type RedisOption func(*RedisLocker)

// WithTTL sets the expiry of held keys.
func WithTTL(ttl time.Duration) RedisOption {
	return func(l *RedisLocker) { l.ttl = ttl }
}

// WithWait sets the maximum time Lock waits for a busy key.
func WithWait(wait time.Duration) RedisOption {
	return func(l *RedisLocker) { l.wait = wait }
}

// WithKeyPrefix sets the Redis key prefix. Default: "approval:lock:".
func WithKeyPrefix(prefix string) RedisOption {
	return func(l *RedisLocker) { l.keyPrefix = prefix }
}

// NewRedisLocker creates a locker over an existing client.
func NewRedisLocker(rdb redis.UniversalClient, opts ...RedisOption) *RedisLocker {
	l := &RedisLocker{
		rdb:       rdb,
		keyPrefix: "approval:lock:",
		ttl:       DefaultTTL,
		wait:      DefaultWait,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Dial connects to addr and verifies the connection with PING.
func Dial(ctx context.Context, addr string, opts ...RedisOption) (*RedisLocker, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("connect to redis at %s: %w", addr, err)
	}
	return NewRedisLocker(rdb, opts...), nil
}

// Close closes the underlying client.
func (l *RedisLocker) Close() error {
	return l.rdb.Close()
}

// Lock acquires key, retrying with capped exponential backoff until the wait
// elapses or ctx is done.
func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	lockKey := l.keyPrefix + key
	token := uuid.New().String()

	deadline := time.Now().Add(l.wait)
	backoff := 10 * time.Millisecond

	for {
		ok, err := l.rdb.SetNX(ctx, lockKey, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("lock %s: %w", key, err)
		}
		if ok {
			slog.Debug("acquired lock", "key", key)
			return func() { l.release(lockKey, token) }, nil
		}
		if !time.Now().Before(deadline) {
			return nil, fmt.Errorf("lock %s: %w", key, ErrLockNotAcquired)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
			backoff = min(backoff*2, 500*time.Millisecond)
		}
	}
}

// release runs detached from the caller's context so a cancelled request
// still frees the key.
func (l *RedisLocker) release(lockKey, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	n, err := releaseScript.Run(ctx, l.rdb, []string{lockKey}, token).Int64()
	switch {
	case err != nil:
		slog.Warn("release lock failed", "key", lockKey, "error", err)
	case n == 0:
		slog.Warn("release lock failed", "key", lockKey, "error", ErrLockNotHeld)
	default:
		slog.Debug("released lock", "key", lockKey)
	}
}
