package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DefaultRedisTTL is used when a caller passes ttl <= 0. A Redis lock always
// expires so a crashed holder cannot wedge a key forever.
const DefaultRedisTTL = 30 * time.Second

// releaseScript deletes the key only if it still holds the caller's token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker implements Locker with SET NX PX and a token-checked release.
type RedisLocker struct {
	client     redis.UniversalClient
	prefix     string
	retry      time.Duration
	ownsClient bool
}

// RedisOption configures a RedisLocker.
type RedisOption func(*RedisLocker)

// WithKeyPrefix namespaces every lock key.
func WithKeyPrefix(prefix string) RedisOption {
	return func(l *RedisLocker) { l.prefix = prefix }
}

// WithRetryInterval sets how often Acquire polls a held key.
func WithRetryInterval(d time.Duration) RedisOption {
	return func(l *RedisLocker) {
		if d > 0 {
			l.retry = d
		}
	}
}

// NewRedis wraps an existing client. The caller keeps ownership of client.
func NewRedis(client redis.UniversalClient, opts ...RedisOption) *RedisLocker {
	l := &RedisLocker{
		client: client,
		retry:  50 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// DialRedis connects to addr and returns a locker that owns the client.
func DialRedis(addr, password string, db int, opts ...RedisOption) *RedisLocker {
	l := NewRedis(redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	}), opts...)
	l.ownsClient = true
	return l
}

// Close releases the client if the locker created it.
func (l *RedisLocker) Close() error {
	if l.ownsClient {
		return l.client.Close()
	}
	return nil
}

// Acquire implements Locker by polling until the key is free.
func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	ticker := time.NewTicker(l.retry)
	defer ticker.Stop()

	for {
		release, ok, err := l.TryAcquire(ctx, key, ttl)
		if err != nil {
			return nil, err
		}
		if ok {
			return release, nil
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return nil, fmt.Errorf("lock: acquire %s: %w", key, ctx.Err())
		}
	}
}

// TryAcquire implements Locker.
func (l *RedisLocker) TryAcquire(ctx context.Context, key string, ttl time.Duration) (func(), bool, error) {
	if ttl <= 0 {
		ttl = DefaultRedisTTL
	}
	token := uuid.NewString()
	k := l.prefix + key

	err := l.client.SetArgs(ctx, k, token, redis.SetArgs{Mode: "NX", TTL: ttl}).Err()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("lock: redis set %s: %w", k, err)
	}
	return l.buildRelease(k, token), true, nil
}

func (l *RedisLocker) buildRelease(key, token string) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			// The caller's ctx may already be cancelled.
			_ = releaseScript.Run(context.Background(), l.client, []string{key}, token).Err()
		})
	}
}
