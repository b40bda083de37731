package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"stockroom.org/internal/obs"
)

const (
	defaultTTL       = 30 * time.Second
	defaultRetry     = 50 * time.Millisecond
	defaultKeyPrefix = "stockroom:lock:"
	releaseTimeout   = 2 * time.Second
)

// redisStore is the subset of the go-redis client used by RedisLocker.
type redisStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) *redis.BoolCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// RedisLocker is a Locker shared by every API instance pointing at the same
// Redis. Locks expire after the TTL so a crashed holder cannot wedge a key.
type RedisLocker struct {
	client redisStore
	prefix string
	ttl    time.Duration
	retry  time.Duration
	log    *obs.Logger
}

var _ Locker = (*RedisLocker)(nil)

// RedisOptions tunes RedisLocker.
type RedisOptions struct {
	Prefix string
	TTL    time.Duration
	Retry  time.Duration
	Logger *obs.Logger
}

func NewRedisLocker(client redisStore, opts RedisOptions) (*RedisLocker, error) {
	if client == nil {
		return nil, errors.New("redis client required for lock")
	}
	l := &RedisLocker{
		client: client,
		prefix: opts.Prefix,
		ttl:    opts.TTL,
		retry:  opts.Retry,
		log:    opts.Logger,
	}
	if l.prefix == "" {
		l.prefix = defaultKeyPrefix
	}
	if l.ttl <= 0 {
		l.ttl = defaultTTL
	}
	if l.retry <= 0 {
		l.retry = defaultRetry
	}
	if l.log == nil {
		l.log = obs.Nop()
	}
	return l, nil
}

func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	if key == "" {
		return nil, errors.New("lock key is required")
	}
	redisKey := l.prefix + key
	owner := uuid.NewString()

	ticker := time.NewTicker(l.retry)
	defer ticker.Stop()
	for {
		ok, err := l.client.SetNX(ctx, redisKey, owner, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("setnx %s: %w", redisKey, err)
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}

	var released bool
	return func() {
		if released {
			return
		}
		released = true
		// Release must run even when the caller's context is gone.
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
		defer cancel()
		if err := l.release(rctx, redisKey, owner); err != nil {
			l.log.Warn(l.log.WithField(ctx, "lock_key", redisKey), "release redis lock", err)
		}
	}, nil
}

// release deletes the key only if owner still holds it.
func (l *RedisLocker) release(ctx context.Context, key, owner string) error {
	value, err := l.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("read lock owner: %w", err)
	}
	if value != owner {
		return nil
	}
	if err := l.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("delete lock: %w", err)
	}
	return nil
}
