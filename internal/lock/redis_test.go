package lock

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRedis struct {
	mu     sync.Mutex
	values map[string]string
	setErr error
	dels   int
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{values: map[string]string{}}
}

func (f *fakeRedis) SetNX(ctx context.Context, key string, value any, ttl time.Duration) *redis.BoolCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.setErr != nil {
		return redis.NewBoolResult(false, f.setErr)
	}
	if _, ok := f.values[key]; ok {
		return redis.NewBoolResult(false, nil)
	}
	f.values[key] = value.(string)
	return redis.NewBoolResult(true, nil)
}

func (f *fakeRedis) Get(ctx context.Context, key string) *redis.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.values[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeRedis) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, k := range keys {
		if _, ok := f.values[k]; ok {
			delete(f.values, k)
			n++
		}
	}
	f.dels++
	return redis.NewIntResult(n, nil)
}

func (f *fakeRedis) set(key, value string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values[key] = value
}

func (f *fakeRedis) has(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.values[key]
	return ok
}

func TestRedisLockerAcquireAndRelease(t *testing.T) {
	fake := newFakeRedis()
	l, err := NewRedisLocker(fake, RedisOptions{Retry: time.Millisecond})
	require.NoError(t, err)

	unlock, err := l.Lock(context.Background(), "Laptop")
	require.NoError(t, err)
	assert.True(t, fake.has(defaultKeyPrefix+"Laptop"))

	unlock()
	assert.False(t, fake.has(defaultKeyPrefix+"Laptop"))
	unlock()
	assert.Equal(t, 1, fake.dels)
}

func TestRedisLockerWaitsForHolder(t *testing.T) {
	fake := newFakeRedis()
	l, err := NewRedisLocker(fake, RedisOptions{Retry: time.Millisecond})
	require.NoError(t, err)

	first, err := l.Lock(context.Background(), "Laptop")
	require.NoError(t, err)

	acquired := make(chan struct{})
	go func() {
		second, err := l.Lock(context.Background(), "Laptop")
		if err == nil {
			close(acquired)
			second()
		}
	}()

	select {
	case <-acquired:
		t.Fatal("second lock acquired while first held")
	case <-time.After(20 * time.Millisecond):
	}
	first()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second lock never acquired")
	}
}

func TestRedisLockerDoesNotReleaseForeignOwner(t *testing.T) {
	fake := newFakeRedis()
	l, err := NewRedisLocker(fake, RedisOptions{Retry: time.Millisecond})
	require.NoError(t, err)

	unlock, err := l.Lock(context.Background(), "Laptop")
	require.NoError(t, err)
	// TTL expired and another instance took over.
	fake.set(defaultKeyPrefix+"Laptop", "someone-else")
	unlock()
	assert.True(t, fake.has(defaultKeyPrefix+"Laptop"))
}

func TestRedisLockerErrors(t *testing.T) {
	_, err := NewRedisLocker(nil, RedisOptions{})
	require.Error(t, err)

	fake := newFakeRedis()
	fake.setErr = errors.New("connection refused")
	l, err := NewRedisLocker(fake, RedisOptions{})
	require.NoError(t, err)
	_, err = l.Lock(context.Background(), "Laptop")
	require.Error(t, err)

	fake.setErr = nil
	fake.set(defaultKeyPrefix+"Printer", "held")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = l.Lock(ctx, "Printer")
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
