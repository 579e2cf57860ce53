package ratelimit

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*RedisWindowStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisWindowStore(client, "test:"), mr
}

func TestRedisWindowStore_IncrementReturnsPostIncrement(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	window := time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC)

	for want := int64(1); want <= 5; want++ {
		got, err := store.IncrementRateWindow(ctx, "key_a", window)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestRedisWindowStore_WindowsAndKeysAreIndependent(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	window := time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC)

	_, err := store.IncrementRateWindow(ctx, "key_a", window)
	require.NoError(t, err)
	_, err = store.IncrementRateWindow(ctx, "key_a", window)
	require.NoError(t, err)

	next, err := store.IncrementRateWindow(ctx, "key_a", window.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), next)

	other, err := store.IncrementRateWindow(ctx, "key_b", window)
	require.NoError(t, err)
	assert.Equal(t, int64(1), other)
}

func TestRedisWindowStore_SetsExpiry(t *testing.T) {
	store, mr := newTestStore(t)
	window := time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC)

	_, err := store.IncrementRateWindow(context.Background(), "key_a", window)
	require.NoError(t, err)

	key := store.windowKey("key_a", window)
	assert.Equal(t, windowTTL, mr.TTL(key))

	mr.FastForward(windowTTL + time.Second)
	assert.False(t, mr.Exists(key))
}

func TestRedisWindowStore_ConcurrentIncrementsAreAtomic(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	window := time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC)

	const limit = 25
	var admitted atomic.Int64
	var wg sync.WaitGroup

	for i := 0; i < 2*limit; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			count, err := store.IncrementRateWindow(ctx, "key_a", window)
			if err == nil && count <= limit {
				admitted.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(limit), admitted.Load())

	final, err := store.IncrementRateWindow(ctx, "key_a", window)
	require.NoError(t, err)
	assert.Equal(t, int64(2*limit+1), final)
}

func TestRedisWindowStore_ContextCancelled(t *testing.T) {
	store, _ := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := store.IncrementRateWindow(ctx, "key_a", time.Now())
	assert.True(t, errors.Is(err, context.Canceled), "expected context.Canceled, got %v", err)
}

func TestRedisWindowStore_ServerDown(t *testing.T) {
	store, mr := newTestStore(t)
	mr.Close()

	_, err := store.IncrementRateWindow(context.Background(), "key_a", time.Now())
	assert.Error(t, err)
}
