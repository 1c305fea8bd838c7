package throttle_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tamamhuda/envlink-api-sub000/internal/throttle"
)

func TestQuotaLimiter_Consume(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("rejects once the limit is reached", func(t *testing.T) {
		store := throttle.NewMemoryCounterStore()
		limiter := throttle.NewQuotaLimiter(store, "login", 3, time.Minute)

		for i := 0; i < 3; i++ {
			result, err := limiter.Consume(ctx, "bucket-a", 1)
			require.NoError(t, err)
			assert.True(t, result.Allowed)
		}

		result, err := limiter.Consume(ctx, "bucket-a", 1)
		require.NoError(t, err)
		assert.False(t, result.Allowed)
		assert.Equal(t, int64(0), result.Remaining)
		assert.Equal(t, int64(3), result.Consumed)
		assert.Greater(t, result.RetryAfter(), time.Duration(0))
	})

	t.Run("buckets are independent", func(t *testing.T) {
		store := throttle.NewMemoryCounterStore()
		limiter := throttle.NewQuotaLimiter(store, "login", 1, time.Minute)

		result, err := limiter.Consume(ctx, "bucket-a", 1)
		require.NoError(t, err)
		require.True(t, result.Allowed)

		result, err = limiter.Consume(ctx, "bucket-a", 1)
		require.NoError(t, err)
		assert.False(t, result.Allowed)

		result, err = limiter.Consume(ctx, "bucket-b", 1)
		require.NoError(t, err)
		assert.True(t, result.Allowed)
	})

	t.Run("window expiry resets the counter", func(t *testing.T) {
		now := time.Now()
		var mu sync.Mutex
		clock := func() time.Time {
			mu.Lock()
			defer mu.Unlock()
			return now
		}
		advance := func(d time.Duration) {
			mu.Lock()
			now = now.Add(d)
			mu.Unlock()
		}

		store := throttle.NewMemoryCounterStore(throttle.WithClock(clock))
		limiter := throttle.NewQuotaLimiter(store, "login", 1, time.Minute)

		result, err := limiter.Consume(ctx, "bucket-a", 1)
		require.NoError(t, err)
		require.True(t, result.Allowed)

		result, err = limiter.Consume(ctx, "bucket-a", 1)
		require.NoError(t, err)
		require.False(t, result.Allowed)

		advance(time.Minute + time.Second)

		result, err = limiter.Consume(ctx, "bucket-a", 1)
		require.NoError(t, err)
		assert.True(t, result.Allowed)
		assert.Equal(t, int64(1), result.Consumed)
	})

	t.Run("cost larger than remaining consumes nothing", func(t *testing.T) {
		store := throttle.NewMemoryCounterStore()
		limiter := throttle.NewQuotaLimiter(store, "batch", 10, time.Minute)

		result, err := limiter.Consume(ctx, "bucket-a", 8)
		require.NoError(t, err)
		require.True(t, result.Allowed)
		require.Equal(t, int64(2), result.Remaining)

		result, err = limiter.Consume(ctx, "bucket-a", 3)
		require.NoError(t, err)
		assert.False(t, result.Allowed)
		assert.Equal(t, int64(8), result.Consumed, "a rejected charge must not consume partially")

		result, err = limiter.Consume(ctx, "bucket-a", 2)
		require.NoError(t, err)
		assert.True(t, result.Allowed)
		assert.Equal(t, int64(0), result.Remaining)
	})
}

func TestQuotaLimiter_Peek(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := throttle.NewMemoryCounterStore()
	limiter := throttle.NewQuotaLimiter(store, "default", 5, time.Minute)

	result, err := limiter.Peek(ctx, "bucket-a")
	require.NoError(t, err)
	assert.True(t, result.Allowed)
	assert.Equal(t, int64(5), result.Remaining)

	_, err = limiter.Consume(ctx, "bucket-a", 2)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		result, err = limiter.Peek(ctx, "bucket-a")
		require.NoError(t, err)
		assert.Equal(t, int64(3), result.Remaining, "peek must not mutate the counter")
	}
}

func TestQuotaLimiter_ConcurrentLastPoint(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := throttle.NewMemoryCounterStore()
	limiter := throttle.NewQuotaLimiter(store, "shorten", 10, time.Minute)

	_, err := limiter.Consume(ctx, "bucket-a", 9)
	require.NoError(t, err)

	const workers = 20
	var allowed atomic.Int64
	var wg sync.WaitGroup
	wg.Add(workers)

	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			result, err := limiter.Consume(ctx, "bucket-a", 1)
			if err == nil && result.Allowed {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), allowed.Load(), "exactly one racer may take the last point")

	result, err := limiter.Peek(ctx, "bucket-a")
	require.NoError(t, err)
	assert.Equal(t, int64(10), result.Consumed)
	assert.Equal(t, int64(0), result.Remaining)
}
