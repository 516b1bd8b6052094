package ratelimit_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hirewire/admission/pkg/ratelimit"
)

func TestMemoryStore_IncrementAndGet(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := ratelimit.NewMemoryStore()

	t.Run("counts sequentially", func(t *testing.T) {
		t.Parallel()

		for i := int64(1); i <= 5; i++ {
			c, err := store.IncrementAndGet(ctx, "seq", time.Minute)
			require.NoError(t, err)
			assert.Equal(t, i, c.N)
			assert.Greater(t, c.ResetAfter, time.Duration(0))
			assert.LessOrEqual(t, c.ResetAfter, time.Minute)
		}
	})

	t.Run("keys are isolated", func(t *testing.T) {
		t.Parallel()

		c1, err := store.IncrementAndGet(ctx, "iso-a", time.Minute)
		require.NoError(t, err)
		c2, err := store.IncrementAndGet(ctx, "iso-b", time.Minute)
		require.NoError(t, err)

		assert.Equal(t, int64(1), c1.N)
		assert.Equal(t, int64(1), c2.N)
	})

	t.Run("window is fixed not sliding", func(t *testing.T) {
		t.Parallel()

		window := 100 * time.Millisecond

		first, err := store.IncrementAndGet(ctx, "fixed", window)
		require.NoError(t, err)
		require.Equal(t, int64(1), first.N)

		// A hit late in the window must not extend it.
		time.Sleep(60 * time.Millisecond)
		second, err := store.IncrementAndGet(ctx, "fixed", window)
		require.NoError(t, err)
		assert.Equal(t, int64(2), second.N)
		assert.Less(t, second.ResetAfter, 50*time.Millisecond)

		time.Sleep(60 * time.Millisecond)
		third, err := store.IncrementAndGet(ctx, "fixed", window)
		require.NoError(t, err)
		assert.Equal(t, int64(1), third.N, "expired window should restart the count")
	})
}

func TestMemoryStore_Get(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := ratelimit.NewMemoryStore()

	t.Run("missing key reads zero", func(t *testing.T) {
		t.Parallel()

		c, err := store.Get(ctx, "missing")
		require.NoError(t, err)
		assert.Equal(t, int64(0), c.N)
		assert.Equal(t, time.Duration(0), c.ResetAfter)
	})

	t.Run("does not increment", func(t *testing.T) {
		t.Parallel()

		_, err := store.IncrementAndGet(ctx, "peek", time.Minute)
		require.NoError(t, err)

		for range 3 {
			c, err := store.Get(ctx, "peek")
			require.NoError(t, err)
			assert.Equal(t, int64(1), c.N)
		}
	})

	t.Run("expired window reads zero", func(t *testing.T) {
		t.Parallel()

		_, err := store.IncrementAndGet(ctx, "expired", 20*time.Millisecond)
		require.NoError(t, err)

		time.Sleep(30 * time.Millisecond)

		c, err := store.Get(ctx, "expired")
		require.NoError(t, err)
		assert.Equal(t, int64(0), c.N)
	})
}

func TestMemoryStore_Delete(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := ratelimit.NewMemoryStore()

	_, err := store.IncrementAndGet(ctx, "gone", time.Minute)
	require.NoError(t, err)
	require.NoError(t, store.Delete(ctx, "gone"))

	c, err := store.IncrementAndGet(ctx, "gone", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), c.N, "delete should reset the window")
}

func TestMemoryStore_ConcurrentIncrements(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping race condition test in short mode")
	}

	t.Parallel()

	ctx := context.Background()
	store := ratelimit.NewMemoryStore()

	goroutines := 50
	incrementsPerGoroutine := 20

	var mu sync.Mutex
	seen := make(map[int64]bool)

	var wg sync.WaitGroup
	wg.Add(goroutines)

	for range goroutines {
		go func() {
			defer wg.Done()
			for range incrementsPerGoroutine {
				c, err := store.IncrementAndGet(ctx, "concurrent", time.Hour)
				assert.NoError(t, err)

				mu.Lock()
				assert.False(t, seen[c.N], "no two callers may observe the same post-increment count")
				seen[c.N] = true
				mu.Unlock()
			}
		}()
	}

	wg.Wait()

	c, err := store.Get(ctx, "concurrent")
	require.NoError(t, err)
	assert.Equal(t, int64(goroutines*incrementsPerGoroutine), c.N)
}

func TestMemoryStore_Cleanup(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping cleanup test in short mode")
	}

	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := ratelimit.NewMemoryStore(
		ratelimit.WithCleanupInterval(30 * time.Millisecond),
	)

	go func() { _ = store.Start(ctx) }()
	t.Cleanup(func() { _ = store.Stop() })

	_, err := store.IncrementAndGet(ctx, "short-lived", 10*time.Millisecond)
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return store.Stats().WindowsRemoved >= 1
	}, time.Second, 10*time.Millisecond, "janitor should reclaim the expired window")

	assert.True(t, store.IsAvailable())
	assert.NoError(t, store.Healthcheck(ctx))
}
