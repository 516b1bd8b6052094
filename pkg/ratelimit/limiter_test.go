package ratelimit_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hirewire/admission/pkg/ratelimit"
)

// unavailableStore simulates a backend outage: every operation fails the way
// a RedisStore does when Redis is unreachable.
type unavailableStore struct{}

func (unavailableStore) IncrementAndGet(ctx context.Context, key string, window time.Duration) (ratelimit.Count, error) {
	return ratelimit.Count{}, fmt.Errorf("%w: connection refused", ratelimit.ErrStoreUnavailable)
}

func (unavailableStore) Get(ctx context.Context, key string) (ratelimit.Count, error) {
	return ratelimit.Count{}, fmt.Errorf("%w: connection refused", ratelimit.ErrStoreUnavailable)
}

func (unavailableStore) Delete(ctx context.Context, key string) error {
	return fmt.Errorf("%w: connection refused", ratelimit.ErrStoreUnavailable)
}

func (unavailableStore) IsAvailable() bool { return false }

func newLimiter(t *testing.T, store ratelimit.CounterStore, policy ratelimit.Policy) *ratelimit.Limiter {
	t.Helper()
	limiter, err := ratelimit.NewLimiter(store, policy)
	require.NoError(t, err)
	return limiter
}

func TestNewLimiter(t *testing.T) {
	t.Parallel()

	t.Run("rejects nil store", func(t *testing.T) {
		t.Parallel()

		_, err := ratelimit.NewLimiter(nil, ratelimit.Policy{Name: "api", Window: time.Minute, MaxCount: 60})
		assert.ErrorIs(t, err, ratelimit.ErrInvalidConfig)
	})

	t.Run("rejects invalid policy", func(t *testing.T) {
		t.Parallel()

		_, err := ratelimit.NewLimiter(ratelimit.NewMemoryStore(), ratelimit.Policy{Name: "api", Window: time.Minute})
		assert.ErrorIs(t, err, ratelimit.ErrInvalidPolicy)
	})
}

func TestLimiter_FixedWindow(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	policy := ratelimit.Policy{Name: "api", Window: time.Minute, MaxCount: 5, Message: "Too many API requests"}
	limiter := newLimiter(t, ratelimit.NewMemoryStore(), policy)

	const fp = "v1:aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"

	// Exactly MaxCount requests inside one window are allowed.
	for i := int64(1); i <= policy.MaxCount; i++ {
		d := limiter.Check(ctx, fp)
		assert.True(t, d.Allowed, "request %d should be allowed", i)
		assert.Equal(t, i, d.Count)
		assert.False(t, d.FailOpen)
	}

	// The (MaxCount+1)-th within the same window is the first rejected.
	d := limiter.Check(ctx, fp)
	assert.False(t, d.Allowed)
	assert.Equal(t, policy.MaxCount+1, d.Count)
	assert.Equal(t, "api", d.Policy)
	assert.GreaterOrEqual(t, d.RetryAfter, time.Second)
	assert.LessOrEqual(t, d.RetryAfter, policy.Window)
}

func TestLimiter_KeyIsolation(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	policy := ratelimit.Policy{Name: "api", Window: time.Minute, MaxCount: 2}
	limiter := newLimiter(t, ratelimit.NewMemoryStore(), policy)

	// Exhaust the first fingerprint's quota.
	for range 3 {
		limiter.Check(ctx, "v1:first")
	}
	require.False(t, limiter.Check(ctx, "v1:first").Allowed)

	// A distinct fingerprint still has its full budget.
	d := limiter.Check(ctx, "v1:second")
	assert.True(t, d.Allowed)
	assert.Equal(t, int64(1), d.Count)
}

func TestLimiter_PolicyIsolation(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := ratelimit.NewMemoryStore()
	strict := newLimiter(t, store, ratelimit.Policy{Name: "sensitive", Window: time.Hour, MaxCount: 1})
	loose := newLimiter(t, store, ratelimit.Policy{Name: "global", Window: time.Hour, MaxCount: 100})

	const fp = "v1:shared"

	require.True(t, strict.Check(ctx, fp).Allowed)
	require.False(t, strict.Check(ctx, fp).Allowed)

	// Same fingerprint, different policy name, different counter.
	d := loose.Check(ctx, fp)
	assert.True(t, d.Allowed)
	assert.Equal(t, int64(1), d.Count, "policies never share counters")
}

func TestLimiter_FailOpen(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	policy := ratelimit.Policy{Name: "sensitive", Window: time.Hour, MaxCount: 5}
	limiter := newLimiter(t, unavailableStore{}, policy)

	// Regardless of volume, an unreachable store never rejects.
	for range 100 {
		d := limiter.Check(ctx, "v1:anyone")
		assert.True(t, d.Allowed)
		assert.True(t, d.FailOpen)
		assert.Equal(t, time.Duration(0), d.RetryAfter)
	}
}

func TestLimiter_WindowReset(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	policy := ratelimit.Policy{Name: "api", Window: 50 * time.Millisecond, MaxCount: 1}
	limiter := newLimiter(t, ratelimit.NewMemoryStore(), policy)

	const fp = "v1:resetting"

	require.True(t, limiter.Check(ctx, fp).Allowed)
	require.False(t, limiter.Check(ctx, fp).Allowed)

	time.Sleep(60 * time.Millisecond)

	assert.True(t, limiter.Check(ctx, fp).Allowed, "a new window restores the budget")
}

func TestLimiter_PeekAndRecord(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	policy := ratelimit.Policy{Name: "auth", Window: time.Minute, MaxCount: 3, ExcludeSuccessful: true}
	limiter := newLimiter(t, ratelimit.NewMemoryStore(), policy)

	const fp = "v1:bruteforce"

	t.Run("peek does not consume budget", func(t *testing.T) {
		for range 10 {
			d := limiter.Peek(ctx, fp)
			assert.True(t, d.Allowed)
			assert.Equal(t, int64(0), d.Count)
		}
	})

	t.Run("recorded failures consume budget", func(t *testing.T) {
		for range int(policy.MaxCount) {
			require.True(t, limiter.Peek(ctx, fp).Allowed)
			limiter.Record(ctx, fp)
		}

		d := limiter.Peek(ctx, fp)
		assert.False(t, d.Allowed)
		assert.Equal(t, policy.MaxCount, d.Count)
		assert.GreaterOrEqual(t, d.RetryAfter, time.Second)
	})

	t.Run("reset restores budget", func(t *testing.T) {
		require.NoError(t, limiter.Reset(ctx, fp))
		assert.True(t, limiter.Peek(ctx, fp).Allowed)
	})
}

func TestLimiter_PeekFailOpen(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	limiter := newLimiter(t, unavailableStore{}, ratelimit.Policy{Name: "auth", Window: time.Minute, MaxCount: 1, ExcludeSuccessful: true})

	d := limiter.Peek(ctx, "v1:anyone")
	assert.True(t, d.Allowed)
	assert.True(t, d.FailOpen)

	// Record during an outage is swallowed, not surfaced.
	limiter.Record(ctx, "v1:anyone")
}
