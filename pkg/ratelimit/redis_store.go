package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore implements CounterStore on Redis, giving every service instance
// a view of the same counters. Increments are atomic on the server side, so
// no two concurrent callers, in this process or another, ever observe the
// same post-increment count for a key.
//
// The store owns its failure handling: every operation runs under a short
// timeout, an I/O error flips the availability flag instead of being
// propagated as a retryable condition, and a background ping loop restores
// the flag when Redis comes back. Callers never reconnect themselves.
type RedisStore struct {
	client redis.UniversalClient

	// Configuration
	opTimeout    time.Duration
	pingInterval time.Duration
	keyPrefix    string
	logger       *slog.Logger

	// State management
	mu        sync.Mutex
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	available atomic.Bool
}

// RedisStoreOption configures a RedisStore.
type RedisStoreOption func(*RedisStore)

// WithOpTimeout bounds each Redis round-trip. A call that exceeds the timeout
// is treated identically to an unreachable backend: admission control must
// never itself become the slow path. The default is 250ms.
func WithOpTimeout(timeout time.Duration) RedisStoreOption {
	return func(rs *RedisStore) {
		if timeout > 0 {
			rs.opTimeout = timeout
		}
	}
}

// WithPingInterval sets how often the health loop probes Redis.
func WithPingInterval(interval time.Duration) RedisStoreOption {
	return func(rs *RedisStore) {
		if interval > 0 {
			rs.pingInterval = interval
		}
	}
}

// WithKeyPrefix namespaces every counter key, keeping admission counters
// apart from other tenants of the same Redis.
func WithKeyPrefix(prefix string) RedisStoreOption {
	return func(rs *RedisStore) {
		rs.keyPrefix = prefix
	}
}

// WithRedisStoreLogger sets the logger for availability transitions.
func WithRedisStoreLogger(logger *slog.Logger) RedisStoreOption {
	return func(rs *RedisStore) {
		if logger != nil {
			rs.logger = logger
		}
	}
}

// NewRedisStore creates a counter store on an existing Redis client. The
// store starts optimistic: it assumes the backend is reachable until an
// operation or ping says otherwise, so a Redis outage at boot degrades to
// fail-open instead of preventing process start.
func NewRedisStore(client redis.UniversalClient, opts ...RedisStoreOption) *RedisStore {
	rs := &RedisStore{
		client:       client,
		opTimeout:    250 * time.Millisecond,
		pingInterval: 5 * time.Second,
		keyPrefix:    "admission:",
		logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, opt := range opts {
		opt(rs)
	}

	rs.available.Store(true)
	return rs
}

// IncrementAndGet implements CounterStore.
//
// The triplet INCR + EXPIRE NX + PTTL runs as one transaction: INCR is atomic
// on the server, and EXPIRE NX sets the window expiry only when the key has
// none yet: the first hit of a window fixes its deadline and later hits
// leave it alone, which is exactly the fixed-window contract.
func (rs *RedisStore) IncrementAndGet(ctx context.Context, key string, window time.Duration) (Count, error) {
	opCtx, cancel := context.WithTimeout(ctx, rs.opTimeout)
	defer cancel()

	k := rs.keyPrefix + key
	pipe := rs.client.TxPipeline()
	incr := pipe.Incr(opCtx, k)
	pipe.ExpireNX(opCtx, k, window)
	pttl := pipe.PTTL(opCtx, k)

	if _, err := pipe.Exec(opCtx); err != nil {
		rs.markUnavailable(err)
		return Count{}, fmt.Errorf("%w: increment %q: %v", ErrStoreUnavailable, key, err)
	}
	rs.markAvailable()

	reset := pttl.Val()
	if reset < 0 {
		// A key without TTL should not happen once EXPIRE NX ran; treat the full
		// window as remaining rather than failing the request.
		reset = window
	}

	return Count{N: incr.Val(), ResetAfter: reset}, nil
}

// Get implements CounterStore. A missing key reads as zero.
func (rs *RedisStore) Get(ctx context.Context, key string) (Count, error) {
	opCtx, cancel := context.WithTimeout(ctx, rs.opTimeout)
	defer cancel()

	k := rs.keyPrefix + key
	pipe := rs.client.Pipeline()
	get := pipe.Get(opCtx, k)
	pttl := pipe.PTTL(opCtx, k)

	if _, err := pipe.Exec(opCtx); err != nil && !errors.Is(err, redis.Nil) {
		rs.markUnavailable(err)
		return Count{}, fmt.Errorf("%w: get %q: %v", ErrStoreUnavailable, key, err)
	}
	rs.markAvailable()

	n, err := get.Int64()
	if err != nil {
		// redis.Nil: no window open for this key.
		return Count{}, nil
	}

	reset := pttl.Val()
	if reset < 0 {
		reset = 0
	}

	return Count{N: n, ResetAfter: reset}, nil
}

// Delete implements CounterStore.
func (rs *RedisStore) Delete(ctx context.Context, key string) error {
	opCtx, cancel := context.WithTimeout(ctx, rs.opTimeout)
	defer cancel()

	if err := rs.client.Del(opCtx, rs.keyPrefix+key).Err(); err != nil {
		rs.markUnavailable(err)
		return fmt.Errorf("%w: delete %q: %v", ErrStoreUnavailable, key, err)
	}
	rs.markAvailable()
	return nil
}

// IsAvailable implements CounterStore.
func (rs *RedisStore) IsAvailable() bool {
	return rs.available.Load()
}

// Healthcheck validates connectivity to Redis. Suitable for readiness
// endpoints; unlike counter operations it surfaces the underlying error.
func (rs *RedisStore) Healthcheck(ctx context.Context) error {
	opCtx, cancel := context.WithTimeout(ctx, rs.opTimeout)
	defer cancel()

	if err := rs.client.Ping(opCtx).Err(); err != nil {
		rs.markUnavailable(err)
		return fmt.Errorf("redis ping failed: %w", err)
	}
	rs.markAvailable()
	return nil
}

// Start runs the availability ping loop until the context is cancelled.
// Use Run() for errgroup pattern or call this in a goroutine.
func (rs *RedisStore) Start(ctx context.Context) error {
	rs.mu.Lock()
	if rs.cancel != nil {
		rs.mu.Unlock()
		return fmt.Errorf("redis store already started")
	}
	rs.ctx, rs.cancel = context.WithCancel(ctx)
	rs.mu.Unlock()

	rs.logger.InfoContext(rs.ctx, "redis store health loop started",
		slog.Duration("ping_interval", rs.pingInterval))

	ticker := time.NewTicker(rs.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rs.ctx.Done():
			rs.logger.InfoContext(context.Background(), "redis store health loop stopping")
			return rs.ctx.Err()
		case <-ticker.C:
			rs.wg.Add(1)
			rs.ping()
			rs.wg.Done()
		}
	}
}

// Stop cancels the health loop and waits for an in-flight ping.
func (rs *RedisStore) Stop() error {
	rs.mu.Lock()
	if rs.cancel == nil {
		rs.mu.Unlock()
		return fmt.Errorf("redis store not started")
	}
	cancel := rs.cancel
	rs.cancel = nil
	rs.mu.Unlock()

	cancel()
	rs.wg.Wait()
	return nil
}

// Run provides errgroup compatibility for coordinated lifecycle management.
func (rs *RedisStore) Run(ctx context.Context) func() error {
	return func() error {
		errCh := make(chan error, 1)
		go func() {
			errCh <- rs.Start(ctx)
		}()

		select {
		case <-ctx.Done():
			_ = rs.Stop()
			<-errCh
			return nil
		case err := <-errCh:
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return err
		}
	}
}

func (rs *RedisStore) ping() {
	opCtx, cancel := context.WithTimeout(rs.ctx, rs.opTimeout)
	defer cancel()

	if err := rs.client.Ping(opCtx).Err(); err != nil {
		rs.markUnavailable(err)
		return
	}
	rs.markAvailable()
}

// markUnavailable flips the availability flag and logs the transition once.
func (rs *RedisStore) markUnavailable(err error) {
	if rs.available.CompareAndSwap(true, false) {
		rs.logger.Warn("counter store unavailable, admission control failing open",
			slog.Any("error", err))
	}
}

// markAvailable restores the availability flag and logs the recovery once.
func (rs *RedisStore) markAvailable() {
	if rs.available.CompareAndSwap(false, true) {
		rs.logger.Info("counter store recovered")
	}
}
