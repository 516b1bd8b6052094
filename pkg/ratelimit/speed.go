package ratelimit

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"
)

// speedKeyPrefix separates SpeedLimiter counters from policy counters in the
// shared store.
const speedKeyPrefix = "speed:"

// SpeedConfig configures a SpeedLimiter.
type SpeedConfig struct {
	// Window is the fixed counting window.
	Window time.Duration
	// DelayAfter is the hit count within the window after which delays begin.
	DelayAfter int64
	// DelayIncrement is the additional delay applied per hit past DelayAfter:
	// hit DelayAfter+n waits n × DelayIncrement.
	DelayIncrement time.Duration
	// MaxDelay caps the computed delay. Zero means uncapped; operators who
	// front the service with an aggressive proxy timeout may want a cap.
	MaxDelay time.Duration
}

// Validate reports whether the configuration is usable.
func (c SpeedConfig) Validate() error {
	if c.Window <= 0 {
		return fmt.Errorf("%w: speed limiter window must be positive, got %v", ErrInvalidConfig, c.Window)
	}
	if c.DelayAfter < 1 {
		return fmt.Errorf("%w: speed limiter delay threshold must be at least 1, got %d", ErrInvalidConfig, c.DelayAfter)
	}
	if c.DelayIncrement <= 0 {
		return fmt.Errorf("%w: speed limiter delay increment must be positive, got %v", ErrInvalidConfig, c.DelayIncrement)
	}
	if c.MaxDelay < 0 {
		return fmt.Errorf("%w: speed limiter max delay must not be negative, got %v", ErrInvalidConfig, c.MaxDelay)
	}
	return nil
}

// DefaultSpeedConfig returns the platform defaults: delays start after 100
// hits in 15 minutes and grow by 500ms per hit, uncapped.
func DefaultSpeedConfig() SpeedConfig {
	return SpeedConfig{
		Window:         15 * time.Minute,
		DelayAfter:     100,
		DelayIncrement: 500 * time.Millisecond,
	}
}

// SpeedResult reports one speed-limiter evaluation.
type SpeedResult struct {
	// Delay is the artificial delay injected before the request proceeds.
	Delay time.Duration
	// Count is the hit count within the current window.
	Count int64
	// FailOpen marks a zero delay caused by store unavailability.
	FailOpen bool
}

// SpeedLimiter degrades responsiveness instead of rejecting: once a
// fingerprint exceeds DelayAfter hits in a window, each further request
// absorbs a monotonically growing delay. It blunts scraping and automation
// without breaking legitimate bursty human use, and it never terminates a
// request. Independent of Limiter; the two share only the CounterStore.
type SpeedLimiter struct {
	store  CounterStore
	cfg    SpeedConfig
	logger *slog.Logger
}

// SpeedLimiterOption configures a SpeedLimiter.
type SpeedLimiterOption func(*SpeedLimiter)

// WithSpeedLimiterLogger sets the logger for fail-open warnings.
func WithSpeedLimiterLogger(logger *slog.Logger) SpeedLimiterOption {
	return func(sl *SpeedLimiter) {
		if logger != nil {
			sl.logger = logger
		}
	}
}

// NewSpeedLimiter creates a speed limiter. Invalid configuration is a
// startup error.
func NewSpeedLimiter(store CounterStore, cfg SpeedConfig, opts ...SpeedLimiterOption) (*SpeedLimiter, error) {
	if store == nil {
		return nil, ErrInvalidConfig
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	sl := &SpeedLimiter{
		store:  store,
		cfg:    cfg,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, opt := range opts {
		opt(sl)
	}

	return sl, nil
}

// Delay records a hit for the fingerprint and computes the delay it must
// absorb. It does not sleep; use Throttle on the request path.
func (sl *SpeedLimiter) Delay(ctx context.Context, fingerprint string) SpeedResult {
	c, err := sl.store.IncrementAndGet(ctx, speedKeyPrefix+fingerprint, sl.cfg.Window)
	if err != nil {
		sl.logger.WarnContext(ctx, "counter store unavailable, skipping speed limiting",
			slog.String("fingerprint", fingerprint),
			slog.Any("error", err))
		return SpeedResult{FailOpen: true}
	}

	if c.N <= sl.cfg.DelayAfter {
		return SpeedResult{Count: c.N}
	}

	delay := time.Duration(c.N-sl.cfg.DelayAfter) * sl.cfg.DelayIncrement
	if sl.cfg.MaxDelay > 0 && delay > sl.cfg.MaxDelay {
		delay = sl.cfg.MaxDelay
	}

	return SpeedResult{Delay: delay, Count: c.N}
}

// Throttle records a hit and sleeps for the computed delay, returning early
// if the context is cancelled. The result reports what was applied so the
// caller can emit a delay-activation event.
func (sl *SpeedLimiter) Throttle(ctx context.Context, fingerprint string) SpeedResult {
	res := sl.Delay(ctx, fingerprint)
	if res.Delay <= 0 {
		return res
	}

	timer := time.NewTimer(res.Delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
	case <-timer.C:
	}

	return res
}
