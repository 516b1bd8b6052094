package ratelimit

import (
	"context"
	"io"
	"log/slog"
	"time"
)

// Decision is the outcome of evaluating one policy for one fingerprint.
type Decision struct {
	// Allowed reports whether the request may proceed.
	Allowed bool
	// Count is the counter value the decision was based on. Zero when the
	// store was unavailable.
	Count int64
	// RetryAfter is the remaining window when rejected, rounded up to whole
	// seconds for the Retry-After header. Zero when allowed.
	RetryAfter time.Duration
	// FailOpen marks an Allow that happened because the counter store was
	// unreachable rather than because the count was within budget. Callers
	// must emit an observability event for these.
	FailOpen bool
	// Policy is the name of the policy that produced the decision.
	Policy string
}

// Limiter evaluates one Policy against a CounterStore. It is the unit
// composed per route group: a route's pipeline holds one Limiter per
// applicable policy. Limiters are stateless between requests and safe for
// concurrent use.
type Limiter struct {
	store  CounterStore
	policy Policy
	logger *slog.Logger
}

// LimiterOption configures a Limiter.
type LimiterOption func(*Limiter)

// WithLimiterLogger sets the logger for fail-open warnings.
func WithLimiterLogger(logger *slog.Logger) LimiterOption {
	return func(l *Limiter) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// NewLimiter creates a limiter for the given policy. The policy is validated
// again here so a Limiter constructed outside the Registry cannot smuggle in
// an unlimited or zero-window configuration.
func NewLimiter(store CounterStore, policy Policy, opts ...LimiterOption) (*Limiter, error) {
	if store == nil {
		return nil, ErrInvalidConfig
	}
	if err := policy.Validate(); err != nil {
		return nil, err
	}

	l := &Limiter{
		store:  store,
		policy: policy,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, opt := range opts {
		opt(l)
	}

	return l, nil
}

// Policy returns the limiter's policy.
func (l *Limiter) Policy() Policy { return l.policy }

// Check increments the counter for the fingerprint and decides. The request
// that brings the count to exactly MaxCount is allowed; the next within the
// same window is the first rejected.
//
// A store error means the backend is unreachable or timed out: the decision
// is Allow with FailOpen set, never Reject. Enforcement degrades; the
// service does not.
func (l *Limiter) Check(ctx context.Context, fingerprint string) Decision {
	c, err := l.store.IncrementAndGet(ctx, l.policy.Key(fingerprint), l.policy.Window)
	if err != nil {
		return l.failOpen(ctx, fingerprint, err)
	}

	if c.N > l.policy.MaxCount {
		return Decision{
			Count:      c.N,
			RetryAfter: ceilSeconds(c.ResetAfter),
			Policy:     l.policy.Name,
		}
	}

	return Decision{Allowed: true, Count: c.N, Policy: l.policy.Name}
}

// Peek decides without incrementing, for policies that defer recording until
// the response outcome is known (ExcludeSuccessful). It rejects once the
// recorded count has consumed the whole budget. The peek/record pair admits a
// small race under concurrency; that is the accepted price for never counting
// successful requests.
func (l *Limiter) Peek(ctx context.Context, fingerprint string) Decision {
	c, err := l.store.Get(ctx, l.policy.Key(fingerprint))
	if err != nil {
		return l.failOpen(ctx, fingerprint, err)
	}

	if c.N >= l.policy.MaxCount {
		retryAfter := c.ResetAfter
		if retryAfter <= 0 {
			retryAfter = l.policy.Window
		}
		return Decision{
			Count:      c.N,
			RetryAfter: ceilSeconds(retryAfter),
			Policy:     l.policy.Name,
		}
	}

	return Decision{Allowed: true, Count: c.N, Policy: l.policy.Name}
}

// Record counts a terminal outcome after the fact, completing a Peek. Store
// errors are swallowed under the same fail-open rule: losing one count during
// an outage is preferable to failing the already-served request.
func (l *Limiter) Record(ctx context.Context, fingerprint string) {
	if _, err := l.store.IncrementAndGet(ctx, l.policy.Key(fingerprint), l.policy.Window); err != nil {
		l.logger.WarnContext(ctx, "deferred count lost, counter store unavailable",
			slog.String("policy", l.policy.Name),
			slog.Any("error", err))
	}
}

// Reset clears the fingerprint's counter for this policy. Administrative
// override; not used on the request path.
func (l *Limiter) Reset(ctx context.Context, fingerprint string) error {
	return l.store.Delete(ctx, l.policy.Key(fingerprint))
}

func (l *Limiter) failOpen(ctx context.Context, fingerprint string, err error) Decision {
	l.logger.WarnContext(ctx, "counter store unavailable, allowing request",
		slog.String("policy", l.policy.Name),
		slog.String("fingerprint", fingerprint),
		slog.Any("error", err))

	return Decision{Allowed: true, FailOpen: true, Policy: l.policy.Name}
}

// ceilSeconds rounds a duration up to whole seconds, the granularity of the
// Retry-After header. Rejections always carry at least one second.
func ceilSeconds(d time.Duration) time.Duration {
	if d <= 0 {
		return time.Second
	}
	if r := d % time.Second; r != 0 {
		d += time.Second - r
	}
	return d
}
