// Package ratelimit implements fixed-window admission control with pluggable
// counter storage.
//
// The package is the policy engine of the platform's admission layer: it
// decides, before any business logic runs, whether a request identified by a
// fingerprint may proceed, and how much artificial delay it should absorb.
//
// # Fixed Windows
//
// Counters are fixed-window: the first increment of a key starts the window
// and sets its expiry; subsequent increments within the window do not refresh
// it. When the window elapses the backend drops the key and the count resets.
// A burst straddling two adjacent windows can therefore admit up to twice the
// configured maximum. That is an accepted trade-off for the O(1) cost and
// the trivially atomic backend operation, not a bug.
//
// # Core Types
//
//   - Policy: immutable window/limit configuration, loaded once at startup
//     and shared by every request goroutine.
//   - Registry: the single process-wide policy set, referenced by name.
//   - CounterStore: atomic increment-with-expiry storage. RedisStore
//     coordinates counters across service instances; MemoryStore serves
//     tests and single-instance deployments.
//   - Limiter: evaluates one Policy against a CounterStore per fingerprint.
//   - SpeedLimiter: past a hit threshold, injects a growing delay instead of
//     rejecting.
//
// # Failure Semantics
//
// The engine fails open. A CounterStore that is unreachable or slower than
// its sub-second operation timeout yields an ErrStoreUnavailable-wrapped
// error, and the Limiter converts that into an Allow decision flagged
// FailOpen so callers can emit an observability event. Failing closed would
// turn a Redis outage into a full platform outage, which is the wrong trade
// for an admission layer. Clients never observe backend
// failures.
//
// # Usage
//
//	store := ratelimit.NewRedisStore(redisClient)
//	registry, err := ratelimit.NewRegistry(ratelimit.DefaultPolicies()...)
//	if err != nil {
//		log.Fatal(err) // invalid policy is a startup error, never coerced
//	}
//
//	policy, _ := registry.Get(ratelimit.PolicyAPI)
//	limiter, _ := ratelimit.NewLimiter(store, policy)
//
//	d := limiter.Check(ctx, fingerprint.Derive(r))
//	if !d.Allowed {
//		// reject with 429, Retry-After d.RetryAfter
//	}
package ratelimit
