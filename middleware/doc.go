// Package middleware composes the platform's admission-control pipeline as
// standard net/http middleware.
//
// Per inbound request the pipeline runs strictly downstream:
//
//	Entry → BypassCheck → SpeedCheck → PolicyCheck(1..N) → Admitted | Rejected
//
// The bypass gate (allowlisted addresses, health endpoints) short-circuits
// straight to the business handler. The speed stage only ever adds latency.
// Policy checks run in route-group order and the first rejection wins; a
// rejected request receives a structured 429 with a Retry-After header and
// never reaches business logic. Every reject, fail-open fallback, and delay
// activation emits one structured slog event carrying the request ID,
// fingerprint, policy name, decision, and count.
//
// # Wiring
//
// Each route group composes its own pipeline from the shared pieces:
//
//	gate := middleware.NewBypass(middleware.WithAllowlistedAddrs(cfg.Allowlist...))
//	speed, _ := ratelimit.NewSpeedLimiter(store, ratelimit.DefaultSpeedConfig())
//
//	authPipeline := middleware.Admission(middleware.AdmissionConfig{
//		Gate:     gate,
//		Speed:    speed,
//		Limiters: []*ratelimit.Limiter{globalLimiter, authLimiter},
//		Logger:   log,
//	})
//
//	mux.Handle("POST /api/v1/auth/login", authPipeline(loginHandler))
//
// The pipeline owns no state of its own; counters live in the CounterStore
// shared by every instance of the service.
package middleware
