package middleware

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/hirewire/admission/pkg/fingerprint"
	"github.com/hirewire/admission/pkg/logger"
	"github.com/hirewire/admission/pkg/ratelimit"
)

// Checker is anything that can produce an admission decision for a
// fingerprint. *ratelimit.Limiter satisfies it; so can an adapter around an
// external bot-shield service. Shield checkers are consulted best-effort: a
// checker signalling FailOpen (its own backend is down) is ignored, because
// the home-grown fail-open rule is authoritative for the whole pipeline.
type Checker interface {
	Check(ctx context.Context, fingerprint string) ratelimit.Decision
}

// AdmissionConfig configures the admission pipeline for one route group.
type AdmissionConfig struct {
	// Gate decides which requests skip admission control entirely.
	// Optional; nil means nothing is bypassed.
	Gate *Bypass
	// Speed is the artificial-delay stage. Optional. It runs after the
	// bypass check and never terminates a request.
	Speed *ratelimit.SpeedLimiter
	// Limiters are the route group's policies, applied in order. The first
	// rejection wins and short-circuits the remaining checks.
	Limiters []*ratelimit.Limiter
	// Shields are optional external deciders consulted after the limiters.
	Shields []Checker
	// Fingerprinter overrides request fingerprint derivation (default:
	// fingerprint.Derive). Tests use it to pin fingerprints.
	Fingerprinter func(*http.Request) string
	// Logger receives one structured event per reject, fail-open fallback,
	// and delay activation (default: discard).
	Logger *slog.Logger
}

// Admission builds the pipeline middleware for one route group. Per request
// the stages run strictly downstream: bypass check, speed limiting, policy
// checks, then the business handler or a structured 429. Each request gets
// exactly one terminal outcome, and business logic is never invoked after a
// rejection.
//
// Policies with ExcludeSuccessful are evaluated with Peek before the handler
// runs and recorded with Record only when the handler's terminal status is
// outside the 2xx range, so successful logins never consume auth budget.
func Admission(cfg AdmissionConfig) func(http.Handler) http.Handler {
	if cfg.Fingerprinter == nil {
		cfg.Fingerprinter = fingerprint.Derive
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if cfg.Gate != nil && cfg.Gate.ShouldBypass(r) {
				next.ServeHTTP(w, r)
				return
			}

			ctx := r.Context()
			fp := cfg.Fingerprinter(r)
			reqID := requestID(r)

			if cfg.Speed != nil {
				res := cfg.Speed.Throttle(ctx, fp)
				switch {
				case res.FailOpen:
					cfg.Logger.WarnContext(ctx, "admission fail-open",
						logger.Component("speed_limiter"),
						logger.RequestID(reqID),
						logger.Fingerprint(fp),
						logger.Decision("fail_open"))
				case res.Delay > 0:
					cfg.Logger.InfoContext(ctx, "speed limit delay applied",
						logger.Component("speed_limiter"),
						logger.RequestID(reqID),
						logger.Fingerprint(fp),
						logger.Decision("delay"),
						logger.Count(res.Count),
						logger.Duration(res.Delay))
				}
			}

			// Limiters whose recording is deferred until the response
			// outcome is known.
			var deferred []*ratelimit.Limiter

			for _, l := range cfg.Limiters {
				var d ratelimit.Decision
				if l.Policy().ExcludeSuccessful {
					d = l.Peek(ctx, fp)
					if d.Allowed && !d.FailOpen {
						deferred = append(deferred, l)
					}
				} else {
					d = l.Check(ctx, fp)
				}

				if d.FailOpen {
					cfg.Logger.WarnContext(ctx, "admission fail-open",
						logger.Component("limiter"),
						logger.RequestID(reqID),
						logger.Fingerprint(fp),
						logger.Policy(d.Policy),
						logger.Decision("fail_open"),
						logger.Path(r.URL.Path))
					continue
				}

				if !d.Allowed {
					rejectRequest(w, r, cfg.Logger, l.Policy().Message, d, fp, reqID)
					return
				}
			}

			for _, shield := range cfg.Shields {
				d := shield.Check(ctx, fp)
				if d.FailOpen {
					// A shield outage never blocks traffic.
					continue
				}
				if !d.Allowed {
					rejectRequest(w, r, cfg.Logger, "Request blocked", d, fp, reqID)
					return
				}
			}

			if len(deferred) == 0 {
				next.ServeHTTP(w, r)
				return
			}

			rec := newStatusRecorder(w)
			next.ServeHTTP(rec, r)

			// Only non-2xx terminal outcomes count toward deferred policies:
			// failed login attempts consume budget, successful ones do not.
			if rec.Status() < 200 || rec.Status() > 299 {
				for _, l := range deferred {
					l.Record(ctx, fp)
				}
			}
		})
	}
}

// rejection is the 429 body contract with API clients.
type rejection struct {
	Success    bool   `json:"success"`
	Error      string `json:"error"`
	RetryAfter int64  `json:"retryAfter"`
	Timestamp  string `json:"timestamp"`
}

func rejectRequest(w http.ResponseWriter, r *http.Request, log *slog.Logger, message string, d ratelimit.Decision, fp, reqID string) {
	log.WarnContext(r.Context(), "request rejected",
		logger.Component("limiter"),
		logger.RequestID(reqID),
		logger.Fingerprint(fp),
		logger.Policy(d.Policy),
		logger.Decision("reject"),
		logger.Count(d.Count),
		logger.Method(r.Method),
		logger.Path(r.URL.Path))

	retryAfter := int64(d.RetryAfter / time.Second)
	if retryAfter < 1 {
		retryAfter = 1
	}

	w.Header().Set("Retry-After", strconv.FormatInt(retryAfter, 10))
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusTooManyRequests)

	_ = json.NewEncoder(w).Encode(rejection{
		Error:      message,
		RetryAfter: retryAfter,
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
	})
}

// requestID returns the caller-supplied request ID or generates one, so every
// decision event for a request carries the same correlation value.
func requestID(r *http.Request) string {
	if id := r.Header.Get("X-Request-ID"); id != "" {
		return id
	}
	return uuid.New().String()
}

// statusRecorder is a minimal wrapper around http.ResponseWriter that tracks
// the terminal status code for deferred policy recording.
type statusRecorder struct {
	http.ResponseWriter
	status  int
	written bool
}

func newStatusRecorder(w http.ResponseWriter) *statusRecorder {
	return &statusRecorder{ResponseWriter: w}
}

func (w *statusRecorder) WriteHeader(status int) {
	if !w.written {
		w.status = status
		w.written = true
		w.ResponseWriter.WriteHeader(status)
	}
}

func (w *statusRecorder) Write(b []byte) (int, error) {
	if !w.written {
		w.WriteHeader(http.StatusOK)
	}
	return w.ResponseWriter.Write(b)
}

// Status returns the recorded status code, defaulting to 200 when the
// handler wrote a body without an explicit header.
func (w *statusRecorder) Status() int {
	if !w.written {
		return http.StatusOK
	}
	return w.status
}

// Flush implements http.Flusher if the underlying ResponseWriter supports it.
func (w *statusRecorder) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
