package main

import (
	"log/slog"
	"net/http"

	"github.com/hirewire/admission/middleware"
	"github.com/hirewire/admission/pkg/ratelimit"
)

type routerDeps struct {
	store    ratelimit.CounterStore
	registry *ratelimit.Registry
	speed    *ratelimit.SpeedLimiter
	gate     *middleware.Bypass
	logger   *slog.Logger
}

// newRouter wires the route groups to their admission pipelines. Every group
// carries the global policy plus its own; health endpoints are reachable even
// for throttled clients via the bypass gate.
func newRouter(deps routerDeps) (http.Handler, error) {
	admit, err := pipelineBuilder(deps)
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /health/live", livenessHandler)
	mux.HandleFunc("GET /health/ready", readinessHandler(deps.store))

	authPipeline := admit(ratelimit.PolicyAuth)
	mux.Handle("POST /api/v1/auth/login", authPipeline(http.HandlerFunc(loginHandler)))
	mux.Handle("POST /api/v1/auth/register", authPipeline(http.HandlerFunc(registerHandler)))
	mux.Handle("POST /api/v1/auth/password-reset", admit(ratelimit.PolicySensitive)(http.HandlerFunc(passwordResetHandler)))

	mux.Handle("POST /api/v1/resumes", admit(ratelimit.PolicyUpload)(http.HandlerFunc(uploadResumeHandler)))

	apiPipeline := admit(ratelimit.PolicyAPI)
	mux.Handle("GET /api/v1/jobs", apiPipeline(http.HandlerFunc(listJobsHandler)))
	mux.Handle("GET /api/v1/jobs/{id}", apiPipeline(http.HandlerFunc(getJobHandler)))
	mux.Handle("GET /api/v1/companies/{id}", apiPipeline(http.HandlerFunc(getCompanyHandler)))

	mux.Handle("DELETE /api/v1/account", admit(ratelimit.PolicySensitive)(http.HandlerFunc(deleteAccountHandler)))

	return mux, nil
}

// pipelineBuilder returns a factory that assembles the admission middleware
// for one route group. Each group gets the global policy first so a client
// that exhausts it is rejected everywhere.
func pipelineBuilder(deps routerDeps) (func(names ...string) func(http.Handler) http.Handler, error) {
	if _, err := deps.registry.Get(ratelimit.PolicyGlobal); err != nil {
		return nil, err
	}

	return func(names ...string) func(http.Handler) http.Handler {
		limiters := make([]*ratelimit.Limiter, 0, len(names)+1)
		for _, name := range append([]string{ratelimit.PolicyGlobal}, names...) {
			l, err := ratelimit.NewLimiter(deps.store, deps.registry.MustGet(name),
				ratelimit.WithLimiterLogger(deps.logger.With("component", "ratelimit")))
			if err != nil {
				// Policies were validated by the registry; a failure here is
				// a programming error.
				panic(err)
			}
			limiters = append(limiters, l)
		}

		return middleware.Admission(middleware.AdmissionConfig{
			Gate:     deps.gate,
			Speed:    deps.speed,
			Limiters: limiters,
			Logger:   deps.logger.With("component", "admission"),
		})
	}, nil
}
