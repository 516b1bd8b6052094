package ratelimit

import (
	"fmt"
	"time"
)

// Names of the built-in policies. Route groups reference policies by name so
// the literals live here and nowhere else.
const (
	PolicyGlobal    = "global"
	PolicyAuth      = "auth"
	PolicyUpload    = "upload"
	PolicyAPI       = "api"
	PolicySensitive = "sensitive"
)

// Policy is an immutable fixed-window rate-limit configuration. Policies are
// validated and loaded once at startup and are safe for concurrent reads by
// every request goroutine.
type Policy struct {
	// Name identifies the policy and prefixes every counter key.
	Name string
	// Window is the fixed counting window. Must be positive.
	Window time.Duration
	// MaxCount is the number of requests admitted per window. The request
	// that brings the count to exactly MaxCount is still allowed; the next
	// one within the same window is the first rejected. Must be at least 1.
	MaxCount int64
	// ExcludeSuccessful defers counting until the response outcome is known
	// and records only non-2xx outcomes. Used for brute-force resistance on
	// login, where successful sign-ins must not consume the budget.
	ExcludeSuccessful bool
	// Message is the human-readable rejection text returned to clients.
	Message string
}

// Validate reports whether the policy is usable. An invalid policy is a
// startup error: it must prevent process start rather than be coerced.
func (p Policy) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidPolicy)
	}
	if p.Window <= 0 {
		return fmt.Errorf("%w: policy %q window must be positive, got %v", ErrInvalidPolicy, p.Name, p.Window)
	}
	if p.MaxCount < 1 {
		return fmt.Errorf("%w: policy %q max count must be at least 1, got %d", ErrInvalidPolicy, p.Name, p.MaxCount)
	}
	return nil
}

// Key returns the counter key for a fingerprint under this policy.
// Distinct policies never share counters because the name prefixes the key.
func (p Policy) Key(fingerprint string) string {
	return p.Name + ":" + fingerprint
}

// DefaultPolicies returns the platform policy set. Overrides from the
// environment are applied by the config package before registry construction;
// the literals are defined only here.
func DefaultPolicies() []Policy {
	return []Policy{
		{
			Name:     PolicyGlobal,
			Window:   15 * time.Minute,
			MaxCount: 1000,
			Message:  "Too many requests from this client, please try again later",
		},
		{
			Name:              PolicyAuth,
			Window:            15 * time.Minute,
			MaxCount:          10,
			ExcludeSuccessful: true,
			Message:           "Too many authentication attempts, please try again later",
		},
		{
			Name:     PolicyUpload,
			Window:   time.Hour,
			MaxCount: 20,
			Message:  "Too many uploads, please try again later",
		},
		{
			Name:     PolicyAPI,
			Window:   time.Minute,
			MaxCount: 60,
			Message:  "Too many API requests",
		},
		{
			Name:     PolicySensitive,
			Window:   time.Hour,
			MaxCount: 5,
			Message:  "Too many attempts for this operation, please try again later",
		},
	}
}

// Registry is the process-wide policy set, built once at startup and
// read-only thereafter. Lookups require no locking.
type Registry struct {
	policies map[string]Policy
	order    []string
}

// NewRegistry validates every policy and builds the registry.
// Duplicate names and invalid policies are configuration errors.
func NewRegistry(policies ...Policy) (*Registry, error) {
	r := &Registry{policies: make(map[string]Policy, len(policies))}
	for _, p := range policies {
		if err := p.Validate(); err != nil {
			return nil, err
		}
		if _, exists := r.policies[p.Name]; exists {
			return nil, fmt.Errorf("%w: %q", ErrDuplicatePolicy, p.Name)
		}
		r.policies[p.Name] = p
		r.order = append(r.order, p.Name)
	}
	return r, nil
}

// Get returns the named policy.
func (r *Registry) Get(name string) (Policy, error) {
	p, ok := r.policies[name]
	if !ok {
		return Policy{}, fmt.Errorf("%w: %q", ErrUnknownPolicy, name)
	}
	return p, nil
}

// MustGet returns the named policy or panics. For wiring code where the name
// is a package constant and absence is a programming error.
func (r *Registry) MustGet(name string) Policy {
	p, err := r.Get(name)
	if err != nil {
		panic(err)
	}
	return p
}

// All returns the policies in registration order.
func (r *Registry) All() []Policy {
	out := make([]Policy, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.policies[name])
	}
	return out
}
