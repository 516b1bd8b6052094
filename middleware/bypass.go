package middleware

import (
	"net"
	"net/http"

	"github.com/hirewire/admission/pkg/clientip"
)

// defaultHealthPaths are always exempt from admission control so orchestrator
// probes are never throttled into flapping.
var defaultHealthPaths = []string{
	"/health",
	"/health/live",
	"/health/ready",
	"/livez",
	"/readyz",
}

// Bypass decides whether a request skips admission control entirely:
// allowlisted source addresses first, then the fixed health/liveness path
// set. Both sets are loaded at startup and read-only afterwards, so checks
// are lock-free O(1) lookups with no I/O.
type Bypass struct {
	addrs map[string]struct{}
	paths map[string]struct{}
}

// BypassOption configures a Bypass gate.
type BypassOption func(*Bypass)

// WithAllowlistedAddrs exempts the given source addresses from every policy.
// Entries are normalized; values that do not parse as IPs are ignored rather
// than silently never matching.
func WithAllowlistedAddrs(addrs ...string) BypassOption {
	return func(b *Bypass) {
		for _, a := range addrs {
			if ip := net.ParseIP(a); ip != nil {
				b.addrs[ip.String()] = struct{}{}
			}
		}
	}
}

// WithHealthPaths replaces the default health/liveness path set.
func WithHealthPaths(paths ...string) BypassOption {
	return func(b *Bypass) {
		b.paths = make(map[string]struct{}, len(paths))
		for _, p := range paths {
			b.paths[p] = struct{}{}
		}
	}
}

// NewBypass creates a bypass gate with the default health paths and no
// allowlisted addresses.
func NewBypass(opts ...BypassOption) *Bypass {
	b := &Bypass{
		addrs: make(map[string]struct{}),
		paths: make(map[string]struct{}, len(defaultHealthPaths)),
	}
	for _, p := range defaultHealthPaths {
		b.paths[p] = struct{}{}
	}

	for _, opt := range opts {
		opt(b)
	}

	return b
}

// ShouldBypass returns true when the request's source address is allowlisted
// or its path belongs to the health set. First match wins; no state is
// mutated.
func (b *Bypass) ShouldBypass(r *http.Request) bool {
	if _, ok := b.addrs[clientip.GetIP(r)]; ok {
		return true
	}
	_, ok := b.paths[r.URL.Path]
	return ok
}
