// Package clientip extracts the real client IP address from HTTP requests.
//
// The platform runs behind load balancers and a CDN, so the source address of
// the TCP connection is rarely the client itself. Headers are checked in
// priority order, most reliable first:
//  1. CF-Connecting-IP (CDN)
//  2. X-Forwarded-For (leftmost entry is the original client)
//  3. X-Real-IP
//  4. RemoteAddr (direct connection)
//
// Every candidate is validated with net.ParseIP and normalized; malformed
// values are skipped. The function never fails: when no candidate parses it
// falls back to the raw RemoteAddr so callers always get a non-empty key.
package clientip

import (
	"net"
	"net/http"
	"strings"
)

// GetIP returns the best-effort client IP address for the request.
// The result is a normalized IP string, or the raw RemoteAddr when no
// candidate validates.
func GetIP(r *http.Request) string {
	if ip := parseIP(r.Header.Get("CF-Connecting-IP")); ip != "" {
		return ip
	}

	// X-Forwarded-For may carry a chain: "client, proxy1, proxy2".
	// Only the leftmost entry identifies the original client.
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := parseIP(first); ip != "" {
			return ip
		}
	}

	if ip := parseIP(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}

	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		if ip := parseIP(host); ip != "" {
			return ip
		}
	}
	if ip := parseIP(r.RemoteAddr); ip != "" {
		return ip
	}

	return r.RemoteAddr
}

// parseIP validates and normalizes an IP candidate.
// Returns "" for malformed values and for the unspecified address 0.0.0.0,
// which some proxies emit when they have no client information.
func parseIP(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	ip := net.ParseIP(s)
	if ip == nil || ip.IsUnspecified() {
		return ""
	}
	return ip.String()
}
