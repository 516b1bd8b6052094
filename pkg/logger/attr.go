// Package logger provides slog attribute helpers for admission-control events.
//
// Helpers use the empty Attr pattern for nil safety: log.Info("msg",
// logger.Error(err)) works without explicit nil checks, following the
// principle of making zero values useful. Attribute keys are fixed so that
// every decision event carries the same field names and stays queryable.
package logger

import (
	"log/slog"
	"time"
)

// Error creates an attribute for a single error under the key "error".
// Returns empty Attr for nil errors, enabling safe usage without nil checks.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.Any("error", err)
}

// Duration creates an attribute for a duration.
func Duration(d time.Duration) slog.Attr {
	return slog.Duration("duration", d)
}

// Component creates an attribute for component names.
func Component(name string) slog.Attr {
	return slog.String("component", name)
}

// RequestID creates an attribute for HTTP request IDs.
func RequestID(id string) slog.Attr {
	if id == "" {
		return slog.Attr{}
	}
	return slog.String("request_id", id)
}

// Method creates an attribute for HTTP methods.
func Method(method string) slog.Attr {
	return slog.String("method", method)
}

// Path creates an attribute for URL paths.
func Path(path string) slog.Attr {
	return slog.String("path", path)
}

// StatusCode creates an attribute for HTTP status codes.
func StatusCode(code int) slog.Attr {
	return slog.Int("status_code", code)
}

// ClientIP creates an attribute for client IP addresses.
func ClientIP(ip string) slog.Attr {
	return slog.String("client_ip", ip)
}

// Fingerprint creates an attribute for request fingerprints.
func Fingerprint(fp string) slog.Attr {
	if fp == "" {
		return slog.Attr{}
	}
	return slog.String("fingerprint", fp)
}

// Policy creates an attribute for admission policy names.
func Policy(name string) slog.Attr {
	return slog.String("policy", name)
}

// Decision creates an attribute for admission decisions (allow/reject/fail_open).
func Decision(d string) slog.Attr {
	return slog.String("decision", d)
}

// Count creates an attribute for the post-increment counter value.
func Count(n int64) slog.Attr {
	return slog.Int64("count", n)
}
