package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"

	"github.com/hirewire/admission/pkg/clientip"
)

const (
	fingerprintVersion = "v1:"
	// fingerprintHashLen uses 16 bytes (128 bits) for balance between uniqueness
	// and storage efficiency. SHA-256 provides 256 bits, but 128 bits is plenty
	// for bucketing rate-limit counters and halves the key size in Redis.
	fingerprintHashLen = 16
	// fingerprintTotalLen is the total length of a fingerprint string:
	// 3 bytes ("v1:") + 32 bytes (hex encoding of 16 bytes) = 35 bytes
	fingerprintTotalLen = 35

	// unknownComponent substitutes for absent request metadata so that two
	// requests missing the same headers still hash identically.
	unknownComponent = "unknown"
)

// components lists the request headers folded into the fingerprint, in hash
// order. Only headers a client pays some cost to vary per attempt are used;
// trivially spoofable per-request values (request IDs, cookies) are excluded
// so a single client cannot trivially spread across counters.
var components = []string{
	"User-Agent",
	"Accept-Language",
	"Accept-Encoding",
	"Sec-Ch-Ua",
	"Sec-Ch-Ua-Mobile",
	"Sec-Ch-Ua-Platform",
}

// Derive computes the request fingerprint: a version-prefixed, fixed-length
// key in format "v1:hash" derived from the source address and a small set of
// client headers.
//
// The derivation is deterministic with no process-local salt, so identical
// requests hash to the same fingerprint across every instance of the service.
// Absent headers default to "unknown". Derive is pure: it never fails, never
// blocks, and has no side effects.
//
// A fingerprint is not proof of identity. It only buckets likely-distinct
// clients for admission-control counters.
func Derive(r *http.Request) string {
	parts := make([]string, 0, len(components)+1)

	ip := clientip.GetIP(r)
	if ip == "" {
		ip = unknownComponent
	}
	parts = append(parts, ip)

	for _, name := range components {
		v := r.Header.Get(name)
		if v == "" {
			v = unknownComponent
		}
		parts = append(parts, v)
	}

	// Join with pipe delimiter to prevent collision attacks where
	// ["ab", "c"] and ["a", "bc"] would otherwise produce the same hash.
	combined := strings.Join(parts, "|")
	hash := sha256.Sum256([]byte(combined))

	return fingerprintVersion + hex.EncodeToString(hash[:fingerprintHashLen])
}

// Valid reports whether s has the shape of a fingerprint produced by Derive.
func Valid(s string) bool {
	return strings.HasPrefix(s, fingerprintVersion) && len(s) == fingerprintTotalLen
}
