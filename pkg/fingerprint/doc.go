// Package fingerprint derives stable request fingerprints for admission control.
//
// A fingerprint is a deterministic, one-way hash of request metadata: source
// IP address, User-Agent, Accept-Language, Accept-Encoding, and the Sec-CH-UA
// client-hint headers. It buckets rate-limit counters per likely-distinct
// client without identifying anyone. It is explicitly not an authentication
// mechanism.
//
// # Usage
//
//	fp := fingerprint.Derive(r)
//	key := policy.Name + ":" + fp
//	count, ok := store.IncrementAndGet(ctx, key, policy.Window)
//
// # Determinism
//
// There is no per-process salt: the same request metadata yields the same
// fingerprint in every process and on every machine, which is required for
// counters shared through Redis by multiple service instances. Missing
// headers are substituted with the literal "unknown" before hashing, so two
// minimal clients collapse into the same bucket rather than each getting a
// fresh counter.
package fingerprint
