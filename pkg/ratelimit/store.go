package ratelimit

import (
	"context"
	"time"
)

// Count is the result of a counter operation.
type Count struct {
	// N is the counter value after the operation.
	N int64
	// ResetAfter is the remaining lifetime of the current window. Zero when
	// the key does not exist.
	ResetAfter time.Duration
}

// CounterStore is the shared, network-accessible counter backend used for
// cross-process coordination. It is the only component whose state outlives a
// single request; all mutation goes through IncrementAndGet so concurrent
// callers, including callers on other machines, never lose updates to a
// read-modify-write race.
//
// Errors from a CounterStore mean the backend is unreachable or timed out,
// never that the request should be rejected. Callers must treat them as
// fail-open: allow the request and emit an observability event.
type CounterStore interface {
	// IncrementAndGet atomically increments the counter for key and returns
	// the new value. The window expiry is set only when the key is created,
	// not refreshed on every hit; that is what makes the counter a fixed
	// window rather than a sliding one. The backend owns deletion: the key
	// vanishes when the window elapses.
	IncrementAndGet(ctx context.Context, key string, window time.Duration) (Count, error)

	// Get is a read-only peek at the counter. It exists for diagnostics and
	// for policies that defer recording; admission decisions on the normal
	// path use IncrementAndGet to avoid a peek-then-increment race.
	Get(ctx context.Context, key string) (Count, error)

	// Delete removes the counter for key, resetting its window immediately.
	Delete(ctx context.Context, key string) error

	// IsAvailable reports the last observed connectivity state of the
	// backend. It is advisory: operations may still fail after it returns
	// true, and callers must fail open on operation errors regardless.
	IsAvailable() bool
}
