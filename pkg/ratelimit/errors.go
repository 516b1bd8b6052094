package ratelimit

import "errors"

// Package-level error definitions for admission-control operations.
var (
	ErrInvalidPolicy    = errors.New("invalid policy")
	ErrDuplicatePolicy  = errors.New("duplicate policy")
	ErrUnknownPolicy    = errors.New("unknown policy")
	ErrInvalidConfig    = errors.New("invalid configuration")
	ErrStoreUnavailable = errors.New("counter store unavailable")
)
