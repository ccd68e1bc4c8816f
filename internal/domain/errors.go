package domain

import "errors"

var (
	// ErrPriceUnavailable means the upstream price source returned nothing
	// usable (transport failure, missing field, or a non-positive number).
	ErrPriceUnavailable = errors.New("price unavailable")
	// ErrQuoteUnavailable means one chain/leg quote could not be obtained.
	// Callers skip that leg; it never aborts a cycle.
	ErrQuoteUnavailable = errors.New("quote unavailable")
	// ErrCycleAborted means a scan cycle stopped before evaluation.
	ErrCycleAborted = errors.New("cycle aborted")

	ErrNotFound     = errors.New("not found")
	ErrLockHeld     = errors.New("lock already held")
	ErrCycleRunning = errors.New("scan cycle already running")
	ErrUnknownChain = errors.New("unknown chain")
	ErrUnknownToken = errors.New("unknown token")
	ErrUnauthorized = errors.New("unauthorized")
	ErrRateLimited  = errors.New("rate limited")
)
