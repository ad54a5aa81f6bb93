package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrRateLimited  = errors.New("rate limited")
	ErrUnauthorized = errors.New("unauthorized")
	ErrCircuitOpen  = errors.New("circuit open")
	ErrNoMarkets    = errors.New("no markets")
)

// ResolutionError reports a reference (URL, slug) that cannot be mapped to a
// market or event. It is always fatal for the run.
type ResolutionError struct {
	Ref    string
	Reason string
	Err    error
}

func (e *ResolutionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("resolve %q: %s: %v", e.Ref, e.Reason, e.Err)
	}
	return fmt.Sprintf("resolve %q: %s", e.Ref, e.Reason)
}

func (e *ResolutionError) Unwrap() error { return e.Err }

// FetchError is an upstream API failure for a single endpoint. Status is the
// HTTP status when a response was received, 0 otherwise.
type FetchError struct {
	Endpoint string
	Status   int
	Cause    error
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("fetch %s: HTTP %d: %v", e.Endpoint, e.Status, e.Cause)
	}
	return fmt.Sprintf("fetch %s: %v", e.Endpoint, e.Cause)
}

func (e *FetchError) Unwrap() error { return e.Cause }

// CacheError wraps a cache backend failure. Callers treat it as a miss.
type CacheError struct {
	Op    string
	Key   string
	Cause error
}

func (e *CacheError) Error() string {
	return fmt.Sprintf("cache %s %s: %v", e.Op, e.Key, e.Cause)
}

func (e *CacheError) Unwrap() error { return e.Cause }

// IsResolutionError reports whether err carries a *ResolutionError.
func IsResolutionError(err error) bool {
	var re *ResolutionError
	return errors.As(err, &re)
}

// IsFetchError reports whether err carries a *FetchError.
func IsFetchError(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe)
}
