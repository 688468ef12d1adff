package refreshcache

import (
	"errors"
	"fmt"
)

var (
	// ErrNullValue is returned when a null (empty) value is written to a cache
	// that does not allow nulls.
	ErrNullValue = errors.New("refreshcache: null value not allowed")
	// ErrRefreshTimeout marks a background refresh abandoned after ExecutionTimeout.
	// It is only ever logged.
	ErrRefreshTimeout = errors.New("refreshcache: refresh timed out")
	// ErrCoordinatorClosed is returned when a refresh is submitted after Close.
	ErrCoordinatorClosed = errors.New("refreshcache: coordinator closed")

	errSaturated = errors.New("refreshcache: refresh executor saturated")
)

// ConfigurationError reports an unusable setup: an unresolvable or ambiguous
// cache, or invalid coordinator settings.
type ConfigurationError struct {
	Op  string
	Err error
}

func (e *ConfigurationError) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("refreshcache: configuration: %v", e.Err)
	}
	return fmt.Sprintf("refreshcache: configuration: %s: %v", e.Op, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// FormatError reports bytes that cannot be decoded into a Wrapper, or a
// Wrapper that cannot be encoded.
type FormatError struct {
	Reason string
	Err    error
}

func (e *FormatError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("refreshcache: format: %s: %v", e.Reason, e.Err)
	}
	return "refreshcache: format: " + e.Reason
}

func (e *FormatError) Unwrap() error { return e.Err }

// CachedError is returned on a miss when a previous failure for the same key
// was recorded in the operation's exception cache.
type CachedError struct {
	Cache   string
	Key     string
	Kind    string
	Message string
}

func (e *CachedError) Error() string {
	return fmt.Sprintf("refreshcache: cached failure for %s/%s: %s: %s", e.Cache, e.Key, e.Kind, e.Message)
}
