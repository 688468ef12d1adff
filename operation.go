package refreshcache

import (
	"context"
	"errors"
	"strings"
)

// Invoker computes the value for a key. It is the intercepted method call.
type Invoker func(ctx context.Context) ([]byte, error)

// ExceptionFilter decides whether a failed computation is recorded in the
// operation's exception cache.
type ExceptionFilter func(err error) bool

// MatchErrors matches errors that wrap any of targets.
func MatchErrors(targets ...error) ExceptionFilter {
	return func(err error) bool {
		for _, target := range targets {
			if errors.Is(err, target) {
				return true
			}
		}
		return false
	}
}

// MatchAllErrors records every failure.
func MatchAllErrors() ExceptionFilter {
	return func(error) bool { return true }
}

// Operation describes one cached method.
type Operation struct {
	// Name identifies the operation. Defaults to the cache names.
	Name string
	// CacheNames must resolve to exactly one cache.
	CacheNames []string
	// AlwaysInvoke computes on every call and stores the result.
	AlwaysInvoke bool
	// ExceptionCacheName optionally names a cache that records failures.
	ExceptionCacheName string
	// ExceptionFilter selects which failures are recorded. Nil records none.
	ExceptionFilter ExceptionFilter
}

// ID is the key decorated handles are cached under.
func (o Operation) ID() string {
	if o.Name != "" {
		return o.Name
	}
	return "caches:" + strings.Join(o.CacheNames, ",")
}

// Invocation is one call of an Operation for a key.
type Invocation struct {
	Operation Operation
	Key       string
}
