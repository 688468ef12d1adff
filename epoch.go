package refreshcache

import (
	"math"
	"time"
)

// Wrapper pairs a cached value with the instant after which it is stale.
//
// A Wrapper is immutable. A zero-length value is the cache's null value.
type Wrapper struct {
	value     []byte
	expiresAt int64 // unix milliseconds
}

// NewWrapper wraps value with a soft expiry of now+ttl.
func NewWrapper(value []byte, ttl time.Duration, now time.Time) Wrapper {
	return Wrapper{
		value:     value,
		expiresAt: now.Add(ttl).UnixMilli(),
	}
}

func eternalWrapper(value []byte) Wrapper {
	return Wrapper{value: value, expiresAt: math.MaxInt64}
}

// Get returns the wrapped value. Callers must not modify it.
func (w Wrapper) Get() []byte { return w.value }

// IsNull reports whether the wrapper holds the null value.
func (w Wrapper) IsNull() bool { return len(w.value) == 0 }

// IsExpired reports whether now is strictly past the soft expiry.
func (w Wrapper) IsExpired(now time.Time) bool {
	return now.UnixMilli() > w.expiresAt
}

// ExpiresAt returns the soft expiry in unix milliseconds.
func (w Wrapper) ExpiresAt() int64 { return w.expiresAt }

// Epoch returns the soft expiry as a time.
func (w Wrapper) Epoch() time.Time { return time.UnixMilli(w.expiresAt) }
