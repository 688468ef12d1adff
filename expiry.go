package refreshcache

import (
	"time"

	"github.com/goforj/refreshcache/cachecore"
	"github.com/shopspring/decimal"
)

// ResolvedExpiry is a cache's base TTL, or Eternal when entries never expire.
type ResolvedExpiry struct {
	TTL     time.Duration
	Eternal bool
}

// physical maps the resolved expiry onto a store TTL.
func (r ResolvedExpiry) physical() time.Duration {
	if r.Eternal {
		return cachecore.NoExpiration
	}
	return r.TTL
}

// ExpiryResolver reads the base expiry a named cache is configured with.
type ExpiryResolver interface {
	Resolve(c *Cache) ResolvedExpiry
}

// ExpiryResolverFunc adapts a function to ExpiryResolver.
type ExpiryResolverFunc func(c *Cache) ResolvedExpiry

// Resolve implements ExpiryResolver.
func (f ExpiryResolverFunc) Resolve(c *Cache) ResolvedExpiry { return f(c) }

// DefaultExpiryResolver checks access-based, then write-based, then
// creation-based expiry. A cache marked Eternal, or with none set, is eternal.
type DefaultExpiryResolver struct{}

// Resolve implements ExpiryResolver.
func (DefaultExpiryResolver) Resolve(c *Cache) ResolvedExpiry {
	return resolveExpiry(c.Expiry())
}

func resolveExpiry(e cachecore.Expiry) ResolvedExpiry {
	if e.Eternal {
		return ResolvedExpiry{Eternal: true}
	}
	for _, ttl := range []time.Duration{e.ExpireAfterAccess, e.ExpireAfterWrite, e.ExpireAfterCreate} {
		if ttl > 0 {
			return ResolvedExpiry{TTL: ttl}
		}
	}
	return ResolvedExpiry{Eternal: true}
}

// softTTL is floor(base*factor) at millisecond precision, or override when
// the base is eternal.
func softTTL(base ResolvedExpiry, factor float64, eternalOverride time.Duration) time.Duration {
	if base.Eternal {
		return eternalOverride
	}
	// The factor is read as its shortest decimal form, so 1000*0.95 is exactly
	// 950 and any factor below 1 stays strictly below the base.
	ms := decimal.NewFromInt(base.TTL.Milliseconds()).Mul(decimal.NewFromFloat(factor)).Floor().IntPart()
	return time.Duration(ms) * time.Millisecond
}
