package refreshcache

import (
	"context"
	"time"
)

// RefreshAheadCache decorates a Cache so every entry carries a soft expiry.
//
// The soft and physical TTLs are computed once at construction from the same
// resolved expiry, so an entry always outlives its soft TTL. A soft TTL of
// zero makes the decorator a pass-through: values are stored unwrapped and
// reads return a wrapper that never goes stale.
type RefreshAheadCache struct {
	cache       *Cache
	softTTL     time.Duration
	physicalTTL time.Duration
	now         func() time.Time
}

// NewRefreshAheadCache decorates cache using resolver and cfg's expiry factor
// and eternal override.
func NewRefreshAheadCache(cache *Cache, resolver ExpiryResolver, cfg Config) *RefreshAheadCache {
	cfg = cfg.withDefaults()
	if resolver == nil {
		resolver = cfg.ExpiryResolver
	}
	resolved := resolver.Resolve(cache)
	return &RefreshAheadCache{
		cache:       cache,
		softTTL:     softTTL(resolved, cfg.ExpiryFactor, cfg.EternalOverrideTTL),
		physicalTTL: resolved.physical(),
		now:         cfg.clock(),
	}
}

// Name returns the decorated cache's name.
func (r *RefreshAheadCache) Name() string { return r.cache.Name() }

// Cache returns the decorated cache.
func (r *RefreshAheadCache) Cache() *Cache { return r.cache }

// SoftTTL is the logical lifetime given to every stored value.
func (r *RefreshAheadCache) SoftTTL() time.Duration { return r.softTTL }

// PhysicalTTL is the store TTL every write carries.
func (r *RefreshAheadCache) PhysicalTTL() time.Duration { return r.physicalTTL }

// PassThrough reports whether values are stored without a soft expiry.
func (r *RefreshAheadCache) PassThrough() bool { return r.softTTL <= 0 }

// Get returns the wrapper stored under key.
func (r *RefreshAheadCache) Get(ctx context.Context, key string) (Wrapper, bool, error) {
	if r.PassThrough() {
		value, ok, err := r.cache.GetRaw(ctx, key)
		if err != nil || !ok {
			return Wrapper{}, false, err
		}
		return eternalWrapper(value), true, nil
	}
	return r.cache.Get(ctx, key)
}

// Put wraps value with the soft TTL and stores it.
func (r *RefreshAheadCache) Put(ctx context.Context, key string, value []byte) error {
	if len(value) == 0 && !r.cache.AllowNullValues() {
		return ErrNullValue
	}
	if r.PassThrough() {
		return r.cache.putRaw(ctx, key, value, r.physicalTTL)
	}
	return r.cache.put(ctx, key, NewWrapper(value, r.softTTL, r.now()), r.physicalTTL)
}

// Evict removes key from the underlying cache.
func (r *RefreshAheadCache) Evict(ctx context.Context, key string) error {
	return r.cache.Evict(ctx, key)
}

// Clear removes every entry of the underlying cache.
func (r *RefreshAheadCache) Clear(ctx context.Context) error {
	return r.cache.Clear(ctx)
}
