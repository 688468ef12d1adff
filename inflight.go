package refreshcache

import (
	"context"
	"strconv"
	"time"

	"github.com/goforj/refreshcache/cachecore"
	gocache "github.com/patrickmn/go-cache"
)

// DefaultGuardFallbackTTL bounds a refresh guard when no ExecutionTimeout is set.
const DefaultGuardFallbackTTL = 15 * time.Second

const guardTTLMargin = time.Second

// InFlightRegistry tracks which keys have a refresh running. Guards expire on
// their own, which is the only recovery when a refresh never releases.
type InFlightRegistry interface {
	// TryAcquire atomically creates the guard and reports whether it did.
	TryAcquire(ctx context.Context, cacheName, key string) (bool, error)
	// Release removes the guard. Releasing a missing guard is a no-op.
	Release(ctx context.Context, cacheName, key string) error
}

// GuardKey builds the registry key for (cacheName, key). The cache name is
// length-prefixed so distinct pairs never collide.
func GuardKey(cacheName, key string) string {
	return strconv.Itoa(len(cacheName)) + ":" + cacheName + ":" + key
}

// LocalInFlight is an in-process registry backed by go-cache.
type LocalInFlight struct {
	guards *gocache.Cache
	ttl    time.Duration
}

// NewLocalInFlight returns an in-process registry whose guards live for ttl.
func NewLocalInFlight(ttl time.Duration) *LocalInFlight {
	if ttl <= 0 {
		ttl = DefaultGuardFallbackTTL
	}
	return &LocalInFlight{
		guards: gocache.New(ttl, 2*ttl),
		ttl:    ttl,
	}
}

// TryAcquire implements InFlightRegistry.
func (l *LocalInFlight) TryAcquire(_ context.Context, cacheName, key string) (bool, error) {
	// go-cache Add fails when a live item exists and replaces expired ones.
	return l.guards.Add(GuardKey(cacheName, key), struct{}{}, l.ttl) == nil, nil
}

// Release implements InFlightRegistry.
func (l *LocalInFlight) Release(_ context.Context, cacheName, key string) error {
	l.guards.Delete(GuardKey(cacheName, key))
	return nil
}

// Size reports the number of guards held, including expired ones not yet swept.
func (l *LocalInFlight) Size() int { return l.guards.ItemCount() }

// StoreInFlight shares guards across processes through a store's atomic Add
// (SETNX on Redis, Create on NATS KV, conditional writes on SQL and DynamoDB).
type StoreInFlight struct {
	store cachecore.Store
	ttl   time.Duration
}

// NewStoreInFlight returns a registry that keeps guards in store for ttl.
func NewStoreInFlight(store cachecore.Store, ttl time.Duration) *StoreInFlight {
	if ttl <= 0 {
		ttl = DefaultGuardFallbackTTL
	}
	return &StoreInFlight{store: store, ttl: ttl}
}

// TryAcquire implements InFlightRegistry.
func (s *StoreInFlight) TryAcquire(ctx context.Context, cacheName, key string) (bool, error) {
	return s.store.Add(ctx, s.guardKey(cacheName, key), []byte{1}, s.ttl)
}

// Release implements InFlightRegistry.
func (s *StoreInFlight) Release(ctx context.Context, cacheName, key string) error {
	return s.store.Delete(ctx, s.guardKey(cacheName, key))
}

func (s *StoreInFlight) guardKey(cacheName, key string) string {
	return "refresh-guard:" + GuardKey(cacheName, key)
}
