package refreshcache

import (
	"time"

	"github.com/goforj/refreshcache/cachecore"
)

// Option mutates Config when constructing a Coordinator.
type Option func(Config) Config

// WithConfig replaces the whole configuration; later options still apply.
func WithConfig(cfg Config) Option {
	return func(Config) Config { return cfg }
}

// WithExpiryFactor sets the fraction of the base TTL used as soft TTL.
func WithExpiryFactor(f float64) Option {
	return func(cfg Config) Config {
		cfg.ExpiryFactor = f
		return cfg
	}
}

// WithEternalOverrideTTL sets the soft TTL used for eternal caches.
func WithEternalOverrideTTL(ttl time.Duration) Option {
	return func(cfg Config) Config {
		cfg.EternalOverrideTTL = ttl
		return cfg
	}
}

// WithExecutionTimeout bounds each background refresh.
func WithExecutionTimeout(d time.Duration) Option {
	return func(cfg Config) Config {
		cfg.ExecutionTimeout = d
		return cfg
	}
}

// WithJitter delays refreshes by up to max.
func WithJitter(max time.Duration) Option {
	return func(cfg Config) Config {
		cfg.JitterMax = max
		return cfg
	}
}

// WithGuardFallbackTTL sets the guard TTL used without an execution timeout.
func WithGuardFallbackTTL(ttl time.Duration) Option {
	return func(cfg Config) Config {
		cfg.GuardFallbackTTL = ttl
		return cfg
	}
}

// WithMaxConcurrentRefreshes bounds background refresh concurrency.
func WithMaxConcurrentRefreshes(n int64) Option {
	return func(cfg Config) Config {
		cfg.MaxConcurrentRefreshes = n
		return cfg
	}
}

// WithCollapsedMisses shares synchronous computations between concurrent misses.
func WithCollapsedMisses() Option {
	return func(cfg Config) Config {
		cfg.CollapseMisses = true
		return cfg
	}
}

// WithExpiryResolver replaces DefaultExpiryResolver.
func WithExpiryResolver(r ExpiryResolver) Option {
	return func(cfg Config) Config {
		cfg.ExpiryResolver = r
		return cfg
	}
}

// WithInFlightRegistry replaces the in-process guard registry.
func WithInFlightRegistry(r InFlightRegistry) Option {
	return func(cfg Config) Config {
		cfg.InFlight = r
		return cfg
	}
}

// WithGuardStore keeps refresh guards in store so they are shared across processes.
func WithGuardStore(store cachecore.Store) Option {
	return func(cfg Config) Config {
		cfg.GuardStore = store
		return cfg
	}
}

// WithObserver attaches an observer for cache events.
func WithObserver(o Observer) Option {
	return func(cfg Config) Config {
		cfg.Observer = o
		return cfg
	}
}

func withClock(now func() time.Time) Option {
	return func(cfg Config) Config {
		cfg.now = now
		return cfg
	}
}
