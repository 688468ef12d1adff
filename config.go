package refreshcache

import (
	"errors"
	"fmt"
	"time"

	"github.com/goforj/refreshcache/cachecore"
	"github.com/hashicorp/go-multierror"
)

const (
	defaultExpiryFactor           = 0.95
	defaultMaxConcurrentRefreshes = 1024
)

// Config controls refresh-ahead behaviour.
type Config struct {
	// ExpiryFactor scales a cache's base TTL into its soft TTL. Must be in (0,1].
	ExpiryFactor float64

	// EternalOverrideTTL is the soft TTL for caches without expiry. Zero
	// leaves eternal caches undecorated.
	EternalOverrideTTL time.Duration

	// ExecutionTimeout bounds a background refresh, jitter included. Zero is
	// unbounded. It is also the refresh guard TTL when set.
	ExecutionTimeout time.Duration

	// JitterMax delays each refresh by a random duration in [0, JitterMax).
	JitterMax time.Duration

	// GuardFallbackTTL is the guard TTL when ExecutionTimeout is zero.
	GuardFallbackTTL time.Duration

	// MaxConcurrentRefreshes bounds background refreshes. Refreshes beyond it
	// are skipped until a later stale read.
	MaxConcurrentRefreshes int64

	// CollapseMisses shares one synchronous computation between concurrent
	// misses on the same key in this process.
	CollapseMisses bool

	ExpiryResolver ExpiryResolver

	// InFlight overrides the guard registry. GuardStore builds a shared one.
	InFlight   InFlightRegistry
	GuardStore cachecore.Store

	Observer Observer

	now func() time.Time
}

func (c Config) withDefaults() Config {
	if c.ExpiryFactor == 0 {
		c.ExpiryFactor = defaultExpiryFactor
	}
	if c.GuardFallbackTTL <= 0 {
		c.GuardFallbackTTL = DefaultGuardFallbackTTL
	}
	if c.MaxConcurrentRefreshes <= 0 {
		c.MaxConcurrentRefreshes = defaultMaxConcurrentRefreshes
	}
	if c.ExpiryResolver == nil {
		c.ExpiryResolver = DefaultExpiryResolver{}
	}
	return c
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var errs *multierror.Error
	if c.ExpiryFactor <= 0 || c.ExpiryFactor > 1 {
		errs = multierror.Append(errs, fmt.Errorf("expiry factor %v outside (0,1]", c.ExpiryFactor))
	}
	if c.EternalOverrideTTL < 0 {
		errs = multierror.Append(errs, errors.New("eternal override ttl must not be negative"))
	}
	if c.ExecutionTimeout < 0 {
		errs = multierror.Append(errs, errors.New("execution timeout must not be negative"))
	}
	if c.JitterMax < 0 {
		errs = multierror.Append(errs, errors.New("jitter max must not be negative"))
	}
	if c.ExecutionTimeout > 0 && c.JitterMax >= c.ExecutionTimeout {
		errs = multierror.Append(errs, fmt.Errorf("jitter max %s must be below execution timeout %s", c.JitterMax, c.ExecutionTimeout))
	}
	if c.InFlight != nil && c.GuardStore != nil {
		errs = multierror.Append(errs, errors.New("set either an in-flight registry or a guard store, not both"))
	}
	return errs.ErrorOrNil()
}

// GuardTTL is how long a refresh guard lives. With an execution timeout the
// guard outlives the timeout by guardTTLMargin, so a store-held guard cannot
// lapse while the timed-out task is still being abandoned.
func (c Config) GuardTTL() time.Duration {
	if c.ExecutionTimeout > 0 {
		return c.ExecutionTimeout + guardTTLMargin
	}
	if c.GuardFallbackTTL > 0 {
		return c.GuardFallbackTTL
	}
	return DefaultGuardFallbackTTL
}

func (c Config) clock() func() time.Time {
	if c.now != nil {
		return c.now
	}
	return time.Now
}

func (c Config) inFlight() InFlightRegistry {
	switch {
	case c.InFlight != nil:
		return c.InFlight
	case c.GuardStore != nil:
		return NewStoreInFlight(c.GuardStore, c.GuardTTL())
	default:
		return NewLocalInFlight(c.GuardTTL())
	}
}
