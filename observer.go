package refreshcache

import (
	"context"
	"time"
)

// Op names an event reported to an Observer.
type Op string

const (
	OpFresh          Op = "fresh"
	OpStale          Op = "stale"
	OpMiss           Op = "miss"
	OpRefresh        Op = "refresh"
	OpRefreshSkipped Op = "refresh_skipped"
	OpPut            Op = "put"
	OpEvict          Op = "evict"
	OpClear          Op = "clear"
)

// Observer receives events for coordinator operations.
// Refresh events are delivered from the background task that ran them.
type Observer interface {
	OnCacheOp(ctx context.Context, op Op, cache string, key string, err error, dur time.Duration)
}

// ObserverFunc lets a plain function receive coordinator events.
type ObserverFunc func(ctx context.Context, op Op, cache string, key string, err error, dur time.Duration)

// OnCacheOp implements Observer.
func (f ObserverFunc) OnCacheOp(ctx context.Context, op Op, cache string, key string, err error, dur time.Duration) {
	if f == nil {
		return
	}
	f(ctx, op, cache, key, err, dur)
}

type nopObserver struct{}

func (nopObserver) OnCacheOp(context.Context, Op, string, string, error, time.Duration) {}
