package refreshcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Coordinator serves cached method results with refresh-ahead semantics.
//
// Fresh entries are returned directly. Stale entries are returned directly
// and refreshed by at most one background task per key. Misses are computed
// synchronously.
type Coordinator struct {
	cfg      Config
	resolver CacheResolver
	inflight InFlightRegistry
	exec     *executor
	observer Observer
	now      func() time.Time
	misses   singleflight.Group

	mu         sync.Mutex
	handles    map[string]*RefreshAheadCache
	exceptions map[string]*Cache
}

// NewCoordinator builds a Coordinator over resolver. Invalid options yield a
// *ConfigurationError.
// @group Coordinator
//
// Example: coordinator with a bounded refresh
//
//	coord, err := refreshcache.NewCoordinator(manager,
//		refreshcache.WithExecutionTimeout(5*time.Second),
//		refreshcache.WithJitter(200*time.Millisecond),
//	)
func NewCoordinator(resolver CacheResolver, opts ...Option) (*Coordinator, error) {
	if resolver == nil {
		return nil, &ConfigurationError{Op: "new coordinator", Err: errors.New("cache resolver is required")}
	}
	var cfg Config
	for _, opt := range opts {
		cfg = opt(cfg)
	}
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, &ConfigurationError{Op: "validate config", Err: err}
	}
	observer := cfg.Observer
	if observer == nil {
		observer = nopObserver{}
	}
	return &Coordinator{
		cfg:        cfg,
		resolver:   resolver,
		inflight:   cfg.inFlight(),
		exec:       newExecutor(cfg),
		observer:   observer,
		now:        cfg.clock(),
		handles:    make(map[string]*RefreshAheadCache),
		exceptions: make(map[string]*Cache),
	}, nil
}

// Config returns the effective configuration.
func (c *Coordinator) Config() Config { return c.cfg }

// Get returns the value for inv, computing it with fn on a miss. The returned
// slice may be shared with other callers and must not be modified.
func (c *Coordinator) Get(ctx context.Context, inv Invocation, fn Invoker) ([]byte, error) {
	if fn == nil {
		return nil, errors.New("refreshcache: invoker is required")
	}
	h, err := c.handle(ctx, inv.Operation)
	if err != nil {
		return nil, err
	}
	if inv.Operation.AlwaysInvoke {
		return c.invokeAndPut(ctx, h, inv, fn)
	}

	start := time.Now()
	w, ok, err := h.Get(ctx, inv.Key)
	if err != nil {
		var formatErr *FormatError
		if !errors.As(err, &formatErr) {
			return nil, err
		}
		log.Warnw("Unreadable cache entry, recomputing", "cache", h.Name(), "key", inv.Key, "err", err)
		ok = false
	}
	if !ok {
		c.observe(ctx, OpMiss, h.Name(), inv.Key, nil, time.Since(start))
		return c.miss(ctx, h, inv, fn)
	}
	if !w.IsExpired(c.now()) {
		c.observe(ctx, OpFresh, h.Name(), inv.Key, nil, time.Since(start))
		return w.Get(), nil
	}
	c.observe(ctx, OpStale, h.Name(), inv.Key, nil, time.Since(start))
	c.refresh(ctx, h, inv.Key, fn)
	return w.Get(), nil
}

// Put writes value for inv with a fresh soft expiry.
func (c *Coordinator) Put(ctx context.Context, inv Invocation, value []byte) error {
	h, err := c.handle(ctx, inv.Operation)
	if err != nil {
		return err
	}
	start := time.Now()
	err = h.Put(ctx, inv.Key, value)
	c.observe(ctx, OpPut, h.Name(), inv.Key, err, time.Since(start))
	return err
}

// Evict removes the entry for inv.
func (c *Coordinator) Evict(ctx context.Context, inv Invocation) error {
	h, err := c.handle(ctx, inv.Operation)
	if err != nil {
		return err
	}
	start := time.Now()
	err = h.Evict(ctx, inv.Key)
	c.observe(ctx, OpEvict, h.Name(), inv.Key, err, time.Since(start))
	return err
}

// Clear removes every entry of op's cache.
func (c *Coordinator) Clear(ctx context.Context, op Operation) error {
	h, err := c.handle(ctx, op)
	if err != nil {
		return err
	}
	start := time.Now()
	err = h.Clear(ctx)
	c.observe(ctx, OpClear, h.Name(), "", err, time.Since(start))
	return err
}

// Close stops scheduling refreshes and waits for running ones until ctx ends.
func (c *Coordinator) Close(ctx context.Context) error {
	return c.exec.close(ctx)
}

// Handle returns the decorated cache for op, creating it on first use.
func (c *Coordinator) Handle(ctx context.Context, op Operation) (*RefreshAheadCache, error) {
	return c.handle(ctx, op)
}

func (c *Coordinator) handle(ctx context.Context, op Operation) (*RefreshAheadCache, error) {
	id := op.ID()
	c.mu.Lock()
	h, ok := c.handles[id]
	c.mu.Unlock()
	if ok {
		return h, nil
	}

	cache, err := resolveSingle(ctx, c.resolver, op.CacheNames)
	if err != nil {
		return nil, err
	}
	created := NewRefreshAheadCache(cache, c.cfg.ExpiryResolver, c.cfg)

	c.mu.Lock()
	defer c.mu.Unlock()
	if h, ok := c.handles[id]; ok {
		return h, nil
	}
	c.handles[id] = created
	return created, nil
}

func (c *Coordinator) miss(ctx context.Context, h *RefreshAheadCache, inv Invocation, fn Invoker) ([]byte, error) {
	if err := c.checkCachedFailure(ctx, inv); err != nil {
		return nil, err
	}
	if !c.cfg.CollapseMisses {
		return c.invokeAndPut(ctx, h, inv, fn)
	}
	v, err, _ := c.misses.Do(GuardKey(h.Name(), inv.Key), func() (any, error) {
		return c.invokeAndPut(ctx, h, inv, fn)
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

func (c *Coordinator) invokeAndPut(ctx context.Context, h *RefreshAheadCache, inv Invocation, fn Invoker) ([]byte, error) {
	value, err := fn(ctx)
	if err != nil {
		c.recordFailure(ctx, inv, err)
		return nil, err
	}
	start := time.Now()
	err = h.Put(ctx, inv.Key, value)
	c.observe(ctx, OpPut, h.Name(), inv.Key, err, time.Since(start))
	if err != nil {
		return nil, err
	}
	return value, nil
}

// refresh schedules a background recomputation unless one is already in
// flight for the key. Failures are logged and the stale entry is kept.
func (c *Coordinator) refresh(ctx context.Context, h *RefreshAheadCache, key string, fn Invoker) {
	name := h.Name()
	acquired, err := c.inflight.TryAcquire(ctx, name, key)
	if err != nil {
		log.Warnw("Cannot acquire refresh guard", "cache", name, "key", key, "err", err)
		return
	}
	if !acquired {
		c.observe(ctx, OpRefreshSkipped, name, key, nil, 0)
		return
	}

	start := time.Now()
	task := func(ctx context.Context) error {
		value, err := fn(ctx)
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		return h.Put(ctx, key, value)
	}
	done := func(ctx context.Context, err error) {
		c.release(ctx, name, key)
		switch {
		case errors.Is(err, ErrRefreshTimeout):
			log.Warnw("Refresh timed out, keeping stale value", "cache", name, "key", key, "timeout", c.cfg.ExecutionTimeout)
		case err != nil:
			log.Warnw("Refresh failed, keeping stale value", "cache", name, "key", key, "err", err)
		default:
			log.Debugw("Refreshed cache entry", "cache", name, "key", key, "elapsed", time.Since(start))
		}
		c.observe(ctx, OpRefresh, name, key, err, time.Since(start))
	}

	if err := c.exec.submit(ctx, task, done); err != nil {
		c.release(context.WithoutCancel(ctx), name, key)
		if errors.Is(err, errSaturated) {
			log.Warnw("Refresh executor saturated, skipping refresh", "cache", name, "key", key, "limit", c.cfg.MaxConcurrentRefreshes)
		} else {
			log.Debugw("Refresh not scheduled", "cache", name, "key", key, "err", err)
		}
		c.observe(ctx, OpRefreshSkipped, name, key, err, 0)
	}
}

func (c *Coordinator) release(ctx context.Context, cacheName, key string) {
	if err := c.inflight.Release(ctx, cacheName, key); err != nil {
		log.Warnw("Cannot release refresh guard", "cache", cacheName, "key", key, "err", err)
	}
}

type failureRecord struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func (c *Coordinator) exceptionCache(ctx context.Context, op Operation) (*Cache, error) {
	name := op.ExceptionCacheName
	c.mu.Lock()
	cache, ok := c.exceptions[name]
	c.mu.Unlock()
	if ok {
		return cache, nil
	}
	cache, err := resolveSingle(ctx, c.resolver, []string{name})
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.exceptions[name]; ok {
		return existing, nil
	}
	c.exceptions[name] = cache
	return cache, nil
}

// checkCachedFailure returns a *CachedError when a failure for inv's key was
// recorded. Store errors are returned as-is.
func (c *Coordinator) checkCachedFailure(ctx context.Context, inv Invocation) error {
	if inv.Operation.ExceptionCacheName == "" {
		return nil
	}
	cache, err := c.exceptionCache(ctx, inv.Operation)
	if err != nil {
		return err
	}
	body, ok, err := cache.GetRaw(ctx, inv.Key)
	if err != nil || !ok {
		return err
	}
	var rec failureRecord
	if err := json.Unmarshal(body, &rec); err != nil {
		log.Warnw("Ignoring unreadable failure record", "cache", cache.Name(), "key", inv.Key, "err", err)
		return nil
	}
	return &CachedError{Cache: cache.Name(), Key: inv.Key, Kind: rec.Kind, Message: rec.Message}
}

// recordFailure stores err in the exception cache when the operation's
// filter matches. It never changes what the caller sees.
func (c *Coordinator) recordFailure(ctx context.Context, inv Invocation, failure error) {
	op := inv.Operation
	if op.ExceptionCacheName == "" || op.ExceptionFilter == nil || !op.ExceptionFilter(failure) {
		return
	}
	cache, err := c.exceptionCache(ctx, op)
	if err != nil {
		log.Warnw("Cannot resolve exception cache", "cache", op.ExceptionCacheName, "err", err)
		return
	}
	body, err := json.Marshal(failureRecord{Kind: fmt.Sprintf("%T", failure), Message: failure.Error()})
	if err != nil {
		log.Warnw("Cannot encode failure record", "cache", cache.Name(), "key", inv.Key, "err", err)
		return
	}
	if err := cache.PutRaw(ctx, inv.Key, body); err != nil {
		log.Warnw("Cannot record failure", "cache", cache.Name(), "key", inv.Key, "err", err)
	}
}

func (c *Coordinator) observe(ctx context.Context, op Op, cache, key string, err error, dur time.Duration) {
	c.observer.OnCacheOp(ctx, op, cache, key, err, dur)
}
