package refreshcache

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// executor runs refresh tasks in the background, at most MaxConcurrentRefreshes
// at a time.
type executor struct {
	sem       *semaphore.Weighted
	timeout   time.Duration
	jitterMax time.Duration
	jitter    func(max time.Duration) time.Duration

	root   context.Context
	cancel context.CancelFunc

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

func newExecutor(cfg Config) *executor {
	root, cancel := context.WithCancel(context.Background())
	return &executor{
		sem:       semaphore.NewWeighted(cfg.MaxConcurrentRefreshes),
		timeout:   cfg.ExecutionTimeout,
		jitterMax: cfg.JitterMax,
		jitter:    randomJitter,
		root:      root,
		cancel:    cancel,
	}
}

func randomJitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	return time.Duration(rand.Int64N(int64(max)))
}

// submit starts task detached from parent's cancellation. done runs exactly
// once when the task succeeds, fails, panics, times out or is cancelled by
// close. It is not called when submit returns an error.
func (e *executor) submit(parent context.Context, task func(context.Context) error, done func(context.Context, error)) error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return ErrCoordinatorClosed
	}
	if !e.sem.TryAcquire(1) {
		return errSaturated
	}
	// The deadline is fixed here, before the goroutine is scheduled.
	var deadline time.Time
	if e.timeout > 0 {
		deadline = time.Now().Add(e.timeout)
	}
	e.wg.Add(1)
	go e.run(context.WithoutCancel(parent), deadline, task, done)
	return nil
}

func (e *executor) run(base context.Context, deadline time.Time, task func(context.Context) error, done func(context.Context, error)) {
	defer e.wg.Done()

	ctx, cancel := context.WithCancel(base)
	defer cancel()
	stop := context.AfterFunc(e.root, cancel)
	defer stop()
	if !deadline.IsZero() {
		var cancelTimeout context.CancelFunc
		ctx, cancelTimeout = context.WithDeadlineCause(ctx, deadline, ErrRefreshTimeout)
		defer cancelTimeout()
	}

	err := e.execute(ctx, task)
	e.sem.Release(1)
	done(context.WithoutCancel(ctx), err)
}

// execute waits out the jitter, then the task. On timeout or cancellation the
// task is abandoned, not interrupted.
func (e *executor) execute(ctx context.Context, task func(context.Context) error) error {
	if d := e.jitter(e.jitterMax); d > 0 {
		timer := time.NewTimer(d)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return contextErr(ctx)
		case <-timer.C:
		}
	}

	result := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				result <- fmt.Errorf("refreshcache: refresh panicked: %v", r)
			}
		}()
		result <- task(ctx)
	}()

	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return contextErr(ctx)
	}
}

func contextErr(ctx context.Context) error {
	if cause := context.Cause(ctx); errors.Is(cause, ErrRefreshTimeout) {
		return ErrRefreshTimeout
	}
	return ctx.Err()
}

// close stops accepting tasks and waits for running ones. If ctx ends first,
// running tasks are cancelled and their completion hooks still run before
// close returns.
func (e *executor) close(ctx context.Context) error {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()

	finished := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		e.cancel()
		return nil
	case <-ctx.Done():
		e.cancel()
		<-finished
		return ctx.Err()
	}
}
