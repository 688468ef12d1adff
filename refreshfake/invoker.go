package refreshfake

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/goforj/refreshcache"
)

// Result is one scripted Invoker outcome.
type Result struct {
	Value []byte
	Err   error
}

// Value is a successful Result.
func Value(v string) Result { return Result{Value: []byte(v)} }

// Fail is a failed Result.
func Fail(err error) Result { return Result{Err: err} }

// Invoker replays scripted results in order, repeating the last one, and
// counts calls. Hold blocks calls until Unblock.
type Invoker struct {
	mu      sync.Mutex
	results []Result
	calls   int
	delay   time.Duration
	gate    chan struct{}
	started chan struct{}
}

// NewInvoker scripts results. With none, calls return an empty value.
func NewInvoker(results ...Result) *Invoker {
	return &Invoker{results: results, started: make(chan struct{}, 1024)}
}

// WithDelay makes every call take d, or until its context ends.
func (i *Invoker) WithDelay(d time.Duration) *Invoker {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.delay = d
	return i
}

// Hold makes calls block until Unblock.
func (i *Invoker) Hold() *Invoker {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.gate = make(chan struct{})
	return i
}

// Unblock releases held calls.
func (i *Invoker) Unblock() {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.gate != nil {
		close(i.gate)
		i.gate = nil
	}
}

// Started receives once per call as it begins.
func (i *Invoker) Started() <-chan struct{} { return i.started }

// Func returns the refreshcache.Invoker.
func (i *Invoker) Func() refreshcache.Invoker {
	return func(ctx context.Context) ([]byte, error) {
		i.mu.Lock()
		n := i.calls
		i.calls++
		gate, delay := i.gate, i.delay
		var res Result
		if len(i.results) > 0 {
			res = i.results[min(n, len(i.results)-1)]
		}
		i.mu.Unlock()

		select {
		case i.started <- struct{}{}:
		default:
		}
		if gate != nil {
			select {
			case <-gate:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		if delay > 0 {
			timer := time.NewTimer(delay)
			defer timer.Stop()
			select {
			case <-timer.C:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		return res.Value, res.Err
	}
}

// Calls returns how many times the invoker ran.
func (i *Invoker) Calls() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.calls
}

// AssertCalls verifies the invoker ran n times.
func (i *Invoker) AssertCalls(t testing.TB, n int) {
	t.Helper()
	if got := i.Calls(); got != n {
		t.Fatalf("expected %d invocations, got %d", n, got)
	}
}
