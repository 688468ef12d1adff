// Package refreshfake provides test doubles for code built on refreshcache:
// a counting in-memory store and a scripted Invoker.
package refreshfake

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/goforj/refreshcache"
	"github.com/goforj/refreshcache/cachecore"
	"github.com/goforj/refreshcache/driver/memorycache"
)

// Op identifies a store operation for assertions.
type Op string

const (
	OpGet    Op = "get"
	OpSet    Op = "set"
	OpAdd    Op = "add"
	OpDelete Op = "delete"
	OpFlush  Op = "flush"

	// OpDeletePrefix is counted against the prefix rather than a key.
	OpDeletePrefix Op = "delete_prefix"
)

// Fake is a deterministic in-memory store with call counting. Keys are the
// physical keys a Cache writes, "<cache>::<key>".
type Fake struct {
	store  *countingStore
	counts map[Op]map[string]int
	mu     sync.Mutex
}

// New creates a Fake backed by the memory driver.
func New() *Fake {
	f := &Fake{counts: make(map[Op]map[string]int)}
	f.store = &countingStore{inner: memorycache.New(memorycache.Config{}), onCount: f.record}
	return f
}

// Store returns the counting store.
func (f *Fake) Store() cachecore.ObjectStore { return f.store }

// Cache returns a named cache over the fake store.
func (f *Fake) Cache(name string, expiry cachecore.Expiry, opts ...refreshcache.CacheOption) *refreshcache.Cache {
	return refreshcache.NewCache(name, f.store, expiry, opts...)
}

// Reset forgets every recorded call; stored entries stay.
func (f *Fake) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counts = make(map[Op]map[string]int)
}

// AssertCalled fails t unless op hit key exactly times.
func (f *Fake) AssertCalled(t testing.TB, op Op, key string, times int) {
	t.Helper()
	if got := f.Count(op, key); got != times {
		t.Fatalf("expected %s %q called %d times, got %d", op, key, times, got)
	}
}

// AssertNotCalled fails t if op ever hit key.
func (f *Fake) AssertNotCalled(t testing.TB, op Op, key string) {
	t.Helper()
	if got := f.Count(op, key); got != 0 {
		t.Fatalf("expected %s %q not called, got %d", op, key, got)
	}
}

// AssertTotal fails t unless op ran times in total.
func (f *Fake) AssertTotal(t testing.TB, op Op, times int) {
	t.Helper()
	if got := f.Total(op); got != times {
		t.Fatalf("expected %s total=%d, got %d", op, times, got)
	}
}

// Count reports how often op hit key.
func (f *Fake) Count(op Op, key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.counts[op][key]
}

// Total reports how often op ran, across all keys.
func (f *Fake) Total(op Op) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	var sum int
	for _, v := range f.counts[op] {
		sum += v
	}
	return sum
}

func (f *Fake) record(op Op, key string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.counts[op] == nil {
		f.counts[op] = make(map[string]int)
	}
	f.counts[op][key]++
}

// countingStore wraps an ObjectStore to record calls. Object reads and
// writes count as get and set.
type countingStore struct {
	inner   cachecore.ObjectStore
	onCount func(Op, string)
}

func (s *countingStore) Driver() cachecore.Driver { return s.inner.Driver() }

func (s *countingStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	s.onCount(OpGet, key)
	return s.inner.Get(ctx, key)
}

func (s *countingStore) Set(ctx context.Context, key string, val []byte, ttl time.Duration) error {
	s.onCount(OpSet, key)
	return s.inner.Set(ctx, key, val, ttl)
}

func (s *countingStore) Add(ctx context.Context, key string, val []byte, ttl time.Duration) (bool, error) {
	s.onCount(OpAdd, key)
	return s.inner.Add(ctx, key, val, ttl)
}

func (s *countingStore) Delete(ctx context.Context, key string) error {
	s.onCount(OpDelete, key)
	return s.inner.Delete(ctx, key)
}

func (s *countingStore) DeletePrefix(ctx context.Context, prefix string) error {
	s.onCount(OpDeletePrefix, prefix)
	return s.inner.DeletePrefix(ctx, prefix)
}

func (s *countingStore) Flush(ctx context.Context) error {
	s.onCount(OpFlush, "")
	return s.inner.Flush(ctx)
}

func (s *countingStore) GetObject(ctx context.Context, key string) (any, bool, error) {
	s.onCount(OpGet, key)
	return s.inner.GetObject(ctx, key)
}

func (s *countingStore) SetObject(ctx context.Context, key string, value any, ttl time.Duration) error {
	s.onCount(OpSet, key)
	return s.inner.SetObject(ctx, key, value, ttl)
}
