package refreshcache

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/goforj/refreshcache/cachecore"
	"github.com/hashicorp/go-multierror"
)

// Cache binds a physical store to a cache name, its configured expiry and
// its null-value policy.
//
// Keys are namespaced as "<name>::<key>" so several caches can share a store.
type Cache struct {
	name       string
	store      cachecore.Store
	objects    cachecore.ObjectStore
	expiry     cachecore.Expiry
	allowNulls bool
	codec      WireCodec
}

// CacheOption customizes a Cache.
type CacheOption func(*Cache)

// WithAllowNullValues lets the cache hold the null (empty) value.
func WithAllowNullValues(allow bool) CacheOption {
	return func(c *Cache) { c.allowNulls = allow }
}

// WithWireCodec replaces BinaryCodec for out-of-process stores.
func WithWireCodec(codec WireCodec) CacheOption {
	return func(c *Cache) {
		if codec != nil {
			c.codec = codec
		}
	}
}

// NewCache creates a named cache on top of store.
// @group Cache
//
// Example: named cache over the memory driver
//
//	store := memorycache.New(memorycache.Config{})
//	users := refreshcache.NewCache("users", store, cachecore.Expiry{ExpireAfterWrite: time.Minute})
//	fmt.Println(users.Name()) // users
func NewCache(name string, store cachecore.Store, expiry cachecore.Expiry, opts ...CacheOption) *Cache {
	c := &Cache{
		name:   name,
		store:  store,
		expiry: expiry,
		codec:  BinaryCodec{},
	}
	if objects, ok := store.(cachecore.ObjectStore); ok {
		c.objects = objects
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Cache) Name() string                  { return c.name }
func (c *Cache) Expiry() cachecore.Expiry      { return c.expiry }
func (c *Cache) Store() cachecore.Store        { return c.store }
func (c *Cache) AllowNullValues() bool         { return c.allowNulls }
func (c *Cache) Driver() cachecore.Driver      { return c.store.Driver() }
func (c *Cache) physicalKey(key string) string { return c.name + "::" + key }

// physicalTTL is the TTL Put and PutRaw carry: the store's own configured
// expiry, independent of any soft TTL.
func (c *Cache) physicalTTL() time.Duration {
	return resolveExpiry(c.expiry).physical()
}

// Get loads the wrapper stored under key. Undecodable bytes yield a *FormatError.
func (c *Cache) Get(ctx context.Context, key string) (Wrapper, bool, error) {
	if c.objects != nil {
		item, ok, err := c.objects.GetObject(ctx, c.physicalKey(key))
		if err != nil || !ok {
			return Wrapper{}, false, err
		}
		switch v := item.(type) {
		case Wrapper:
			return v, true, nil
		case []byte:
			w, err := c.codec.Decode(v)
			return w, err == nil, err
		default:
			return Wrapper{}, false, &FormatError{Reason: fmt.Sprintf("unexpected in-process entry %T", item)}
		}
	}
	body, ok, err := c.store.Get(ctx, c.physicalKey(key))
	if err != nil || !ok {
		return Wrapper{}, false, err
	}
	if w, isNull := decodeNullMarker(body); isNull {
		return w, true, nil
	}
	w, err := c.codec.Decode(body)
	if err != nil {
		return Wrapper{}, false, err
	}
	return w, true, nil
}

// Put stores w under key with the cache's physical TTL.
func (c *Cache) Put(ctx context.Context, key string, w Wrapper) error {
	return c.put(ctx, key, w, c.physicalTTL())
}

func (c *Cache) put(ctx context.Context, key string, w Wrapper, ttl time.Duration) error {
	if w.IsNull() && !c.allowNulls {
		return ErrNullValue
	}
	if c.objects != nil {
		return c.objects.SetObject(ctx, c.physicalKey(key), w, ttl)
	}
	if w.IsNull() {
		// The wire format has no null; a header-only marker stands in for it.
		return c.store.Set(ctx, c.physicalKey(key), nullMarker(w), ttl)
	}
	body, err := c.codec.Encode(w)
	if err != nil {
		return err
	}
	return c.store.Set(ctx, c.physicalKey(key), body, ttl)
}

// GetRaw loads an unwrapped value, as written by PutRaw.
func (c *Cache) GetRaw(ctx context.Context, key string) ([]byte, bool, error) {
	return c.store.Get(ctx, c.physicalKey(key))
}

// PutRaw stores value unwrapped with the cache's physical TTL.
func (c *Cache) PutRaw(ctx context.Context, key string, value []byte) error {
	return c.putRaw(ctx, key, value, c.physicalTTL())
}

func (c *Cache) putRaw(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if len(value) == 0 && !c.allowNulls {
		return ErrNullValue
	}
	return c.store.Set(ctx, c.physicalKey(key), value, ttl)
}

// Evict removes key.
func (c *Cache) Evict(ctx context.Context, key string) error {
	return c.store.Delete(ctx, c.physicalKey(key))
}

// Clear removes this cache's entries. Other caches and refresh guards kept
// in the same store are left alone.
func (c *Cache) Clear(ctx context.Context) error {
	return c.store.DeletePrefix(ctx, c.physicalKey(""))
}

const nullTag byte = 0x00

func nullMarker(w Wrapper) []byte {
	out := make([]byte, wrapperHeaderLen)
	out[0] = nullTag
	binary.BigEndian.PutUint64(out[1:], uint64(w.expiresAt))
	return out
}

func decodeNullMarker(b []byte) (Wrapper, bool) {
	if len(b) != wrapperHeaderLen || b[0] != nullTag {
		return Wrapper{}, false
	}
	return Wrapper{expiresAt: int64(binary.BigEndian.Uint64(b[1:]))}, true
}

// CacheResolver maps cache names to caches.
type CacheResolver interface {
	ResolveCaches(ctx context.Context, names ...string) ([]*Cache, error)
}

// Manager is an in-memory registry of named caches.
type Manager struct {
	mu     sync.RWMutex
	caches map[string]*Cache
}

var _ CacheResolver = (*Manager)(nil)

// NewManager registers caches. Duplicate or empty names are reported
// together as a *ConfigurationError.
func NewManager(caches ...*Cache) (*Manager, error) {
	m := &Manager{caches: make(map[string]*Cache, len(caches))}
	var errs *multierror.Error
	for _, c := range caches {
		if err := m.Register(c); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	if err := errs.ErrorOrNil(); err != nil {
		return nil, &ConfigurationError{Op: "new manager", Err: err}
	}
	return m, nil
}

// MustManager is NewManager that panics on error.
func MustManager(caches ...*Cache) *Manager {
	m, err := NewManager(caches...)
	if err != nil {
		panic(err)
	}
	return m
}

// Register adds c under its name.
func (m *Manager) Register(c *Cache) error {
	if c == nil || c.name == "" {
		return errors.New("cache name is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.caches[c.name]; exists {
		return fmt.Errorf("cache %q already registered", c.name)
	}
	m.caches[c.name] = c
	return nil
}

// Cache returns the cache registered under name.
func (m *Manager) Cache(name string) (*Cache, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.caches[name]
	return c, ok
}

// Names returns the registered cache names, sorted.
func (m *Manager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.caches))
	for name := range m.caches {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ResolveCaches implements CacheResolver. Every unknown name is reported.
func (m *Manager) ResolveCaches(_ context.Context, names ...string) ([]*Cache, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Cache, 0, len(names))
	var errs *multierror.Error
	for _, name := range names {
		c, ok := m.caches[name]
		if !ok {
			errs = multierror.Append(errs, fmt.Errorf("unknown cache %q", name))
			continue
		}
		out = append(out, c)
	}
	if err := errs.ErrorOrNil(); err != nil {
		return nil, &ConfigurationError{Op: "resolve caches", Err: err}
	}
	return out, nil
}

// resolveSingle resolves names to exactly one cache.
func resolveSingle(ctx context.Context, resolver CacheResolver, names []string) (*Cache, error) {
	caches, err := resolver.ResolveCaches(ctx, names...)
	if err != nil {
		var cfgErr *ConfigurationError
		if errors.As(err, &cfgErr) {
			return nil, err
		}
		return nil, &ConfigurationError{Op: "resolve caches", Err: err}
	}
	switch len(caches) {
	case 0:
		return nil, &ConfigurationError{Op: "resolve caches", Err: fmt.Errorf("no cache resolved for %v", names)}
	case 1:
		return caches[0], nil
	default:
		return nil, &ConfigurationError{Op: "resolve caches", Err: fmt.Errorf("refresh-ahead needs exactly one cache, %v resolved to %d", names, len(caches))}
	}
}
