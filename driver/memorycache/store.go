package memorycache

import (
	"context"
	"strings"
	"time"

	"github.com/goforj/refreshcache/cachecore"
	gocache "github.com/patrickmn/go-cache"
)

const (
	defaultTTL             = 5 * time.Minute
	defaultCleanupInterval = 10 * time.Minute
)

// Config configures an in-process cache store.
type Config struct {
	cachecore.BaseConfig
	CleanupInterval time.Duration
}

type store struct {
	cache      *gocache.Cache
	defaultTTL time.Duration
}

// New builds an in-process cachecore.ObjectStore backed by go-cache.
//
// Values written through SetObject are kept as Go values, so wrappers stored by
// the refresh layer never go through wire encoding.
//
// Defaults:
// - DefaultTTL: 5*time.Minute when zero
// - CleanupInterval: 10*time.Minute when zero
func New(cfg Config) cachecore.ObjectStore {
	ttl := cfg.DefaultTTL
	if ttl <= 0 {
		ttl = defaultTTL
	}
	interval := cfg.CleanupInterval
	if interval <= 0 {
		interval = defaultCleanupInterval
	}
	return &store{
		cache:      gocache.New(ttl, interval),
		defaultTTL: ttl,
	}
}

func (s *store) Driver() cachecore.Driver {
	return cachecore.DriverMemory
}

func (s *store) Get(_ context.Context, key string) ([]byte, bool, error) {
	item, ok := s.cache.Get(key)
	if !ok {
		return nil, false, nil
	}
	body, ok := item.([]byte)
	if !ok {
		return nil, false, nil
	}
	return cloneBytes(body), true, nil
}

func (s *store) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	s.cache.Set(key, cloneBytes(value), s.resolveTTL(ttl))
	return nil
}

func (s *store) Add(_ context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	// go-cache reports an existing, unexpired item as an error.
	if err := s.cache.Add(key, cloneBytes(value), s.resolveTTL(ttl)); err != nil {
		return false, nil
	}
	return true, nil
}

func (s *store) GetObject(_ context.Context, key string) (any, bool, error) {
	item, ok := s.cache.Get(key)
	return item, ok, nil
}

func (s *store) SetObject(_ context.Context, key string, value any, ttl time.Duration) error {
	s.cache.Set(key, value, s.resolveTTL(ttl))
	return nil
}

func (s *store) Delete(_ context.Context, key string) error {
	s.cache.Delete(key)
	return nil
}

func (s *store) DeletePrefix(_ context.Context, prefix string) error {
	for key := range s.cache.Items() {
		if strings.HasPrefix(key, prefix) {
			s.cache.Delete(key)
		}
	}
	return nil
}

func (s *store) Flush(_ context.Context) error {
	s.cache.Flush()
	return nil
}

func (s *store) resolveTTL(ttl time.Duration) time.Duration {
	switch {
	case ttl == cachecore.NoExpiration:
		return gocache.NoExpiration
	case ttl <= 0:
		return s.defaultTTL
	default:
		return ttl
	}
}

func cloneBytes(value []byte) []byte {
	if value == nil {
		return nil
	}
	clone := make([]byte, len(value))
	copy(clone, value)
	return clone
}
