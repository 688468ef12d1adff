package rediscache

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/goforj/refreshcache/cachecore"
	"github.com/redis/go-redis/v9"
)

const (
	defaultTTL    = 5 * time.Minute
	defaultPrefix = "app"
	scanBatch     = 200
)

var (
	errNoClient = errors.New("redis cache client unavailable")
	globEscaper = strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)
)

// Client is the part of *redis.Client the store calls.
type Client interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Scan(ctx context.Context, cursor uint64, match string, count int64) *redis.ScanCmd
}

// Config selects the client and key prefix for the Redis store.
type Config struct {
	cachecore.BaseConfig
	// Client is used as-is when set.
	Client Client
	// Addr builds a redis.Client when Client is nil.
	Addr string
}

type store struct {
	client     Client
	defaultTTL time.Duration
	prefix     string
}

// New returns a cachecore.Store that keeps entries in Redis under "<prefix>:".
//
// Defaults:
// - DefaultTTL: 5*time.Minute when zero
// - Prefix: "app" when empty
// - Client: built from Addr when nil; otherwise operations return errors
func New(cfg Config) cachecore.Store {
	ttl := cfg.DefaultTTL
	if ttl <= 0 {
		ttl = defaultTTL
	}
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = defaultPrefix
	}
	client := cfg.Client
	if client == nil && cfg.Addr != "" {
		client = redis.NewClient(&redis.Options{Addr: cfg.Addr})
	}
	return &store{
		client:     client,
		defaultTTL: ttl,
		prefix:     prefix,
	}
}

func (s *store) Driver() cachecore.Driver {
	return cachecore.DriverRedis
}

func (s *store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if s.client == nil {
		return nil, false, errNoClient
	}
	value, err := s.client.Get(ctx, s.cacheKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, err
	}
	// Bytes aliases the reply string; callers may mutate what they get back.
	return append([]byte(nil), value...), true, nil
}

func (s *store) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if s.client == nil {
		return errNoClient
	}
	return s.client.Set(ctx, s.cacheKey(key), value, s.expiration(ttl)).Err()
}

func (s *store) Add(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	if s.client == nil {
		return false, errNoClient
	}
	return s.client.SetNX(ctx, s.cacheKey(key), value, s.expiration(ttl)).Result()
}

func (s *store) Delete(ctx context.Context, key string) error {
	if s.client == nil {
		return errNoClient
	}
	return s.client.Del(ctx, s.cacheKey(key)).Err()
}

func (s *store) DeletePrefix(ctx context.Context, prefix string) error {
	if s.client == nil {
		return errNoClient
	}
	return s.deleteMatching(ctx, s.cacheKey(globEscaper.Replace(prefix))+"*")
}

func (s *store) Flush(ctx context.Context) error {
	if s.client == nil {
		return errNoClient
	}
	return s.deleteMatching(ctx, s.cacheKey("*"))
}

func (s *store) deleteMatching(ctx context.Context, pattern string) error {
	var cursor uint64
	for {
		keys, next, err := s.client.Scan(ctx, cursor, pattern, scanBatch).Result()
		if err != nil {
			return err
		}
		if len(keys) > 0 {
			if err := s.client.Del(ctx, keys...).Err(); err != nil {
				return err
			}
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}

// expiration maps cachecore TTL semantics onto redis: 0 means "no expiry"
// for SET, and negative values mean KEEPTTL, so NoExpiration becomes 0.
func (s *store) expiration(ttl time.Duration) time.Duration {
	switch {
	case ttl == cachecore.NoExpiration:
		return 0
	case ttl <= 0:
		return s.defaultTTL
	default:
		return ttl
	}
}

func (s *store) cacheKey(key string) string {
	return s.prefix + ":" + key
}
