//go:build integration

package integration_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/goforj/refreshcache"
	"github.com/goforj/refreshcache/cachecore"
	"github.com/goforj/refreshcache/cachetest"
	"github.com/goforj/refreshcache/driver/natscache"
	goredis "github.com/redis/go-redis/v9"
)

type storeFactory struct {
	name      string
	container bool
	new       func(t *testing.T, cfg refreshcache.StoreConfig) (cachecore.Store, func())
	opts      cachetest.Options
}

// integrationFixtures returns one factory per selected driver. Each call to
// new builds the store through refreshcache.NewStore so shaping options
// apply the same way they do in production wiring.
func integrationFixtures() []storeFactory {
	var fixtures []storeFactory

	if integrationDriverEnabled("null") {
		fixtures = append(fixtures, storeFactory{
			name: "null",
			new: func(t *testing.T, cfg refreshcache.StoreConfig) (cachecore.Store, func()) {
				cfg.Driver = cachecore.DriverNull
				return mustStore(t, cfg, func() {})
			},
			opts: cachetest.Options{NullSemantics: true},
		})
	}

	if integrationDriverEnabled("memory") {
		fixtures = append(fixtures, storeFactory{
			name: "memory",
			new: func(t *testing.T, cfg refreshcache.StoreConfig) (cachecore.Store, func()) {
				cfg.Driver = cachecore.DriverMemory
				return mustStore(t, cfg, func() {})
			},
		})
	}

	if integrationDriverEnabled("sqlite") {
		fixtures = append(fixtures, storeFactory{
			name: "sqlite",
			new: func(t *testing.T, cfg refreshcache.StoreConfig) (cachecore.Store, func()) {
				cfg.Driver = cachecore.DriverSQL
				cfg.SQLDriverName = "sqlite"
				cfg.SQLDSN = "file:" + bucketName(t.Name()) + "?mode=memory&cache=shared"
				return mustStore(t, cfg, func() {})
			},
		})
	}

	if integrationDriverEnabled("redis") {
		fixtures = append(fixtures, storeFactory{
			name:      "redis",
			container: true,
			new: func(t *testing.T, cfg refreshcache.StoreConfig) (cachecore.Store, func()) {
				container, addr := startRedisContainer(t, context.Background())
				client := goredis.NewClient(&goredis.Options{Addr: addr})
				cfg.Driver = cachecore.DriverRedis
				cfg.RedisClient = client
				return mustStore(t, cfg, func() {
					_ = client.Close()
					terminate(container)
				})
			},
		})
	}

	if integrationDriverEnabled("nats") {
		fixtures = append(fixtures, storeFactory{
			name:      "nats",
			container: true,
			new: func(t *testing.T, cfg refreshcache.StoreConfig) (cachecore.Store, func()) {
				container, url := startNATSContainer(t, context.Background())
				bucket, err := retryInit(5*time.Second, 100*time.Millisecond, func() (natsBucket, error) {
					kv, closeKV, err := natscache.OpenKeyValue(url, bucketName(t.Name()))
					return natsBucket{kv: kv, close: closeKV}, err
				})
				if err != nil {
					terminate(container)
					t.Fatalf("open nats bucket: %v", err)
				}
				cfg.Driver = cachecore.DriverNATS
				cfg.NATSKeyValue = bucket.kv
				return mustStore(t, cfg, func() {
					bucket.close()
					terminate(container)
				})
			},
		})
	}

	if integrationDriverEnabled("postgres") {
		fixtures = append(fixtures, storeFactory{
			name:      "postgres",
			container: true,
			new: func(t *testing.T, cfg refreshcache.StoreConfig) (cachecore.Store, func()) {
				container, addr := startPostgresContainer(t, context.Background())
				cfg.Driver = cachecore.DriverSQL
				cfg.SQLDriverName = "pgx"
				cfg.SQLDSN = "postgres://user:pass@" + addr + "/app?sslmode=disable"
				return retryStore(t, cfg, func() { terminate(container) })
			},
		})
	}

	if integrationDriverEnabled("mysql") {
		fixtures = append(fixtures, storeFactory{
			name:      "mysql",
			container: true,
			new: func(t *testing.T, cfg refreshcache.StoreConfig) (cachecore.Store, func()) {
				container, addr := startMySQLContainer(t, context.Background())
				cfg.Driver = cachecore.DriverSQL
				cfg.SQLDriverName = "mysql"
				cfg.SQLDSN = "user:pass@tcp(" + addr + ")/app?parseTime=true"
				return retryStore(t, cfg, func() { terminate(container) })
			},
		})
	}

	if integrationDriverEnabled("dynamodb") {
		fixtures = append(fixtures, storeFactory{
			name:      "dynamodb",
			container: true,
			new: func(t *testing.T, cfg refreshcache.StoreConfig) (cachecore.Store, func()) {
				container, endpoint := startDynamoContainer(t, context.Background())
				cfg.Driver = cachecore.DriverDynamo
				cfg.DynamoEndpoint = endpoint
				cfg.DynamoRegion = "us-east-1"
				cfg.DynamoTable = "cache_entries"
				return mustStore(t, cfg, func() { terminate(container) })
			},
		})
	}

	return fixtures
}

type natsBucket struct {
	kv    natscache.KeyValue
	close func()
}

func mustStore(t *testing.T, cfg refreshcache.StoreConfig, cleanup func()) (cachecore.Store, func()) {
	t.Helper()
	store, err := refreshcache.NewStore(context.Background(), cfg)
	if err != nil {
		cleanup()
		t.Fatalf("create %s store: %v", cfg.Driver, err)
	}
	return store, cleanup
}

// retryStore keeps trying while a freshly started database finishes booting.
func retryStore(t *testing.T, cfg refreshcache.StoreConfig, cleanup func()) (cachecore.Store, func()) {
	t.Helper()
	store, err := retryInit(30*time.Second, 250*time.Millisecond, func() (cachecore.Store, error) {
		return refreshcache.NewStore(context.Background(), cfg)
	})
	if err != nil {
		cleanup()
		t.Fatalf("create %s store: %v", cfg.Driver, err)
	}
	return store, cleanup
}

func bucketName(name string) string {
	return "cache_" + strings.NewReplacer("/", "_", ":", "_", " ", "_", "-", "_").Replace(name)
}
