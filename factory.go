package refreshcache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/goforj/refreshcache/cachecore"
	"github.com/goforj/refreshcache/driver/dynamocache"
	"github.com/goforj/refreshcache/driver/memorycache"
	"github.com/goforj/refreshcache/driver/natscache"
	"github.com/goforj/refreshcache/driver/rediscache"
	"github.com/goforj/refreshcache/driver/sqlcache"
	"github.com/hashicorp/go-multierror"
)

// StoreConfig controls how a physical store is constructed.
type StoreConfig struct {
	Driver cachecore.Driver
	cachecore.BaseConfig

	// EncryptionKey enables AES-GCM sealing of stored values when set.
	EncryptionKey []byte

	// MemoryCleanupInterval controls in-process eviction sweeps.
	MemoryCleanupInterval time.Duration

	// RedisClient, or RedisAddr, is required for the redis driver.
	RedisClient rediscache.Client
	RedisAddr   string

	// NATSKeyValue is required for the nats driver.
	NATSKeyValue  natscache.KeyValue
	NATSBucketTTL bool

	// SQLDriverName plus SQLDSN, or SQLDB, are required for the sql driver.
	SQLDriverName string
	SQLDSN        string
	SQLDB         *sql.DB
	SQLTable      string
	// SQLDialect overrides the dialect derived from SQLDriverName.
	SQLDialect    string

	// DynamoClient is optional; one is built from region and endpoint otherwise.
	DynamoClient   dynamocache.DynamoAPI
	DynamoEndpoint string
	DynamoRegion   string
	DynamoTable    string
}

func (c StoreConfig) withDefaults() StoreConfig {
	if c.Driver == "" {
		c.Driver = cachecore.DriverMemory
	}
	if c.Compression == "" {
		c.Compression = CompressionNone
	}
	return c
}

// Validate reports every missing driver dependency at once.
func (c StoreConfig) Validate() error {
	var errs *multierror.Error
	switch c.Driver {
	case cachecore.DriverMemory, cachecore.DriverNull, cachecore.DriverDynamo:
	case cachecore.DriverRedis:
		if c.RedisClient == nil && c.RedisAddr == "" {
			errs = multierror.Append(errs, errors.New("redis driver requires a client or an address"))
		}
	case cachecore.DriverNATS:
		if c.NATSKeyValue == nil {
			errs = multierror.Append(errs, errors.New("nats driver requires a key-value bucket"))
		}
	case cachecore.DriverSQL:
		if c.SQLDriverName == "" {
			errs = multierror.Append(errs, errors.New("sql driver requires a driver name"))
		}
		if c.SQLDB == nil && c.SQLDSN == "" {
			errs = multierror.Append(errs, errors.New("sql driver requires a dsn or a db handle"))
		}
	default:
		errs = multierror.Append(errs, fmt.Errorf("unknown driver %q", c.Driver))
	}
	switch c.Compression {
	case CompressionNone, CompressionGzip, CompressionSnappy:
	default:
		errs = multierror.Append(errs, fmt.Errorf("%w: %q", ErrUnsupportedCodec, c.Compression))
	}
	switch len(c.EncryptionKey) {
	case 0, 16, 24, 32:
	default:
		errs = multierror.Append(errs, ErrEncryptionKey)
	}
	if c.MaxValueBytes < 0 {
		errs = multierror.Append(errs, errors.New("max value bytes must not be negative"))
	}
	return errs.ErrorOrNil()
}

// NewStore returns a concrete store for the requested driver, wrapped with
// encryption, compression and size limits when configured. Values are
// compressed before they are sealed.
// @group Constructors
//
// Example: select driver explicitly
//
//	store, err := refreshcache.NewStore(ctx, refreshcache.StoreConfig{
//		Driver: cachecore.DriverMemory,
//	})
//	fmt.Println(store.Driver()) // memory
func NewStore(ctx context.Context, cfg StoreConfig) (cachecore.Store, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, &ConfigurationError{Op: "new store", Err: err}
	}
	var (
		store cachecore.Store
		err   error
	)
	switch cfg.Driver {
	case cachecore.DriverNull:
		store = NewNullStore()
	case cachecore.DriverRedis:
		store = rediscache.New(rediscache.Config{BaseConfig: cfg.BaseConfig, Client: cfg.RedisClient, Addr: cfg.RedisAddr})
	case cachecore.DriverNATS:
		store = natscache.New(natscache.Config{BaseConfig: cfg.BaseConfig, KeyValue: cfg.NATSKeyValue, BucketTTL: cfg.NATSBucketTTL})
	case cachecore.DriverSQL:
		store, err = sqlcache.New(sqlcache.Config{
			BaseConfig: cfg.BaseConfig,
			DriverName: cfg.SQLDriverName,
			Dialect:    cfg.SQLDialect,
			DSN:        cfg.SQLDSN,
			DB:         cfg.SQLDB,
			Table:      cfg.SQLTable,
		})
	case cachecore.DriverDynamo:
		store, err = dynamocache.New(ctx, dynamocache.Config{
			BaseConfig: cfg.BaseConfig,
			Client:     cfg.DynamoClient,
			Endpoint:   cfg.DynamoEndpoint,
			Region:     cfg.DynamoRegion,
			Table:      cfg.DynamoTable,
		})
	default:
		store = memorycache.New(memorycache.Config{BaseConfig: cfg.BaseConfig, CleanupInterval: cfg.MemoryCleanupInterval})
	}
	if err != nil {
		return nil, fmt.Errorf("build %s store: %w", cfg.Driver, err)
	}
	store, err = newEncryptingStore(store, cfg.EncryptionKey)
	if err != nil {
		return nil, err
	}
	return newShapingStore(store, cfg.Compression, cfg.MaxValueBytes), nil
}

// NewStoreWith builds a store from a driver and functional options.
// @group Constructors
func NewStoreWith(ctx context.Context, driver cachecore.Driver, opts ...StoreOption) (cachecore.Store, error) {
	cfg := StoreConfig{Driver: driver}
	for _, opt := range opts {
		cfg = opt(cfg)
	}
	return NewStore(ctx, cfg)
}

// StoreOption adjusts a StoreConfig before NewStoreWith builds the store.
type StoreOption func(StoreConfig) StoreConfig

// WithDefaultTTL overrides the fallback TTL used when a write passes ttl 0.
func WithDefaultTTL(ttl time.Duration) StoreOption {
	return func(cfg StoreConfig) StoreConfig {
		cfg.DefaultTTL = ttl
		return cfg
	}
}

// WithPrefix sets the key prefix for shared backends.
func WithPrefix(prefix string) StoreOption {
	return func(cfg StoreConfig) StoreConfig {
		cfg.Prefix = prefix
		return cfg
	}
}

// WithCompression compresses stored values with codec.
func WithCompression(codec CompressionCodec) StoreOption {
	return func(cfg StoreConfig) StoreConfig {
		cfg.Compression = codec
		return cfg
	}
}

// WithEncryptionKey seals stored values with AES-GCM under key.
func WithEncryptionKey(key []byte) StoreOption {
	return func(cfg StoreConfig) StoreConfig {
		cfg.EncryptionKey = key
		return cfg
	}
}

// WithMaxValueBytes rejects values larger than n bytes after compression.
func WithMaxValueBytes(n int) StoreOption {
	return func(cfg StoreConfig) StoreConfig {
		cfg.MaxValueBytes = n
		return cfg
	}
}

// WithMemoryCleanupInterval sets how often the memory driver drops expired entries.
func WithMemoryCleanupInterval(interval time.Duration) StoreOption {
	return func(cfg StoreConfig) StoreConfig {
		cfg.MemoryCleanupInterval = interval
		return cfg
	}
}

// WithRedisClient sets the redis client used by the redis driver.
func WithRedisClient(client rediscache.Client) StoreOption {
	return func(cfg StoreConfig) StoreConfig {
		cfg.RedisClient = client
		return cfg
	}
}

// WithNATSKeyValue sets the JetStream bucket used by the nats driver.
func WithNATSKeyValue(kv natscache.KeyValue) StoreOption {
	return func(cfg StoreConfig) StoreConfig {
		cfg.NATSKeyValue = kv
		return cfg
	}
}

// WithSQL sets the database/sql driver name and DSN for the sql driver.
func WithSQL(driverName, dsn string) StoreOption {
	return func(cfg StoreConfig) StoreConfig {
		cfg.SQLDriverName = driverName
		cfg.SQLDSN = dsn
		return cfg
	}
}

// WithSQLDialect sets the SQL dialect for drivers the sql store does not
// recognise by name.
func WithSQLDialect(dialect string) StoreOption {
	return func(cfg StoreConfig) StoreConfig {
		cfg.SQLDialect = dialect
		return cfg
	}
}

// WithDynamoClient sets the DynamoDB client for the dynamodb driver.
func WithDynamoClient(client dynamocache.DynamoAPI) StoreOption {
	return func(cfg StoreConfig) StoreConfig {
		cfg.DynamoClient = client
		return cfg
	}
}
