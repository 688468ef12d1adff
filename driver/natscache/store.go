package natscache

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goforj/refreshcache/cachecore"
	"github.com/nats-io/nats.go"
)

const (
	defaultTTL    = 5 * time.Minute
	defaultPrefix = "app"
	envelopeSize  = 12
	maxAddRetries = 8
)

var (
	envelopeMagic = []byte("NCV1")
	errNoKV       = errors.New("nats cache key-value unavailable")
)

// KeyValue is the part of nats.KeyValue the store calls.
type KeyValue interface {
	Get(key string) (nats.KeyValueEntry, error)
	Put(key string, value []byte) (uint64, error)
	Create(key string, value []byte) (uint64, error)
	Update(key string, value []byte, last uint64) (uint64, error)
	Delete(key string, opts ...nats.DeleteOpt) error
	Purge(key string, opts ...nats.DeleteOpt) error
	ListKeys(opts ...nats.WatchOpt) (nats.KeyLister, error)
}

// Config selects the bucket handle and expiry mode for the NATS store.
type Config struct {
	cachecore.BaseConfig
	KeyValue KeyValue
	// BucketTTL stores raw values and leaves expiry to the bucket's MaxAge.
	BucketTTL bool
}

type store struct {
	kv         KeyValue
	defaultTTL time.Duration
	scope      string
	bucketTTL  bool
}

type envelope struct {
	Value     []byte
	ExpiresAt int64
}

// New returns a cachecore.Store over a JetStream key-value bucket.
//
// Defaults:
// - DefaultTTL: 5*time.Minute when zero
// - Prefix: "app" when empty
// - BucketTTL: false (TTL enforced in value envelope metadata)
// - KeyValue: nil allowed, operations return errors
func New(cfg Config) cachecore.Store {
	ttl := cfg.DefaultTTL
	if ttl <= 0 {
		ttl = defaultTTL
	}
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &store{
		kv:         cfg.KeyValue,
		defaultTTL: ttl,
		scope:      "p." + encodeKeyPart(prefix) + ".k.",
		bucketTTL:  cfg.BucketTTL,
	}
}

// OpenKeyValue connects to url and binds the named bucket, creating it when
// it does not exist yet. The returned close func drains the connection.
func OpenKeyValue(url, bucket string) (KeyValue, func(), error) {
	nc, err := nats.Connect(url)
	if err != nil {
		return nil, nil, fmt.Errorf("connect nats: %w", err)
	}
	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("jetstream context: %w", err)
	}
	kv, err := js.KeyValue(bucket)
	if errors.Is(err, nats.ErrBucketNotFound) {
		kv, err = js.CreateKeyValue(&nats.KeyValueConfig{Bucket: bucket})
	}
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("bind key-value bucket %q: %w", bucket, err)
	}
	return kv, func() { _ = nc.Drain() }, nil
}

func (s *store) Driver() cachecore.Driver { return cachecore.DriverNATS }

func (s *store) Get(_ context.Context, key string) ([]byte, bool, error) {
	if s.kv == nil {
		return nil, false, errNoKV
	}
	value, _, ok, err := s.load(s.cacheKey(key))
	if err != nil || !ok {
		return nil, false, err
	}
	return cloneBytes(value), true, nil
}

// load returns the live value for cacheKey. For an expired envelope it
// reports ok=false with the entry's revision so callers can overwrite it.
func (s *store) load(cacheKey string) ([]byte, uint64, bool, error) {
	entry, err := s.kv.Get(cacheKey)
	if isMiss(err) {
		return nil, 0, false, nil
	}
	if err != nil {
		return nil, 0, false, err
	}
	if entry.Operation() == nats.KeyValueDelete || entry.Operation() == nats.KeyValuePurge {
		return nil, 0, false, nil
	}
	if s.bucketTTL {
		return entry.Value(), entry.Revision(), true, nil
	}
	env, wrapped := decodeEnvelope(entry.Value())
	if !wrapped {
		return entry.Value(), entry.Revision(), true, nil
	}
	if env.ExpiresAt > 0 && time.Now().UnixMilli() > env.ExpiresAt {
		return nil, entry.Revision(), false, nil
	}
	return env.Value, entry.Revision(), true, nil
}

func (s *store) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if s.kv == nil {
		return errNoKV
	}
	_, err := s.kv.Put(s.cacheKey(key), s.encode(value, ttl))
	return err
}

// Add creates key when it is missing or its envelope has expired. Expired
// entries are replaced with a revision-checked Update so two writers racing
// on the same stale marker cannot both win.
func (s *store) Add(_ context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	if s.kv == nil {
		return false, errNoKV
	}
	cacheKey := s.cacheKey(key)
	body := s.encode(value, ttl)
	for attempt := 0; attempt < maxAddRetries; attempt++ {
		_, revision, ok, err := s.load(cacheKey)
		if err != nil {
			return false, err
		}
		if ok {
			return false, nil
		}
		if revision == 0 {
			_, err = s.kv.Create(cacheKey, body)
		} else {
			_, err = s.kv.Update(cacheKey, body, revision)
		}
		if err == nil {
			return true, nil
		}
		if errors.Is(err, nats.ErrKeyExists) || isMiss(err) {
			continue
		}
		return false, err
	}
	return false, nil
}

func (s *store) Delete(_ context.Context, key string) error {
	if s.kv == nil {
		return errNoKV
	}
	err := s.kv.Delete(s.cacheKey(key))
	if isMiss(err) {
		return nil
	}
	return err
}

// DeletePrefix purges keys whose decoded name starts with prefix. Key parts
// are base64url encoded, so the match runs on the decoded form.
func (s *store) DeletePrefix(_ context.Context, prefix string) error {
	if s.kv == nil {
		return errNoKV
	}
	return s.purgeMatching(func(key string) bool {
		decoded, ok := decodeKeyPart(strings.TrimPrefix(key, s.scope))
		return ok && strings.HasPrefix(decoded, prefix)
	})
}

func (s *store) Flush(_ context.Context) error {
	if s.kv == nil {
		return errNoKV
	}
	return s.purgeMatching(func(string) bool { return true })
}

func (s *store) purgeMatching(match func(key string) bool) error {
	lister, err := s.kv.ListKeys(nats.IgnoreDeletes())
	if err != nil {
		if errors.Is(err, nats.ErrNoKeysFound) {
			return nil
		}
		return err
	}
	defer func() { _ = lister.Stop() }()

	for key := range lister.Keys() {
		if !strings.HasPrefix(key, s.scope) || !match(key) {
			continue
		}
		if err := s.kv.Purge(key); err != nil && !isMiss(err) {
			return err
		}
	}
	for err := range lister.Error() {
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *store) cacheKey(key string) string {
	return s.scope + encodeKeyPart(key)
}

func (s *store) encode(value []byte, ttl time.Duration) []byte {
	if s.bucketTTL {
		return cloneBytes(value)
	}
	var expiresAt int64
	switch {
	case ttl == cachecore.NoExpiration:
		expiresAt = 0
	case ttl <= 0:
		expiresAt = time.Now().Add(s.defaultTTL).UnixMilli()
	default:
		expiresAt = time.Now().Add(ttl).UnixMilli()
	}
	body := make([]byte, envelopeSize+len(value))
	copy(body[:4], envelopeMagic)
	binary.BigEndian.PutUint64(body[4:envelopeSize], uint64(expiresAt))
	copy(body[envelopeSize:], value)
	return body
}

func decodeEnvelope(body []byte) (envelope, bool) {
	if len(body) < envelopeSize || !bytes.Equal(body[:4], envelopeMagic) {
		return envelope{}, false
	}
	return envelope{
		ExpiresAt: int64(binary.BigEndian.Uint64(body[4:envelopeSize])),
		Value:     body[envelopeSize:],
	}, true
}

func isMiss(err error) bool {
	return errors.Is(err, nats.ErrKeyNotFound) || errors.Is(err, nats.ErrKeyDeleted)
}

// NATS keys allow a restricted alphabet, so user keys are base64url encoded.
func encodeKeyPart(part string) string {
	if part == "" {
		return "_"
	}
	return base64.RawURLEncoding.EncodeToString([]byte(part))
}

func decodeKeyPart(part string) (string, bool) {
	if part == "_" {
		return "", true
	}
	raw, err := base64.RawURLEncoding.DecodeString(part)
	if err != nil {
		return "", false
	}
	return string(raw), true
}

func cloneBytes(value []byte) []byte {
	if value == nil {
		return nil
	}
	out := make([]byte, len(value))
	copy(out, value)
	return out
}
