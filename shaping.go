package refreshcache

import (
	"context"
	"time"

	"github.com/goforj/refreshcache/cachecore"
)

// valueTransform rewrites stored bytes on the way in and out. The physical
// key is passed so a transform can bind its output to it.
type valueTransform interface {
	encode(key string, value []byte) ([]byte, error)
	decode(key string, body []byte) ([]byte, error)
}

// transformStore runs every value through a valueTransform. Key-only
// operations go straight to the inner store. ObjectStore is not forwarded,
// so wrapped entries always reach the transform as bytes.
type transformStore struct {
	inner     cachecore.Store
	transform valueTransform
}

// shaper compresses values and enforces the size limit.
type shaper struct {
	codec CompressionCodec
	max   int
}

func (s shaper) encode(_ string, value []byte) ([]byte, error) {
	return encodeValue(s.codec, s.max, value)
}

func (s shaper) decode(_ string, body []byte) ([]byte, error) {
	return decodeValue(body)
}

func newShapingStore(inner cachecore.Store, codec CompressionCodec, max int) cachecore.Store {
	if (codec == CompressionNone || codec == "") && max <= 0 {
		return inner
	}
	return &transformStore{inner: inner, transform: shaper{codec: codec, max: max}}
}

func (s *transformStore) Driver() cachecore.Driver { return s.inner.Driver() }

func (s *transformStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	body, ok, err := s.inner.Get(ctx, key)
	if err != nil || !ok {
		return nil, ok, err
	}
	value, err := s.transform.decode(key, body)
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

func (s *transformStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	body, err := s.transform.encode(key, value)
	if err != nil {
		return err
	}
	return s.inner.Set(ctx, key, body, ttl)
}

func (s *transformStore) Add(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	body, err := s.transform.encode(key, value)
	if err != nil {
		return false, err
	}
	return s.inner.Add(ctx, key, body, ttl)
}

func (s *transformStore) Delete(ctx context.Context, key string) error {
	return s.inner.Delete(ctx, key)
}

func (s *transformStore) DeletePrefix(ctx context.Context, prefix string) error {
	return s.inner.DeletePrefix(ctx, prefix)
}

func (s *transformStore) Flush(ctx context.Context) error {
	return s.inner.Flush(ctx)
}
