package refreshcache

import (
	"context"
	"encoding/json"
	"fmt"
)

// ValueCodec defines how typed helpers encode and decode values.
type ValueCodec[T any] struct {
	Encode func(T) ([]byte, error)
	Decode func([]byte) (T, error)
}

// JSONCodec encodes values as JSON.
func JSONCodec[T any]() ValueCodec[T] {
	return ValueCodec[T]{
		Encode: func(v T) ([]byte, error) { return json.Marshal(v) },
		Decode: func(b []byte) (T, error) {
			var out T
			err := json.Unmarshal(b, &out)
			return out, err
		},
	}
}

// Get is Coordinator.Get for typed values, encoded as JSON.
// @group Coordinator
//
// Example: typed refresh-ahead read
//
//	user, err := refreshcache.Get(ctx, coord, refreshcache.Invocation{Operation: op, Key: id},
//		func(ctx context.Context) (User, error) { return repo.Find(ctx, id) })
func Get[T any](ctx context.Context, c *Coordinator, inv Invocation, fn func(context.Context) (T, error)) (T, error) {
	return GetWithCodec(ctx, c, inv, fn, JSONCodec[T]())
}

// GetWithCodec is Get with a custom codec.
func GetWithCodec[T any](ctx context.Context, c *Coordinator, inv Invocation, fn func(context.Context) (T, error), codec ValueCodec[T]) (T, error) {
	var zero T
	body, err := c.Get(ctx, inv, func(ctx context.Context) ([]byte, error) {
		v, err := fn(ctx)
		if err != nil {
			return nil, err
		}
		return codec.Encode(v)
	})
	if err != nil {
		return zero, err
	}
	return codec.Decode(body)
}

// Put is Coordinator.Put for typed values, encoded as JSON.
func Put[T any](ctx context.Context, c *Coordinator, inv Invocation, value T) error {
	return PutWithCodec(ctx, c, inv, value, JSONCodec[T]())
}

// PutWithCodec is Put with a custom codec.
func PutWithCodec[T any](ctx context.Context, c *Coordinator, inv Invocation, value T, codec ValueCodec[T]) error {
	body, err := codec.Encode(value)
	if err != nil {
		return err
	}
	return c.Put(ctx, inv, body)
}

// Key encodes composite key parts unambiguously, so ("a:b", "c") and
// ("a", "b:c") produce different keys.
func Key(parts ...any) string {
	body, err := json.Marshal(parts)
	if err != nil {
		return fmt.Sprintf("%#v", parts)
	}
	return string(body)
}
