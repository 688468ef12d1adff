package cachecore

import (
	"context"
	"time"
)

// NoExpiration asks a store to keep an entry until it is deleted.
const NoExpiration time.Duration = -1

// Store is the physical key/value contract every driver implements.
//
// A ttl of 0 falls back to the driver default; NoExpiration keeps the entry forever.
type Store interface {
	Driver() Driver
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Add writes value only when key is absent (or logically expired) and reports
	// whether it did.
	Add(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
	Delete(ctx context.Context, key string) error
	// DeletePrefix removes every entry whose key starts with prefix.
	DeletePrefix(ctx context.Context, prefix string) error
	Flush(ctx context.Context) error
}

// ObjectStore is implemented by in-process drivers that can hold Go values
// directly, skipping wire encoding.
type ObjectStore interface {
	Store
	GetObject(ctx context.Context, key string) (any, bool, error)
	SetObject(ctx context.Context, key string, value any, ttl time.Duration) error
}
