package refreshcache

import (
	"context"
	"time"

	"github.com/goforj/refreshcache/cachecore"
)

// nullStore caches nothing: every read misses and every Add succeeds, so a
// coordinator over it computes on every call.
type nullStore struct{}

// NewNullStore returns a store that never holds entries.
func NewNullStore() cachecore.Store { return nullStore{} }

func (nullStore) Driver() cachecore.Driver { return cachecore.DriverNull }

func (nullStore) Get(context.Context, string) ([]byte, bool, error) {
	return nil, false, nil
}

func (nullStore) Set(context.Context, string, []byte, time.Duration) error {
	return nil
}

func (nullStore) Add(context.Context, string, []byte, time.Duration) (bool, error) {
	return true, nil
}

func (nullStore) Delete(context.Context, string) error { return nil }

func (nullStore) DeletePrefix(context.Context, string) error { return nil }
func (nullStore) Flush(context.Context) error                { return nil }
