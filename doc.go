// Package refreshcache adds refresh-ahead (stale-while-revalidate) behaviour to
// a key/value method-result cache.
//
// Every entry is stored with a soft expiry that is a fraction of the backing
// store's own TTL. Reads before the soft expiry are served as-is. Reads after
// it still return the stored value immediately, and a single background task
// per key recomputes it. A true miss computes synchronously.
//
//	store := memorycache.New(memorycache.Config{})
//	users := refreshcache.NewCache("users", store, cachecore.Expiry{ExpireAfterWrite: time.Minute})
//	coord, err := refreshcache.NewCoordinator(refreshcache.MustManager(users))
//	if err != nil {
//		return err
//	}
//	defer coord.Close(context.Background())
//
//	op := refreshcache.Operation{Name: "users.find", CacheNames: []string{"users"}}
//	user, err := refreshcache.Get(ctx, coord, refreshcache.Invocation{Operation: op, Key: id},
//		func(ctx context.Context) (User, error) { return repo.Find(ctx, id) })
package refreshcache

import logging "github.com/ipfs/go-log/v2"

var log = logging.Logger("refreshcache")
