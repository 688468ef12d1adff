// Package rediscache provides a Redis-backed cachecore.Store implementation.
//
// Entries written by the refresh layer are stored as encoded wrappers, so
// several processes can share refreshed values and in-flight guards.
//
// Example:
//
//	import (
//		"github.com/goforj/refreshcache"
//		"github.com/goforj/refreshcache/driver/rediscache"
//	)
//
//	store := rediscache.New(rediscache.Config{
//		Client: rdb,
//		BaseConfig: cachecore.BaseConfig{Prefix: "app"},
//	})
//	users := refreshcache.NewCache("users", store, cachecore.Expiry{ExpireAfterWrite: time.Minute})
package rediscache
