// Package cachetest provides reusable store contract tests for cachecore.Store implementations.
//
// Driver packages use it from their own tests so every backend honors the same
// get/set/add/expiry rules the refresh layer depends on.
//
// Example pattern (driver test):
//
//	func TestRedisStoreContract(t *testing.T) {
//		store := rediscache.New(rediscache.Config{Client: newStubClient()})
//		cachetest.RunStoreContract(t, store, cachetest.Options{
//			CaseName: t.Name(),
//			TTL:      time.Second,
//			TTLWait:  1500 * time.Millisecond,
//		})
//	}
package cachetest
