// Package natscache provides a NATS JetStream KeyValue-backed cachecore.Store.
//
// Values are wrapped in a small binary envelope carrying their physical
// expiry unless the bucket itself enforces TTLs (Config.BucketTTL).
package natscache
