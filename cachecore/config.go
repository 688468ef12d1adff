package cachecore

import "time"

// BaseConfig holds the settings every driver understands.
type BaseConfig struct {
	DefaultTTL    time.Duration
	Prefix        string
	Compression   CompressionCodec
	MaxValueBytes int
}

// Expiry describes the physical expiry a named cache is configured with.
//
// Only one duration is expected to be set; when several are, resolvers pick
// access, then write, then create.
type Expiry struct {
	ExpireAfterAccess time.Duration
	ExpireAfterWrite  time.Duration
	ExpireAfterCreate time.Duration
	Eternal           bool
}
