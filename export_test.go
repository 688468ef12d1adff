package refreshcache

// WithClock lets external tests drive soft expiry deterministically.
var WithClock = withClock
