package cache

import (
	"time"
)

// Entry is a last-known-good backend response.
type Entry struct {
	// Key is the derived request key (see CacheKey).
	Key string

	// Payload is the raw JSON body of the response.
	Payload []byte

	// StatusCode is the HTTP status of the stored response.
	StatusCode int

	// StoredAt is when the response was written to the cache.
	StoredAt time.Time
}

// Age returns how long ago the entry was stored.
func (e *Entry) Age(now time.Time) time.Duration {
	return now.Sub(e.StoredAt)
}

// Expired reports whether the entry is no longer usable at now.
// An entry is valid only while now - StoredAt < ttl.
func (e *Entry) Expired(now time.Time, ttl time.Duration) bool {
	return e.Age(now) >= ttl
}

// clone copies the entry so callers cannot mutate cached bytes.
func (e *Entry) clone() *Entry {
	c := *e
	c.Payload = append([]byte(nil), e.Payload...)
	return &c
}
