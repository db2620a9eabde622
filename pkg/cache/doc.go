// Package cache provides the gateway's in-memory fallback cache.
//
// The cache stores the last successful response of every backend request,
// keyed by method, URL and body. It is not a freshness cache: live responses
// are always preferred, and a stored entry is only served when a live call
// times out.
//
// # Basic Usage
//
//	store := cache.NewMemory(cache.Config{
//		TTL:      5 * time.Minute,
//		Capacity: 100,
//	})
//
//	key := cache.Key("GET", "https://shop.example.com/wp-json/wc/v3/orders/123", nil)
//	store.Put(key, body, http.StatusOK)
//
//	if entry, ok := store.Get(key); ok {
//		// entry.Payload, entry.StoredAt
//	}
//
// # Eviction
//
//   - TTL: an entry older than the TTL is removed when it is next read.
//   - Capacity: once the cache holds more than Capacity entries, the
//     oldest insertion is dropped.
//
// # Metrics
//
//   - gateway_cache_hits_total - Fallback cache hits
//   - gateway_cache_misses_total - Fallback cache misses (absent or expired)
//   - gateway_cache_evictions_total{reason} - Evictions by "ttl" or "capacity"
//   - gateway_cache_entries - Current number of entries
package cache
