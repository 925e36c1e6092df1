// Package cache stores raw API page responses in Redis so repeated runs
// against the same page do not hit the network while the entry is fresh.
//
// Caching is opt-in: the HTTP client only consults a Manager when one is
// configured. Entries are keyed by API path plus query parameters, so every
// page number maps to its own key.
//
// # Basic Usage
//
//	redisClient := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	manager := cache.NewManager(redisClient)
//
//	key := cache.CacheKey{
//		Endpoint:    "/invoices",
//		QueryParams: url.Values{"page": []string{"3"}},
//	}
//
//	entry, err := manager.Get(ctx, key)
//	if errors.Is(err, cache.ErrCacheMiss) {
//		// fetch from the API, then:
//		entry = cache.NewEntry(body, resp.StatusCode, resp.Header, 5*time.Minute)
//		_ = manager.Set(ctx, key, entry)
//	}
//
// # Expiry
//
// An entry lives for the TTL passed to NewEntry unless the response carries a
// Cache-Control max-age or Expires header, in which case the shorter of the two
// wins. Redis removes the key when the entry expires.
//
// # Metrics
//
//   - ingest_cache_hits_total - Cache hits
//   - ingest_cache_misses_total - Cache misses
//   - ingest_cache_stored_bytes_total - Bytes written to Redis
//   - ingest_cache_errors_total{operation} - Cache operation errors
package cache
