package cache

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// CacheEntry is a cached API page response.
type CacheEntry struct {
	// Data is the raw response body
	Data []byte `json:"data"`

	// StatusCode is the HTTP status code of the cached response
	StatusCode int `json:"status_code"`

	// ContentType of the original response
	ContentType string `json:"content_type,omitempty"`

	// Expires is when the entry becomes stale
	Expires time.Time `json:"expires"`

	// CachedAt is when the entry was created
	CachedAt time.Time `json:"cached_at"`
}

// IsExpired returns true if the cache entry has expired.
func (e *CacheEntry) IsExpired() bool {
	return time.Now().After(e.Expires)
}

// TTL returns the time until expiration.
// Returns 0 if already expired.
func (e *CacheEntry) TTL() time.Duration {
	ttl := time.Until(e.Expires)
	if ttl < 0 {
		return 0
	}
	return ttl
}

// NewEntry builds a cache entry for a response body. The entry expires after
// ttl, or earlier when the response headers ask for a shorter lifetime.
func NewEntry(body []byte, statusCode int, headers http.Header, ttl time.Duration) *CacheEntry {
	now := time.Now()
	lifetime := ttl
	if h, ok := headerLifetime(headers, now); ok && h < lifetime {
		lifetime = h
	}

	entry := &CacheEntry{
		Data:       body,
		StatusCode: statusCode,
		Expires:    now.Add(lifetime),
		CachedAt:   now,
	}
	if headers != nil {
		entry.ContentType = headers.Get("Content-Type")
	}
	return entry
}

// headerLifetime reads Cache-Control max-age (preferred) or Expires.
func headerLifetime(headers http.Header, now time.Time) (time.Duration, bool) {
	if headers == nil {
		return 0, false
	}

	for _, directive := range strings.Split(headers.Get("Cache-Control"), ",") {
		directive = strings.TrimSpace(strings.ToLower(directive))
		switch {
		case directive == "no-store" || directive == "no-cache":
			return 0, true
		case strings.HasPrefix(directive, "max-age="):
			secs, err := strconv.Atoi(strings.TrimPrefix(directive, "max-age="))
			if err != nil || secs < 0 {
				continue
			}
			return time.Duration(secs) * time.Second, true
		}
	}

	if expiresStr := headers.Get("Expires"); expiresStr != "" {
		expires, err := http.ParseTime(expiresStr)
		if err != nil {
			return 0, false
		}
		if expires.Before(now) {
			return 0, true
		}
		return expires.Sub(now), true
	}

	return 0, false
}
