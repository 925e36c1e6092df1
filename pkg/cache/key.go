package cache

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// KeyPrefix namespaces every key written by the cache.
const KeyPrefix = "ingest"

// CacheKey identifies one cached API response.
type CacheKey struct {
	// BaseURL of the API, so two APIs sharing a path do not collide
	BaseURL string

	// Endpoint is the API path (e.g. "/invoices")
	Endpoint string

	// QueryParams are the request query parameters (e.g. {"page": "2"})
	QueryParams url.Values
}

// String generates a deterministic cache key string.
// Format: ingest:host:endpoint:query1=val1:query2=val2
//
// Example:
//
//	ingest:api.example.com:invoices:page=2
func (k CacheKey) String() string {
	parts := []string{KeyPrefix}

	if k.BaseURL != "" {
		host := k.BaseURL
		if u, err := url.Parse(k.BaseURL); err == nil && u.Host != "" {
			host = u.Host + strings.TrimRight(u.Path, "/")
		}
		parts = append(parts, host)
	}

	endpoint := strings.Trim(k.Endpoint, "/")
	if endpoint != "" {
		parts = append(parts, endpoint)
	}

	// Query params sorted for determinism
	if len(k.QueryParams) > 0 {
		queryKeys := make([]string, 0, len(k.QueryParams))
		for key := range k.QueryParams {
			queryKeys = append(queryKeys, key)
		}
		sort.Strings(queryKeys)

		for _, key := range queryKeys {
			parts = append(parts, fmt.Sprintf("%s=%s", key, strings.Join(k.QueryParams[key], ",")))
		}
	}

	return strings.Join(parts, ":")
}
