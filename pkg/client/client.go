// Package client provides the HTTP client used to read pages from the
// invoices API, with request pacing, an optional response cache and typed
// errors.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/aleix-cd/recap-ae-challenge/pkg/cache"
	"github.com/aleix-cd/recap-ae-challenge/pkg/logging"
	"github.com/aleix-cd/recap-ae-challenge/pkg/ratelimit"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for API client operations.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ingest_requests_total",
		Help: "Total API requests by endpoint and status",
	}, []string{"endpoint", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ingest_request_duration_seconds",
		Help:    "API request duration in seconds by endpoint",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
	}, []string{"endpoint"})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ingest_errors_total",
		Help: "Total API errors by class",
	}, []string{"class"})
)

// maxErrorBody bounds how much of an error response is kept for messages.
const maxErrorBody = 512

// Client performs GET requests against one API base URL.
type Client struct {
	httpClient  *http.Client
	rateLimiter *ratelimit.Tracker
	cache       *cache.Manager
	baseURL     *url.URL
	config      Config
	logger      zerolog.Logger
}

// Config holds the client configuration.
type Config struct {
	// BaseURL of the API, e.g. "https://api.example.com/v1"
	BaseURL string

	// User-Agent header sent with every request
	UserAgent string

	// Timeout per request
	Timeout time.Duration

	// RateLimit in requests per second (0 = unlimited)
	RateLimit float64

	// Cache is optional; when nil every call goes to the network
	Cache *cache.Manager

	// CacheTTL bounds how long a page stays cached
	CacheTTL time.Duration
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig(baseURL, userAgent string) Config {
	return Config{
		BaseURL:   baseURL,
		UserAgent: userAgent,
		Timeout:   30 * time.Second,
		RateLimit: 10,
		CacheTTL:  5 * time.Minute,
	}
}

// New creates a new API client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base url is required")
	}

	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("base url must be http or https (got %q)", cfg.BaseURL)
	}

	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}

	if cfg.Timeout <= 0 {
		return nil, fmt.Errorf("timeout must be > 0 (got %s)", cfg.Timeout)
	}

	if cfg.RateLimit < 0 {
		return nil, fmt.Errorf("rate_limit must be >= 0 (got %g)", cfg.RateLimit)
	}

	logger := logging.NewLogger("client")

	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		rateLimiter: ratelimit.NewTracker(cfg.RateLimit, logger),
		cache:       cfg.Cache,
		baseURL:     base,
		config:      cfg,
		logger:      logger,
	}, nil
}

// GetJSON fetches path with the given query and returns the decoded body.
// Numbers are decoded as json.Number so they keep the API's formatting.
// Any failure is returned as an *APIError.
func (c *Client) GetJSON(ctx context.Context, path string, query url.Values) (any, error) {
	reqURL := c.resolve(path, query)

	cacheKey := cache.CacheKey{
		BaseURL:     c.config.BaseURL,
		Endpoint:    path,
		QueryParams: query,
	}

	if c.cache != nil {
		entry, err := c.cache.Get(ctx, cacheKey)
		switch {
		case err == nil:
			body, decErr := decodeJSON(entry.Data)
			if decErr == nil {
				c.logger.Debug().
					Str("url", reqURL).
					Bool("cache_hit", true).
					Msg("Serving page from cache")
				requestsTotal.WithLabelValues(path, "cached").Inc()
				return body, nil
			}
			c.logger.Warn().Err(decErr).Str("url", reqURL).Msg("Discarding undecodable cache entry")
		case !errors.Is(err, cache.ErrCacheMiss):
			c.logger.Warn().Err(err).Str("url", reqURL).Msg("Cache get error")
		}
	}

	data, headers, err := c.get(ctx, path, reqURL)
	if err != nil {
		return nil, err
	}

	body, err := decodeJSON(data)
	if err != nil {
		errorsTotal.WithLabelValues(string(ErrorClassDecode)).Inc()
		return nil, &APIError{
			StatusCode: http.StatusOK,
			Class:      ErrorClassDecode,
			Message:    "invalid JSON body",
			URL:        reqURL,
			Err:        err,
		}
	}

	if c.cache != nil && c.config.CacheTTL > 0 {
		entry := cache.NewEntry(data, http.StatusOK, headers, c.config.CacheTTL)
		if err := c.cache.Set(ctx, cacheKey, entry); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to cache response")
		} else {
			c.logger.Debug().
				Str("url", reqURL).
				Dur("ttl", entry.TTL()).
				Msg("Cached response")
		}
	}

	return body, nil
}

// get performs one paced GET and returns the raw 200 body.
func (c *Client) get(ctx context.Context, endpoint, reqURL string) ([]byte, http.Header, error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		errorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		return nil, nil, &APIError{
			Class:   ErrorClassNetwork,
			Message: "request not sent",
			URL:     reqURL,
			Err:     err,
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("Accept", "application/json")

	c.logger.Debug().
		Str("url", reqURL).
		Msg("Executing API request")

	startTime := time.Now()
	defer func() {
		requestDuration.WithLabelValues(endpoint).Observe(time.Since(startTime).Seconds())
	}()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error().Err(err).Str("url", reqURL).Msg("HTTP request failed")
		errorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		requestsTotal.WithLabelValues(endpoint, "network_error").Inc()
		return nil, nil, &APIError{
			Class:   ErrorClassNetwork,
			Message: "request failed",
			URL:     reqURL,
			Err:     err,
		}
	}
	defer resp.Body.Close()

	if err := c.rateLimiter.UpdateFromHeaders(resp.Header); err != nil {
		c.logger.Warn().Err(err).Msg("Failed to update rate limit from headers")
	}

	requestsTotal.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()

	if class := classifyStatus(resp.StatusCode); class != "" {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		errorsTotal.WithLabelValues(string(class)).Inc()

		c.logger.Warn().
			Str("url", reqURL).
			Int("status_code", resp.StatusCode).
			Str("error_class", string(class)).
			Msg("API request error")

		msg := resp.Status
		if s := strings.TrimSpace(string(snippet)); s != "" {
			msg = resp.Status + ": " + s
		}
		return nil, nil, &APIError{
			StatusCode: resp.StatusCode,
			Class:      class,
			Message:    msg,
			URL:        reqURL,
		}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		errorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		return nil, nil, &APIError{
			StatusCode: resp.StatusCode,
			Class:      ErrorClassNetwork,
			Message:    "read body",
			URL:        reqURL,
			Err:        err,
		}
	}

	c.logger.Debug().
		Str("url", reqURL).
		Int("status_code", resp.StatusCode).
		Dur("duration", time.Since(startTime)).
		Msg("API request complete")

	return data, resp.Header, nil
}

// resolve joins the base URL, path and query.
func (c *Client) resolve(path string, query url.Values) string {
	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + "/" + strings.TrimLeft(path, "/")
	u.RawQuery = query.Encode()
	return u.String()
}

// decodeJSON decodes exactly one JSON value.
func decodeJSON(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("unexpected data after JSON value")
	}
	return v, nil
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

// RateLimiter returns the request pacing tracker.
func (c *Client) RateLimiter() *ratelimit.Tracker {
	return c.rateLimiter
}
