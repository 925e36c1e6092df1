package ratelimit

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Prometheus metrics for rate limit tracking.
var (
	rateLimitRemaining = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ingest_rate_limit_remaining",
		Help: "Requests remaining in the current API rate limit window",
	})

	rateLimitWaitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ingest_rate_limit_waits_total",
		Help: "Total number of requests delayed by rate limiting",
	}, []string{"reason"}) // "pacing", "quota"

	rateLimitWaitSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ingest_rate_limit_wait_seconds",
		Help:    "Time spent waiting for the API quota to reset",
		Buckets: []float64{0.1, 0.5, 1, 5, 15, 60},
	})
)

// MaxQuotaWait caps how long Wait blocks for a quota reset.
const MaxQuotaWait = 2 * time.Minute

// Tracker paces requests and honors the quota reported by the API.
type Tracker struct {
	limiter *rate.Limiter
	logger  zerolog.Logger

	mu    sync.Mutex
	state RateLimitState
}

// NewTracker creates a tracker allowing requestsPerSecond requests.
// A value <= 0 disables client-side pacing; header quota is still honored.
func NewTracker(requestsPerSecond float64, logger zerolog.Logger) *Tracker {
	var limiter *rate.Limiter
	if requestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), 1)
	}
	return &Tracker{
		limiter: limiter,
		logger:  logger,
	}
}

// State returns a copy of the last observed quota state.
func (t *Tracker) State() RateLimitState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Wait blocks until the next request may be sent or ctx is done.
func (t *Tracker) Wait(ctx context.Context) error {
	state := t.State()
	if state.NeedsBlock() {
		wait := state.TimeUntilReset()
		if wait > MaxQuotaWait {
			wait = MaxQuotaWait
		}

		t.logger.Warn().
			Int("remaining", state.Remaining).
			Dur("wait_duration", wait).
			Msg("API quota exhausted - waiting for reset")

		rateLimitWaitsTotal.WithLabelValues("quota").Inc()
		rateLimitWaitSeconds.Observe(wait.Seconds())

		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return fmt.Errorf("wait for quota reset: %w", ctx.Err())
		case <-timer.C:
		}
	}

	if t.limiter == nil {
		return nil
	}

	if t.limiter.Tokens() < 1 {
		rateLimitWaitsTotal.WithLabelValues("pacing").Inc()
	}
	if err := t.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}
	return nil
}

// UpdateFromHeaders records the quota advertised by a response.
// Responses without rate limit headers leave the state unchanged.
func (t *Tracker) UpdateFromHeaders(headers http.Header) error {
	now := time.Now()

	remainStr := headers.Get(HeaderRemaining)
	retryAfterStr := headers.Get(HeaderRetryAfter)
	if remainStr == "" && retryAfterStr == "" {
		return nil
	}

	state := RateLimitState{
		Known:      true,
		LastUpdate: now,
	}

	if remainStr != "" {
		remain, err := strconv.Atoi(remainStr)
		if err != nil {
			return fmt.Errorf("parse %s header: %w", HeaderRemaining, err)
		}
		state.Remaining = remain
	}

	if limitStr := headers.Get(HeaderLimit); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil {
			state.Limit = limit
		}
	}

	if resetStr := headers.Get(HeaderReset); resetStr != "" {
		resetAt, err := parseReset(resetStr, now)
		if err != nil {
			return fmt.Errorf("parse %s header: %w", HeaderReset, err)
		}
		state.ResetAt = resetAt
	}

	// Retry-After means the budget is spent until the given time.
	if retryAfterStr != "" {
		retryAt, err := parseRetryAfter(retryAfterStr, now)
		if err != nil {
			return fmt.Errorf("parse %s header: %w", HeaderRetryAfter, err)
		}
		state.Remaining = 0
		if retryAt.After(state.ResetAt) {
			state.ResetAt = retryAt
		}
	}

	t.mu.Lock()
	t.state = state
	t.mu.Unlock()

	rateLimitRemaining.Set(float64(state.Remaining))

	switch {
	case state.NeedsBlock():
		t.logger.Warn().
			Int("remaining", state.Remaining).
			Time("reset_at", state.ResetAt).
			Msg("API rate limit exhausted - next request will wait")
	case state.NeedsWarning():
		t.logger.Warn().
			Int("remaining", state.Remaining).
			Time("reset_at", state.ResetAt).
			Msg("API rate limit low")
	default:
		t.logger.Debug().
			Int("remaining", state.Remaining).
			Time("reset_at", state.ResetAt).
			Msg("API rate limit state updated")
	}

	return nil
}

// parseReset accepts either seconds until reset or a Unix timestamp.
func parseReset(v string, now time.Time) (time.Time, error) {
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	// Values this large can only be epoch seconds.
	if n > 1_000_000_000 {
		return time.Unix(n, 0), nil
	}
	return now.Add(time.Duration(n) * time.Second), nil
}

// parseRetryAfter accepts delay-seconds or an HTTP date.
func parseRetryAfter(v string, now time.Time) (time.Time, error) {
	if secs, err := strconv.Atoi(v); err == nil {
		return now.Add(time.Duration(secs) * time.Second), nil
	}
	return http.ParseTime(v)
}
