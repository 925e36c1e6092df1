// Package ratelimit paces outgoing API requests. It combines a client-side
// token bucket with the quota the API reports through the X-RateLimit-Remaining,
// X-RateLimit-Reset and Retry-After response headers.
package ratelimit

import (
	"time"
)

// Response headers read by the tracker.
const (
	HeaderRemaining  = "X-RateLimit-Remaining"
	HeaderLimit      = "X-RateLimit-Limit"
	HeaderReset      = "X-RateLimit-Reset"
	HeaderRetryAfter = "Retry-After"
)

// Thresholds for rate limit decisions.
const (
	// RemainingThresholdBlock pauses requests until the quota resets when the
	// remaining budget falls to this value.
	RemainingThresholdBlock = 0

	// RemainingThresholdWarning logs a warning when the remaining budget falls
	// below this value.
	RemainingThresholdWarning = 5
)

// RateLimitState is the most recent quota reported by the API.
type RateLimitState struct {
	// Known is false until a response carrying rate limit headers is observed.
	Known bool

	// Remaining is the number of requests left in the current window.
	Remaining int

	// Limit is the window size, 0 when the API does not report it.
	Limit int

	// ResetAt is when the window resets.
	ResetAt time.Time

	// LastUpdate is when this state was last updated.
	LastUpdate time.Time
}

// IsStale returns true if the state data is older than the given duration.
func (s *RateLimitState) IsStale(maxAge time.Duration) bool {
	return time.Since(s.LastUpdate) > maxAge
}

// NeedsBlock returns true if requests must wait for the window to reset.
func (s *RateLimitState) NeedsBlock() bool {
	return s.Known && s.Remaining <= RemainingThresholdBlock && s.TimeUntilReset() > 0
}

// NeedsWarning returns true if the remaining budget is low but not exhausted.
func (s *RateLimitState) NeedsWarning() bool {
	return s.Known && s.Remaining < RemainingThresholdWarning && s.Remaining > RemainingThresholdBlock
}

// TimeUntilReset returns the duration until the window resets.
// Returns 0 if the reset time has already passed.
func (s *RateLimitState) TimeUntilReset() time.Duration {
	duration := time.Until(s.ResetAt)
	if duration < 0 {
		return 0
	}
	return duration
}
