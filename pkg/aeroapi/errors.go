package aeroapi

import (
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// QuotaError is returned when the account's monthly quota is exhausted
// (HTTP 402). Unlike a rate limit, this won't clear on its own any time
// soon; callers should suspend supplemental fetching entirely.
type QuotaError struct {
	Message string
}

func (e *QuotaError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("aeroapi: quota exhausted: %s", e.Message)
	}
	return "aeroapi: quota exhausted"
}

// RateLimitError is returned when the API responds with HTTP 429.
type RateLimitError struct {
	StatusCode int
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("aeroapi: rate limited (HTTP %d), retry after %s", e.StatusCode, e.RetryAfter)
	}
	return fmt.Sprintf("aeroapi: rate limited (HTTP %d)", e.StatusCode)
}

// AuthError is returned on HTTP 401/403. The key is wrong or revoked.
type AuthError struct {
	StatusCode int
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("aeroapi: authentication failed (HTTP %d)", e.StatusCode)
}

// parseRetryAfter reads a delta-seconds Retry-After header.
func parseRetryAfter(h http.Header) time.Duration {
	v := h.Get("Retry-After")
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	return 0
}
