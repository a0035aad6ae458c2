package fetch

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// RateLimitPolicy governs retries after HTTP 429.
type RateLimitPolicy struct {
	// MaxAttempts is the number of requests allowed to come back 429
	// before giving up.
	MaxAttempts int
	// DefaultWait is used when the response carries no usable Retry-After.
	DefaultWait time.Duration
}

// NetworkPolicy governs retries after transport-level failures.
type NetworkPolicy struct {
	MaxAttempts int
	Wait        time.Duration
}

// DefaultRateLimitPolicy provides the defaults used by the upstream API client.
var DefaultRateLimitPolicy = RateLimitPolicy{
	MaxAttempts: 5,
	DefaultWait: 30 * time.Second,
}

// DefaultNetworkPolicy provides sensible defaults.
var DefaultNetworkPolicy = NetworkPolicy{
	MaxAttempts: 5,
	Wait:        30 * time.Second,
}

func (p RateLimitPolicy) normalize() RateLimitPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultRateLimitPolicy.MaxAttempts
	}
	if p.DefaultWait < 0 {
		p.DefaultWait = DefaultRateLimitPolicy.DefaultWait
	}
	return p
}

func (p NetworkPolicy) normalize() NetworkPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultNetworkPolicy.MaxAttempts
	}
	if p.Wait <= 0 {
		p.Wait = DefaultNetworkPolicy.Wait
	}
	return p
}

// RetryAfter returns the wait suggested by a Retry-After header value,
// which is either delta-seconds or an HTTP date. Missing, malformed or
// negative values yield DefaultWait.
func (p RateLimitPolicy) RetryAfter(header string, now time.Time) time.Duration {
	header = strings.TrimSpace(header)
	if header == "" {
		return p.DefaultWait
	}
	if secs, err := strconv.Atoi(header); err == nil {
		if secs < 0 {
			return p.DefaultWait
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(header); err == nil {
		return max(at.Sub(now), 0)
	}
	return p.DefaultWait
}
