package fetch

import (
	"fmt"
	"net/http"
)

// FetchError reports an upstream request that could not be completed:
// a non-success HTTP status, an exhausted rate-limit budget, or network
// failures that outlived the retry budget.
type FetchError struct {
	Endpoint   string
	StatusCode int // 0 for network-level failures
	Body       string
	Attempts   int
	Err        error
}

func (e *FetchError) Error() string {
	switch {
	case e.StatusCode == http.StatusTooManyRequests:
		return fmt.Sprintf("fetch %s: rate limited after %d attempts", e.Endpoint, e.Attempts)
	case e.StatusCode != 0:
		return fmt.Sprintf("fetch %s: http %d: %s", e.Endpoint, e.StatusCode, truncate(e.Body, 512))
	default:
		return fmt.Sprintf("fetch %s: failed after %d attempts: %v", e.Endpoint, e.Attempts, e.Err)
	}
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// RateLimited reports whether the request failed because the rate-limit budget ran out.
func (e *FetchError) RateLimited() bool {
	return e.StatusCode == http.StatusTooManyRequests
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
