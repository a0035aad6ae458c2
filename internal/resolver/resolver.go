// Package resolver obtains the two upstream datasets, preferring the cache.
//
// This package contains:
//   - PostalResolver: delivery pattern of one postal code
//   - CalendarResolver: per-day sort patterns for a date range
//   - models.go: the upstream response shapes and their validation
package resolver

import (
	"context"
	"fmt"

	"github.com/vietddude/deliverycal/internal/infra/fetch"
)

// Default upstream endpoints.
const (
	DefaultPostalCodeURL   = "https://api2.postnord.com/rest/masterdata/gim/v2/postalcode"
	DefaultSortPatternsURL = "https://api2.postnord.com/rest/system/nps/v1/ppp/expose/sortpatterns/daterange"
)

// Endpoint names used in logs, metrics and errors.
const (
	StagePostalCode   = "postalcode"
	StageSortPatterns = "sortpatterns"
)

// Fetcher performs an upstream request.
type Fetcher interface {
	Fetch(ctx context.Context, req fetch.Request) (*fetch.Payload, error)
}

// ResolutionError reports an upstream response with an unexpected shape.
// It is never retried.
type ResolutionError struct {
	Stage  string
	Reason string
	Body   string
}

func (e *ResolutionError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected %s response: %s", e.Stage, e.Reason)
	}
	return fmt.Sprintf("unexpected %s response: %s: %s", e.Stage, e.Reason, snippet(e.Body))
}

func snippet(s string) string {
	const n = 200
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
