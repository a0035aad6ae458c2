package resolver

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/url"

	"github.com/vietddude/deliverycal/internal/core/domain"
	"github.com/vietddude/deliverycal/internal/infra/cache"
	"github.com/vietddude/deliverycal/internal/infra/fetch"
)

// CalendarResolver resolves the sort pattern of every day in a range.
type CalendarResolver struct {
	fetcher  Fetcher
	cache    *cache.Cache
	endpoint string
}

// NewCalendarResolver creates a resolver. An empty endpoint means DefaultSortPatternsURL.
func NewCalendarResolver(fetcher Fetcher, c *cache.Cache, endpoint string) *CalendarResolver {
	if endpoint == "" {
		endpoint = DefaultSortPatternsURL
	}
	return &CalendarResolver{fetcher: fetcher, cache: c, endpoint: endpoint}
}

// Request returns the upstream request for r.
func (c *CalendarResolver) Request(r domain.DateRange) fetch.Request {
	return fetch.Request{
		Name:   StageSortPatterns,
		URL:    c.endpoint,
		Params: url.Values{"fromdate": {r.From.String()}, "todate": {r.To.String()}},
	}
}

// Resolve returns the day records for r, sorted ascending by date.
func (c *CalendarResolver) Resolve(ctx context.Context, r domain.DateRange) ([]domain.DayRecord, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}

	if raw, ok := c.cache.GetRange(ctx, cache.SortPatternsKey, r); ok {
		var cached []domain.DayRecord
		err := json.Unmarshal(raw, &cached)
		if err == nil {
			days := withinRange(cached, r)
			slog.Info("Using cached sort patterns", "range", r.String(), "days", len(days))
			return days, nil
		}
		slog.Warn("Ignoring cached sort patterns", "error", err)
	}

	payload, err := c.fetcher.Fetch(ctx, c.Request(r))
	if err != nil {
		return nil, err
	}

	days, dupes, err := parseSortPatterns(payload)
	if err != nil {
		return nil, err
	}
	if dupes > 0 {
		slog.Warn("Dropped duplicate sort pattern days", "count", dupes)
	}

	if err := c.cache.PutRange(ctx, cache.SortPatternsKey, days, r); err != nil {
		slog.Warn("Failed to cache sort patterns", "error", err)
	}

	slog.Info("Fetched sort patterns", "range", r.String(), "days", len(days))
	return days, nil
}

// withinRange keeps the records dated inside r. Records whose date does not
// parse are kept for the classifier to skip.
func withinRange(days []domain.DayRecord, r domain.DateRange) []domain.DayRecord {
	out := make([]domain.DayRecord, 0, len(days))
	for _, day := range days {
		d, err := domain.ParseDate(day.Date)
		if err == nil && (d.Before(r.From) || d.After(r.To)) {
			continue
		}
		out = append(out, day)
	}
	return out
}
