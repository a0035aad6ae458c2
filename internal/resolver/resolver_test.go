package resolver

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/vietddude/deliverycal/internal/core/domain"
	"github.com/vietddude/deliverycal/internal/infra/cache"
	"github.com/vietddude/deliverycal/internal/infra/fetch"
)

// mockFetcher returns canned payloads and records requests.
type mockFetcher struct {
	payload  *fetch.Payload
	err      error
	requests []fetch.Request
}

func (m *mockFetcher) Fetch(ctx context.Context, req fetch.Request) (*fetch.Payload, error) {
	m.requests = append(m.requests, req)
	if m.err != nil {
		return nil, m.err
	}
	return m.payload, nil
}

func jsonPayload(s string) *fetch.Payload {
	return &fetch.Payload{JSON: json.RawMessage(s)}
}

// readOnlyStore accepts reads but refuses writes.
type readOnlyStore struct {
	*cache.MemoryStore
}

func (s readOnlyStore) Put(ctx context.Context, key string, e cache.Entry) error {
	return errors.New("read-only")
}

func newCache() *cache.Cache {
	return cache.New(cache.NewMemoryStore(), time.Hour)
}

func TestPostalResolver_FetchesThenCaches(t *testing.T) {
	ctx := context.Background()
	f := &mockFetcher{payload: jsonPayload(`{"data":[{"postalCode":"56632","patternName":"X","city":"HABO"}]}`)}
	r := NewPostalResolver(f, newCache(), "https://example.com/postalcode")

	for i := 0; i < 2; i++ {
		p, err := r.Resolve(ctx, "56632")
		if err != nil {
			t.Fatalf("Resolve #%d: %v", i, err)
		}
		if p != domain.PatternX {
			t.Errorf("expected X, got %q", p)
		}
	}

	if len(f.requests) != 1 {
		t.Fatalf("expected one upstream call, got %d", len(f.requests))
	}
	req := f.requests[0]
	if req.Name != StagePostalCode || req.URL != "https://example.com/postalcode" {
		t.Errorf("unexpected request %+v", req)
	}
	if got := req.Params.Get("ids"); got != "postalcode:56632" {
		t.Errorf("expected ids=postalcode:56632, got %q", got)
	}
}

func TestPostalResolver_CachesFirstRecord(t *testing.T) {
	ctx := context.Background()
	store := cache.NewMemoryStore()
	f := &mockFetcher{payload: jsonPayload(`{"data":[{"patternName":"S","city":"HABO"},{"patternName":"X"}]}`)}
	r := NewPostalResolver(f, cache.New(store, time.Hour), "")

	if _, err := r.Resolve(ctx, "56632"); err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	e, err := store.Get(ctx, cache.PostalCodeKey("56632"))
	if err != nil {
		t.Fatalf("expected cache entry: %v", err)
	}
	var rec map[string]string
	if err := json.Unmarshal(e.Payload, &rec); err != nil {
		t.Fatalf("cached payload: %v", err)
	}
	if rec["patternName"] != "S" || rec["city"] != "HABO" {
		t.Errorf("expected first record to be cached whole, got %v", rec)
	}
}

func TestPostalResolver_ShapeErrors(t *testing.T) {
	tests := []struct {
		name    string
		payload *fetch.Payload
	}{
		{"raw text", &fetch.Payload{Raw: "<html>error</html>"}},
		{"list envelope", jsonPayload(`[{"patternName":"X"}]`)},
		{"missing data", jsonPayload(`{"items":[{"patternName":"X"}]}`)},
		{"null data", jsonPayload(`{"data":null}`)},
		{"empty data", jsonPayload(`{"data":[]}`)},
		{"missing pattern", jsonPayload(`{"data":[{"postalCode":"56632"}]}`)},
		{"record not object", jsonPayload(`{"data":["X"]}`)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := cache.NewMemoryStore()
			r := NewPostalResolver(&mockFetcher{payload: tt.payload}, cache.New(store, time.Hour), "")

			_, err := r.Resolve(context.Background(), "56632")
			var re *ResolutionError
			if !errors.As(err, &re) {
				t.Fatalf("expected ResolutionError, got %v", err)
			}
			if re.Stage != StagePostalCode {
				t.Errorf("unexpected stage %q", re.Stage)
			}
			if _, err := store.Get(context.Background(), cache.PostalCodeKey("56632")); !errors.Is(err, cache.ErrNotFound) {
				t.Error("invalid response must not be cached")
			}
		})
	}
}

func TestPostalResolver_FetchErrorPropagates(t *testing.T) {
	fe := &fetch.FetchError{Endpoint: StagePostalCode, StatusCode: 500}
	r := NewPostalResolver(&mockFetcher{err: fe}, newCache(), "")

	_, err := r.Resolve(context.Background(), "56632")
	var got *fetch.FetchError
	if !errors.As(err, &got) || got != fe {
		t.Errorf("expected the FetchError to propagate, got %v", err)
	}
}

func TestPostalResolver_StaleOrInvalidCacheRefetches(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 6, 3, 8, 0, 0, 0, time.UTC)
	store := cache.NewMemoryStore()
	c := cache.New(store, 24*time.Hour, cache.WithClock(func() time.Time { return now }))
	key := cache.PostalCodeKey("56632")

	_ = store.Put(ctx, key, cache.Entry{Payload: json.RawMessage(`{"patternName":"Y"}`), CachedAt: now.Add(-25 * time.Hour)})
	f := &mockFetcher{payload: jsonPayload(`{"data":[{"patternName":"X"}]}`)}
	r := NewPostalResolver(f, c, "")

	if p, err := r.Resolve(ctx, "56632"); err != nil || p != domain.PatternX {
		t.Fatalf("expected refetched X, got %q, %v", p, err)
	}

	_ = store.Put(ctx, key, cache.Entry{Payload: json.RawMessage(`{"city":"HABO"}`), CachedAt: now})
	if p, err := r.Resolve(ctx, "56632"); err != nil || p != domain.PatternX {
		t.Fatalf("expected refetched X, got %q, %v", p, err)
	}
	if len(f.requests) != 2 {
		t.Errorf("expected 2 upstream calls, got %d", len(f.requests))
	}
}

func TestPostalResolver_CacheWriteFailureIsNotFatal(t *testing.T) {
	c := cache.New(readOnlyStore{cache.NewMemoryStore()}, time.Hour)
	r := NewPostalResolver(&mockFetcher{payload: jsonPayload(`{"data":[{"patternName":"Y"}]}`)}, c, "")

	if p, err := r.Resolve(context.Background(), "56632"); err != nil || p != domain.PatternY {
		t.Errorf("expected Y despite cache write failure, got %q, %v", p, err)
	}
}

func TestPostalResolver_RequiresPostalCode(t *testing.T) {
	r := NewPostalResolver(&mockFetcher{}, newCache(), "")
	if _, err := r.Resolve(context.Background(), ""); err == nil {
		t.Error("expected error for empty postal code")
	}
}

func dateRange(from, to string) domain.DateRange {
	return domain.DateRange{From: domain.MustParseDate(from), To: domain.MustParseDate(to)}
}

func TestCalendarResolver_SortsAndCaches(t *testing.T) {
	ctx := context.Background()
	store := cache.NewMemoryStore()
	f := &mockFetcher{payload: jsonPayload(`[
		{"plannedDate":"2024-06-05","patternName":"Y"},
		{"plannedDate":"2024-06-03","patternName":"H"},
		{"plannedDate":"2024-06-04","patternName":"X"},
		{"plannedDate":"2024-06-04","patternName":"Y"}
	]`)}
	r := NewCalendarResolver(f, cache.New(store, time.Hour), "https://example.com/daterange")
	want := dateRange("2024-06-03", "2024-06-05")

	days, err := r.Resolve(ctx, want)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	expected := []domain.DayRecord{
		{Date: "2024-06-03", Pattern: domain.PatternHoliday},
		{Date: "2024-06-04", Pattern: domain.PatternX},
		{Date: "2024-06-05", Pattern: domain.PatternY},
	}
	if !reflect.DeepEqual(days, expected) {
		t.Errorf("got %v, want %v", days, expected)
	}

	req := f.requests[0]
	if req.Params.Get("fromdate") != "2024-06-03" || req.Params.Get("todate") != "2024-06-05" {
		t.Errorf("unexpected params %v", req.Params)
	}

	e, err := store.Get(ctx, cache.SortPatternsKey)
	if err != nil {
		t.Fatalf("expected cache entry: %v", err)
	}
	if e.Range == nil || *e.Range != want {
		t.Errorf("expected cached range %s, got %v", want, e.Range)
	}
}

func TestCalendarResolver_CoverageDecidesCacheUse(t *testing.T) {
	ctx := context.Background()
	f := &mockFetcher{payload: jsonPayload(`[
		{"plannedDate":"2024-01-01","patternName":"H"},
		{"plannedDate":"2024-01-02","patternName":"X"},
		{"plannedDate":"2024-01-03","patternName":"Y"},
		{"plannedDate":"2024-01-04","patternName":"X"}
	]`)}
	r := NewCalendarResolver(f, newCache(), "")

	if _, err := r.Resolve(ctx, dateRange("2024-01-01", "2024-01-04")); err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	days, err := r.Resolve(ctx, dateRange("2024-01-02", "2024-01-03"))
	if err != nil {
		t.Fatalf("Resolve (covered): %v", err)
	}
	if len(f.requests) != 1 {
		t.Errorf("covered range should be served from cache, got %d calls", len(f.requests))
	}
	if len(days) != 2 || days[0].Date != "2024-01-02" || days[1].Date != "2024-01-03" {
		t.Errorf("expected cached days filtered to the request, got %v", days)
	}

	if _, err := r.Resolve(ctx, dateRange("2023-12-01", "2024-01-03")); err != nil {
		t.Fatalf("Resolve (uncovered): %v", err)
	}
	if len(f.requests) != 2 {
		t.Errorf("uncovered range should refetch, got %d calls", len(f.requests))
	}
	if got := f.requests[1].Params.Get("fromdate"); got != "2023-12-01" {
		t.Errorf("expected refetch from 2023-12-01, got %q", got)
	}
}

func TestCalendarResolver_KeepsMalformedRecords(t *testing.T) {
	f := &mockFetcher{payload: jsonPayload(`[
		{"plannedDate":"2024-06-04","patternName":"X"},
		{"plannedDate":"2024-06-05"}
	]`)}
	r := NewCalendarResolver(f, newCache(), "")

	days, err := r.Resolve(context.Background(), dateRange("2024-06-04", "2024-06-05"))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(days) != 2 {
		t.Errorf("expected malformed record to be passed through, got %v", days)
	}
}

func TestCalendarResolver_WrongFieldTypesAreBlanked(t *testing.T) {
	f := &mockFetcher{payload: jsonPayload(`[
		{"plannedDate":"2024-06-04","patternName":"X"},
		{"plannedDate":20240605,"patternName":"Y"},
		{"plannedDate":"2024-06-06","patternName":["X"]},
		{"plannedDate":null,"patternName":"X"}
	]`)}
	r := NewCalendarResolver(f, newCache(), "")

	days, err := r.Resolve(context.Background(), dateRange("2024-06-04", "2024-06-06"))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(days) != 4 {
		t.Fatalf("expected all 4 records, got %v", days)
	}

	valid := 0
	for _, d := range days {
		if d.Valid() {
			valid++
			if d.Date != "2024-06-04" || d.Pattern != domain.PatternX {
				t.Errorf("unexpected valid record %+v", d)
			}
		}
	}
	if valid != 1 {
		t.Errorf("expected 1 valid record, got %d in %v", valid, days)
	}
}

func TestCalendarResolver_NoValidRecordAmongWrongTypes(t *testing.T) {
	f := &mockFetcher{payload: jsonPayload(`[{"plannedDate":20240605,"patternName":"Y"}]`)}
	r := NewCalendarResolver(f, newCache(), "")

	_, err := r.Resolve(context.Background(), dateRange("2024-06-04", "2024-06-06"))
	var re *ResolutionError
	if !errors.As(err, &re) {
		t.Fatalf("expected ResolutionError, got %v", err)
	}
}

func TestCalendarResolver_EmptyListIsValid(t *testing.T) {
	r := NewCalendarResolver(&mockFetcher{payload: jsonPayload(`[]`)}, newCache(), "")

	days, err := r.Resolve(context.Background(), dateRange("2024-06-04", "2024-06-05"))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(days) != 0 {
		t.Errorf("expected no days, got %v", days)
	}
}

func TestCalendarResolver_ShapeErrors(t *testing.T) {
	tests := []struct {
		name    string
		payload *fetch.Payload
	}{
		{"raw text", &fetch.Payload{Raw: "Service Unavailable"}},
		{"object", jsonPayload(`{"data":[]}`)},
		{"null", jsonPayload(`null`)},
		{"list of strings", jsonPayload(`["2024-06-04"]`)},
		{"no usable record", jsonPayload(`[{"date":"2024-06-04","pattern":"X"}]`)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := cache.NewMemoryStore()
			r := NewCalendarResolver(&mockFetcher{payload: tt.payload}, cache.New(store, time.Hour), "")

			_, err := r.Resolve(context.Background(), dateRange("2024-06-04", "2024-06-05"))
			var re *ResolutionError
			if !errors.As(err, &re) {
				t.Fatalf("expected ResolutionError, got %v", err)
			}
			if re.Stage != StageSortPatterns {
				t.Errorf("unexpected stage %q", re.Stage)
			}
			if _, err := store.Get(context.Background(), cache.SortPatternsKey); !errors.Is(err, cache.ErrNotFound) {
				t.Error("invalid response must not be cached")
			}
		})
	}
}

func TestCalendarResolver_RejectsInvertedRange(t *testing.T) {
	f := &mockFetcher{}
	r := NewCalendarResolver(f, newCache(), "")
	if _, err := r.Resolve(context.Background(), dateRange("2024-06-05", "2024-06-04")); err == nil {
		t.Error("expected error for inverted range")
	}
	if len(f.requests) != 0 {
		t.Error("inverted range must not reach upstream")
	}
}

func TestNormalizeDays(t *testing.T) {
	in := []domain.DayRecord{
		{Date: "2024-06-06", Pattern: "X"},
		{Date: "2024-06-04", Pattern: "Y"},
		{Date: "2024-06-06", Pattern: "H"},
		{Date: "2024-06-04", Pattern: "X"},
		{Date: "2024-06-05", Pattern: "X"},
	}
	got, dupes := normalizeDays(in)
	want := []domain.DayRecord{
		{Date: "2024-06-04", Pattern: "Y"},
		{Date: "2024-06-05", Pattern: "X"},
		{Date: "2024-06-06", Pattern: "X"},
	}
	if !reflect.DeepEqual(got, want) || dupes != 2 {
		t.Errorf("normalizeDays = %v (%d dupes), want %v (2 dupes)", got, dupes, want)
	}
	if in[0].Date != "2024-06-06" {
		t.Error("normalizeDays must not reorder its input")
	}
}
