package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/vietddude/deliverycal/internal/calendar"
	"github.com/vietddude/deliverycal/internal/core/classify"
	"github.com/vietddude/deliverycal/internal/core/domain"
	"github.com/vietddude/deliverycal/internal/infra/cache"
	"github.com/vietddude/deliverycal/internal/infra/fetch"
	"github.com/vietddude/deliverycal/internal/metrics"
	"github.com/vietddude/deliverycal/internal/resolver"
)

// Runner resolves both upstream datasets, classifies the delivery days and
// writes the calendar.
type Runner struct {
	cfg      Config
	cache    *cache.Cache
	fetcher  *fetch.Fetcher
	postal   *resolver.PostalResolver
	calendar *resolver.CalendarResolver
	writer   *calendar.Writer
	closeFn  func() error
}

type runnerOptions struct {
	store      cache.Store
	httpClient *http.Client
	sleep      func(ctx context.Context, d time.Duration) error
	now        func() time.Time
}

// Option configures a Runner.
type Option func(*runnerOptions)

// WithStore uses store instead of opening the configured backend.
func WithStore(store cache.Store) Option {
	return func(o *runnerOptions) { o.store = store }
}

// WithHTTPClient overrides the HTTP client used for upstream requests.
func WithHTTPClient(c *http.Client) Option {
	return func(o *runnerOptions) { o.httpClient = c }
}

// WithSleeper overrides how the fetcher waits between attempts.
func WithSleeper(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(o *runnerOptions) { o.sleep = sleep }
}

// WithClock overrides the wall clock used for cache freshness.
func WithClock(now func() time.Time) Option {
	return func(o *runnerOptions) { o.now = now }
}

// NewRunner creates a Runner with all dependencies initialized.
func NewRunner(ctx context.Context, cfg Config, opts ...Option) (*Runner, error) {
	if cfg.PostalCode == "" {
		return nil, errors.New("postal code is required")
	}
	if cfg.DaysAhead < 0 {
		return nil, fmt.Errorf("days ahead must not be negative, got %d", cfg.DaysAhead)
	}

	o := runnerOptions{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	// 1. Initialize the cache store
	closeFn := func() error { return nil }
	store := o.store
	if store == nil {
		var err error
		store, closeFn, err = OpenStore(ctx, cfg)
		if err != nil {
			return nil, err
		}
	}
	c := cache.New(store, cfg.CacheTTL, cache.WithClock(o.now))

	// 2. Initialize the fetcher
	var fetchOpts []fetch.Option
	if o.httpClient != nil {
		fetchOpts = append(fetchOpts, fetch.WithHTTPClient(o.httpClient))
	}
	if o.sleep != nil {
		fetchOpts = append(fetchOpts, fetch.WithSleeper(o.sleep))
	}
	f := fetch.New(cfg.Fetch, fetchOpts...)

	return &Runner{
		cfg:      cfg,
		cache:    c,
		fetcher:  f,
		postal:   resolver.NewPostalResolver(f, c, cfg.PostalCodeURL),
		calendar: resolver.NewCalendarResolver(f, c, cfg.SortPatternsURL),
		writer:   calendar.NewWriter(cfg.Calendar),
		closeFn:  closeFn,
	}, nil
}

// Close releases the cache backend.
func (r *Runner) Close() error {
	return r.closeFn()
}

// Cache returns the cache used by the runner.
func (r *Runner) Cache() *cache.Cache {
	return r.cache
}

// Range returns the planning horizon starting at today.
func (r *Runner) Range(today domain.Date) domain.DateRange {
	return domain.NewDateRange(today, r.cfg.DaysAhead)
}

// URLs returns the fully qualified upstream request URLs for a run starting
// at today, API key included.
func (r *Runner) URLs(today domain.Date) ([]string, error) {
	reqs := []fetch.Request{
		r.postal.Request(r.cfg.PostalCode),
		r.calendar.Request(r.Range(today)),
	}
	urls := make([]string, 0, len(reqs))
	for _, req := range reqs {
		u, err := r.fetcher.URL(req)
		if err != nil {
			return nil, fmt.Errorf("build %s url: %w", req.Name, err)
		}
		urls = append(urls, u)
	}
	return urls, nil
}

// Run executes one batch for the horizon starting at today.
func (r *Runner) Run(ctx context.Context, today domain.Date) (*Result, error) {
	start := time.Now()
	runID := uuid.NewString()
	log := slog.With("run_id", runID, "postal_code", r.cfg.PostalCode)

	dr := r.Range(today)
	log.Info("Starting run", "range", dr.String(), "output", r.cfg.OutputPath)

	var (
		pattern domain.Pattern
		days    []domain.DayRecord
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		p, err := r.postal.Resolve(gctx, r.cfg.PostalCode)
		if err != nil {
			return fmt.Errorf("resolve postal pattern: %w", err)
		}
		pattern = p
		return nil
	})
	g.Go(func() error {
		d, err := r.calendar.Resolve(gctx, dr)
		if err != nil {
			return fmt.Errorf("resolve sort patterns: %w", err)
		}
		days = d
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	delivery := classify.Classify(pattern, days)
	if len(delivery) == 0 {
		log.Warn("No delivery days found",
			"pattern", pattern,
			"days", len(days),
			"day_patterns", classify.Summary(days),
		)
	}

	if err := r.writer.Write(r.cfg.OutputPath, r.cfg.PostalCode, delivery); err != nil {
		return nil, fmt.Errorf("write calendar: %w", err)
	}

	metrics.DeliveryDays.WithLabelValues(r.cfg.PostalCode, string(pattern)).Set(float64(len(delivery)))
	metrics.LastSuccessTimestamp.SetToCurrentTime()
	if err := metrics.WriteTextfile(r.cfg.MetricsTextfile); err != nil {
		log.Warn("Failed to write metrics textfile", "error", err)
	}

	res := &Result{
		RunID:         runID,
		PostalCode:    r.cfg.PostalCode,
		PostalPattern: pattern,
		Range:         dr,
		Days:          len(days),
		DeliveryDays:  delivery,
		OutputPath:    r.cfg.OutputPath,
		Duration:      time.Since(start),
	}
	log.Info("Calendar written",
		"pattern", pattern,
		"delivery_days", len(delivery),
		"path", r.cfg.OutputPath,
		"duration", res.Duration,
	)
	return res, nil
}
