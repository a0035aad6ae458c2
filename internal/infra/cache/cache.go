package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/vietddude/deliverycal/internal/core/domain"
	"github.com/vietddude/deliverycal/internal/metrics"
)

// DefaultTTL is the maximum age of a usable entry.
const DefaultTTL = 24 * time.Hour

// Cache applies freshness and range-coverage rules on top of a Store.
// Read failures of any kind are reported as misses.
type Cache struct {
	store Store
	ttl   time.Duration
	now   func() time.Time
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		c.now = now
	}
}

// New creates a Cache over store. A non-positive ttl means DefaultTTL.
func New(store Store, ttl time.Duration, opts ...Option) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c := &Cache{
		store: store,
		ttl:   ttl,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// TTL returns the configured time-to-live.
func (c *Cache) TTL() time.Duration {
	return c.ttl
}

// Fresh reports whether an entry is still within the TTL. An entry stamped
// in the future is stale.
func (c *Cache) Fresh(e *Entry) bool {
	age := c.now().Sub(e.CachedAt)
	return age >= 0 && age <= c.ttl
}

// Get returns the payload for key if a fresh entry exists.
func (c *Cache) Get(ctx context.Context, key string) (json.RawMessage, bool) {
	e, ok := c.lookup(ctx, key)
	if !ok {
		return nil, false
	}
	c.record(key, "hit")
	return e.Payload, true
}

// GetRange returns the payload for key if a fresh entry exists whose range
// covers want.
func (c *Cache) GetRange(ctx context.Context, key string, want domain.DateRange) (json.RawMessage, bool) {
	e, ok := c.lookup(ctx, key)
	if !ok {
		return nil, false
	}
	if e.Range == nil || !e.Range.Covers(want) {
		c.record(key, "uncovered")
		slog.Debug("Cache entry does not cover requested range",
			"key", key, "cached", rangeString(e.Range), "requested", want.String())
		return nil, false
	}
	c.record(key, "hit")
	return e.Payload, true
}

// Put stores payload under key, stamped with the current time.
func (c *Cache) Put(ctx context.Context, key string, payload any) error {
	return c.put(ctx, key, payload, nil)
}

// PutRange stores payload under key together with the range it covers.
func (c *Cache) PutRange(ctx context.Context, key string, payload any, r domain.DateRange) error {
	return c.put(ctx, key, payload, &r)
}

// Delete removes the entry for key.
func (c *Cache) Delete(ctx context.Context, key string) error {
	if err := c.store.Delete(ctx, key); err != nil {
		return fmt.Errorf("delete cache entry %s: %w", key, err)
	}
	return nil
}

// Inspect returns the raw entry for key regardless of freshness.
func (c *Cache) Inspect(ctx context.Context, key string) (*Entry, error) {
	return c.store.Get(ctx, key)
}

func (c *Cache) lookup(ctx context.Context, key string) (*Entry, bool) {
	e, err := c.store.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		c.record(key, "miss")
		return nil, false
	}
	if err == nil {
		err = e.validate()
	}
	if err != nil {
		c.record(key, "error")
		slog.Warn("Ignoring unreadable cache entry", "key", key, "error", err)
		return nil, false
	}
	if !c.Fresh(e) {
		c.record(key, "stale")
		slog.Debug("Cache entry is stale", "key", key, "cached_at", e.CachedAt, "ttl", c.ttl)
		return nil, false
	}
	return e, true
}

func (c *Cache) put(ctx context.Context, key string, payload any, r *domain.DateRange) error {
	data, err := json.Marshal(payload)
	if err != nil {
		metrics.CacheWriteErrorsTotal.WithLabelValues(kindOf(key)).Inc()
		return fmt.Errorf("%w: encode %s: %v", ErrWrite, key, err)
	}

	e := Entry{Payload: data, CachedAt: c.now(), Range: r}
	if err := c.store.Put(ctx, key, e); err != nil {
		metrics.CacheWriteErrorsTotal.WithLabelValues(kindOf(key)).Inc()
		return fmt.Errorf("%w: %s: %v", ErrWrite, key, err)
	}
	return nil
}

func (c *Cache) record(key, result string) {
	metrics.CacheLookupsTotal.WithLabelValues(kindOf(key), result).Inc()
}

func rangeString(r *domain.DateRange) string {
	if r == nil {
		return "none"
	}
	return r.String()
}
