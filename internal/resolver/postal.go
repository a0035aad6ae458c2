package resolver

import (
	"context"
	"errors"
	"log/slog"
	"net/url"

	"github.com/vietddude/deliverycal/internal/core/domain"
	"github.com/vietddude/deliverycal/internal/infra/cache"
	"github.com/vietddude/deliverycal/internal/infra/fetch"
)

// PostalResolver resolves the delivery pattern of a postal code.
type PostalResolver struct {
	fetcher  Fetcher
	cache    *cache.Cache
	endpoint string
}

// NewPostalResolver creates a resolver. An empty endpoint means DefaultPostalCodeURL.
func NewPostalResolver(fetcher Fetcher, c *cache.Cache, endpoint string) *PostalResolver {
	if endpoint == "" {
		endpoint = DefaultPostalCodeURL
	}
	return &PostalResolver{fetcher: fetcher, cache: c, endpoint: endpoint}
}

// Request returns the upstream request for postalCode.
func (r *PostalResolver) Request(postalCode string) fetch.Request {
	return fetch.Request{
		Name:   StagePostalCode,
		URL:    r.endpoint,
		Params: url.Values{"ids": {"postalcode:" + postalCode}},
	}
}

// Resolve returns the pattern for postalCode.
func (r *PostalResolver) Resolve(ctx context.Context, postalCode string) (domain.Pattern, error) {
	if postalCode == "" {
		return "", errors.New("postal code is required")
	}
	key := cache.PostalCodeKey(postalCode)

	if raw, ok := r.cache.Get(ctx, key); ok {
		rec, err := decodePostalCodeRecord(raw)
		if err == nil {
			slog.Info("Resolved postal pattern", "postal_code", postalCode, "pattern", rec.PatternName, "source", "cache")
			return rec.PatternName, nil
		}
		slog.Warn("Ignoring cached postal code record", "postal_code", postalCode, "error", err)
	}

	payload, err := r.fetcher.Fetch(ctx, r.Request(postalCode))
	if err != nil {
		return "", err
	}

	rec, raw, err := parsePostalCode(payload)
	if err != nil {
		return "", err
	}

	if err := r.cache.Put(ctx, key, raw); err != nil {
		slog.Warn("Failed to cache postal code record", "postal_code", postalCode, "error", err)
	}

	slog.Info("Resolved postal pattern", "postal_code", postalCode, "pattern", rec.PatternName, "source", "api")
	return rec.PatternName, nil
}
