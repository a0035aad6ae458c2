// Package control wires the configured components together and runs one
// delivery-calendar batch.
package control

import (
	"time"

	"github.com/vietddude/deliverycal/internal/calendar"
	"github.com/vietddude/deliverycal/internal/core/domain"
	"github.com/vietddude/deliverycal/internal/infra/cache"
	"github.com/vietddude/deliverycal/internal/infra/fetch"
)

// Config holds the application configuration.
type Config struct {
	PostalCode string
	DaysAhead  int

	Fetch           fetch.Config
	PostalCodeURL   string
	SortPatternsURL string

	CacheBackend   string
	CacheDir       string
	CacheTTL       time.Duration
	CacheRetention time.Duration
	Redis          cache.RedisConfig
	Database       cache.PostgresConfig

	Calendar   calendar.Config
	OutputPath string

	MetricsTextfile string
}

// Result describes a completed run.
type Result struct {
	RunID         string
	PostalCode    string
	PostalPattern domain.Pattern
	Range         domain.DateRange
	Days          int
	DeliveryDays  []domain.Date
	OutputPath    string
	Duration      time.Duration
}
