package config

import (
	"time"

	"github.com/vietddude/deliverycal/internal/infra/cache"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	PostalCode string               `yaml:"postal_code"`
	DaysAhead  int                  `yaml:"days_ahead"`
	API        APIConfig            `yaml:"api"`
	Retry      RetryConfig          `yaml:"retry"`
	Cache      CacheConfig          `yaml:"cache"`
	Redis      cache.RedisConfig    `yaml:"redis"`
	Database   cache.PostgresConfig `yaml:"database"`
	Output     OutputConfig         `yaml:"output"`
	Logging    LoggingConfig        `yaml:"logging"`
	Metrics    MetricsConfig        `yaml:"metrics"`
}

// APIConfig holds upstream endpoint settings.
type APIConfig struct {
	Key             string        `yaml:"key"`
	PostalCodeURL   string        `yaml:"postal_code_url"`
	SortPatternsURL string        `yaml:"sort_patterns_url"`
	UserAgent       string        `yaml:"user_agent"`
	Timeout         time.Duration `yaml:"timeout"`
}

// RetryConfig holds the two retry budgets of the fetcher.
type RetryConfig struct {
	MaxAttempts     int           `yaml:"max_attempts"` // rate-limit (429) budget
	DefaultWait     time.Duration `yaml:"default_wait"` // when Retry-After is absent
	NetworkAttempts int           `yaml:"network_attempts"`
	NetworkWait     time.Duration `yaml:"network_wait"`
}

// CacheConfig selects and tunes the cache backend.
type CacheConfig struct {
	Backend   string        `yaml:"backend"` // file, memory, redis, postgres
	Dir       string        `yaml:"dir"`
	TTL       time.Duration `yaml:"ttl"`
	Retention time.Duration `yaml:"retention"` // redis key expiry / postgres pruning, 0 = keep
}

// OutputConfig holds calendar output settings.
type OutputConfig struct {
	Path      string `yaml:"path"`
	Summary   string `yaml:"summary"`
	ProductID string `yaml:"product_id"`
	Name      string `yaml:"name"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// MetricsConfig holds metrics export settings.
type MetricsConfig struct {
	Textfile string `yaml:"textfile"` // node_exporter textfile path, empty = disabled
}

// Cache backends
const (
	BackendFile     = "file"
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)
