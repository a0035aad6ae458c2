package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/vietddude/deliverycal/internal/infra/cache"
	"github.com/vietddude/deliverycal/internal/infra/fetch"
	"github.com/vietddude/deliverycal/internal/resolver"
)

// EnvAPIKey is consulted when the config file carries no API key.
const EnvAPIKey = "POSTNORD_API_KEY"

const defaultUserAgent = "PostutdelningKalender/1.0 (+github.com/vietddude/deliverycal)"

// Load reads configuration from a YAML file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML configuration, expanding environment variables and
// filling in defaults.
func Parse(data []byte) (*AppConfig, error) {
	var cfg AppConfig
	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyDefaults()
	return &cfg, nil
}

// Default returns a configuration with every default applied.
func Default() *AppConfig {
	var cfg AppConfig
	cfg.applyDefaults()
	return &cfg
}

func (c *AppConfig) applyDefaults() {
	if c.DaysAhead == 0 {
		c.DaysAhead = 90
	}

	if c.API.Key == "" {
		c.API.Key = os.Getenv(EnvAPIKey)
	}
	if c.API.PostalCodeURL == "" {
		c.API.PostalCodeURL = resolver.DefaultPostalCodeURL
	}
	if c.API.SortPatternsURL == "" {
		c.API.SortPatternsURL = resolver.DefaultSortPatternsURL
	}
	if c.API.UserAgent == "" {
		c.API.UserAgent = defaultUserAgent
	}
	if c.API.Timeout == 0 {
		c.API.Timeout = 30 * time.Second
	}

	if c.Retry.MaxAttempts == 0 {
		c.Retry.MaxAttempts = fetch.DefaultRateLimitPolicy.MaxAttempts
	}
	if c.Retry.DefaultWait == 0 {
		c.Retry.DefaultWait = fetch.DefaultRateLimitPolicy.DefaultWait
	}
	if c.Retry.NetworkAttempts == 0 {
		c.Retry.NetworkAttempts = c.Retry.MaxAttempts
	}
	if c.Retry.NetworkWait == 0 {
		c.Retry.NetworkWait = c.Retry.DefaultWait
	}

	if c.Cache.Backend == "" {
		c.Cache.Backend = BackendFile
	}
	if c.Cache.Dir == "" {
		c.Cache.Dir = "cache"
	}
	if c.Cache.TTL == 0 {
		c.Cache.TTL = cache.DefaultTTL
	}

	if c.Output.Path == "" {
		c.Output.Path = "docs/postutdelning.ics"
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

// Validate checks the settings needed for a run.
func (c *AppConfig) Validate() error {
	var errs []error
	if c.PostalCode == "" {
		errs = append(errs, errors.New("postal_code is required"))
	}
	if c.API.Key == "" {
		errs = append(errs, fmt.Errorf("api.key is required (or set %s)", EnvAPIKey))
	}
	if c.DaysAhead < 0 {
		errs = append(errs, fmt.Errorf("days_ahead must not be negative, got %d", c.DaysAhead))
	}
	if c.Cache.TTL < 0 {
		errs = append(errs, fmt.Errorf("cache.ttl must be positive, got %s", c.Cache.TTL))
	}
	if c.Retry.MaxAttempts < 1 || c.Retry.NetworkAttempts < 1 {
		errs = append(errs, errors.New("retry attempts must be at least 1"))
	}
	if c.Retry.DefaultWait < 0 || c.Retry.NetworkWait <= 0 {
		errs = append(errs, errors.New("retry waits must be positive"))
	}

	switch c.Cache.Backend {
	case BackendFile, BackendMemory:
	case BackendRedis:
		if c.Redis.URL == "" {
			errs = append(errs, errors.New("redis.url is required for the redis cache backend"))
		}
	case BackendPostgres:
		if c.Database.URL == "" {
			errs = append(errs, errors.New("database.url is required for the postgres cache backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown cache backend %q", c.Cache.Backend))
	}

	return errors.Join(errs...)
}

// FetchConfig converts the API and retry settings for the fetcher.
func (c *AppConfig) FetchConfig() fetch.Config {
	return fetch.Config{
		APIKey:    c.API.Key,
		UserAgent: c.API.UserAgent,
		Timeout:   c.API.Timeout,
		RateLimit: fetch.RateLimitPolicy{
			MaxAttempts: c.Retry.MaxAttempts,
			DefaultWait: c.Retry.DefaultWait,
		},
		Network: fetch.NetworkPolicy{
			MaxAttempts: c.Retry.NetworkAttempts,
			Wait:        c.Retry.NetworkWait,
		},
	}
}
