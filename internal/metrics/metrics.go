package metrics

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// FetchRequestsTotal tracks upstream HTTP requests per endpoint and outcome
	FetchRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deliverycal_fetch_requests_total",
			Help: "Total number of upstream HTTP requests",
		},
		[]string{"endpoint", "outcome"},
	)

	// FetchRateLimitedTotal tracks 429 responses per endpoint
	FetchRateLimitedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deliverycal_fetch_rate_limited_total",
			Help: "Total number of rate limited (429) upstream responses",
		},
		[]string{"endpoint"},
	)

	// FetchLatency tracks upstream request latency
	FetchLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "deliverycal_fetch_latency_seconds",
			Help:    "Upstream request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	// CacheLookupsTotal tracks cache lookups per key kind and result
	// (hit, miss, stale, uncovered, error)
	CacheLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deliverycal_cache_lookups_total",
			Help: "Total number of cache lookups",
		},
		[]string{"kind", "result"},
	)

	// CacheWriteErrorsTotal tracks failed cache writes
	CacheWriteErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deliverycal_cache_write_errors_total",
			Help: "Total number of failed cache writes",
		},
		[]string{"kind"},
	)

	// DeliveryDays is the number of delivery days found in the last run
	DeliveryDays = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "deliverycal_delivery_days",
			Help: "Number of delivery days found in the planning horizon",
		},
		[]string{"postal_code", "pattern"},
	)

	// LastSuccessTimestamp is the unix time of the last successful run
	LastSuccessTimestamp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "deliverycal_last_success_timestamp_seconds",
			Help: "Unix timestamp of the last successful run",
		},
	)
)

// WriteTextfile dumps the default registry to path in the text exposition
// format, for pickup by the node_exporter textfile collector.
func WriteTextfile(path string) error {
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create metrics dir: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, prometheus.DefaultGatherer); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
