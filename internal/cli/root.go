package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
	"github.com/vietddude/stylelog"

	"github.com/vietddude/deliverycal/internal/calendar"
	"github.com/vietddude/deliverycal/internal/control"
	"github.com/vietddude/deliverycal/internal/core/config"
	"github.com/vietddude/deliverycal/internal/core/domain"
)

var (
	cfgPath    string
	isDebug    bool
	postalCode string
	todayFlag  string
	outputPath string
	timeout    time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "deliverycal",
	Short: "Mail delivery calendar generator",
	Long: `deliverycal looks up which days a Swedish postal code receives mail and
writes them to an iCalendar file that calendar clients can subscribe to.`,
	Run: runCalendar,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "config.yaml", "config file (default is config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&isDebug, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&postalCode, "postal-code", "", "override the configured postal code")
	rootCmd.PersistentFlags().StringVar(&todayFlag, "today", "", "first day of the horizon, YYYY-MM-DD (default is today)")
	rootCmd.Flags().StringVar(&outputPath, "output", "", "override the configured calendar path")
	rootCmd.Flags().DurationVar(&timeout, "timeout", 0, "abort the run after this long (0 = no limit)")
}

func runCalendar(cmd *cobra.Command, args []string) {
	cfg := mustLoadConfig()
	if outputPath != "" {
		cfg.Output.Path = outputPath
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("Invalid config", "error", err)
		os.Exit(1)
	}

	today, err := startDate()
	if err != nil {
		slog.Error("Invalid --today", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	app, err := control.NewRunner(ctx, controlConfig(cfg))
	if err != nil {
		slog.Error("Failed to initialize runner", "error", err)
		os.Exit(1)
	}

	res, err := app.Run(ctx, today)
	if cerr := app.Close(); cerr != nil {
		slog.Warn("Failed to close cache", "error", cerr)
	}
	if err != nil {
		slog.Error("Run failed", "error", err)
		os.Exit(1)
	}

	fmt.Printf("Wrote %d delivery days for %s (%s) to %s\n",
		len(res.DeliveryDays), res.PostalCode, res.PostalPattern, res.OutputPath)
}

// mustLoadConfig loads .env and the config file, applies flag overrides and
// initializes logging. It exits on failure.
func mustLoadConfig() *config.AppConfig {
	_ = godotenv.Load()

	// Load Configuration; a missing file means defaults plus environment
	cfg, err := config.Load(cfgPath)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			stylelog.InitDefault()
			slog.Error("Failed to load config", "error", err)
			os.Exit(1)
		}
		cfg = config.Default()
	}
	if postalCode != "" {
		cfg.PostalCode = postalCode
	}

	// Setup logging
	stylelog.InitDefault(&tint.Options{
		Level:      logLevel(cfg.Logging.Level),
		TimeFormat: time.RFC3339,
	})
	slog.Debug("Config loaded", "path", cfgPath, "postal_code", cfg.PostalCode, "cache", cfg.Cache.Backend)
	return cfg
}

func logLevel(level string) slog.Level {
	if isDebug {
		return slog.LevelDebug
	}
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func startDate() (domain.Date, error) {
	if todayFlag == "" {
		return domain.DateOf(time.Now()), nil
	}
	return domain.ParseDate(todayFlag)
}

// controlConfig transforms the file configuration for the runner.
func controlConfig(cfg *config.AppConfig) control.Config {
	return control.Config{
		PostalCode:      cfg.PostalCode,
		DaysAhead:       cfg.DaysAhead,
		Fetch:           cfg.FetchConfig(),
		PostalCodeURL:   cfg.API.PostalCodeURL,
		SortPatternsURL: cfg.API.SortPatternsURL,
		CacheBackend:    cfg.Cache.Backend,
		CacheDir:        cfg.Cache.Dir,
		CacheTTL:        cfg.Cache.TTL,
		CacheRetention:  cfg.Cache.Retention,
		Redis:           cfg.Redis,
		Database:        cfg.Database,
		Calendar: calendar.Config{
			Summary:   cfg.Output.Summary,
			ProductID: cfg.Output.ProductID,
			Name:      cfg.Output.Name,
		},
		OutputPath:      cfg.Output.Path,
		MetricsTextfile: cfg.Metrics.Textfile,
	}
}
