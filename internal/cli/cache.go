package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/vietddude/deliverycal/internal/control"
	"github.com/vietddude/deliverycal/internal/core/config"
	"github.com/vietddude/deliverycal/internal/infra/cache"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect or clear cached upstream responses",
}

var cacheShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the cached entries for the configured postal code",
	Run:   runCacheShow,
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete the cached entries for the configured postal code",
	Run:   runCacheClear,
}

func init() {
	cacheCmd.AddCommand(cacheShowCmd, cacheClearCmd)
	rootCmd.AddCommand(cacheCmd)
}

func cacheKeys(cfg *config.AppConfig) []string {
	keys := []string{cache.SortPatternsKey}
	if cfg.PostalCode != "" {
		keys = append([]string{cache.PostalCodeKey(cfg.PostalCode)}, keys...)
	}
	return keys
}

func openCache(ctx context.Context, cfg *config.AppConfig) (*cache.Cache, func() error) {
	store, closeFn, err := control.OpenStore(ctx, controlConfig(cfg))
	if err != nil {
		slog.Error("Failed to open cache", "backend", cfg.Cache.Backend, "error", err)
		os.Exit(1)
	}
	return cache.New(store, cfg.Cache.TTL), closeFn
}

func runCacheShow(cmd *cobra.Command, args []string) {
	cfg := mustLoadConfig()
	ctx := context.Background()
	c, closeFn := openCache(ctx, cfg)
	defer func() {
		_ = closeFn()
	}()

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "KEY\tCACHED AT\tAGE\tFRESH\tRANGE\tBYTES")

	for _, key := range cacheKeys(cfg) {
		e, err := c.Inspect(ctx, key)
		if errors.Is(err, cache.ErrNotFound) {
			_, _ = fmt.Fprintf(w, "%s\t-\t-\t-\t-\t-\n", key)
			continue
		}
		if err != nil {
			_, _ = fmt.Fprintf(w, "%s\tunreadable: %v\t-\t-\t-\t-\n", key, err)
			continue
		}
		rng := "-"
		if e.Range != nil {
			rng = e.Range.String()
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%s\t%d\n",
			key,
			e.CachedAt.Local().Format(time.RFC3339),
			time.Since(e.CachedAt).Truncate(time.Second),
			c.Fresh(e),
			rng,
			len(e.Payload),
		)
	}
	_ = w.Flush()
}

func runCacheClear(cmd *cobra.Command, args []string) {
	cfg := mustLoadConfig()
	ctx := context.Background()
	c, closeFn := openCache(ctx, cfg)
	defer func() {
		_ = closeFn()
	}()

	for _, key := range cacheKeys(cfg) {
		if err := c.Delete(ctx, key); err != nil {
			slog.Error("Failed to delete cache entry", "key", key, "error", err)
			os.Exit(1)
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", key)
	}
}
