package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/vietddude/deliverycal/internal/control"
	"github.com/vietddude/deliverycal/internal/infra/cache"
)

var urlsCmd = &cobra.Command{
	Use:   "urls",
	Short: "Print the upstream request URLs for manual testing",
	Long: `Print the two upstream request URLs a run would issue, API key included,
so they can be opened in a browser or passed to curl.`,
	Run: runURLs,
}

func init() {
	rootCmd.AddCommand(urlsCmd)
}

func runURLs(cmd *cobra.Command, args []string) {
	cfg := mustLoadConfig()
	if cfg.PostalCode == "" {
		slog.Error("Postal code is required", "hint", "set postal_code or pass --postal-code")
		os.Exit(1)
	}

	today, err := startDate()
	if err != nil {
		slog.Error("Invalid --today", "error", err)
		os.Exit(1)
	}

	// No backend connection is needed to build URLs.
	app, err := control.NewRunner(context.Background(), controlConfig(cfg), control.WithStore(cache.NewMemoryStore()))
	if err != nil {
		slog.Error("Failed to initialize runner", "error", err)
		os.Exit(1)
	}

	urls, err := app.URLs(today)
	if err != nil {
		slog.Error("Failed to build URLs", "error", err)
		os.Exit(1)
	}

	fmt.Println("Postal code:")
	fmt.Println(urls[0])
	fmt.Println()
	fmt.Println("Sort patterns:")
	fmt.Println(urls[1])
}
