package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
)

var version = "dev"

var (
	serverURL  string
	jsonOutput bool
)

var rootCmd = &cobra.Command{
	Use:   "resolvectl",
	Short: "CLI client for the stream resolver",
	Long: `resolvectl - CLI client for the stream resolver

Search the stream index, turn candidates into playable links and
inspect the debrid account behind the resolver.

Run the resolver server first; --server points at it.`,
	SilenceUsage: true,
}

// Execute runs the CLI. Ctrl-C cancels in-flight requests and watches.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", envOr("RESOLVER_URL", "http://localhost:8095"), "Server URL")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	rootCmd.Version = version
	rootCmd.SetVersionTemplate("resolvectl {{.Version}}\n")
}

func envOr(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
