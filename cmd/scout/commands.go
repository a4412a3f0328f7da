package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"listingscout/internal/api"
	"listingscout/internal/logging"

	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the pipeline over HTTP",
	Long: `Starts the HTTP façade:

  GET /api/scrape?query=&location=
  GET /api/test-search?query=
  GET /api/test-zillow?location=
  GET /api/test-workflow?query=&location=
  GET /healthz

Only one workflow runs at a time; a concurrent request gets 429.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search and print the listing-site links found",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWorkflow(cmd, func(ctx context.Context, a *app) (any, error) {
			links, err := a.orch.SearchOnly(ctx, strings.Join(args, " "))
			if err != nil {
				return nil, err
			}
			return map[string][]string{"links": links}, nil
		})
	},
}

var navigateCmd = &cobra.Command{
	Use:   "navigate [location]",
	Short: "Open the listing site, search a location, and print its listings",
	Long: `Opens the listing site directly, types the location into its search box,
clears any interstitial, and prints the deduplicated listings.

Without a location, prints the single "No location provided" record.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWorkflow(cmd, func(ctx context.Context, a *app) (any, error) {
			return a.orch.NavigateOnly(ctx, strings.Join(args, " "))
		})
	},
}

var workflowCmd = &cobra.Command{
	Use:   "workflow [query] [location]",
	Short: "Search, follow the first listing-site link, and print links and listings",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWorkflow(cmd, func(ctx context.Context, a *app) (any, error) {
			return a.orch.FullWorkflow(ctx, args[0], args[1])
		})
	},
}

var scrapeCmd = &cobra.Command{
	Use:   "scrape [query] [location]",
	Short: "Run the full workflow and read every listing's detail page",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWorkflow(cmd, func(ctx context.Context, a *app) (any, error) {
			return a.orch.Scrape(ctx, args[0], args[1])
		})
	},
}

// signalContext is cancelled on SIGINT/SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// runWorkflow builds the app, runs fn under the timeout and signal handling,
// and prints its result as indented JSON.
func runWorkflow(cmd *cobra.Command, fn func(context.Context, *app) (any, error)) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()
	ctx, stop := signalContext(ctx)
	defer stop()

	a := newApp(cfg, logs)
	// Idempotent; workflows close their own sessions.
	defer a.sessions.Close()

	out, err := fn(ctx, a)
	if err != nil {
		return err
	}
	return writeJSON(cmd.OutOrStdout(), out)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("write result: %w", err)
	}
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext(cmd.Context())
	defer stop()

	a := newApp(cfg, logs)
	defer a.sessions.Close()

	srv := api.NewServer(a.orch, logs.Get(logging.CategoryAPI))
	return srv.ListenAndServe(ctx, cfg.Addr(), cfg.GetReadTimeout(), cfg.GetWriteTimeout())
}
