// Command scout drives the listing pipeline from the command line or serves
// it over HTTP.
package main

import (
	"fmt"
	"os"
	"time"

	"listingscout/internal/config"
	"listingscout/internal/logging"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	// Global flags
	configPath string
	verbose    bool
	headless   bool
	timeout    time.Duration

	// Set by PersistentPreRunE
	cfg    *config.Config
	logger *zap.Logger
	logs   *logging.Registry
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "scout",
	Short: "listingscout - search-engine-to-listings browser pipeline",
	Long: `listingscout drives a stealth Chromium session through a search engine
to a real-estate listing site and returns the listings it finds as JSON.

Every command opens one browser, runs one workflow, and closes the browser.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// A missing .env is normal.
		_ = godotenv.Load()

		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("headless") {
			cfg.Browser.Headless = headless
		}
		if verbose {
			cfg.Logging.Level = "debug"
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}

		logger, err = logging.New(cfg.Logging)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		logs = logging.NewRegistry(logger, cfg.Logging)
		logs.Get(logging.CategoryBoot).Debug("Configuration loaded",
			zap.String("config", configPath),
			zap.Bool("headless", cfg.Browser.Headless),
			zap.String("diagnostics", cfg.Diagnostics.Dir))
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "scout.yaml", "Config file (missing file means defaults)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().BoolVar(&headless, "headless", true, "Run Chromium without a window")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 15*time.Minute, "Workflow timeout")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(navigateCmd)
	rootCmd.AddCommand(workflowCmd)
	rootCmd.AddCommand(scrapeCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
