package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all listingscout configuration.
type Config struct {
	Name string `yaml:"name"`

	// Browser launch and fingerprint profile
	Browser BrowserConfig `yaml:"browser"`

	// Search engine hop
	Search SearchConfig `yaml:"search"`

	// Listing site hop
	Listings ListingsConfig `yaml:"listings"`

	// Interstitial handling
	Challenge ChallengeConfig `yaml:"challenge"`

	// HTTP façade
	Server ServerConfig `yaml:"server"`

	// Failure snapshots (screenshots, HTML dumps)
	Diagnostics DiagnosticsConfig `yaml:"diagnostics"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig configures the HTTP façade.
type ServerConfig struct {
	Port         int    `yaml:"port"`
	ReadTimeout  string `yaml:"read_timeout"`
	WriteTimeout string `yaml:"write_timeout"`
}

// DiagnosticsConfig configures where failure artifacts are written.
// An empty Dir disables snapshots.
type DiagnosticsConfig struct {
	Dir string `yaml:"dir"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name: "listingscout",

		Browser: BrowserConfig{
			Headless:          true,
			BaseWidth:         1280,
			BaseHeight:        720,
			WindowJitter:      100,
			UserAgent:         DefaultUserAgent,
			NavigationTimeout: "30s",
		},

		Search: SearchConfig{
			HomeURL:       "https://www.google.com",
			TargetDomain:  "zillow.com",
			ResultsWait:   "10s",
			PopupWait:     "5s",
			MaxScrollJump: 500,
		},

		Listings: ListingsConfig{
			StartURL:        "https://www.zillow.com/",
			MaxScrollRounds: 10,
			MaxPages:        0,
			NextPageTimeout: "15s",
			VisitDetails:    false,
		},

		Challenge: ChallengeConfig{
			DetectTimeout:  "5s",
			PopupTimeout:   "10s",
			IdleTimeout:    "10s",
			HoldDuration:   "10s",
			ClearTimeout:   "15s",
			CaptchaVisible: "10s",
		},

		Server: ServerConfig{
			Port:         3000,
			ReadTimeout:  "30s",
			WriteTimeout: "15m",
		},

		Diagnostics: DiagnosticsConfig{
			Dir: "diagnostics",
		},

		Logging: LoggingConfig{
			Level:     "info",
			Format:    "json",
			DebugMode: true,
		},
	}
}

// Load loads configuration from a YAML file.
// A missing file yields the defaults; env overrides apply either way.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		case os.IsNotExist(err):
		default:
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
	if v := os.Getenv("SCOUT_HEADLESS"); v != "" {
		if headless, err := strconv.ParseBool(v); err == nil {
			c.Browser.Headless = headless
		}
	}
	if v := os.Getenv("SCOUT_CHROME_BIN"); v != "" {
		c.Browser.Bin = v
	}
	if v := os.Getenv("SCOUT_DEBUGGER_URL"); v != "" {
		c.Browser.DebuggerURL = v
	}
	if v := os.Getenv("SCOUT_DIAGNOSTICS_DIR"); v != "" {
		c.Diagnostics.Dir = v
	}
	if v := os.Getenv("SCOUT_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("SCOUT_VISIT_DETAILS"); v != "" {
		if visit, err := strconv.ParseBool(v); err == nil {
			c.Listings.VisitDetails = visit
		}
	}
}

// Addr returns the listen address for the HTTP façade.
func (c *Config) Addr() string {
	port := c.Server.Port
	if port <= 0 {
		port = 3000
	}
	return fmt.Sprintf(":%d", port)
}

// GetReadTimeout returns the server read timeout as a duration.
func (c *Config) GetReadTimeout() time.Duration {
	return parseDuration(c.Server.ReadTimeout, 30*time.Second)
}

// GetWriteTimeout returns the server write timeout as a duration.
// Workflows hold a request open for minutes, so the default is generous.
func (c *Config) GetWriteTimeout() time.Duration {
	return parseDuration(c.Server.WriteTimeout, 15*time.Minute)
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Browser.BaseWidth <= 0 || c.Browser.BaseHeight <= 0 {
		return fmt.Errorf("invalid browser window size: %dx%d", c.Browser.BaseWidth, c.Browser.BaseHeight)
	}
	if c.Browser.WindowJitter < 0 {
		return fmt.Errorf("browser window_jitter must be >= 0, got %d", c.Browser.WindowJitter)
	}
	if c.Search.HomeURL == "" {
		return fmt.Errorf("search home_url not configured")
	}
	if c.Search.TargetDomain == "" {
		return fmt.Errorf("search target_domain not configured")
	}
	if c.Listings.StartURL == "" {
		return fmt.Errorf("listings start_url not configured")
	}
	if c.Listings.MaxScrollRounds <= 0 {
		return fmt.Errorf("listings max_scroll_rounds must be > 0, got %d", c.Listings.MaxScrollRounds)
	}
	if c.Listings.MaxPages < 0 {
		return fmt.Errorf("listings max_pages must be >= 0, got %d", c.Listings.MaxPages)
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	return nil
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
