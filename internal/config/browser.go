package config

import "time"

// DefaultUserAgent is the desktop Chrome 120 user agent the stealth profile reports.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// BrowserConfig configures the Chromium launch and fingerprint profile.
type BrowserConfig struct {
	Headless    bool   `yaml:"headless"`
	Bin         string `yaml:"bin"`          // Chromium binary; empty lets rod download one
	DebuggerURL string `yaml:"debugger_url"` // connect to a running Chrome instead of launching

	// Window size is Base + rand[0, WindowJitter) on each axis.
	BaseWidth    int `yaml:"base_width"`
	BaseHeight   int `yaml:"base_height"`
	WindowJitter int `yaml:"window_jitter"`

	UserAgent         string   `yaml:"user_agent"`
	NavigationTimeout string   `yaml:"navigation_timeout"`
	ExtraFlags        []string `yaml:"extra_flags"`
}

// GetNavigationTimeout returns the page navigation timeout as a duration.
func (c *Config) GetNavigationTimeout() time.Duration {
	return parseDuration(c.Browser.NavigationTimeout, 30*time.Second)
}

// GetUserAgent returns the configured user agent or the default.
func (c *Config) GetUserAgent() string {
	if c.Browser.UserAgent == "" {
		return DefaultUserAgent
	}
	return c.Browser.UserAgent
}
