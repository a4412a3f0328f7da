package config

import "time"

// SearchConfig configures the search engine hop.
type SearchConfig struct {
	HomeURL       string `yaml:"home_url"`
	TargetDomain  string `yaml:"target_domain"`
	ResultsWait   string `yaml:"results_wait"` // how long the results container may take to render
	PopupWait     string `yaml:"popup_wait"`   // "Not now" style popup detection window
	MaxScrollJump int    `yaml:"max_scroll_jump"`
}

// GetResultsWait returns the results container wait as a duration.
func (c *Config) GetResultsWait() time.Duration {
	return parseDuration(c.Search.ResultsWait, 10*time.Second)
}

// GetPopupWait returns the search popup detection window as a duration.
func (c *Config) GetPopupWait() time.Duration {
	return parseDuration(c.Search.PopupWait, 5*time.Second)
}
