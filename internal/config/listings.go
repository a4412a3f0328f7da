package config

import "time"

// ListingsConfig configures the listing site hop.
type ListingsConfig struct {
	StartURL        string `yaml:"start_url"`
	MaxScrollRounds int    `yaml:"max_scroll_rounds"`
	MaxPages        int    `yaml:"max_pages"` // 0 = follow the site's pagination to the end
	NextPageTimeout string `yaml:"next_page_timeout"`
	VisitDetails    bool   `yaml:"visit_details"`
}

// GetNextPageTimeout returns the pagination navigation bound as a duration.
func (c *Config) GetNextPageTimeout() time.Duration {
	return parseDuration(c.Listings.NextPageTimeout, 15*time.Second)
}
