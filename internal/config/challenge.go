package config

import "time"

// ChallengeConfig configures interstitial detection and resolution.
type ChallengeConfig struct {
	DetectTimeout  string `yaml:"detect_timeout"`
	PopupTimeout   string `yaml:"popup_timeout"`
	IdleTimeout    string `yaml:"idle_timeout"`
	HoldDuration   string `yaml:"hold_duration"`
	ClearTimeout   string `yaml:"clear_timeout"`
	CaptchaVisible string `yaml:"captcha_visible"`
}

// GetDetectTimeout returns the per-detector race window.
func (c *Config) GetDetectTimeout() time.Duration {
	return parseDuration(c.Challenge.DetectTimeout, 5*time.Second)
}

// GetPopupTimeout returns the popup dismissal race window.
func (c *Config) GetPopupTimeout() time.Duration {
	return parseDuration(c.Challenge.PopupTimeout, 10*time.Second)
}

// GetIdleTimeout returns the bound on waiting for a quiet network.
func (c *Config) GetIdleTimeout() time.Duration {
	return parseDuration(c.Challenge.IdleTimeout, 10*time.Second)
}

// GetHoldDuration returns how long the captcha control is held.
func (c *Config) GetHoldDuration() time.Duration {
	return parseDuration(c.Challenge.HoldDuration, 10*time.Second)
}

// GetClearTimeout returns the bound on the captcha disappearing after release.
func (c *Config) GetClearTimeout() time.Duration {
	return parseDuration(c.Challenge.ClearTimeout, 15*time.Second)
}

// GetCaptchaVisible returns how long the captcha control may take to become visible.
func (c *Config) GetCaptchaVisible() time.Duration {
	return parseDuration(c.Challenge.CaptchaVisible, 10*time.Second)
}
