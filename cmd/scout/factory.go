package main

import (
	"listingscout/internal/browser"
	"listingscout/internal/config"
	"listingscout/internal/logging"
	"listingscout/internal/sites"
	"listingscout/internal/workflow"
)

// browserConfig maps the file config onto the session manager's.
func browserConfig(cfg *config.Config) browser.Config {
	return browser.Config{
		DebuggerURL:         cfg.Browser.DebuggerURL,
		Bin:                 cfg.Browser.Bin,
		Headless:            cfg.Browser.Headless,
		BaseWidth:           cfg.Browser.BaseWidth,
		BaseHeight:          cfg.Browser.BaseHeight,
		WindowJitter:        cfg.Browser.WindowJitter,
		UserAgent:           cfg.GetUserAgent(),
		NavigationTimeoutMs: int(cfg.GetNavigationTimeout().Milliseconds()),
		ExtraFlags:          cfg.Browser.ExtraFlags,
	}
}

// workflowConfig maps the file config onto every stage's settings.
func workflowConfig(cfg *config.Config) workflow.Config {
	wc := workflow.DefaultConfig()

	wc.Google = sites.DefaultGoogle()
	if cfg.Search.HomeURL != "" {
		wc.Google.HomeURL = cfg.Search.HomeURL
	}
	wc.Zillow = sites.DefaultZillow()
	if cfg.Listings.StartURL != "" {
		wc.Zillow.StartURL = cfg.Listings.StartURL
	}

	wc.Search.TargetDomain = cfg.Search.TargetDomain
	wc.Search.ResultsWait = cfg.GetResultsWait()
	wc.Search.PopupWait = cfg.GetPopupWait()
	wc.Search.NavigationTimeout = cfg.GetNavigationTimeout()
	wc.Search.MaxScrollJump = cfg.Search.MaxScrollJump

	wc.Challenge.DetectTimeout = cfg.GetDetectTimeout()
	wc.Challenge.PopupTimeout = cfg.GetPopupTimeout()
	wc.Challenge.IdleTimeout = cfg.GetIdleTimeout()
	wc.Challenge.CaptchaVisible = cfg.GetCaptchaVisible()
	wc.Challenge.HoldDuration = cfg.GetHoldDuration()
	wc.Challenge.ClearTimeout = cfg.GetClearTimeout()

	wc.Listings.MaxScrollRounds = cfg.Listings.MaxScrollRounds
	wc.Listings.MaxPages = cfg.Listings.MaxPages
	wc.Listings.NextPageTimeout = cfg.GetNextPageTimeout()
	wc.Listings.NavigationTimeout = cfg.GetNavigationTimeout()
	wc.Listings.VisitDetails = cfg.Listings.VisitDetails
	return wc
}

// app is everything a command needs, built once per invocation.
type app struct {
	cfg      *config.Config
	logs     *logging.Registry
	sessions *browser.SessionManager
	orch     *workflow.Orchestrator
}

func newApp(cfg *config.Config, logs *logging.Registry) *app {
	sessions := browser.NewSessionManager(browserConfig(cfg), logs.Get(logging.CategorySession))
	snap := browser.NewSnapshotter(cfg.Diagnostics.Dir, logs.Get(logging.CategoryBrowser))
	orch := workflow.New(sessions, workflowConfig(cfg), logs, workflow.WithSnapshotter(snap))
	return &app{cfg: cfg, logs: logs, sessions: sessions, orch: orch}
}
