// Package search drives the search engine hop: submit a query like a person
// would and collect result links that point at the target site.
package search

import (
	"context"
	"errors"
	"fmt"
	"time"

	"listingscout/internal/behavior"
	"listingscout/internal/browser"
	"listingscout/internal/logging"
	"listingscout/internal/sites"

	"go.uber.org/zap"
)

// ErrResultsMissing means the results container never rendered.
var ErrResultsMissing = errors.New("search results container not found")

// Config tunes the Navigator.
type Config struct {
	TargetDomain      string
	ResultsWait       time.Duration
	PopupWait         time.Duration
	NavigationTimeout time.Duration
	MaxScrollJump     int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		TargetDomain:      "zillow.com",
		ResultsWait:       10 * time.Second,
		PopupWait:         5 * time.Second,
		NavigationTimeout: 30 * time.Second,
		MaxScrollJump:     500,
	}
}

// Navigator runs searches on one page.
type Navigator struct {
	page   browser.Page
	human  *behavior.Human
	model  sites.Google
	cfg    Config
	snap   *browser.Snapshotter
	logger *zap.Logger
}

// NewNavigator returns a Navigator driving human's page.
func NewNavigator(human *behavior.Human, model sites.Google, cfg Config, snap *browser.Snapshotter, logger *zap.Logger) *Navigator {
	return &Navigator{
		page:   human.Page(),
		human:  human,
		model:  model,
		cfg:    cfg,
		snap:   snap,
		logger: logging.OrNop(logger),
	}
}

// Search opens the home page, types query, and submits it.
func (n *Navigator) Search(ctx context.Context, query string) error {
	if err := n.page.Navigate(ctx, n.model.HomeURL); err != nil {
		return fmt.Errorf("open search home: %w", err)
	}
	if err := n.page.WaitVisible(ctx, n.model.QueryInput, n.cfg.ResultsWait); err != nil {
		return fmt.Errorf("query field: %w", err)
	}
	box, err := n.page.BoundingBox(ctx, n.model.QueryInput, 0)
	if err != nil {
		return fmt.Errorf("query field box: %w", err)
	}
	if err := n.human.ClickAt(ctx, box, 25); err != nil {
		return fmt.Errorf("focus query field: %w", err)
	}
	if err := n.human.Type(ctx, query, behavior.SearchTyping); err != nil {
		return fmt.Errorf("type query: %w", err)
	}
	if err := n.human.Pause(ctx, behavior.ThinkPause); err != nil {
		return err
	}

	if has, _ := n.page.Has(ctx, n.model.SubmitButton); has {
		if btn, err := n.page.BoundingBox(ctx, n.model.SubmitButton, 0); err == nil {
			if err := n.human.MoveToBox(ctx, btn, 20); err != nil {
				return err
			}
		} else {
			n.logger.Debug("Submit control has no box", zap.Error(err))
		}
	}

	err = n.page.Navigation(ctx, n.cfg.NavigationTimeout, func(ctx context.Context) error {
		return n.page.Press(ctx, browser.KeyEnter)
	})
	if err != nil {
		return fmt.Errorf("submit query: %w", err)
	}
	logging.Audit(n.logger, logging.AuditSearchSubmitted, zap.Int("query_len", len(query)))

	if err := n.human.ScrollRandom(ctx, n.cfg.MaxScrollJump); err != nil {
		n.logger.Debug("Post-search scroll failed", zap.Error(err))
	}
	n.dismissPopup(ctx)
	return nil
}

func (n *Navigator) dismissPopup(ctx context.Context) {
	err := n.page.ClickByText(ctx, n.model.PopupButton, n.model.PopupText, n.cfg.PopupWait)
	if err != nil {
		n.logger.Debug("No results popup", zap.Error(err))
		return
	}
	n.logger.Info("Dismissed results popup")
}

// ExtractLinks waits for results and returns the canonical target-site
// links among them. When the results hold none, every anchor on the page is
// considered instead and the page markup is dumped for diagnosis. An empty
// result is not an error.
func (n *Navigator) ExtractLinks(ctx context.Context) ([]string, error) {
	if err := n.page.WaitVisible(ctx, n.model.Results, n.cfg.ResultsWait); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrResultsMissing, err)
	}
	n.snap.Screenshot(ctx, n.page, "search-results")

	base, err := n.page.URL(ctx)
	if err != nil {
		n.logger.Debug("Results URL unavailable", zap.Error(err))
	}

	anchorSel := `a[href*="` + n.cfg.TargetDomain + `"]`
	var hrefs []string
	if html, err := n.page.ElementHTML(ctx, n.model.Results, 0); err == nil {
		hrefs, err = ParseAnchors(html, anchorSel)
		if err != nil {
			n.logger.Warn("Results markup unparsable", zap.Error(err))
		}
	} else {
		n.logger.Warn("Results markup unavailable", zap.Error(err))
	}

	links := Canonicalize(base, hrefs, n.cfg.TargetDomain)
	if len(links) > 0 {
		logging.Audit(n.logger, logging.AuditLinksExtracted, zap.Int("count", len(links)), zap.Bool("fallback", false))
		return links, nil
	}

	page, err := n.page.HTML(ctx)
	if err != nil {
		n.logger.Warn("Fallback scan failed", zap.Error(err))
		return nil, nil
	}
	all, err := ParseAnchors(page, n.model.AnyAnchor)
	if err != nil {
		n.logger.Warn("Fallback scan unparsable", zap.Error(err))
	}
	links = Canonicalize(base, all, n.cfg.TargetDomain)
	dump := n.snap.DumpHTML(ctx, n.page, "links-fallback")
	logging.AuditWarn(n.logger, logging.AuditLinksFallback,
		zap.Int("anchors", len(all)),
		zap.Int("count", len(links)),
		zap.String("dump", dump))
	return links, nil
}
