package listings

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"listingscout/internal/behavior"
	"listingscout/internal/browser"
	"listingscout/internal/logging"
	"listingscout/internal/sites"

	"go.uber.org/zap"
)

// ErrPaginationNavigation means the next-page click did not produce a
// navigation in time.
var ErrPaginationNavigation = errors.New("pagination navigation failed")

// Config tunes the Extractor.
type Config struct {
	MaxScrollRounds   int
	MaxPages          int // 0 means follow pagination to the end
	ScrollSettle      time.Duration
	NextPageTimeout   time.Duration
	SearchBoxWait     time.Duration
	DetailWait        time.Duration
	NavigationTimeout time.Duration
	VisitDetails      bool
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxScrollRounds:   10,
		ScrollSettle:      2 * time.Second,
		NextPageTimeout:   15 * time.Second,
		SearchBoxWait:     10 * time.Second,
		DetailWait:        10 * time.Second,
		NavigationTimeout: 30 * time.Second,
	}
}

// Extractor reads listings off the results pages of one session.
type Extractor struct {
	page   browser.Page
	human  *behavior.Human
	model  sites.Zillow
	cfg    Config
	snap   *browser.Snapshotter
	logger *zap.Logger
}

// NewExtractor returns an Extractor driving human's page.
func NewExtractor(human *behavior.Human, model sites.Zillow, cfg Config, snap *browser.Snapshotter, logger *zap.Logger) *Extractor {
	if cfg.MaxScrollRounds <= 0 {
		cfg.MaxScrollRounds = DefaultConfig().MaxScrollRounds
	}
	return &Extractor{
		page:   human.Page(),
		human:  human,
		model:  model,
		cfg:    cfg,
		snap:   snap,
		logger: logging.OrNop(logger),
	}
}

// EnterLocation types location into the site's search box the way a person
// would, typo and correction included, and submits it. It does not wait for
// the results; an interstitial may come first.
func (e *Extractor) EnterLocation(ctx context.Context, location string) error {
	if err := e.page.WaitVisible(ctx, e.model.SearchBox, e.cfg.SearchBoxWait); err != nil {
		return fmt.Errorf("location search box: %w", err)
	}
	box, err := e.page.BoundingBox(ctx, e.model.SearchBox, 0)
	if err != nil {
		return fmt.Errorf("location search box: %w", err)
	}
	if err := e.human.ClickAt(ctx, box, 25); err != nil {
		return fmt.Errorf("focus search box: %w", err)
	}
	if err := e.human.TypeWithCorrection(ctx, location); err != nil {
		return fmt.Errorf("type location: %w", err)
	}
	if err := e.human.Pause(ctx, behavior.ThinkPause); err != nil {
		return err
	}
	if err := e.page.Press(ctx, browser.KeyEnter); err != nil {
		return fmt.Errorf("submit location: %w", err)
	}
	e.snap.Screenshot(ctx, e.page, "initial-state")
	return nil
}

// Stabilize scrolls to the bottom until the list stops growing or the round
// budget is spent, then returns to the top. It reports the final count.
func (e *Extractor) Stabilize(ctx context.Context) (int, error) {
	settle := behavior.Fixed(e.cfg.ScrollSettle)
	count, err := e.page.Count(ctx, e.model.ListItem)
	if err != nil {
		return 0, fmt.Errorf("count listings: %w", err)
	}

	rounds := 0
	for rounds < e.cfg.MaxScrollRounds {
		rounds++
		if err := e.page.ScrollToBottom(ctx); err != nil {
			return count, fmt.Errorf("scroll to bottom: %w", err)
		}
		if err := e.human.Pause(ctx, settle); err != nil {
			return count, err
		}
		next, err := e.page.Count(ctx, e.model.ListItem)
		if err != nil {
			return count, fmt.Errorf("count listings: %w", err)
		}
		if next <= count {
			break
		}
		count = next
	}
	e.logger.Debug("List stabilized", zap.Int("items", count), zap.Int("rounds", rounds))

	if err := e.page.ScrollTo(ctx, 0, false); err != nil {
		return count, fmt.Errorf("scroll to top: %w", err)
	}
	return count, e.human.Pause(ctx, settle)
}

// ExtractPage reads every property card on the current page in document
// order. Ads and empty items are skipped. Each card is scrolled into view
// and read again so lazily rendered fields are present.
func (e *Extractor) ExtractPage(ctx context.Context) ([]Record, error) {
	n, err := e.page.Count(ctx, e.model.ListItem)
	if err != nil {
		return nil, fmt.Errorf("count listings: %w", err)
	}
	base, _ := e.page.URL(ctx)

	var (
		records []Record
		ads     int
	)
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return records, err
		}
		html, err := e.page.ElementHTML(ctx, e.model.ListItem, i)
		if err != nil {
			e.logger.Debug("List item unreadable", zap.Int("index", i), zap.Error(err))
			continue
		}
		rec, kind, err := ParseCard(html, e.model)
		if err != nil {
			e.logger.Warn("List item unparsable", zap.Int("index", i), zap.Error(err))
			continue
		}
		switch kind {
		case KindAd:
			ads++
			continue
		case KindEmpty:
			continue
		}

		if err := e.page.ScrollIntoView(ctx, e.model.ListItem, i); err != nil {
			e.logger.Debug("Scroll into view failed", zap.Int("index", i), zap.Error(err))
		}
		if err := e.human.Pause(ctx, behavior.InspectPause); err != nil {
			return records, err
		}
		// Fields may render only once the card is on screen.
		if html, err := e.page.ElementHTML(ctx, e.model.ListItem, i); err == nil {
			if again, kind, err := ParseCard(html, e.model); err == nil && kind == KindProperty {
				rec = again
			}
		}
		rec.URL = resolve(base, rec.URL)
		records = append(records, rec)
	}
	logging.Audit(e.logger, logging.AuditPageExtracted,
		zap.Int("items", n),
		zap.Int("records", len(records)),
		zap.Int("ads", ads))
	return records, nil
}

// NextPage follows the pagination control when an enabled one exists.
// It returns false when there is no further page. A click that does not
// navigate within NextPageTimeout fails with ErrPaginationNavigation.
func (e *Extractor) NextPage(ctx context.Context) (bool, error) {
	n, err := e.page.Count(ctx, e.model.NextPage)
	if err != nil {
		return false, fmt.Errorf("find next page: %w", err)
	}
	index := -1
	for i := 0; i < n; i++ {
		traits, err := e.page.Inspect(ctx, e.model.NextPage, i)
		if err != nil {
			continue
		}
		if traits.Attributes["aria-disabled"] == "true" {
			continue
		}
		if _, disabled := traits.Attributes["disabled"]; disabled {
			continue
		}
		if reasons := browser.HoneypotReasons(traits); len(reasons) > 0 {
			e.logger.Warn("Skipping suspicious next-page link", zap.Int("index", i), zap.Strings("reasons", reasons))
			continue
		}
		index = i
		break
	}
	if index < 0 {
		return false, nil
	}

	box, err := e.page.BoundingBox(ctx, e.model.NextPage, index)
	if err != nil {
		return false, fmt.Errorf("next page box: %w", err)
	}
	if err := e.page.ScrollIntoView(ctx, e.model.NextPage, index); err != nil {
		e.logger.Debug("Next page scroll failed", zap.Error(err))
	}
	if err := e.human.MoveToBox(ctx, box, 25); err != nil {
		return false, err
	}
	err = e.page.Navigation(ctx, e.cfg.NextPageTimeout, e.human.Click)
	if err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		return false, fmt.Errorf("%w: %v", ErrPaginationNavigation, err)
	}
	return true, nil
}

// Run extracts every page up to MaxPages, deduplicates by address, and, when
// configured, visits each listing's detail page. Failures inside the loop
// end pagination early with what was collected; only cancellation is
// returned as an error.
func (e *Extractor) Run(ctx context.Context) ([]Record, error) {
	var all []Record
	for page := 1; ; page++ {
		if _, err := e.Stabilize(ctx); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			e.logger.Warn("Scroll stabilization failed", zap.Int("page", page), zap.Error(err))
		}
		recs, err := e.ExtractPage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			e.logger.Warn("Page extraction failed", zap.Int("page", page), zap.Error(err))
		}
		all = append(all, recs...)

		if e.cfg.MaxPages > 0 && page >= e.cfg.MaxPages {
			logging.Audit(e.logger, logging.AuditPaginationStop, zap.Int("page", page), zap.String("reason", "max_pages"))
			break
		}
		more, err := e.NextPage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			e.snap.Screenshot(ctx, e.page, "pagination-failed")
			logging.AuditWarn(e.logger, logging.AuditPaginationStop,
				zap.Int("page", page), zap.String("reason", "error"), zap.Error(err))
			break
		}
		if !more {
			logging.Audit(e.logger, logging.AuditPaginationStop, zap.Int("page", page), zap.String("reason", "last_page"))
			break
		}
	}

	out := Dedupe(all)
	logging.Audit(e.logger, logging.AuditRecordsDeduped, zap.Int("before", len(all)), zap.Int("after", len(out)))

	if !e.cfg.VisitDetails {
		// Listing URLs are only reported alongside the details read from them.
		for i := range out {
			out[i].URL = ""
		}
		return out, nil
	}
	if err := e.VisitDetails(ctx, out); err != nil {
		return nil, err
	}
	return out, nil
}

// VisitDetails opens each record's detail page and stores its text in
// Details. Records without a URL, and pages that fail to load, are left
// unchanged. Only cancellation is returned.
func (e *Extractor) VisitDetails(ctx context.Context, records []Record) error {
	for i := range records {
		if records[i].URL == "" {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		log := e.logger.With(zap.String("url", records[i].URL))
		if err := e.navigate(ctx, records[i].URL); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Warn("Detail page failed to load", zap.Error(err))
			continue
		}
		if err := e.page.WaitVisible(ctx, e.model.DetailContainer, e.cfg.DetailWait); err != nil {
			log.Warn("Detail content missing", zap.Error(err))
			continue
		}
		html, err := e.page.ElementHTML(ctx, e.model.DetailContainer, 0)
		if err != nil {
			log.Warn("Detail content unreadable", zap.Error(err))
			continue
		}
		text, err := TextOf(html)
		if err != nil {
			log.Warn("Detail content unparsable", zap.Error(err))
			continue
		}
		records[i].Details = text
		if err := e.human.Pause(ctx, behavior.ThinkPause); err != nil {
			return err
		}
	}
	return nil
}

// navigate opens target, bounded by NavigationTimeout when one is set.
func (e *Extractor) navigate(ctx context.Context, target string) error {
	if e.cfg.NavigationTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.NavigationTimeout)
		defer cancel()
	}
	return e.page.Navigate(ctx, target)
}

func resolve(base, href string) string {
	if href == "" || base == "" {
		return href
	}
	b, err := url.Parse(base)
	if err != nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return b.ResolveReference(ref).String()
}
