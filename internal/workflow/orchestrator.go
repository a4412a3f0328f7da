// Package workflow composes the pipeline stages into the entry points the
// CLI and HTTP façade call. Every entry point owns one browser session for
// its duration and closes it exactly once on every exit path.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"listingscout/internal/behavior"
	"listingscout/internal/browser"
	"listingscout/internal/challenge"
	"listingscout/internal/config"
	"listingscout/internal/listings"
	"listingscout/internal/logging"
	"listingscout/internal/search"
	"listingscout/internal/sites"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

var (
	// ErrBusy is returned when a workflow is already running.
	ErrBusy = errors.New("another workflow is running")
	// ErrNoTargetFound means the search produced no link to the listing site.
	ErrNoTargetFound = errors.New("no listing site link in search results")
)

// SessionProvider opens and closes the browser session a workflow runs in.
type SessionProvider interface {
	Initialize(ctx context.Context) (*browser.Session, error)
	Close()
}

var _ SessionProvider = (*browser.SessionManager)(nil)

// Config carries each stage's settings and the site models.
type Config struct {
	Google    sites.Google
	Zillow    sites.Zillow
	Search    search.Config
	Challenge challenge.Config
	Listings  listings.Config

	// BlankTimeout bounds the return to about:blank on exit.
	BlankTimeout time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Google:       sites.DefaultGoogle(),
		Zillow:       sites.DefaultZillow(),
		Search:       search.DefaultConfig(),
		Challenge:    challenge.DefaultConfig(),
		Listings:     listings.DefaultConfig(),
		BlankTimeout: 5 * time.Second,
	}
}

// Result is what FullWorkflow returns.
type Result struct {
	GoogleLinks []string          `json:"googleLinks"`
	ListingData []listings.Record `json:"listingData"`
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithSnapshotter enables failure screenshots and HTML dumps.
func WithSnapshotter(s *browser.Snapshotter) Option {
	return func(o *Orchestrator) { o.snap = s }
}

// WithHumanOptions is applied to the behavior simulator of every session.
func WithHumanOptions(opts ...behavior.Option) Option {
	return func(o *Orchestrator) { o.humanOpts = append(o.humanOpts, opts...) }
}

// Orchestrator runs one workflow at a time.
type Orchestrator struct {
	sessions  SessionProvider
	cfg       Config
	logs      *logging.Registry
	logger    *zap.Logger
	snap      *browser.Snapshotter
	humanOpts []behavior.Option
	slot      *semaphore.Weighted
}

// New returns an Orchestrator drawing sessions from sessions.
func New(sessions SessionProvider, cfg Config, logs *logging.Registry, opts ...Option) *Orchestrator {
	if logs == nil {
		logs = logging.NewRegistry(nil, config.LoggingConfig{})
	}
	if cfg.BlankTimeout <= 0 {
		cfg.BlankTimeout = DefaultConfig().BlankTimeout
	}
	o := &Orchestrator{
		sessions: sessions,
		cfg:      cfg,
		logs:     logs,
		logger:   logs.Get(logging.CategoryWorkflow),
		slot:     semaphore.NewWeighted(1),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// stages is the per-session wiring of the pipeline.
type stages struct {
	page      browser.Page
	human     *behavior.Human
	navigator *search.Navigator
	extractor *listings.Extractor
	width     int
	height    int
}

func (o *Orchestrator) wire(sess *browser.Session, lcfg listings.Config) *stages {
	opts := append([]behavior.Option{behavior.WithLogger(o.logs.Get(logging.CategoryBrowser))}, o.humanOpts...)
	human := behavior.New(sess.Page, opts...)
	return &stages{
		page:      sess.Page,
		human:     human,
		navigator: search.NewNavigator(human, o.cfg.Google, o.cfg.Search, o.snap, o.logs.Get(logging.CategorySearch)),
		extractor: listings.NewExtractor(human, o.cfg.Zillow, lcfg, o.snap, o.logs.Get(logging.CategoryListings)),
		width:     sess.Width,
		height:    sess.Height,
	}
}

// newChallenge returns a fresh handler; handlers are single use.
func (o *Orchestrator) newChallenge(s *stages) *challenge.Handler {
	return challenge.NewHandler(s.human, o.cfg.Zillow, o.cfg.Challenge, o.snap, o.logs.Get(logging.CategoryChallenge))
}

// run holds the workflow slot, opens a session, runs fn on it, and tears
// everything down whatever fn returns.
func (o *Orchestrator) run(ctx context.Context, name string, lcfg listings.Config, fn func(context.Context, *stages) error) (err error) {
	if !o.slot.TryAcquire(1) {
		return ErrBusy
	}
	defer o.slot.Release(1)

	log := o.logger.With(zap.String("workflow", name), zap.String("run", uuid.NewString()))
	start := time.Now()
	logging.Audit(log, logging.AuditWorkflowStart)
	defer func() {
		if err != nil {
			logging.AuditWarn(log, logging.AuditWorkflowError, zap.Error(err), zap.Duration("elapsed", time.Since(start)))
			return
		}
		logging.Audit(log, logging.AuditWorkflowComplete, zap.Duration("elapsed", time.Since(start)))
	}()

	defer func() {
		o.sessions.Close()
		logging.Audit(log, logging.AuditSessionClose)
	}()
	sess, err := o.sessions.Initialize(ctx)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	logging.Audit(log, logging.AuditSessionOpen, zap.String("session", sess.ID))

	s := o.wire(sess, lcfg)
	defer o.blank(ctx, s.page, log)

	if err := s.human.Wander(ctx, s.width, s.height); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Debug("Warm-up movement failed", zap.Error(err))
	}
	if err := fn(ctx, s); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

// blank parks the page on about:blank so nothing keeps running in it.
func (o *Orchestrator) blank(ctx context.Context, page browser.Page, log *zap.Logger) {
	bctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.cfg.BlankTimeout)
	defer cancel()
	if err := page.Navigate(bctx, "about:blank"); err != nil {
		log.Debug("Return to about:blank failed", zap.Error(err))
	}
}

// SearchOnly searches for query and returns the listing-site links found.
func (o *Orchestrator) SearchOnly(ctx context.Context, query string) ([]string, error) {
	var links []string
	err := o.run(ctx, "search", o.cfg.Listings, func(ctx context.Context, s *stages) error {
		var err error
		links, err = searchLinks(ctx, s, query)
		return err
	})
	if err != nil {
		return nil, err
	}
	return links, nil
}

// NavigateOnly opens the listing site, searches location there, and returns
// its listings. An empty location returns the sentinel record without
// opening a browser.
func (o *Orchestrator) NavigateOnly(ctx context.Context, location string) ([]listings.Record, error) {
	if location == "" {
		o.logger.Info("No location supplied, returning sentinel")
		return []listings.Record{listings.Sentinel()}, nil
	}
	var records []listings.Record
	err := o.run(ctx, "navigate", o.cfg.Listings, func(ctx context.Context, s *stages) error {
		if err := s.page.Navigate(ctx, o.cfg.Zillow.StartURL); err != nil {
			return fmt.Errorf("open listing site: %w", err)
		}
		var err error
		records, err = o.extract(ctx, s, location)
		return err
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// FullWorkflow searches for query, follows the first listing-site link,
// searches location there, and returns both the links and the listings.
func (o *Orchestrator) FullWorkflow(ctx context.Context, query, location string) (*Result, error) {
	return o.full(ctx, "workflow", o.cfg.Listings, query, location)
}

// Scrape is FullWorkflow with detail-page visits enabled, returning only the
// records.
func (o *Orchestrator) Scrape(ctx context.Context, query, location string) ([]listings.Record, error) {
	lcfg := o.cfg.Listings
	lcfg.VisitDetails = true
	res, err := o.full(ctx, "scrape", lcfg, query, location)
	if err != nil {
		return nil, err
	}
	return res.ListingData, nil
}

func (o *Orchestrator) full(ctx context.Context, name string, lcfg listings.Config, query, location string) (*Result, error) {
	res := &Result{}
	err := o.run(ctx, name, lcfg, func(ctx context.Context, s *stages) error {
		links, err := searchLinks(ctx, s, query)
		if err != nil {
			return err
		}
		if len(links) == 0 {
			return ErrNoTargetFound
		}
		res.GoogleLinks = links

		if err := s.page.Navigate(ctx, links[0]); err != nil {
			return fmt.Errorf("open %s: %w", links[0], err)
		}
		res.ListingData, err = o.extract(ctx, s, location)
		return err
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func searchLinks(ctx context.Context, s *stages, query string) ([]string, error) {
	if err := s.navigator.Search(ctx, query); err != nil {
		return nil, err
	}
	return s.navigator.ExtractLinks(ctx)
}

// extract enters location on the listing site, clears any interstitial,
// and runs the listing loop. An empty location yields the sentinel record.
func (o *Orchestrator) extract(ctx context.Context, s *stages, location string) ([]listings.Record, error) {
	if location == "" {
		o.logger.Info("No location supplied, returning sentinel")
		return []listings.Record{listings.Sentinel()}, nil
	}
	if err := s.extractor.EnterLocation(ctx, location); err != nil {
		return nil, err
	}
	if _, err := o.newChallenge(s).Handle(ctx); err != nil {
		return nil, err
	}
	return s.extractor.Run(ctx)
}
