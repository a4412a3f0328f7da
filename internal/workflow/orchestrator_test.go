package workflow

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"listingscout/internal/behavior"
	"listingscout/internal/browser"
	"listingscout/internal/browser/browsertest"
	"listingscout/internal/challenge"
	"listingscout/internal/config"
	"listingscout/internal/listings"
	"listingscout/internal/logging"
	"listingscout/internal/search"
	"listingscout/internal/sites"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

var (
	google = sites.DefaultGoogle()
	zillow = sites.DefaultZillow()
)

func fastConfig() Config {
	cfg := DefaultConfig()
	cfg.Search.ResultsWait = 30 * time.Millisecond
	cfg.Search.PopupWait = 5 * time.Millisecond
	cfg.Challenge.DetectTimeout = 20 * time.Millisecond
	cfg.Challenge.CaptchaVisible = 20 * time.Millisecond
	cfg.Challenge.ClearTimeout = 20 * time.Millisecond
	cfg.Listings.SearchBoxWait = 30 * time.Millisecond
	cfg.Listings.NextPageTimeout = 30 * time.Millisecond
	cfg.Listings.DetailWait = 30 * time.Millisecond
	return cfg
}

func card(slug, addr string) browsertest.Element {
	return browsertest.Element{
		HTML: fmt.Sprintf(`<li class="ListItem-c11n"><article class="StyledPropertyCard-srp">`+
			`<a data-test="property-card-link" href="/homedetails/%s/"><address data-test="property-card-addr">%s</address></a>`+
			`<span data-test="property-card-price">$200,000</span></article></li>`, slug, addr),
		Box: browser.Box{X: 20, Y: 300, Width: 320, Height: 280},
	}
}

// fakeSite scripts both sites onto one page: a search engine whose results
// link to the listing site, and a listing site with a duplicate card.
func fakeSite() *browsertest.Page {
	page := browsertest.NewPage()
	page.Set(google.QueryInput, browsertest.Element{Box: browser.Box{X: 400, Y: 300, Width: 480, Height: 44}})
	page.Set(google.Results, browsertest.Element{HTML: `<div id="search">` +
		`<a href="https://www.zillow.com/springfield-il/?utm_source=g">Springfield homes</a>` +
		`<a href="https://www.example.com/homes">other</a></div>`})
	page.Set(zillow.SearchBox, browsertest.Element{Box: browser.Box{X: 300, Y: 200, Width: 500, Height: 48}})
	page.Set(zillow.ListItem, card("1-main", "1 Main St"), card("2-oak", "2 Oak Ave"), card("1-main", "1 Main St"))
	return page
}

type harness struct {
	page     *browsertest.Page
	provider *browsertest.Provider
	orch     *Orchestrator
	logs     *observer.ObservedLogs
}

func newHarness(t *testing.T, page *browsertest.Page) *harness {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	reg := logging.NewRegistry(zap.New(core), config.LoggingConfig{DebugMode: true})
	provider := browsertest.NewProvider(page)
	orch := New(provider, fastConfig(), reg,
		WithSnapshotter(browser.NewSnapshotter(t.TempDir(), reg.Get(logging.CategoryBrowser))),
		WithHumanOptions(
			behavior.WithSleeper(behavior.Instant),
			behavior.WithRand(rand.New(rand.NewPCG(5, 6)))))
	return &harness{page: page, provider: provider, orch: orch, logs: logs}
}

func (h *harness) assertClosedOnce(t *testing.T) {
	t.Helper()
	_, closes := h.provider.Counts()
	assert.Equal(t, 1, closes, "session must be closed exactly once")
	assert.False(t, h.provider.Live())
}

func (h *harness) lastVisit(t *testing.T) string {
	t.Helper()
	visits := h.page.Visits()
	require.NotEmpty(t, visits)
	return visits[len(visits)-1]
}

func (h *harness) count(ev logging.AuditEventType) int {
	return h.logs.FilterField(zap.String(logging.EventKey, string(ev))).Len()
}

func addresses(recs []listings.Record) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.Address
	}
	return out
}

func TestFullWorkflow_EndToEnd(t *testing.T) {
	defer goleak.VerifyNone(t)
	h := newHarness(t, fakeSite())

	res, err := h.orch.FullWorkflow(context.Background(), "3 bedroom house downtown", "Springfield IL")
	require.NoError(t, err)
	assert.Equal(t, []string{"https://www.zillow.com/springfield-il/"}, res.GoogleLinks)
	assert.Equal(t, []string{"1 Main St", "2 Oak Ave"}, addresses(res.ListingData))
	for _, r := range res.ListingData {
		assert.Empty(t, r.Details, "details are only read when enabled")
		assert.Empty(t, r.URL, "url is only kept when details are enabled")
	}

	assert.Equal(t, []string{google.HomeURL, "https://www.zillow.com/springfield-il/", "about:blank"}, h.page.Visits())
	assert.Contains(t, h.page.Typed(), "3 bedroom house downtown")
	h.assertClosedOnce(t)
	assert.Equal(t, 1, h.count(logging.AuditWorkflowStart))
	assert.Equal(t, 1, h.count(logging.AuditWorkflowComplete))
	assert.Zero(t, h.count(logging.AuditWorkflowError))
}

func TestFullWorkflow_NoTargetFound(t *testing.T) {
	defer goleak.VerifyNone(t)
	page := fakeSite()
	page.Set(google.Results, browsertest.Element{HTML: `<div id="search"><a href="https://www.example.com/">x</a></div>`})
	h := newHarness(t, page)

	res, err := h.orch.FullWorkflow(context.Background(), "homes", "Springfield IL")
	require.ErrorIs(t, err, ErrNoTargetFound)
	assert.Nil(t, res)
	assert.Equal(t, "about:blank", h.lastVisit(t))
	h.assertClosedOnce(t)
	assert.Equal(t, 1, h.count(logging.AuditWorkflowError))
}

func TestFullWorkflow_EmptyLocationReturnsSentinel(t *testing.T) {
	defer goleak.VerifyNone(t)
	page := fakeSite()
	page.Set(zillow.Captcha, browsertest.Element{Box: browser.Box{X: 500, Y: 400, Width: 260, Height: 60}})
	h := newHarness(t, page)

	res, err := h.orch.FullWorkflow(context.Background(), "3 bedroom house downtown", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"https://www.zillow.com/springfield-il/"}, res.GoogleLinks)
	assert.Equal(t, []listings.Record{listings.Sentinel()}, res.ListingData)
	assert.Equal(t, "3 bedroom house downtown", page.Typed(), "nothing typed on the listing site")
	assert.Equal(t, 1, page.ActionCount("mouse down"), "only the search engine query box is clicked")
	assert.Zero(t, page.ActionCount("scroll into view"))
	h.assertClosedOnce(t)
}

func TestScrape_EmptyLocationReturnsSentinel(t *testing.T) {
	defer goleak.VerifyNone(t)
	h := newHarness(t, fakeSite())

	recs, err := h.orch.Scrape(context.Background(), "homes", "")
	require.NoError(t, err)
	assert.Equal(t, []listings.Record{listings.Sentinel()}, recs)
	h.assertClosedOnce(t)
}

func TestSearchOnly(t *testing.T) {
	defer goleak.VerifyNone(t)
	h := newHarness(t, fakeSite())

	links, err := h.orch.SearchOnly(context.Background(), "homes")
	require.NoError(t, err)
	assert.Equal(t, []string{"https://www.zillow.com/springfield-il/"}, links)
	assert.Equal(t, "about:blank", h.lastVisit(t))
	h.assertClosedOnce(t)
}

func TestSearchOnly_ResultsMissingClosesSession(t *testing.T) {
	defer goleak.VerifyNone(t)
	page := fakeSite()
	page.Remove(google.Results)
	h := newHarness(t, page)

	links, err := h.orch.SearchOnly(context.Background(), "homes")
	require.ErrorIs(t, err, search.ErrResultsMissing)
	assert.Nil(t, links)
	assert.Equal(t, "about:blank", h.lastVisit(t))
	h.assertClosedOnce(t)
}

func TestInitializeFailureStillCloses(t *testing.T) {
	defer goleak.VerifyNone(t)
	h := newHarness(t, fakeSite())
	h.provider.FailInit(fmt.Errorf("%w: launch chrome: no binary", browser.ErrBrowserInit))

	_, err := h.orch.FullWorkflow(context.Background(), "homes", "Springfield IL")
	require.ErrorIs(t, err, browser.ErrBrowserInit)
	assert.Empty(t, h.page.Visits())
	h.assertClosedOnce(t)
}

func TestNavigateOnly_EmptyLocationReturnsSentinel(t *testing.T) {
	h := newHarness(t, fakeSite())

	recs, err := h.orch.NavigateOnly(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, []listings.Record{listings.Sentinel()}, recs)
	inits, closes := h.provider.Counts()
	assert.Zero(t, inits)
	assert.Zero(t, closes)
}

func TestNavigateOnly(t *testing.T) {
	defer goleak.VerifyNone(t)
	h := newHarness(t, fakeSite())

	recs, err := h.orch.NavigateOnly(context.Background(), "Springfield IL")
	require.NoError(t, err)
	assert.Equal(t, []string{"1 Main St", "2 Oak Ave"}, addresses(recs))
	assert.Equal(t, []string{zillow.StartURL, "about:blank"}, h.page.Visits())
	assert.Equal(t, "Springfield IL", h.page.Typed())
	h.assertClosedOnce(t)
}

func TestNavigateOnly_CaptchaUnresolvedClosesSession(t *testing.T) {
	defer goleak.VerifyNone(t)
	page := fakeSite()
	page.Set(zillow.Captcha, browsertest.Element{Box: browser.Box{X: 500, Y: 400, Width: 260, Height: 60}})
	h := newHarness(t, page)

	_, err := h.orch.NavigateOnly(context.Background(), "Springfield IL")
	require.ErrorIs(t, err, challenge.ErrCaptchaUnresolved)
	// One click on the search box, one hold on the captcha; both released.
	assert.Equal(t, 2, page.ActionCount("mouse down"))
	assert.Equal(t, 2, page.ActionCount("mouse up"))
	assert.Equal(t, "about:blank", h.lastVisit(t))
	h.assertClosedOnce(t)
}

func TestNavigateOnly_CancelledDuringExtraction(t *testing.T) {
	defer goleak.VerifyNone(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	page := fakeSite()
	page.OnScrollBottom = func(*browsertest.Page) error {
		cancel()
		return nil
	}
	h := newHarness(t, page)

	_, err := h.orch.NavigateOnly(ctx, "Springfield IL")
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, "about:blank", h.lastVisit(t), "teardown runs even after cancellation")
	h.assertClosedOnce(t)
}

func TestScrape_VisitsDetails(t *testing.T) {
	defer goleak.VerifyNone(t)
	page := fakeSite()
	page.Set(zillow.DetailContainer, browsertest.Element{HTML: `<div class="ds-container"><p>Built 1999</p></div>`})
	h := newHarness(t, page)

	recs, err := h.orch.Scrape(context.Background(), "homes", "Springfield IL")
	require.NoError(t, err)
	require.Len(t, recs, 2)
	for _, r := range recs {
		assert.Equal(t, "Built 1999", r.Details)
	}
	assert.Contains(t, page.Visits(), "https://www.zillow.com/homedetails/2-oak/")
	h.assertClosedOnce(t)
}

func TestBusy(t *testing.T) {
	defer goleak.VerifyNone(t)
	page := fakeSite()
	started, release := make(chan struct{}), make(chan struct{})
	var once sync.Once
	page.OnNavigate = func(*browsertest.Page, string) error {
		once.Do(func() {
			close(started)
			<-release
		})
		return nil
	}
	h := newHarness(t, page)

	done := make(chan error, 1)
	go func() {
		_, err := h.orch.SearchOnly(context.Background(), "homes")
		done <- err
	}()
	<-started

	_, err := h.orch.NavigateOnly(context.Background(), "Springfield IL")
	assert.ErrorIs(t, err, ErrBusy)

	close(release)
	require.NoError(t, <-done)
	inits, closes := h.provider.Counts()
	assert.Equal(t, 1, inits)
	assert.Equal(t, 1, closes)

	_, err = h.orch.SearchOnly(context.Background(), "homes")
	require.NoError(t, err, "slot is released after the first run")
}

func TestErrorsAreWrapped(t *testing.T) {
	h := newHarness(t, fakeSite())
	h.page.Fail("Navigate", errors.New("net::ERR_NAME_NOT_RESOLVED"))

	_, err := h.orch.SearchOnly(context.Background(), "homes")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "search: open search home")
}
