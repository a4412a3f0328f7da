package search

import (
	"context"
	"errors"
	"math/rand/v2"
	"testing"
	"time"

	"listingscout/internal/behavior"
	"listingscout/internal/browser"
	"listingscout/internal/browser/browsertest"
	"listingscout/internal/logging"
	"listingscout/internal/sites"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.ResultsWait = 50 * time.Millisecond
	cfg.PopupWait = 20 * time.Millisecond
	return cfg
}

func newTestNavigator(t *testing.T, page *browsertest.Page) (*Navigator, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	h := behavior.New(page, behavior.WithSleeper(behavior.Instant), behavior.WithRand(rand.New(rand.NewPCG(1, 1))))
	snap := browser.NewSnapshotter(t.TempDir(), zap.New(core))
	return NewNavigator(h, sites.DefaultGoogle(), testConfig(), snap, zap.New(core)), logs
}

// googlePage scripts a home page whose Enter key renders resultsHTML.
func googlePage(resultsHTML string) *browsertest.Page {
	g := sites.DefaultGoogle()
	page := browsertest.NewPage()
	page.OnNavigate = func(p *browsertest.Page, url string) error {
		if url == g.HomeURL {
			p.Set(g.QueryInput, browsertest.Element{Box: browser.Box{X: 300, Y: 200, Width: 500, Height: 40}})
			p.Set(g.SubmitButton, browsertest.Element{Box: browser.Box{X: 450, Y: 300, Width: 120, Height: 36}})
		}
		return nil
	}
	page.OnPress = func(p *browsertest.Page, key browser.Key) error {
		if key != browser.KeyEnter {
			return nil
		}
		p.SetURL("https://www.google.com/search?q=homes")
		p.Remove(g.QueryInput, g.SubmitButton)
		p.Set(g.Results, browsertest.Element{HTML: resultsHTML})
		p.SetDocument("<html><body>" + resultsHTML + "</body></html>")
		return nil
	}
	return page
}

func TestNavigator_SearchAndExtract(t *testing.T) {
	page := googlePage(resultsFragment)
	nav, logs := newTestNavigator(t, page)
	ctx := context.Background()

	require.NoError(t, nav.Search(ctx, "3 bedroom house downtown"))
	assert.Equal(t, "3 bedroom house downtown", page.Typed())
	assert.Equal(t, []string{"https://www.google.com"}, page.Visits())
	assert.Equal(t, 1, page.ActionCount("navigation"))
	assert.Equal(t, 1, page.ActionCount("press Enter"))
	assert.Equal(t, 1, page.ActionCount("scroll to"))

	// Pointer ends near the submit control before Enter.
	pos, _ := page.Mouse()
	assert.InDelta(t, 510, pos.X, behavior.Jitter)
	assert.InDelta(t, 318, pos.Y, behavior.Jitter)

	links, err := nav.ExtractLinks(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"https://www.zillow.com/homes/Springfield-IL_rb/",
		"https://www.zillow.com/springfield-il/rentals/",
	}, links)

	assert.Equal(t, 1, logs.FilterField(zap.String(logging.EventKey, string(logging.AuditSearchSubmitted))).Len())
	assert.Equal(t, 1, logs.FilterField(zap.String(logging.EventKey, string(logging.AuditLinksExtracted))).Len())
	assert.Equal(t, 0, logs.FilterField(zap.String(logging.EventKey, string(logging.AuditLinksFallback))).Len())
}

func TestNavigator_DismissesPopup(t *testing.T) {
	g := sites.DefaultGoogle()
	page := googlePage(resultsFragment)
	press := page.OnPress
	page.OnPress = func(p *browsertest.Page, key browser.Key) error {
		p.Set(g.PopupButton, browsertest.Element{Text: " Not now "})
		return press(p, key)
	}
	var dismissed bool
	page.OnScriptClick = func(p *browsertest.Page, selector string) error {
		dismissed = selector == g.PopupButton
		return nil
	}
	nav, _ := newTestNavigator(t, page)

	require.NoError(t, nav.Search(context.Background(), "homes"))
	assert.True(t, dismissed)
}

func TestNavigator_FallbackScan(t *testing.T) {
	g := sites.DefaultGoogle()
	page := googlePage(`<div id="search"><a href="https://www.trulia.com/x">nope</a></div>`)
	press := page.OnPress
	page.OnPress = func(p *browsertest.Page, key browser.Key) error {
		if err := press(p, key); err != nil {
			return err
		}
		// The only target link sits outside the results container.
		p.SetDocument(`<html><body><div id="search"></div><nav><a href="https://www.zillow.com/browse/homes/?src=nav">browse</a></nav></body></html>`)
		p.Set(g.Results, browsertest.Element{HTML: `<div id="search"></div>`})
		return nil
	}
	nav, logs := newTestNavigator(t, page)
	ctx := context.Background()

	require.NoError(t, nav.Search(ctx, "homes"))
	links, err := nav.ExtractLinks(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://www.zillow.com/browse/homes/"}, links)

	fallback := logs.FilterField(zap.String(logging.EventKey, string(logging.AuditLinksFallback))).All()
	require.Len(t, fallback, 1)
	assert.NotEmpty(t, fallback[0].ContextMap()["dump"])
}

func TestNavigator_NoTargetIsEmptyNotError(t *testing.T) {
	page := googlePage(`<div id="search"><a href="https://example.com/">x</a></div>`)
	nav, _ := newTestNavigator(t, page)
	ctx := context.Background()

	require.NoError(t, nav.Search(ctx, "homes"))
	links, err := nav.ExtractLinks(ctx)
	require.NoError(t, err)
	assert.Empty(t, links)
}

func TestNavigator_ResultsMissingIsHardFailure(t *testing.T) {
	page := browsertest.NewPage()
	nav, _ := newTestNavigator(t, page)

	_, err := nav.ExtractLinks(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrResultsMissing)
}

func TestNavigator_SearchFailures(t *testing.T) {
	t.Run("home unreachable", func(t *testing.T) {
		page := browsertest.NewPage().Fail("Navigate", errors.New("net::ERR_NAME_NOT_RESOLVED"))
		nav, _ := newTestNavigator(t, page)
		assert.Error(t, nav.Search(context.Background(), "homes"))
	})

	t.Run("query field never renders", func(t *testing.T) {
		nav, _ := newTestNavigator(t, browsertest.NewPage())
		err := nav.Search(context.Background(), "homes")
		require.Error(t, err)
		assert.ErrorIs(t, err, browser.ErrTimeout)
	})

	t.Run("submit navigation fails", func(t *testing.T) {
		page := googlePage(resultsFragment).FailNavigation(browser.ErrTimeout)
		nav, _ := newTestNavigator(t, page)
		assert.ErrorIs(t, nav.Search(context.Background(), "homes"), browser.ErrTimeout)
	})
}
