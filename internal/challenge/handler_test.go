package challenge

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
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

var model = sites.DefaultZillow()

func fastConfig() Config {
	return Config{
		DetectTimeout:  40 * time.Millisecond,
		PopupTimeout:   60 * time.Millisecond,
		IdleQuiet:      time.Millisecond,
		IdleTimeout:    10 * time.Millisecond,
		Settle:         2 * time.Second,
		CaptchaVisible: 40 * time.Millisecond,
		HoldDuration:   10 * time.Second,
		HoldSteps:      50,
		ClearTimeout:   60 * time.Millisecond,
	}
}

type harness struct {
	page        *browsertest.Page
	handler     *Handler
	logs        *observer.ObservedLogs
	transitions []State
}

func newHarness(t *testing.T, page *browsertest.Page) *harness {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	logger := zap.New(core)
	h := behavior.New(page, behavior.WithSleeper(behavior.Instant), behavior.WithRand(rand.New(rand.NewPCG(3, 4))))
	hs := &harness{page: page, logs: logs}
	hs.handler = NewHandler(h, model, fastConfig(), browser.NewSnapshotter(t.TempDir(), logger), logger)
	hs.handler.OnTransition = func(_, to State) { hs.transitions = append(hs.transitions, to) }
	return hs
}

func TestHandle_NoChallenge(t *testing.T) {
	defer goleak.VerifyNone(t)
	hs := newHarness(t, browsertest.NewPage())

	outcome, err := hs.handler.Handle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeNone, outcome)
	assert.Equal(t, Resolved, hs.handler.State())
	assert.Equal(t, []State{AwaitingChallenge, Resolved}, hs.transitions)

	events := hs.logs.FilterField(zap.String(logging.EventKey, string(logging.AuditChallengeOutcome))).All()
	require.Len(t, events, 1)
	assert.Equal(t, "none", events[0].ContextMap()["outcome"])
}

func TestHandle_PopupOnly_NeverBypasses(t *testing.T) {
	defer goleak.VerifyNone(t)
	page := browsertest.NewPage()
	page.Set(model.PopupDismiss, browsertest.Element{Box: browser.Box{X: 600, Y: 400, Width: 80, Height: 30}})
	page.Set(model.PopupAny, browsertest.Element{})
	page.OnScriptClick = func(p *browsertest.Page, selector string) error {
		p.Remove(model.PopupDismiss, model.PopupAny)
		p.Set(model.PropertyCard, browsertest.Element{})
		return nil
	}
	hs := newHarness(t, page)

	outcome, err := hs.handler.Handle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomePopup, outcome)
	assert.Equal(t, []State{AwaitingChallenge, ResolvingPopup, Resolved}, hs.transitions)

	assert.Equal(t, 1, page.ActionCount("script click"))
	assert.Equal(t, 1, page.ActionCount("network idle"))
	assert.Zero(t, page.ActionCount("mouse down"), "captcha bypass must not run")
	assert.Zero(t, hs.logs.FilterMessage("Holding captcha control").Len())
}

func TestHandle_PopupFailureIsTolerated(t *testing.T) {
	defer goleak.VerifyNone(t)
	page := browsertest.NewPage()
	// Dismiss button visible but clicking it changes nothing.
	page.Set(model.PopupDismiss, browsertest.Element{})
	page.Set(model.PopupAny, browsertest.Element{})
	hs := newHarness(t, page)

	outcome, err := hs.handler.Handle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomePopup, outcome)
	assert.Equal(t, Resolved, hs.handler.State())
	assert.Equal(t, 1, hs.logs.FilterMessage("Popup resolution failed, continuing").Len())
	assert.Equal(t, 1, page.ActionCount("screenshot"))
}

func TestHandle_CaptchaCleared(t *testing.T) {
	defer goleak.VerifyNone(t)
	page := browsertest.NewPage()
	box := browser.Box{X: 500, Y: 300, Width: 200, Height: 60}
	page.Set(model.Captcha, browsertest.Element{Box: box})
	page.Set(model.ChallengeFrame, browsertest.Element{})
	var heldAt browser.Point
	page.OnMouseDown = func(p *browsertest.Page, at browser.Point) error {
		heldAt = at
		return nil
	}
	page.OnClick = func(p *browsertest.Page, at browser.Point) error {
		p.Remove(model.Captcha, model.ChallengeFrame)
		return nil
	}
	hs := newHarness(t, page)

	outcome, err := hs.handler.Handle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeCaptcha, outcome)
	assert.Equal(t, []State{AwaitingChallenge, ResolvingCaptcha, Resolved}, hs.transitions)
	assert.Equal(t, box.Center(), heldAt)
	assert.Equal(t, 1, page.ActionCount("mouse up"))
	assert.Zero(t, page.ActionCount("script click"), "popup path must not run")
}

func TestHandle_CaptchaNeverClears(t *testing.T) {
	defer goleak.VerifyNone(t)
	page := browsertest.NewPage()
	page.Set(model.Captcha, browsertest.Element{Box: browser.Box{Width: 100, Height: 40}})
	hs := newHarness(t, page)

	outcome, err := hs.handler.Handle(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCaptchaUnresolved)
	assert.Equal(t, OutcomeCaptcha, outcome)
	assert.Equal(t, Failed, hs.handler.State())
	assert.Equal(t, 1, page.ActionCount("screenshot"))
}

func TestHandle_CaptchaDetectedBeforeLayout(t *testing.T) {
	defer goleak.VerifyNone(t)
	page := browsertest.NewPage()
	page.Set(model.Captcha, browsertest.Element{Hidden: true})
	hs := newHarness(t, page)

	outcome, err := hs.handler.Handle(context.Background())
	assert.Equal(t, OutcomeCaptcha, outcome, "a captcha in the document is not OutcomeNone")
	assert.ErrorIs(t, err, ErrCaptchaUnresolved)
	assert.Equal(t, []State{AwaitingChallenge, ResolvingCaptcha, Failed}, hs.transitions)
}

func TestHandle_HiddenPopupIsNotDetected(t *testing.T) {
	defer goleak.VerifyNone(t)
	page := browsertest.NewPage()
	page.Set(model.PopupDismiss, browsertest.Element{Hidden: true})
	hs := newHarness(t, page)

	outcome, err := hs.handler.Handle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeNone, outcome)
	assert.Zero(t, page.ActionCount("script click"))
}

func TestHandle_FrameWithoutControlFails(t *testing.T) {
	defer goleak.VerifyNone(t)
	page := browsertest.NewPage()
	page.Set(model.ChallengeFrame, browsertest.Element{})
	hs := newHarness(t, page)

	_, err := hs.handler.Handle(context.Background())
	assert.ErrorIs(t, err, ErrCaptchaUnresolved)
	assert.Equal(t, Failed, hs.handler.State())
}

func TestHandle_SingleUse(t *testing.T) {
	defer goleak.VerifyNone(t)
	hs := newHarness(t, browsertest.NewPage())

	_, err := hs.handler.Handle(context.Background())
	require.NoError(t, err)
	_, err = hs.handler.Handle(context.Background())
	assert.ErrorIs(t, err, ErrHandlerUsed)
}

func TestHandle_CancelledContext(t *testing.T) {
	defer goleak.VerifyNone(t)
	hs := newHarness(t, browsertest.NewPage())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := hs.handler.Handle(ctx)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, Failed, hs.handler.State())
}

func TestStateStrings(t *testing.T) {
	assert.Equal(t, "awaiting_challenge", AwaitingChallenge.String())
	assert.Equal(t, "unknown", State(42).String())
	assert.True(t, Failed.Terminal())
	assert.False(t, ResolvingPopup.Terminal())
	assert.Equal(t, "captcha", OutcomeCaptcha.String())

	text, err := OutcomePopup.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "popup", string(text))

	assert.False(t, canTransition(Resolved, Idle))
	assert.True(t, canTransition(AwaitingChallenge, ResolvingCaptcha))
}
