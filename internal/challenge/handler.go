// Package challenge detects and clears the interstitial a listing site may
// put between a navigation and its content: a dismissible popup or a
// press-and-hold captcha.
package challenge

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

var (
	// ErrCaptchaUnresolved means the hold did not clear the captcha in time.
	ErrCaptchaUnresolved = errors.New("captcha unresolved")
	// ErrHandlerUsed is returned when a Handler is run a second time.
	ErrHandlerUsed = errors.New("challenge handler already ran")
)

// Config holds the bounds for every wait in the state machine.
type Config struct {
	DetectTimeout  time.Duration
	PopupTimeout   time.Duration
	IdleQuiet      time.Duration
	IdleTimeout    time.Duration
	Settle         time.Duration
	CaptchaVisible time.Duration
	HoldDuration   time.Duration
	HoldSteps      int
	ClearTimeout   time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		DetectTimeout:  5 * time.Second,
		PopupTimeout:   10 * time.Second,
		IdleQuiet:      time.Second,
		IdleTimeout:    10 * time.Second,
		Settle:         2 * time.Second,
		CaptchaVisible: 10 * time.Second,
		HoldDuration:   10 * time.Second,
		HoldSteps:      50,
		ClearTimeout:   15 * time.Second,
	}
}

// Handler resolves the interstitial after one navigation. It is single use.
type Handler struct {
	page   browser.Page
	human  *behavior.Human
	model  sites.Zillow
	cfg    Config
	snap   *browser.Snapshotter
	logger *zap.Logger
	state  State

	// OnTransition, when set, observes every state change.
	OnTransition func(from, to State)
}

// NewHandler returns a Handler in the Idle state.
func NewHandler(human *behavior.Human, model sites.Zillow, cfg Config, snap *browser.Snapshotter, logger *zap.Logger) *Handler {
	return &Handler{
		page:   human.Page(),
		human:  human,
		model:  model,
		cfg:    cfg,
		snap:   snap,
		logger: logging.OrNop(logger),
		state:  Idle,
	}
}

// State returns the current state.
func (h *Handler) State() State {
	return h.state
}

func (h *Handler) transition(to State) {
	from := h.state
	if !canTransition(from, to) {
		h.logger.Error("Illegal challenge transition", zap.Stringer("from", from), zap.Stringer("to", to))
		return
	}
	h.state = to
	h.logger.Debug("Challenge transition",
		zap.String(logging.EventKey, string(logging.AuditChallengeTransition)),
		zap.Stringer("from", from),
		zap.Stringer("to", to))
	if h.OnTransition != nil {
		h.OnTransition(from, to)
	}
}

// Handle detects which interstitial, if any, is up and resolves it. Finding
// nothing within the detection window is OutcomeNone with no error. A popup
// that cannot be dismissed is logged and tolerated; a captcha that cannot be
// cleared fails with ErrCaptchaUnresolved.
func (h *Handler) Handle(ctx context.Context) (Outcome, error) {
	if h.state != Idle {
		return OutcomeNone, ErrHandlerUsed
	}
	h.transition(AwaitingChallenge)

	outcome, err := h.detect(ctx)
	if err != nil {
		h.transition(Failed)
		return OutcomeNone, err
	}
	logging.Audit(h.logger, logging.AuditChallengeOutcome, zap.Stringer("outcome", outcome))

	switch outcome {
	case OutcomePopup:
		h.transition(ResolvingPopup)
		if err := h.resolvePopup(ctx); err != nil {
			if ctx.Err() != nil {
				h.transition(Failed)
				return outcome, ctx.Err()
			}
			h.logger.Warn("Popup resolution failed, continuing", zap.Error(err))
			h.snap.Screenshot(ctx, h.page, "challenge-detection-failed")
		}
		h.transition(Resolved)
	case OutcomeCaptcha:
		h.transition(ResolvingCaptcha)
		if err := h.Bypass(ctx); err != nil {
			h.transition(Failed)
			h.snap.Screenshot(ctx, h.page, "challenge-detection-failed")
			return outcome, err
		}
		h.transition(Resolved)
	default:
		h.transition(Resolved)
	}
	return outcome, nil
}

// detect races the three interstitial detectors. The popup counts once it is
// visible; the captcha parts count as soon as they are in the document,
// before they are laid out. Only a cancelled caller context is an error.
func (h *Handler) detect(ctx context.Context) (Outcome, error) {
	visible := func(selector string, outcome Outcome) func(context.Context) (Outcome, error) {
		return func(ctx context.Context) (Outcome, error) {
			if err := h.page.WaitVisible(ctx, selector, h.cfg.DetectTimeout); err != nil {
				return OutcomeNone, err
			}
			return outcome, nil
		}
	}
	present := func(selector string, outcome Outcome) func(context.Context) (Outcome, error) {
		return func(ctx context.Context) (Outcome, error) {
			if err := browser.WaitPresent(ctx, h.page, selector, h.cfg.DetectTimeout); err != nil {
				return OutcomeNone, err
			}
			return outcome, nil
		}
	}

	res, err := browser.Race(ctx,
		browser.Contender[Outcome]{Name: "popup", Run: visible(h.model.PopupDismiss, OutcomePopup)},
		browser.Contender[Outcome]{Name: "captcha", Run: present(h.model.Captcha, OutcomeCaptcha)},
		browser.Contender[Outcome]{Name: "challenge-frame", Run: present(h.model.ChallengeFrame, OutcomeCaptcha)},
	)
	if err != nil {
		if ctx.Err() != nil {
			return OutcomeNone, ctx.Err()
		}
		h.logger.Debug("No interstitial detected", zap.Error(err))
		return OutcomeNone, nil
	}
	h.logger.Info("Interstitial detected", zap.String("detector", res.Winner), zap.Stringer("outcome", res.Value))
	return res.Value, nil
}

// resolvePopup clicks the dismiss button by script, since dismissal does not
// always navigate, then waits for the popup to go or content to show.
func (h *Handler) resolvePopup(ctx context.Context) error {
	if err := h.page.ClickScript(ctx, h.model.PopupDismiss); err != nil {
		return fmt.Errorf("dismiss popup: %w", err)
	}

	res, err := browser.Race(ctx,
		browser.Contender[struct{}]{Name: "popup-gone", Run: func(ctx context.Context) (struct{}, error) {
			return struct{}{}, h.page.WaitGone(ctx, h.cfg.PopupTimeout, h.model.PopupAny)
		}},
		browser.Contender[struct{}]{Name: "content-visible", Run: func(ctx context.Context) (struct{}, error) {
			return struct{}{}, h.page.WaitVisible(ctx, h.model.PropertyCard, h.cfg.PopupTimeout)
		}},
	)
	if err != nil {
		return fmt.Errorf("popup did not clear: %w", err)
	}
	h.logger.Debug("Popup cleared", zap.String("signal", res.Winner))

	if err := h.page.WaitNetworkIdle(ctx, h.cfg.IdleQuiet, h.cfg.IdleTimeout); err != nil {
		h.logger.Debug("Network never went quiet after popup", zap.Error(err))
	}
	return h.human.Pause(ctx, behavior.Fixed(h.cfg.Settle))
}

// Bypass presses and holds the captcha control, then waits for every captcha
// element to leave the document.
func (h *Handler) Bypass(ctx context.Context) error {
	if err := h.page.WaitVisible(ctx, h.model.Captcha, h.cfg.CaptchaVisible); err != nil {
		return fmt.Errorf("%w: control not visible: %v", ErrCaptchaUnresolved, err)
	}
	box, err := h.page.BoundingBox(ctx, h.model.Captcha, 0)
	if err != nil {
		return fmt.Errorf("%w: control has no box: %v", ErrCaptchaUnresolved, err)
	}

	h.logger.Info("Holding captcha control", zap.Duration("dwell", h.cfg.HoldDuration))
	if err := h.human.HoldAt(ctx, box, h.cfg.HoldSteps, h.cfg.HoldDuration); err != nil {
		return fmt.Errorf("%w: hold interrupted: %v", ErrCaptchaUnresolved, err)
	}

	if err := h.page.WaitGone(ctx, h.cfg.ClearTimeout, h.model.CaptchaSelectors()...); err != nil {
		return fmt.Errorf("%w: still present after hold: %v", ErrCaptchaUnresolved, err)
	}
	h.logger.Info("Captcha cleared")
	return nil
}
