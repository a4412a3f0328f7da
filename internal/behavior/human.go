// Package behavior produces human-looking input: jittered typing, curved
// pointer motion, idle pauses, and a typo-then-fix sequence.
package behavior

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"listingscout/internal/browser"

	"go.uber.org/zap"
)

// Range is an inclusive duration band a pause is drawn from.
type Range struct {
	Min time.Duration
	Max time.Duration
}

// Fixed is a Range with no spread.
func Fixed(d time.Duration) Range {
	return Range{Min: d, Max: d}
}

func ms(lo, hi int) Range {
	return Range{Min: time.Duration(lo) * time.Millisecond, Max: time.Duration(hi) * time.Millisecond}
}

// Pause bands used across the pipeline.
var (
	ThinkPause   = ms(1000, 2000) // between logical steps
	NoticePause  = ms(800, 1200)  // before correcting a typo
	WanderPause  = ms(200, 600)   // between idle pointer moves
	InspectPause = ms(100, 100)   // after bringing a card into view
)

// TypingProfile is the timing for one typed string: Delay after each key
// event, then an extra Gap before the next one.
type TypingProfile struct {
	Delay Range
	Gap   Range
}

var (
	SearchTyping     = TypingProfile{Delay: ms(100, 300), Gap: ms(10, 60)}
	LocationTyping   = TypingProfile{Delay: ms(100, 300), Gap: ms(50, 150)}
	CorrectionTyping = TypingProfile{Delay: ms(150, 350), Gap: ms(100, 200)}
)

// TypoSuffix replaces the last two characters of a location on first entry.
const TypoSuffix = "alw"

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Sleep is the real-time Sleeper.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Instant is a Sleeper that never waits. Used by tests.
func Instant(ctx context.Context, _ time.Duration) error {
	return ctx.Err()
}

// Option configures a Human.
type Option func(*Human)

// WithRand sets the randomness source.
func WithRand(r *rand.Rand) Option {
	return func(h *Human) { h.rng = r }
}

// WithSleeper replaces the pause implementation.
func WithSleeper(s Sleeper) Option {
	return func(h *Human) { h.sleep = s }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(h *Human) { h.logger = l }
}

// WithStart sets the initial pointer position.
func WithStart(p browser.Point) Option {
	return func(h *Human) { h.pos = p }
}

// Human drives one page with human-looking timing. It tracks the pointer so
// every move starts where the last one ended. Not safe for concurrent use.
type Human struct {
	page   browser.Page
	rng    *rand.Rand
	sleep  Sleeper
	logger *zap.Logger
	pos    browser.Point
}

// New returns a Human for page.
func New(page browser.Page, opts ...Option) *Human {
	h := &Human{
		page:   page,
		sleep:  Sleep,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.rng == nil {
		h.rng = rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), uint64(time.Now().Unix())))
	}
	return h
}

// Page returns the page this Human drives.
func (h *Human) Page() browser.Page {
	return h.page
}

// Position returns the tracked pointer position.
func (h *Human) Position() browser.Point {
	return h.pos
}

// Duration draws a duration from r.
func (h *Human) Duration(r Range) time.Duration {
	if r.Max <= r.Min {
		return r.Min
	}
	return r.Min + time.Duration(h.rng.Int64N(int64(r.Max-r.Min)+1))
}

// IntIn returns an int in [lo, hi].
func (h *Human) IntIn(lo, hi int) int {
	if hi <= lo {
		return lo
	}
	return lo + h.rng.IntN(hi-lo+1)
}

// Float returns a float in [0, 1).
func (h *Human) Float() float64 {
	return h.rng.Float64()
}

// Pause waits for a duration drawn from r.
func (h *Human) Pause(ctx context.Context, r Range) error {
	return h.sleep(ctx, h.Duration(r))
}

// Type sends one key event per rune of text with profile timing.
func (h *Human) Type(ctx context.Context, text string, profile TypingProfile) error {
	for _, r := range text {
		if err := h.page.TypeRune(ctx, r); err != nil {
			return err
		}
		if err := h.Pause(ctx, profile.Delay); err != nil {
			return err
		}
		if err := h.Pause(ctx, profile.Gap); err != nil {
			return err
		}
	}
	return nil
}

// correctionPauses follow each Backspace of a typo fix.
var correctionPauses = []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 300 * time.Millisecond}

// TypeWithCorrection types text with its last two runes replaced by
// TypoSuffix, pauses as if noticing, deletes the suffix, and types the real
// ending. Text shorter than three runes is typed plainly.
func (h *Human) TypeWithCorrection(ctx context.Context, text string) error {
	runes := []rune(text)
	if len(runes) < 3 {
		return h.Type(ctx, text, LocationTyping)
	}
	head, tail := string(runes[:len(runes)-2]), string(runes[len(runes)-2:])

	if err := h.Type(ctx, head+TypoSuffix, LocationTyping); err != nil {
		return err
	}
	if err := h.Pause(ctx, NoticePause); err != nil {
		return err
	}
	for _, d := range correctionPauses {
		if err := h.page.Press(ctx, browser.KeyBackspace); err != nil {
			return err
		}
		if err := h.sleep(ctx, d); err != nil {
			return err
		}
	}
	h.logger.Debug("Corrected typo", zap.Int("deleted", len(correctionPauses)))
	return h.Type(ctx, tail, CorrectionTyping)
}

// clampSteps keeps a move within the 20 to 50 step band.
func clampSteps(steps int) int {
	if steps < 20 {
		return 20
	}
	if steps > 50 {
		return 50
	}
	return steps
}

// Path returns steps points along a quadratic Bézier curve from `from` to
// `to`, bowed by a random control point and eased at both ends. The last
// point is exactly `to`.
func (h *Human) Path(from, to browser.Point, steps int) []browser.Point {
	if steps < 1 {
		steps = 1
	}
	dx, dy := to.X-from.X, to.Y-from.Y
	dist := math.Hypot(dx, dy)
	bow := (h.rng.Float64()*0.6 - 0.3) * dist
	mid := browser.Point{X: (from.X + to.X) / 2, Y: (from.Y + to.Y) / 2}
	ctrl := mid
	if dist > 0 {
		ctrl = browser.Point{X: mid.X - dy/dist*bow, Y: mid.Y + dx/dist*bow}
	}

	path := make([]browser.Point, steps)
	for i := 1; i <= steps; i++ {
		t := float64(i) / float64(steps)
		t = t * t * (3 - 2*t)
		u := 1 - t
		path[i-1] = browser.Point{
			X: u*u*from.X + 2*u*t*ctrl.X + t*t*to.X,
			Y: u*u*from.Y + 2*u*t*ctrl.Y + t*t*to.Y,
		}
	}
	path[steps-1] = to
	return path
}

// MoveTo moves the pointer to `to` along a curved path.
func (h *Human) MoveTo(ctx context.Context, to browser.Point, steps int) error {
	path := h.Path(h.pos, to, clampSteps(steps))
	if err := h.page.MouseMove(ctx, path); err != nil {
		return err
	}
	h.pos = to
	return nil
}

// Jitter is the maximum offset from a target's centre, in pixels.
const Jitter = 5.0

// AimAt returns the centre of box displaced by up to Jitter on each axis.
func (h *Human) AimAt(box browser.Box) browser.Point {
	c := box.Center()
	return browser.Point{
		X: c.X + (h.rng.Float64()*2-1)*Jitter,
		Y: c.Y + (h.rng.Float64()*2-1)*Jitter,
	}
}

// MoveToBox moves the pointer near the centre of box.
func (h *Human) MoveToBox(ctx context.Context, box browser.Box, steps int) error {
	return h.MoveTo(ctx, h.AimAt(box), steps)
}

// Click presses and releases the left button where the pointer is.
func (h *Human) Click(ctx context.Context) error {
	if err := h.page.MouseDown(ctx); err != nil {
		return err
	}
	return h.page.MouseUp(ctx)
}

// ClickAt moves to box and clicks it.
func (h *Human) ClickAt(ctx context.Context, box browser.Box, steps int) error {
	if err := h.MoveToBox(ctx, box, steps); err != nil {
		return err
	}
	return h.Click(ctx)
}

// holdSettle is the pause between arriving on a control and pressing it.
const holdSettle = 500 * time.Millisecond

// HoldAt moves to the exact centre of box, presses, holds for dwell, and
// releases. The button is released even when the hold is interrupted.
func (h *Human) HoldAt(ctx context.Context, box browser.Box, steps int, dwell time.Duration) (err error) {
	if err := h.MoveTo(ctx, box.Center(), steps); err != nil {
		return err
	}
	if err := h.sleep(ctx, holdSettle); err != nil {
		return err
	}
	if err := h.page.MouseDown(ctx); err != nil {
		return err
	}
	defer func() {
		upErr := h.page.MouseUp(context.WithoutCancel(ctx))
		if err == nil {
			err = upErr
		}
	}()
	return h.sleep(ctx, dwell)
}

// Wander makes 3 to 6 idle pointer moves inside a width x height viewport.
func (h *Human) Wander(ctx context.Context, width, height int) error {
	moves := h.IntIn(3, 6)
	for i := 0; i < moves; i++ {
		to := browser.Point{
			X: h.rng.Float64() * float64(width),
			Y: h.rng.Float64() * float64(height),
		}
		if err := h.MoveTo(ctx, to, h.IntIn(25, 50)); err != nil {
			return err
		}
		if err := h.Pause(ctx, WanderPause); err != nil {
			return err
		}
	}
	h.logger.Debug("Wandered", zap.Int("moves", moves))
	return nil
}

// ScrollRandom smooth-scrolls to a random offset in [0, limit).
func (h *Human) ScrollRandom(ctx context.Context, limit int) error {
	if limit <= 0 {
		return nil
	}
	return h.page.ScrollTo(ctx, math.Floor(h.rng.Float64()*float64(limit)), true)
}
