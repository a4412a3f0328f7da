package browser

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"
)

// RodPage adapts a *rod.Page to Page.
type RodPage struct {
	page              *rod.Page
	navigationTimeout time.Duration
	logger            *zap.Logger
}

// NewRodPage wraps page. navigationTimeout bounds Navigate.
func NewRodPage(page *rod.Page, navigationTimeout time.Duration, logger *zap.Logger) *RodPage {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RodPage{page: page, navigationTimeout: navigationTimeout, logger: logger}
}

func (p *RodPage) bounded(ctx context.Context, timeout time.Duration) (*rod.Page, context.Context, context.CancelFunc) {
	tctx, cancel := context.WithTimeout(ctx, timeout)
	return p.page.Context(tctx), tctx, cancel
}

// waitErr maps a rod failure under a bounded context to ErrTimeout when the
// bound, not the caller, expired.
func waitErr(parent, bounded context.Context, what string, err error) error {
	if err == nil {
		return nil
	}
	if parent.Err() == nil && errors.Is(bounded.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", what, ErrTimeout)
	}
	return fmt.Errorf("%s: %w", what, err)
}

func (p *RodPage) Navigate(ctx context.Context, url string) error {
	page, tctx, cancel := p.bounded(ctx, p.navigationTimeout)
	defer cancel()
	if err := page.Navigate(url); err != nil {
		return waitErr(ctx, tctx, "navigate "+url, err)
	}
	if url == "about:blank" {
		return nil
	}
	return waitErr(ctx, tctx, "wait load "+url, page.WaitLoad())
}

func (p *RodPage) URL(ctx context.Context) (string, error) {
	info, err := p.page.Context(ctx).Info()
	if err != nil {
		return "", fmt.Errorf("page info: %w", err)
	}
	return info.URL, nil
}

func (p *RodPage) Navigation(ctx context.Context, timeout time.Duration, action func(context.Context) error) error {
	page, tctx, cancel := p.bounded(ctx, timeout)
	defer cancel()

	wait := page.WaitNavigation(proto.PageLifecycleEventNameNetworkAlmostIdle)
	if err := action(tctx); err != nil {
		return err
	}
	wait()
	if tctx.Err() != nil {
		return waitErr(ctx, tctx, "navigation", tctx.Err())
	}
	return nil
}

func (p *RodPage) WaitVisible(ctx context.Context, selector string, timeout time.Duration) error {
	page, tctx, cancel := p.bounded(ctx, timeout)
	defer cancel()
	el, err := page.Element(selector)
	if err != nil {
		return waitErr(ctx, tctx, "wait "+selector, err)
	}
	return waitErr(ctx, tctx, "wait visible "+selector, el.WaitVisible())
}

func (p *RodPage) WaitGone(ctx context.Context, timeout time.Duration, selectors ...string) error {
	page, tctx, cancel := p.bounded(ctx, timeout)
	defer cancel()
	err := page.Wait(rod.Eval(`(sels) => sels.every((s) => !document.querySelector(s))`, selectors))
	return waitErr(ctx, tctx, "wait gone", err)
}

func (p *RodPage) WaitNetworkIdle(ctx context.Context, idle, timeout time.Duration) error {
	page, tctx, cancel := p.bounded(ctx, timeout)
	defer cancel()
	page.WaitRequestIdle(idle, nil, nil, nil)()
	if tctx.Err() != nil {
		return waitErr(ctx, tctx, "network idle", tctx.Err())
	}
	return nil
}

func (p *RodPage) Has(ctx context.Context, selector string) (bool, error) {
	has, _, err := p.page.Context(ctx).Has(selector)
	if err != nil {
		return false, fmt.Errorf("has %s: %w", selector, err)
	}
	return has, nil
}

func (p *RodPage) Count(ctx context.Context, selector string) (int, error) {
	els, err := p.page.Context(ctx).Elements(selector)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", selector, err)
	}
	return len(els), nil
}

func (p *RodPage) nth(ctx context.Context, selector string, index int) (*rod.Element, error) {
	els, err := p.page.Context(ctx).Elements(selector)
	if err != nil {
		return nil, fmt.Errorf("elements %s: %w", selector, err)
	}
	if index < 0 || index >= len(els) {
		return nil, fmt.Errorf("%s[%d]: %w", selector, index, ErrNotFound)
	}
	return els[index], nil
}

func (p *RodPage) ElementHTML(ctx context.Context, selector string, index int) (string, error) {
	el, err := p.nth(ctx, selector, index)
	if err != nil {
		return "", err
	}
	return el.HTML()
}

func (p *RodPage) BoundingBox(ctx context.Context, selector string, index int) (Box, error) {
	el, err := p.nth(ctx, selector, index)
	if err != nil {
		return Box{}, err
	}
	shape, err := el.Shape()
	if err != nil {
		return Box{}, fmt.Errorf("shape %s: %w", selector, err)
	}
	rect := shape.Box()
	if rect == nil {
		return Box{}, fmt.Errorf("%s has no layout box: %w", selector, ErrNotFound)
	}
	return Box{X: rect.X, Y: rect.Y, Width: rect.Width, Height: rect.Height}, nil
}

const inspectScript = `() => {
	const styles = window.getComputedStyle(this);
	const attrs = {};
	for (const attr of this.attributes) {
		attrs[attr.name] = attr.value;
	}
	const rect = this.getBoundingClientRect();
	return {
		tag: this.tagName.toLowerCase(),
		styles: {
			display: styles.display,
			visibility: styles.visibility,
			opacity: styles.opacity,
			pointerEvents: styles.pointerEvents,
		},
		attrs: attrs,
		box: {x: rect.x, y: rect.y, width: rect.width, height: rect.height},
	};
}`

func (p *RodPage) Inspect(ctx context.Context, selector string, index int) (ElementTraits, error) {
	el, err := p.nth(ctx, selector, index)
	if err != nil {
		return ElementTraits{}, err
	}
	res, err := el.Eval(inspectScript)
	if err != nil {
		return ElementTraits{}, fmt.Errorf("inspect %s: %w", selector, err)
	}
	v := res.Value
	box := v.Get("box")
	traits := ElementTraits{
		Tag:        v.Get("tag").Str(),
		Styles:     make(map[string]string),
		Attributes: make(map[string]string),
		Box: Box{
			X:      box.Get("x").Num(),
			Y:      box.Get("y").Num(),
			Width:  box.Get("width").Num(),
			Height: box.Get("height").Num(),
		},
	}
	for k, s := range v.Get("styles").Map() {
		traits.Styles[k] = s.Str()
	}
	for k, a := range v.Get("attrs").Map() {
		traits.Attributes[k] = a.Str()
	}
	return traits, nil
}

func (p *RodPage) ScrollIntoView(ctx context.Context, selector string, index int) error {
	el, err := p.nth(ctx, selector, index)
	if err != nil {
		return err
	}
	_, err = el.Eval(`() => this.scrollIntoView({behavior: 'smooth', block: 'center'})`)
	return err
}

func (p *RodPage) ClickScript(ctx context.Context, selector string) error {
	el, err := p.nth(ctx, selector, 0)
	if err != nil {
		return err
	}
	_, err = el.Eval(`() => this.click()`)
	return err
}

func (p *RodPage) ClickByText(ctx context.Context, selector, pattern string, timeout time.Duration) error {
	page, tctx, cancel := p.bounded(ctx, timeout)
	defer cancel()
	el, err := page.ElementR(selector, pattern)
	if err != nil {
		return waitErr(ctx, tctx, "find "+selector+" /"+pattern+"/", err)
	}
	return el.Click(proto.InputMouseButtonLeft, 1)
}

func (p *RodPage) ScrollTo(ctx context.Context, y float64, smooth bool) error {
	_, err := p.page.Context(ctx).Eval(`(y, smooth) => window.scrollTo({top: y, behavior: smooth ? 'smooth' : 'auto'})`, y, smooth)
	return err
}

func (p *RodPage) ScrollToBottom(ctx context.Context) error {
	_, err := p.page.Context(ctx).Eval(`() => window.scrollTo(0, document.body.scrollHeight)`)
	return err
}

func (p *RodPage) MouseMove(ctx context.Context, path []Point) error {
	for _, pt := range path {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := p.page.Mouse.MoveTo(proto.Point{X: pt.X, Y: pt.Y}); err != nil {
			return fmt.Errorf("mouse move: %w", err)
		}
	}
	return nil
}

func (p *RodPage) MouseDown(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return p.page.Mouse.Down(proto.InputMouseButtonLeft, 1)
}

func (p *RodPage) MouseUp(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return p.page.Mouse.Up(proto.InputMouseButtonLeft, 1)
}

// TypeRune sends printable ASCII as real key events and inserts anything else
// as text, since the keyboard map only covers a US layout.
func (p *RodPage) TypeRune(ctx context.Context, r rune) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if r >= ' ' && r <= '~' {
		return p.page.Keyboard.Type(input.Key(r))
	}
	return p.page.InsertText(string(r))
}

func (p *RodPage) Press(ctx context.Context, key Key) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	switch key {
	case KeyEnter:
		return p.page.Keyboard.Type(input.Enter)
	case KeyBackspace:
		return p.page.Keyboard.Type(input.Backspace)
	default:
		return fmt.Errorf("unsupported key %q", key)
	}
}

func (p *RodPage) HTML(ctx context.Context) (string, error) {
	return p.page.Context(ctx).HTML()
}

func (p *RodPage) Text(ctx context.Context, selector string) (string, error) {
	el, err := p.nth(ctx, selector, 0)
	if err != nil {
		return "", err
	}
	return el.Text()
}

func (p *RodPage) Screenshot(ctx context.Context) ([]byte, error) {
	return p.page.Context(ctx).Screenshot(true, nil)
}

// Close closes the underlying page.
func (p *RodPage) Close() error {
	return p.page.Close()
}
