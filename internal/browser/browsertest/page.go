// Package browsertest provides a scripted in-memory browser.Page for tests of
// the pipeline layers above the browser.
package browsertest

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"listingscout/internal/browser"
)

// pollInterval is how often waits re-check the scripted DOM.
const pollInterval = 2 * time.Millisecond

// Element is one scripted DOM match.
type Element struct {
	HTML   string
	Text   string
	Box    browser.Box
	Hidden bool
	Traits *browser.ElementTraits
}

// Page is a fake browser.Page. Tests script the DOM with Set/Remove and react
// to input through the On* hooks, which run without the page lock held so
// they may mutate the page.
type Page struct {
	mu        sync.Mutex
	url       string
	document  string
	dom       map[string][]Element
	actions   []string
	visits    []string
	typed     []rune
	mouse     browser.Point
	moves     int
	failures  map[string]error
	navErr    error
	scrollTop float64

	OnNavigate     func(p *Page, url string) error
	OnPress        func(p *Page, key browser.Key) error
	OnClick        func(p *Page, at browser.Point) error
	OnScriptClick  func(p *Page, selector string) error
	OnScrollBottom func(p *Page) error
	OnMouseDown    func(p *Page, at browser.Point) error

	// Hang reports URLs whose Navigate never completes; it blocks until ctx ends.
	Hang func(url string) bool
}

// NewPage returns an empty page at about:blank.
func NewPage() *Page {
	return &Page{
		url:      "about:blank",
		dom:      make(map[string][]Element),
		failures: make(map[string]error),
	}
}

var _ browser.Page = (*Page)(nil)

// Set replaces the matches for selector.
func (p *Page) Set(selector string, elems ...Element) *Page {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dom[selector] = elems
	return p
}

// Remove deletes every match for the given selectors.
func (p *Page) Remove(selectors ...string) *Page {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, s := range selectors {
		delete(p.dom, s)
	}
	return p
}

// SetDocument sets what HTML returns.
func (p *Page) SetDocument(html string) *Page {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.document = html
	return p
}

// SetURL moves the page without recording a navigation.
func (p *Page) SetURL(url string) *Page {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.url = url
	return p
}

// Fail makes method return err until cleared with a nil err.
func (p *Page) Fail(method string, err error) *Page {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err == nil {
		delete(p.failures, method)
	} else {
		p.failures[method] = err
	}
	return p
}

// FailNavigation makes Navigation run its action and then report err.
func (p *Page) FailNavigation(err error) *Page {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.navErr = err
	return p
}

// Actions returns the recorded action log.
func (p *Page) Actions() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.actions...)
}

// ActionCount counts recorded actions with the given prefix.
func (p *Page) ActionCount(prefix string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, a := range p.actions {
		if strings.HasPrefix(a, prefix) {
			n++
		}
	}
	return n
}

// Visits returns every URL passed to Navigate, in order.
func (p *Page) Visits() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.visits...)
}

// Typed returns the text currently in the focused field.
func (p *Page) Typed() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return string(p.typed)
}

// ClearTyped empties the focused field.
func (p *Page) ClearTyped() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.typed = nil
}

// Mouse returns the pointer position and the number of move steps taken.
func (p *Page) Mouse() (browser.Point, int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.mouse, p.moves
}

func (p *Page) record(format string, args ...any) {
	p.actions = append(p.actions, fmt.Sprintf(format, args...))
}

// begin records an action and returns any scripted failure for method.
func (p *Page) begin(ctx context.Context, method, format string, args ...any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record(format, args...)
	return p.failures[method]
}

func (p *Page) visible(selector string) bool {
	for _, el := range p.dom[selector] {
		if !el.Hidden {
			return true
		}
	}
	return false
}

func (p *Page) poll(ctx context.Context, timeout time.Duration, what string, done func() bool) error {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	tick := time.NewTicker(pollInterval)
	defer tick.Stop()
	for {
		p.mu.Lock()
		ok := done()
		p.mu.Unlock()
		if ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return fmt.Errorf("%s: %w", what, browser.ErrTimeout)
		case <-tick.C:
		}
	}
}

func (p *Page) Navigate(ctx context.Context, url string) error {
	if err := p.begin(ctx, "Navigate", "navigate %s", url); err != nil {
		return err
	}
	p.mu.Lock()
	p.url = url
	p.visits = append(p.visits, url)
	hook, hang := p.OnNavigate, p.Hang
	p.mu.Unlock()
	if hang != nil && hang(url) {
		<-ctx.Done()
		return ctx.Err()
	}
	if hook != nil {
		return hook(p, url)
	}
	return nil
}

func (p *Page) URL(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url, nil
}

func (p *Page) Navigation(ctx context.Context, timeout time.Duration, action func(context.Context) error) error {
	if err := p.begin(ctx, "Navigation", "navigation"); err != nil {
		return err
	}
	if err := action(ctx); err != nil {
		return err
	}
	p.mu.Lock()
	err := p.navErr
	p.mu.Unlock()
	return err
}

func (p *Page) WaitVisible(ctx context.Context, selector string, timeout time.Duration) error {
	if err := p.begin(ctx, "WaitVisible", "wait visible %s", selector); err != nil {
		return err
	}
	return p.poll(ctx, timeout, "wait visible "+selector, func() bool { return p.visible(selector) })
}

func (p *Page) WaitGone(ctx context.Context, timeout time.Duration, selectors ...string) error {
	if err := p.begin(ctx, "WaitGone", "wait gone %s", strings.Join(selectors, ",")); err != nil {
		return err
	}
	return p.poll(ctx, timeout, "wait gone", func() bool {
		for _, s := range selectors {
			if len(p.dom[s]) > 0 {
				return false
			}
		}
		return true
	})
}

func (p *Page) WaitNetworkIdle(ctx context.Context, idle, timeout time.Duration) error {
	return p.begin(ctx, "WaitNetworkIdle", "network idle")
}

func (p *Page) Has(ctx context.Context, selector string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.failures["Has"]; err != nil {
		return false, err
	}
	return len(p.dom[selector]) > 0, nil
}

func (p *Page) Count(ctx context.Context, selector string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.failures["Count"]; err != nil {
		return 0, err
	}
	return len(p.dom[selector]), nil
}

func (p *Page) element(selector string, index int) (Element, error) {
	els := p.dom[selector]
	if index < 0 || index >= len(els) {
		return Element{}, fmt.Errorf("%s[%d]: %w", selector, index, browser.ErrNotFound)
	}
	return els[index], nil
}

func (p *Page) ElementHTML(ctx context.Context, selector string, index int) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.failures["ElementHTML"]; err != nil {
		return "", err
	}
	el, err := p.element(selector, index)
	return el.HTML, err
}

func (p *Page) BoundingBox(ctx context.Context, selector string, index int) (browser.Box, error) {
	if err := ctx.Err(); err != nil {
		return browser.Box{}, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.failures["BoundingBox"]; err != nil {
		return browser.Box{}, err
	}
	el, err := p.element(selector, index)
	return el.Box, err
}

func (p *Page) Inspect(ctx context.Context, selector string, index int) (browser.ElementTraits, error) {
	if err := ctx.Err(); err != nil {
		return browser.ElementTraits{}, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	el, err := p.element(selector, index)
	if err != nil {
		return browser.ElementTraits{}, err
	}
	if el.Traits != nil {
		return *el.Traits, nil
	}
	display := "block"
	if el.Hidden {
		display = "none"
	}
	return browser.ElementTraits{
		Tag:        "a",
		Styles:     map[string]string{"display": display, "visibility": "visible", "opacity": "1"},
		Attributes: map[string]string{},
		Box:        el.Box,
	}, nil
}

func (p *Page) ScrollIntoView(ctx context.Context, selector string, index int) error {
	return p.begin(ctx, "ScrollIntoView", "scroll into view %s[%d]", selector, index)
}

func (p *Page) ClickScript(ctx context.Context, selector string) error {
	if err := p.begin(ctx, "ClickScript", "script click %s", selector); err != nil {
		return err
	}
	p.mu.Lock()
	_, err := p.element(selector, 0)
	hook := p.OnScriptClick
	p.mu.Unlock()
	if err != nil {
		return err
	}
	if hook != nil {
		return hook(p, selector)
	}
	return nil
}

func (p *Page) ClickByText(ctx context.Context, selector, pattern string, timeout time.Duration) error {
	if err := p.begin(ctx, "ClickByText", "click text %s /%s/", selector, pattern); err != nil {
		return err
	}
	re, err := compileJSRegex(pattern)
	if err != nil {
		return err
	}
	err = p.poll(ctx, timeout, "click text "+selector, func() bool {
		for _, el := range p.dom[selector] {
			if re.MatchString(el.Text) {
				return true
			}
		}
		return false
	})
	if err != nil {
		return err
	}
	p.mu.Lock()
	hook := p.OnScriptClick
	p.mu.Unlock()
	if hook != nil {
		return hook(p, selector)
	}
	return nil
}

func (p *Page) ScrollTo(ctx context.Context, y float64, smooth bool) error {
	if err := p.begin(ctx, "ScrollTo", "scroll to %.0f", y); err != nil {
		return err
	}
	p.mu.Lock()
	p.scrollTop = y
	p.mu.Unlock()
	return nil
}

// ScrollTop returns the last ScrollTo offset.
func (p *Page) ScrollTop() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.scrollTop
}

func (p *Page) ScrollToBottom(ctx context.Context) error {
	if err := p.begin(ctx, "ScrollToBottom", "scroll bottom"); err != nil {
		return err
	}
	p.mu.Lock()
	hook := p.OnScrollBottom
	p.mu.Unlock()
	if hook != nil {
		return hook(p)
	}
	return nil
}

func (p *Page) MouseMove(ctx context.Context, path []browser.Point) error {
	if err := p.begin(ctx, "MouseMove", "mouse move %d", len(path)); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(path) > 0 {
		p.mouse = path[len(path)-1]
	}
	p.moves += len(path)
	return nil
}

func (p *Page) MouseDown(ctx context.Context) error {
	if err := p.begin(ctx, "MouseDown", "mouse down"); err != nil {
		return err
	}
	p.mu.Lock()
	at, hook := p.mouse, p.OnMouseDown
	p.mu.Unlock()
	if hook != nil {
		return hook(p, at)
	}
	return nil
}

func (p *Page) MouseUp(ctx context.Context) error {
	if err := p.begin(ctx, "MouseUp", "mouse up"); err != nil {
		return err
	}
	p.mu.Lock()
	at, hook := p.mouse, p.OnClick
	p.mu.Unlock()
	if hook != nil {
		return hook(p, at)
	}
	return nil
}

func (p *Page) TypeRune(ctx context.Context, r rune) error {
	if err := p.begin(ctx, "TypeRune", "type %q", r); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.typed = append(p.typed, r)
	return nil
}

func (p *Page) Press(ctx context.Context, key browser.Key) error {
	if err := p.begin(ctx, "Press", "press %s", key); err != nil {
		return err
	}
	p.mu.Lock()
	if key == browser.KeyBackspace && len(p.typed) > 0 {
		p.typed = p.typed[:len(p.typed)-1]
	}
	hook := p.OnPress
	p.mu.Unlock()
	if hook != nil {
		return hook(p, key)
	}
	return nil
}

func (p *Page) HTML(ctx context.Context) (string, error) {
	if err := p.begin(ctx, "HTML", "html"); err != nil {
		return "", err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.document, nil
}

func (p *Page) Text(ctx context.Context, selector string) (string, error) {
	if err := p.begin(ctx, "Text", "text %s", selector); err != nil {
		return "", err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	el, err := p.element(selector, 0)
	return el.Text, err
}

func (p *Page) Screenshot(ctx context.Context) ([]byte, error) {
	if err := p.begin(ctx, "Screenshot", "screenshot"); err != nil {
		return nil, err
	}
	return []byte("\x89PNG fake"), nil
}

// compileJSRegex accepts a JS regex literal such as /^next$/i, or a bare
// pattern, and compiles the Go equivalent.
func compileJSRegex(pattern string) (*regexp.Regexp, error) {
	if strings.HasPrefix(pattern, "/") {
		if end := strings.LastIndex(pattern, "/"); end > 0 {
			body, flags := pattern[1:end], pattern[end+1:]
			if strings.Contains(flags, "i") {
				body = "(?i)" + body
			}
			pattern = body
		}
	}
	return regexp.Compile(pattern)
}
