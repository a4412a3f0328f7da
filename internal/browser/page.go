package browser

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrTimeout is returned by bounded waits that expire.
var ErrTimeout = errors.New("browser: wait timed out")

// ErrNotFound is returned when a selector or index matches nothing.
var ErrNotFound = errors.New("browser: element not found")

// Point is a viewport coordinate in CSS pixels.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Box is an element's bounding rectangle in viewport coordinates.
type Box struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Center returns the midpoint of the box.
func (b Box) Center() Point {
	return Point{X: b.X + b.Width/2, Y: b.Y + b.Height/2}
}

// Key is a non-printing key the pipeline presses.
type Key string

const (
	KeyEnter     Key = "Enter"
	KeyBackspace Key = "Backspace"
)

// ElementTraits is the rendered state used for honeypot classification.
type ElementTraits struct {
	Tag        string            `json:"tag"`
	Styles     map[string]string `json:"styles"`
	Attributes map[string]string `json:"attributes"`
	Box        Box               `json:"box"`
}

// Page is the set of browser primitives the pipeline drives. Indexed methods
// address the index-th match of selector in document order. Every method that
// talks to the browser is bounded by ctx.
type Page interface {
	Navigate(ctx context.Context, url string) error
	URL(ctx context.Context) (string, error)

	// Navigation runs action and waits, up to timeout, for the navigation it
	// triggers to settle.
	Navigation(ctx context.Context, timeout time.Duration, action func(context.Context) error) error

	WaitVisible(ctx context.Context, selector string, timeout time.Duration) error
	WaitGone(ctx context.Context, timeout time.Duration, selectors ...string) error
	WaitNetworkIdle(ctx context.Context, idle, timeout time.Duration) error

	Has(ctx context.Context, selector string) (bool, error)
	Count(ctx context.Context, selector string) (int, error)
	ElementHTML(ctx context.Context, selector string, index int) (string, error)
	BoundingBox(ctx context.Context, selector string, index int) (Box, error)
	Inspect(ctx context.Context, selector string, index int) (ElementTraits, error)
	ScrollIntoView(ctx context.Context, selector string, index int) error

	// ClickScript dispatches a DOM click on the first match without moving the pointer.
	ClickScript(ctx context.Context, selector string) error
	// ClickByText clicks the first match of selector whose text matches pattern.
	ClickByText(ctx context.Context, selector, pattern string, timeout time.Duration) error

	ScrollTo(ctx context.Context, y float64, smooth bool) error
	ScrollToBottom(ctx context.Context) error

	MouseMove(ctx context.Context, path []Point) error
	MouseDown(ctx context.Context) error
	MouseUp(ctx context.Context) error
	TypeRune(ctx context.Context, r rune) error
	Press(ctx context.Context, key Key) error

	HTML(ctx context.Context) (string, error)
	Text(ctx context.Context, selector string) (string, error)
	Screenshot(ctx context.Context) ([]byte, error)
}

// presencePoll is how often WaitPresent re-checks the document.
const presencePoll = 20 * time.Millisecond

// WaitPresent polls page until selector matches anything in the document,
// laid out or not. It fails with ErrTimeout after timeout.
func WaitPresent(ctx context.Context, page Page, selector string, timeout time.Duration) error {
	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	tick := time.NewTicker(presencePoll)
	defer tick.Stop()
	for {
		if has, err := page.Has(tctx, selector); err == nil && has {
			return nil
		}
		select {
		case <-tctx.Done():
			if err := ctx.Err(); err != nil {
				return err
			}
			return fmt.Errorf("wait present %s: %w", selector, ErrTimeout)
		case <-tick.C:
		}
	}
}
