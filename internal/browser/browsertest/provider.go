package browsertest

import (
	"context"
	"sync"
	"time"

	"listingscout/internal/browser"
)

// Provider hands out a fixed fake page as a session and counts lifecycle calls.
type Provider struct {
	mu      sync.Mutex
	page    *Page
	initErr error
	inits   int
	closes  int
	live    bool
}

// NewProvider serves page on every Initialize.
func NewProvider(page *Page) *Provider {
	return &Provider{page: page}
}

// FailInit makes Initialize return err.
func (p *Provider) FailInit(err error) *Provider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.initErr = err
	return p
}

func (p *Provider) Initialize(ctx context.Context) (*browser.Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.inits++
	if p.initErr != nil {
		return nil, p.initErr
	}
	p.live = true
	return &browser.Session{ID: "fake", Page: p.page, Width: 1280, Height: 720, StartedAt: time.Now()}, nil
}

func (p *Provider) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closes++
	p.live = false
}

// Counts returns how many times Initialize and Close ran.
func (p *Provider) Counts() (inits, closes int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.inits, p.closes
}

// Live reports whether a session is open.
func (p *Provider) Live() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.live
}
