// Package browser owns the Chromium process behind every workflow: launch,
// fingerprint profile, the primary page, and teardown.
package browser

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrBrowserInit wraps every launch, connect, or fingerprint failure.
var ErrBrowserInit = errors.New("browser initialization failed")

// Session is the single live browser and its primary page.
type Session struct {
	ID        string
	Page      Page
	Width     int
	Height    int
	StartedAt time.Time
}

// Config holds browser configuration.
type Config struct {
	DebuggerURL         string   `json:"debugger_url"`
	Bin                 string   `json:"bin"`
	Headless            bool     `json:"headless"`
	BaseWidth           int      `json:"base_width"`
	BaseHeight          int      `json:"base_height"`
	WindowJitter        int      `json:"window_jitter"`
	UserAgent           string   `json:"user_agent"`
	NavigationTimeoutMs int      `json:"navigation_timeout_ms"`
	ExtraFlags          []string `json:"extra_flags"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Headless:            true,
		BaseWidth:           1280,
		BaseHeight:          720,
		WindowJitter:        100,
		NavigationTimeoutMs: 30000,
	}
}

// GetBaseWidth returns the window width before jitter.
func (c Config) GetBaseWidth() int {
	if c.BaseWidth == 0 {
		return 1280
	}
	return c.BaseWidth
}

// GetBaseHeight returns the window height before jitter.
func (c Config) GetBaseHeight() int {
	if c.BaseHeight == 0 {
		return 720
	}
	return c.BaseHeight
}

// NavigationTimeout returns the navigation timeout.
func (c Config) NavigationTimeout() time.Duration {
	if c.NavigationTimeoutMs == 0 {
		return 30 * time.Second
	}
	return time.Duration(c.NavigationTimeoutMs) * time.Millisecond
}

// SessionManager owns at most one browser and its primary page.
type SessionManager struct {
	cfg    Config
	logger *zap.Logger

	mu       sync.Mutex
	rng      *rand.Rand
	launcher *launcher.Launcher
	browser  *rod.Browser
	page     *rod.Page
	session  *Session
}

// NewSessionManager creates a new session manager.
func NewSessionManager(cfg Config, logger *zap.Logger) *SessionManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionManager{
		cfg:    cfg,
		logger: logger,
		rng:    rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x5c0a7)),
	}
}

// WithRand replaces the jitter source. Used by tests.
func (m *SessionManager) WithRand(r *rand.Rand) *SessionManager {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rng = r
	return m
}

// WindowSize picks a window size inside the configured jitter band.
func (m *SessionManager) WindowSize() (int, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.windowSizeLocked()
}

func (m *SessionManager) windowSizeLocked() (int, int) {
	w, h := m.cfg.GetBaseWidth(), m.cfg.GetBaseHeight()
	if m.cfg.WindowJitter > 0 {
		w += m.rng.IntN(m.cfg.WindowJitter)
		h += m.rng.IntN(m.cfg.WindowJitter)
	}
	return w, h
}

// Active returns the live session, if any.
func (m *SessionManager) Active() (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session, m.session != nil
}

// Initialize launches a browser with the fingerprint profile applied and
// returns its session. A live session is closed first.
func (m *SessionManager) Initialize(ctx context.Context) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session != nil {
		m.logger.Warn("Initialize called with a live session, closing it first",
			zap.String("session", m.session.ID))
		m.closeLocked()
	}

	width, height := m.windowSizeLocked()

	// The browser outlives the call that created it; Close owns teardown.
	bctx := context.WithoutCancel(ctx)

	controlURL := m.cfg.DebuggerURL
	if controlURL == "" {
		l := m.newLauncher(width, height)
		url, err := l.Context(ctx).Launch()
		if err != nil {
			l.Kill()
			return nil, fmt.Errorf("%w: launch chrome: %v", ErrBrowserInit, err)
		}
		m.launcher = l
		controlURL = url
	}

	b := rod.New().ControlURL(controlURL).Context(bctx)
	if err := b.Connect(); err != nil {
		m.closeLocked()
		return nil, fmt.Errorf("%w: connect to chrome: %v", ErrBrowserInit, err)
	}
	m.browser = b

	page, err := stealth.Page(b)
	if err != nil {
		m.closeLocked()
		return nil, fmt.Errorf("%w: create page: %v", ErrBrowserInit, err)
	}
	m.page = page

	if err := m.applyProfile(page, width, height); err != nil {
		m.closeLocked()
		return nil, fmt.Errorf("%w: %v", ErrBrowserInit, err)
	}

	m.session = &Session{
		ID:        uuid.NewString(),
		Page:      NewRodPage(page, m.cfg.NavigationTimeout(), m.logger),
		Width:     width,
		Height:    height,
		StartedAt: time.Now(),
	}
	m.logger.Info("Browser session started",
		zap.String("session", m.session.ID),
		zap.Int("width", width),
		zap.Int("height", height),
		zap.Bool("headless", m.cfg.Headless))
	return m.session, nil
}

func (m *SessionManager) newLauncher(width, height int) *launcher.Launcher {
	l := launcher.New().
		Headless(m.cfg.Headless).
		NoSandbox(true).
		Set(flags.Flag("disable-blink-features"), "AutomationControlled").
		Set(flags.Flag("window-size"), fmt.Sprintf("%d,%d", width, height)).
		Set(flags.Flag("disable-notifications"))
	if ua := m.userAgent(); ua != "" {
		l = l.Set(flags.Flag("user-agent"), ua)
	}
	if m.cfg.Bin != "" {
		l = l.Bin(m.cfg.Bin)
	}
	for _, rawFlag := range m.cfg.ExtraFlags {
		flagStr := strings.TrimLeft(rawFlag, "-")
		name, val, hasVal := strings.Cut(flagStr, "=")
		if hasVal {
			l = l.Set(flags.Flag(name), val)
		} else {
			l = l.Set(flags.Flag(name))
		}
	}
	return l
}

func (m *SessionManager) userAgent() string {
	if m.cfg.UserAgent != "" {
		return m.cfg.UserAgent
	}
	return "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
}

func (m *SessionManager) applyProfile(page *rod.Page, width, height int) error {
	if _, err := page.EvalOnNewDocument(FingerprintScript()); err != nil {
		return fmt.Errorf("inject fingerprint script: %w", err)
	}
	if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             width,
		Height:            height,
		DeviceScaleFactor: 1.0,
		Mobile:            false,
	}); err != nil {
		return fmt.Errorf("set viewport: %w", err)
	}
	if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{
		UserAgent:      m.userAgent(),
		AcceptLanguage: "en-US,en;q=0.9",
		Platform:       "Win32",
	}); err != nil {
		return fmt.Errorf("set user agent: %w", err)
	}
	if _, err := page.SetExtraHeaders(headerPairs()); err != nil {
		return fmt.Errorf("set headers: %w", err)
	}
	return nil
}

// Close releases the page, the browser, and the launched process. It is a
// no-op when nothing is open and never fails; teardown errors are logged.
func (m *SessionManager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeLocked()
}

func (m *SessionManager) closeLocked() {
	if m.page == nil && m.browser == nil && m.launcher == nil {
		m.session = nil
		return
	}
	id := ""
	if m.session != nil {
		id = m.session.ID
	}
	if m.page != nil {
		if err := m.page.Close(); err != nil {
			m.logger.Debug("Page close failed", zap.String("session", id), zap.Error(err))
		}
		m.page = nil
	}
	if m.browser != nil {
		if err := m.browser.Close(); err != nil {
			m.logger.Warn("Browser close failed", zap.String("session", id), zap.Error(err))
		}
		m.browser = nil
	}
	if m.launcher != nil {
		m.launcher.Kill()
		m.launcher.Cleanup()
		m.launcher = nil
	}
	m.session = nil
	m.logger.Info("Browser session closed", zap.String("session", id))
}
