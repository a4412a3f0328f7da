// Package logging builds the zap logger shared by every listingscout component
// and hands out per-category named loggers.
// Category loggers are controlled by debug_mode in the logging config: when it is
// false, category loggers are no-ops and only the root logger writes.
package logging

import (
	"fmt"
	"strings"

	"listingscout/internal/config"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category represents a log category/system
type Category string

const (
	CategoryBoot      Category = "boot"      // Process start, config load
	CategorySession   Category = "session"   // Browser session lifecycle
	CategoryBrowser   Category = "browser"   // Page primitives, snapshots
	CategorySearch    Category = "search"    // Search engine hop
	CategoryChallenge Category = "challenge" // Interstitial state machine
	CategoryListings  Category = "listings"  // Scroll/extract/paginate loop
	CategoryWorkflow  Category = "workflow"  // Orchestrator entry points
	CategoryAPI       Category = "api"       // HTTP façade
)

// AllCategories lists every category in boot order.
var AllCategories = []Category{
	CategoryBoot,
	CategorySession,
	CategoryBrowser,
	CategorySearch,
	CategoryChallenge,
	CategoryListings,
	CategoryWorkflow,
	CategoryAPI,
}

// New builds the root logger from config.
func New(cfg config.LoggingConfig) (*zap.Logger, error) {
	var zcfg zap.Config
	if strings.EqualFold(cfg.Format, "console") || strings.EqualFold(cfg.Format, "text") {
		zcfg = zap.NewDevelopmentConfig()
	} else {
		zcfg = zap.NewProductionConfig()
	}

	level, err := parseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)

	if cfg.File != "" {
		zcfg.OutputPaths = append(zcfg.OutputPaths, cfg.File)
	}

	logger, err := zcfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return logger, nil
}

func parseLevel(raw string) (zapcore.Level, error) {
	if raw == "" {
		return zapcore.InfoLevel, nil
	}
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(strings.ToLower(raw))); err != nil {
		return zapcore.InfoLevel, fmt.Errorf("invalid log level %q: %w", raw, err)
	}
	return level, nil
}

// Registry hands out category loggers derived from one root logger.
type Registry struct {
	root *zap.Logger
	cfg  config.LoggingConfig
}

// NewRegistry wraps a root logger. A nil root yields no-op loggers everywhere.
func NewRegistry(root *zap.Logger, cfg config.LoggingConfig) *Registry {
	if root == nil {
		root = zap.NewNop()
	}
	return &Registry{root: root, cfg: cfg}
}

// Root returns the uncategorized logger.
func (r *Registry) Root() *zap.Logger {
	return r.root
}

// Get returns the named logger for a category, or a no-op logger when the
// category is disabled.
func (r *Registry) Get(category Category) *zap.Logger {
	if !r.cfg.IsCategoryEnabled(string(category)) {
		return zap.NewNop()
	}
	return r.root.Named(string(category))
}

// OrNop returns l, or a no-op logger when l is nil.
func OrNop(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}
