package browser

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"listingscout/internal/logging"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Snapshotter writes screenshots and HTML dumps for failure diagnosis. A
// snapshot failure is logged and never returned: diagnostics must not change
// the outcome of the step that asked for them.
type Snapshotter struct {
	dir    string
	logger *zap.Logger
}

// NewSnapshotter writes into dir. An empty dir disables snapshots.
func NewSnapshotter(dir string, logger *zap.Logger) *Snapshotter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Snapshotter{dir: dir, logger: logger}
}

// Enabled reports whether snapshots are written.
func (s *Snapshotter) Enabled() bool {
	return s != nil && s.dir != ""
}

// Screenshot captures the page as <label>-<uuid>.png and returns the path.
func (s *Snapshotter) Screenshot(ctx context.Context, page Page, label string) string {
	if !s.Enabled() {
		return ""
	}
	data, err := page.Screenshot(ctx)
	if err != nil {
		s.logger.Warn("Screenshot failed", zap.String("label", label), zap.Error(err))
		return ""
	}
	return s.write(label, "png", data)
}

// DumpHTML writes the page markup as <label>-<uuid>.html and returns the path.
func (s *Snapshotter) DumpHTML(ctx context.Context, page Page, label string) string {
	if !s.Enabled() {
		return ""
	}
	html, err := page.HTML(ctx)
	if err != nil {
		s.logger.Warn("HTML dump failed", zap.String("label", label), zap.Error(err))
		return ""
	}
	return s.write(label, "html", []byte(html))
}

func (s *Snapshotter) write(label, ext string, data []byte) string {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		s.logger.Warn("Diagnostics dir unavailable", zap.String("dir", s.dir), zap.Error(err))
		return ""
	}
	path := filepath.Join(s.dir, fmt.Sprintf("%s-%s.%s", label, uuid.NewString(), ext))
	if err := os.WriteFile(path, data, 0644); err != nil {
		s.logger.Warn("Snapshot write failed", zap.String("path", path), zap.Error(err))
		return ""
	}
	logging.Audit(s.logger, logging.AuditSnapshotWritten, zap.String("label", label), zap.String("path", path))
	return path
}
