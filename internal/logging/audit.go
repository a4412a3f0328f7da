package logging

import (
	"go.uber.org/zap"
)

// =============================================================================
// AUDIT EVENTS
// =============================================================================

// AuditEventType names a pipeline milestone. Every audit entry carries it in
// the "event" field so tests and log pipelines can filter on it.
type AuditEventType string

const (
	// Session lifecycle
	AuditSessionOpen  AuditEventType = "session_open"
	AuditSessionClose AuditEventType = "session_close"

	// Search hop
	AuditSearchSubmitted AuditEventType = "search_submitted"
	AuditLinksExtracted  AuditEventType = "links_extracted"
	AuditLinksFallback   AuditEventType = "links_fallback"

	// Challenge state machine
	AuditChallengeTransition AuditEventType = "challenge_transition"
	AuditChallengeOutcome    AuditEventType = "challenge_outcome"

	// Listing loop
	AuditPageExtracted    AuditEventType = "page_extracted"
	AuditPaginationStop   AuditEventType = "pagination_stop"
	AuditRecordsDeduped   AuditEventType = "records_deduped"
	AuditSnapshotWritten  AuditEventType = "snapshot_written"
	AuditWorkflowStart    AuditEventType = "workflow_start"
	AuditWorkflowComplete AuditEventType = "workflow_complete"
	AuditWorkflowError    AuditEventType = "workflow_error"
)

// EventKey is the field name audit entries use for their event type.
const EventKey = "event"

// Audit writes one structured audit entry at info level.
func Audit(l *zap.Logger, event AuditEventType, fields ...zap.Field) {
	if l == nil {
		return
	}
	l.Info(string(event), append([]zap.Field{zap.String(EventKey, string(event))}, fields...)...)
}

// AuditWarn writes one structured audit entry at warn level.
func AuditWarn(l *zap.Logger, event AuditEventType, fields ...zap.Field) {
	if l == nil {
		return
	}
	l.Warn(string(event), append([]zap.Field{zap.String(EventKey, string(event))}, fields...)...)
}
