package diagnostics

import (
	"time"
)

// Severity tiers an error for both the notification channel and the
// auto-hide duration.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Error codes. The code taxonomy is orthogonal to severity.
const (
	CodeRuntime    = "RUNTIME_ERROR"
	CodeNetwork    = "NETWORK_ERROR"
	CodeValidation = "VALIDATION_ERROR"
	CodeTimeout    = "TIMEOUT_ERROR"
	CodePanic      = "PANIC"
)

// AppError is one structured record of a failure. It is immutable once
// created; resolution and retry bookkeeping replace the stored record
// rather than mutating it.
type AppError struct {
	ID         string         `json:"id"`
	Code       string         `json:"code"`
	Message    string         `json:"message"`
	Details    map[string]any `json:"details,omitempty"`
	Source     string         `json:"source"`
	Severity   Severity       `json:"severity"`
	Timestamp  time.Time      `json:"timestamp"`
	SessionID  string         `json:"sessionId"`
	StackTrace string         `json:"stackTrace,omitempty"`
	Context    map[string]any `json:"context,omitempty"`
	Resolved   bool           `json:"resolved"`
	ResolvedAt *time.Time     `json:"resolvedAt,omitempty"`
	RetryCount int            `json:"retryCount"`
}

// NotificationType is the presentation channel derived from severity.
type NotificationType string

const (
	NotificationModal  NotificationType = "modal"
	NotificationBanner NotificationType = "banner"
	NotificationToast  NotificationType = "toast"
	NotificationSilent NotificationType = "silent"
)

// ActionKind identifies a notification action.
type ActionKind string

const (
	ActionDismiss ActionKind = "dismiss"
	ActionRetry   ActionKind = "retry"
)

// Action is one user-facing choice on a notification.
type Action struct {
	Kind  ActionKind `json:"kind"`
	Label string     `json:"label"`
}

// Notification is the ephemeral, policy-derived presentation instruction
// for an AppError. Notifications are never persisted.
type Notification struct {
	ID       string           `json:"id"`
	ErrorID  string           `json:"errorId"`
	Error    AppError         `json:"error"`
	Type     NotificationType `json:"type"`
	Title    string           `json:"title"`
	Message  string           `json:"message"`
	Actions  []Action         `json:"actions"`
	AutoHide bool             `json:"autoHide"`
	Duration time.Duration    `json:"duration,omitempty"`
}

// Stats is a computed view over the current error log.
type Stats struct {
	Total              int              `json:"total"`
	BySource           map[string]int   `json:"bySource"`
	BySeverity         map[Severity]int `json:"bySeverity"`
	Recent             []AppError       `json:"recent"`
	UnresolvedCritical []AppError       `json:"unresolvedCritical"`
	Unresolved         int              `json:"unresolved"`
}

// Export is the read-only diagnostic dump. There is no corresponding
// import.
type Export struct {
	Timestamp int64      `json:"timestamp"` // Unix milliseconds
	SessionID string     `json:"sessionId"`
	Stats     Stats      `json:"stats"`
	Errors    []AppError `json:"errors"`
}

// Metrics is the optional instrumentation hook the manager reports to.
type Metrics interface {
	RecordError(severity, source string)
	SetActiveNotifications(n int)
}
