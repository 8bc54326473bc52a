// Package diagnostics implements the structured error log and the
// rule-driven notification queue. The log is bounded, newest-first, and
// copy-on-write; a trailing slice persists across restarts best-effort.
// The logging path never fails: diagnostics is how every other failure
// becomes visible, so it must not be able to crash its caller.
package diagnostics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/corestate/corestate/internal/platform"
	"github.com/corestate/corestate/internal/store"
	"github.com/corestate/corestate/internal/stream"
)

const (
	// DefaultStorageName is the blob name the error tail persists under.
	DefaultStorageName = "errors-v1"

	// DefaultMaxErrors bounds the in-memory log.
	DefaultMaxErrors = 500

	// DefaultPersistedTail bounds the persisted slice of the log.
	DefaultPersistedTail = 100

	// maxExportErrors bounds the Export dump.
	maxExportErrors = 100

	// maxRecentStats bounds Stats.Recent.
	maxRecentStats = 50

	// maxRetryAction is the retry count at which the Retry action stops
	// being offered on notifications.
	maxRetryAction = 3
)

// Manager is the diagnostics engine. All mutating operations are
// serialized on a single writer lane; reads see the latest published
// snapshot.
type Manager struct {
	// writeMu is the single writer lane for the log and the
	// notification queue.
	writeMu sync.Mutex

	// persistMu serializes best-effort background writes to the store.
	// persistSeq orders snapshots so a slow older write cannot clobber a
	// newer one; it is assigned under writeMu and checked under persistMu.
	persistMu     sync.Mutex
	persistSeq    uint64
	persistedUpTo uint64

	log           *stream.Value[[]AppError]
	notifications *stream.Value[[]Notification]

	// timersMu guards auto-hide timers keyed by notification id.
	timersMu sync.Mutex
	timers   map[string]*time.Timer

	store         store.BlobStore
	storageName   string
	logger        *logrus.Logger
	clock         platform.Clock
	ids           platform.IDSource
	sessionID     string
	maxErrors     int
	persistedTail int
	metrics       Metrics

	// autoHide disabled in tests that assert on queue contents.
	disableAutoHide bool
}

// ManagerOptions configures a Manager. Store is required; everything
// else has a sensible default.
type ManagerOptions struct {
	Store         store.BlobStore
	StorageName   string
	Logger        *logrus.Logger
	Clock         platform.Clock
	IDs           platform.IDSource
	MaxErrors     int
	PersistedTail int
	Metrics       Metrics

	// DisableAutoHide turns off auto-dismiss timers. Intended for tests.
	DisableAutoHide bool
}

// NewManager creates a diagnostics manager with a fresh session id and
// restores the persisted error tail. A missing or unparsable blob is
// treated as no prior state.
func NewManager(opts ManagerOptions) *Manager {
	if opts.Logger == nil {
		opts.Logger = logrus.New()
	}
	if opts.Clock == nil {
		opts.Clock = platform.SystemClock{}
	}
	if opts.IDs == nil {
		opts.IDs = platform.UUIDSource{}
	}
	if opts.StorageName == "" {
		opts.StorageName = DefaultStorageName
	}
	if opts.MaxErrors <= 0 {
		opts.MaxErrors = DefaultMaxErrors
	}
	if opts.PersistedTail <= 0 {
		opts.PersistedTail = DefaultPersistedTail
	}

	m := &Manager{
		notifications:   stream.NewValue([]Notification{}),
		timers:          make(map[string]*time.Timer),
		store:           opts.Store,
		storageName:     opts.StorageName,
		logger:          opts.Logger,
		clock:           opts.Clock,
		ids:             opts.IDs,
		sessionID:       opts.IDs.NewID(),
		maxErrors:       opts.MaxErrors,
		persistedTail:   opts.PersistedTail,
		metrics:         opts.Metrics,
		disableAutoHide: opts.DisableAutoHide,
	}
	m.log = stream.NewValue(m.restore())

	return m
}

// SessionID returns the session identifier stamped on every error logged
// by this manager.
func (m *Manager) SessionID() string { return m.sessionID }

// restore loads the persisted error tail, fail-open.
func (m *Manager) restore() []AppError {
	data, err := m.store.Get(context.Background(), m.storageName)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			m.logger.WithError(err).Warn("Failed to read persisted error log, starting empty")
		}
		return []AppError{}
	}

	var persisted []AppError
	if err := json.Unmarshal(data, &persisted); err != nil {
		m.logger.WithError(err).Warn("Persisted error log is unparsable, starting empty")
		return []AppError{}
	}

	m.logger.WithField("count", len(persisted)).Info("Error log restored from store")
	return persisted
}

// Log appends a structured error to the log and synchronously derives
// its notification. It returns the new error's id and never fails.
func (m *Manager) Log(code, message, source string, severity Severity, details, errCtx map[string]any) string {
	return m.logError(AppError{
		Code:     code,
		Message:  message,
		Source:   source,
		Severity: severity,
		Details:  details,
		Context:  errCtx,
	})
}

// logError stamps identity fields, prepends the record, truncates to the
// retention bound, publishes, derives the notification, and schedules
// best-effort persistence of the tail.
func (m *Manager) logError(appErr AppError) string {
	m.writeMu.Lock()

	now := m.clock.Now()
	appErr.ID = fmt.Sprintf("%d-%s", now.UnixMilli(), shortID(m.ids.NewID()))
	appErr.Timestamp = now
	appErr.SessionID = m.sessionID
	if appErr.Severity == "" {
		appErr.Severity = SeverityMedium
	}

	cur := m.log.Get()
	next := make([]AppError, 0, len(cur)+1)
	next = append(next, appErr)
	next = append(next, cur...)
	if len(next) > m.maxErrors {
		next = next[:m.maxErrors]
	}
	m.log.Set(next)

	m.enqueueNotification(appErr)
	tail := persistSlice(next, m.persistedTail)
	seq := m.nextPersistSeq()
	m.writeMu.Unlock()

	if m.metrics != nil {
		m.metrics.RecordError(string(appErr.Severity), appErr.Source)
	}
	m.logger.WithFields(logrus.Fields{
		"id":       appErr.ID,
		"code":     appErr.Code,
		"source":   appErr.Source,
		"severity": appErr.Severity,
	}).Debug("Error logged")

	go m.persistTail(tail, seq)

	return appErr.ID
}

// LogRuntimeError records a Go error with its stack trace. Severity
// medium.
func (m *Manager) LogRuntimeError(err error, source string, errCtx map[string]any) string {
	if err == nil {
		return ""
	}
	return m.logError(AppError{
		Code:       CodeRuntime,
		Message:    err.Error(),
		Source:     source,
		Severity:   SeverityMedium,
		Context:    errCtx,
		StackTrace: string(debug.Stack()),
	})
}

// LogPanic records a recovered panic value. Severity critical.
func (m *Manager) LogPanic(recovered any, source string, errCtx map[string]any) string {
	return m.logError(AppError{
		Code:       CodePanic,
		Message:    fmt.Sprintf("panic: %v", recovered),
		Source:     source,
		Severity:   SeverityCritical,
		Context:    errCtx,
		StackTrace: string(debug.Stack()),
	})
}

// LogNetworkError records a failed request. Severity high for 5xx
// statuses, medium otherwise.
func (m *Manager) LogNetworkError(url string, status int, statusText, source string, errCtx map[string]any) string {
	severity := SeverityMedium
	if status >= 500 {
		severity = SeverityHigh
	}
	return m.logError(AppError{
		Code:     CodeNetwork,
		Message:  fmt.Sprintf("Request to %s failed: %d %s", url, status, statusText),
		Source:   source,
		Severity: severity,
		Details: map[string]any{
			"url":        url,
			"status":     status,
			"statusText": statusText,
		},
		Context: errCtx,
	})
}

// LogValidationError records a rejected input field. Severity low.
func (m *Manager) LogValidationError(field string, value any, rule, source string, errCtx map[string]any) string {
	return m.logError(AppError{
		Code:     CodeValidation,
		Message:  fmt.Sprintf("Validation failed for %s: %s", field, rule),
		Source:   source,
		Severity: SeverityLow,
		Details: map[string]any{
			"field": field,
			"value": value,
			"rule":  rule,
		},
		Context: errCtx,
	})
}

// Resolve marks the error resolved. Idempotent; a no-op for unknown ids.
func (m *Manager) Resolve(id string) {
	m.writeMu.Lock()

	cur := m.log.Get()
	next := make([]AppError, len(cur))
	copy(next, cur)

	changed := false
	for i := range next {
		if next[i].ID == id && !next[i].Resolved {
			resolvedAt := m.clock.Now()
			next[i].Resolved = true
			next[i].ResolvedAt = &resolvedAt
			changed = true
		}
	}
	if changed {
		m.log.Set(next)
	}
	tail := persistSlice(next, m.persistedTail)
	seq := m.nextPersistSeq()
	m.writeMu.Unlock()

	if changed {
		go m.persistTail(tail, seq)
	}
}

// Retry increments the error's retry count and, when retryFn is given,
// invokes it. A failure inside retryFn is logged as a new runtime error;
// it is never resubmitted to this error's retry path, so the recursion
// is bounded at one level.
func (m *Manager) Retry(id string, retryFn func() error) {
	m.writeMu.Lock()

	cur := m.log.Get()
	next := make([]AppError, len(cur))
	copy(next, cur)

	found := false
	var source string
	for i := range next {
		if next[i].ID == id {
			next[i].RetryCount++
			source = next[i].Source
			found = true
		}
	}
	if found {
		m.log.Set(next)
	}
	tail := persistSlice(next, m.persistedTail)
	seq := m.nextPersistSeq()
	m.writeMu.Unlock()

	if !found {
		return
	}
	go m.persistTail(tail, seq)

	if retryFn == nil {
		return
	}
	if err := retryFn(); err != nil {
		m.LogRuntimeError(err, source, map[string]any{"retryOf": id})
	}
}

// ClearErrors empties the log and persists the empty state.
func (m *Manager) ClearErrors() {
	m.writeMu.Lock()
	m.log.Set([]AppError{})
	seq := m.nextPersistSeq()
	m.writeMu.Unlock()

	go m.persistTail([]AppError{}, seq)
}

// ClearResolved drops resolved entries from the log and persists the
// result.
func (m *Manager) ClearResolved() {
	m.writeMu.Lock()

	cur := m.log.Get()
	next := make([]AppError, 0, len(cur))
	for _, e := range cur {
		if !e.Resolved {
			next = append(next, e)
		}
	}
	m.log.Set(next)
	tail := persistSlice(next, m.persistedTail)
	seq := m.nextPersistSeq()
	m.writeMu.Unlock()

	go m.persistTail(tail, seq)
}

// Errors returns the current log snapshot, newest first.
func (m *Manager) Errors() []AppError {
	return m.log.Get()
}

// WatchErrors subscribes fn to the error log.
func (m *Manager) WatchErrors(fn func([]AppError)) (cancel func()) {
	return m.log.Subscribe(fn)
}

// nextPersistSeq must be called with writeMu held.
func (m *Manager) nextPersistSeq() uint64 {
	m.persistSeq++
	return m.persistSeq
}

// persistTail writes the bounded tail to the store. Failures are
// swallowed: the log is already safely in memory and diagnostics must
// not produce its own failure loop. Snapshots older than the last
// persisted one are dropped.
func (m *Manager) persistTail(tail []AppError, seq uint64) {
	data, err := json.Marshal(tail)
	if err != nil {
		m.logger.WithError(err).Warn("Failed to encode error log tail")
		return
	}

	m.persistMu.Lock()
	defer m.persistMu.Unlock()
	if seq <= m.persistedUpTo {
		return
	}
	m.persistedUpTo = seq
	if err := m.store.Set(context.Background(), m.storageName, data); err != nil {
		m.logger.WithError(err).Warn("Failed to persist error log tail")
	}
}

func persistSlice(log []AppError, bound int) []AppError {
	if len(log) > bound {
		log = log[:bound]
	}
	tail := make([]AppError, len(log))
	copy(tail, log)
	return tail
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
