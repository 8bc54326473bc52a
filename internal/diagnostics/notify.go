package diagnostics

import (
	"time"
)

// Auto-hide durations by severity tier. Critical notifications never
// auto-hide.
const (
	durationHigh   = 10 * time.Second
	durationMedium = 5 * time.Second
	durationLow    = 3 * time.Second
)

// enqueueNotification derives a notification from the error and appends
// it to the queue. Called with writeMu held.
func (m *Manager) enqueueNotification(appErr AppError) {
	n := m.deriveNotification(appErr)

	cur := m.notifications.Get()
	next := make([]Notification, 0, len(cur)+1)
	next = append(next, cur...)
	next = append(next, n)
	m.notifications.Set(next)

	if m.metrics != nil {
		m.metrics.SetActiveNotifications(len(next))
	}

	if n.AutoHide && !m.disableAutoHide {
		m.scheduleAutoHide(n.ID, n.Duration)
	}
}

// deriveNotification applies the severity/code policy.
func (m *Manager) deriveNotification(appErr AppError) Notification {
	n := Notification{
		ID:      "n-" + appErr.ID,
		ErrorID: appErr.ID,
		Error:   appErr,
		Title:   notificationTitle(appErr.Severity),
		Message: humanize(appErr.Code, appErr.Message),
		Actions: []Action{{Kind: ActionDismiss, Label: "Dismiss"}},
	}

	switch appErr.Severity {
	case SeverityCritical:
		n.Type = NotificationModal
	case SeverityHigh:
		n.Type = NotificationBanner
		n.AutoHide = true
		n.Duration = durationHigh
	case SeverityLow:
		n.Type = NotificationSilent
		n.AutoHide = true
		n.Duration = durationLow
	default:
		n.Type = NotificationToast
		n.AutoHide = true
		n.Duration = durationMedium
	}

	if retryable(appErr.Code) && appErr.RetryCount < maxRetryAction {
		n.Actions = append(n.Actions, Action{Kind: ActionRetry, Label: "Retry"})
	}

	return n
}

func retryable(code string) bool {
	return code == CodeNetwork || code == CodeTimeout
}

func notificationTitle(severity Severity) string {
	switch severity {
	case SeverityCritical:
		return "Critical Error"
	case SeverityHigh:
		return "Error"
	case SeverityLow:
		return "Notice"
	default:
		return "Warning"
	}
}

// humanize selects the user-facing message for an error code. Network,
// validation and generic runtime errors carry their own readable
// message already.
func humanize(code, message string) string {
	switch code {
	case CodeTimeout:
		return "The operation timed out. Please try again."
	case CodePanic:
		return "An unexpected internal error occurred."
	default:
		return message
	}
}

// Notifications returns the current queue snapshot, oldest first.
func (m *Manager) Notifications() []Notification {
	return m.notifications.Get()
}

// WatchNotifications subscribes fn to the notification queue.
func (m *Manager) WatchNotifications(fn func([]Notification)) (cancel func()) {
	return m.notifications.Subscribe(fn)
}

// Dismiss removes the notification and resolves its underlying error.
// A no-op for unknown ids.
func (m *Manager) Dismiss(notificationID string) {
	m.cancelAutoHide(notificationID)

	m.writeMu.Lock()
	var errorID string
	cur := m.notifications.Get()
	next := make([]Notification, 0, len(cur))
	for _, n := range cur {
		if n.ID == notificationID {
			errorID = n.ErrorID
			continue
		}
		next = append(next, n)
	}
	if errorID != "" {
		m.notifications.Set(next)
		if m.metrics != nil {
			m.metrics.SetActiveNotifications(len(next))
		}
	}
	m.writeMu.Unlock()

	if errorID != "" {
		m.Resolve(errorID)
	}
}

// removeNotification drops the notification without touching the
// underlying error. This is the auto-hide path.
func (m *Manager) removeNotification(notificationID string) {
	m.cancelAutoHide(notificationID)

	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	cur := m.notifications.Get()
	next := make([]Notification, 0, len(cur))
	removed := false
	for _, n := range cur {
		if n.ID == notificationID {
			removed = true
			continue
		}
		next = append(next, n)
	}
	if removed {
		m.notifications.Set(next)
		if m.metrics != nil {
			m.metrics.SetActiveNotifications(len(next))
		}
	}
}

func (m *Manager) scheduleAutoHide(notificationID string, d time.Duration) {
	m.timersMu.Lock()
	defer m.timersMu.Unlock()
	m.timers[notificationID] = time.AfterFunc(d, func() {
		m.removeNotification(notificationID)
	})
}

func (m *Manager) cancelAutoHide(notificationID string) {
	m.timersMu.Lock()
	defer m.timersMu.Unlock()
	if t, ok := m.timers[notificationID]; ok {
		t.Stop()
		delete(m.timers, notificationID)
	}
}

// Close stops all pending auto-hide timers.
func (m *Manager) Close() {
	m.timersMu.Lock()
	defer m.timersMu.Unlock()
	for id, t := range m.timers {
		t.Stop()
		delete(m.timers, id)
	}
}
