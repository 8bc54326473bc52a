package diagnostics

import "time"

// Stats computes aggregate counts over the current error log.
func (m *Manager) Stats() Stats {
	errs := m.log.Get()
	now := m.clock.Now()
	cutoff := now.Add(-24 * time.Hour)

	s := Stats{
		Total:      len(errs),
		BySource:   make(map[string]int),
		BySeverity: make(map[Severity]int),
	}
	for _, e := range errs {
		s.BySource[e.Source]++
		s.BySeverity[e.Severity]++
		if !e.Resolved {
			s.Unresolved++
			if e.Severity == SeverityCritical {
				s.UnresolvedCritical = append(s.UnresolvedCritical, e)
			}
		}
		if e.Timestamp.After(cutoff) && len(s.Recent) < maxRecentStats {
			s.Recent = append(s.Recent, e)
		}
	}
	return s
}

// ExportErrors produces a diagnostics bundle with session context and
// the most recent errors.
func (m *Manager) ExportErrors() Export {
	errs := m.log.Get()
	n := len(errs)
	if n > maxExportErrors {
		n = maxExportErrors
	}
	out := make([]AppError, n)
	copy(out, errs[:n])

	return Export{
		Timestamp: m.clock.Now().UnixMilli(),
		SessionID: m.sessionID,
		Stats:     m.Stats(),
		Errors:    out,
	}
}
