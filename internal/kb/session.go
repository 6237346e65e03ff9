package kb

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrSessionActive indicates the group already has an open import.
	ErrSessionActive = errors.New("kb: import session already active")

	// ErrNoSession indicates no open import for the group.
	ErrNoSession = errors.New("kb: no active import session")

	// ErrSessionExpired indicates the import deadline passed before the
	// session was finished.
	ErrSessionExpired = errors.New("kb: import session expired")

	// ErrEmptyImport indicates a finished session with no content.
	ErrEmptyImport = errors.New("kb: import session has no content")
)

// importSession accumulates one group's pending import. Guarded by
// Manager.sessionsMu.
type importSession struct {
	groupID   string
	startedAt time.Time
	deadline  time.Time
	parts     []string
}

// StartImport opens an import session for a group and returns its
// deadline. Only one session per group may be open at a time. A stale
// expired session found here is committed before the new one opens.
func (m *Manager) StartImport(ctx context.Context, groupID string) (time.Time, error) {
	if groupID == "" {
		return time.Time{}, fmt.Errorf("kb: group id is required")
	}

	m.sessionsMu.Lock()
	now := time.Now()
	var stale *importSession
	if s, ok := m.sessions[groupID]; ok {
		if now.Before(s.deadline) {
			m.sessionsMu.Unlock()
			return time.Time{}, ErrSessionActive
		}
		delete(m.sessions, groupID)
		stale = s
	}
	deadline := now.Add(m.cfg.ImportTimeout)
	m.sessions[groupID] = &importSession{
		groupID:   groupID,
		startedAt: now,
		deadline:  deadline,
	}
	m.sessionsMu.Unlock()

	if stale != nil {
		m.commitExpired(ctx, stale)
	}
	m.logger.Info("import session opened", "group", groupID, "deadline", deadline)
	return deadline, nil
}

// AppendImport adds one message's text to the group's open session.
// The deadline is checked lazily; text arriving after it is rejected and
// the session's earlier content is committed.
func (m *Manager) AppendImport(ctx context.Context, groupID, text string) error {
	m.sessionsMu.Lock()
	s, ok := m.sessions[groupID]
	if !ok {
		m.sessionsMu.Unlock()
		return ErrNoSession
	}
	if time.Now().After(s.deadline) {
		delete(m.sessions, groupID)
		m.sessionsMu.Unlock()
		m.commitExpired(ctx, s)
		return ErrSessionExpired
	}
	if strings.TrimSpace(text) != "" {
		s.parts = append(s.parts, text)
	}
	m.sessionsMu.Unlock()
	return nil
}

// FinishImport closes the session and ingests its accumulated content into
// the group's override scope. An empty name gets a timestamped default.
// A session whose deadline already passed was committed at the deadline:
// its content is ingested under the default name and ErrSessionExpired is
// returned.
func (m *Manager) FinishImport(ctx context.Context, groupID, name string) (Document, []Chunk, error) {
	m.sessionsMu.Lock()
	s, ok := m.sessions[groupID]
	if ok {
		delete(m.sessions, groupID)
	}
	m.sessionsMu.Unlock()

	if !ok {
		return Document{}, nil, ErrNoSession
	}
	if time.Now().After(s.deadline) {
		m.commitExpired(ctx, s)
		return Document{}, nil, ErrSessionExpired
	}
	if len(s.parts) == 0 {
		return Document{}, nil, ErrEmptyImport
	}

	if name == "" {
		name = defaultImportName(s.startedAt)
	}
	doc, chunks, err := m.Ingest(ctx, GroupScope(groupID), name, strings.Join(s.parts, "\n\n"))
	if err != nil {
		return Document{}, nil, err
	}
	if err := m.recordImport(ctx, groupID, time.Now().UTC()); err != nil {
		m.logger.Warn("failed to record import time", "group", groupID, "error", err)
	}
	return doc, chunks, nil
}

// CancelImport drops the group's open session, if any. A session past its
// deadline is no longer cancelable: its content is committed and false is
// returned.
func (m *Manager) CancelImport(ctx context.Context, groupID string) bool {
	m.sessionsMu.Lock()
	s, ok := m.sessions[groupID]
	if !ok {
		m.sessionsMu.Unlock()
		return false
	}
	delete(m.sessions, groupID)
	expired := time.Now().After(s.deadline)
	m.sessionsMu.Unlock()

	if expired {
		m.commitExpired(ctx, s)
		return false
	}
	m.logger.Info("import session canceled", "group", groupID)
	return true
}

// SweepSessions commits every expired session and reports how many were
// closed. The lazy deadline checks cover active groups; the sweep covers
// groups that went quiet mid-import.
func (m *Manager) SweepSessions(ctx context.Context) int {
	m.sessionsMu.Lock()
	now := time.Now()
	var expired []*importSession
	for id, s := range m.sessions {
		if now.After(s.deadline) {
			delete(m.sessions, id)
			expired = append(expired, s)
		}
	}
	m.sessionsMu.Unlock()

	for _, s := range expired {
		m.commitExpired(ctx, s)
	}
	if len(expired) > 0 {
		m.logger.Info("expired import sessions closed", "count", len(expired))
	}
	return len(expired)
}

// commitExpired ingests an overdue session's pending content into the
// group scope under a default name. The deadline is the commit point:
// content appended before it is kept, later text was already rejected.
func (m *Manager) commitExpired(ctx context.Context, s *importSession) {
	m.logger.Info("import session expired", "group", s.groupID, "parts", len(s.parts))
	if len(s.parts) == 0 {
		return
	}
	_, _, err := m.Ingest(ctx, GroupScope(s.groupID), defaultImportName(s.startedAt), strings.Join(s.parts, "\n\n"))
	if err != nil {
		m.logger.Error("failed to commit expired import session",
			"group", s.groupID, "error", err)
		return
	}
	if err := m.recordImport(ctx, s.groupID, time.Now().UTC()); err != nil {
		m.logger.Warn("failed to record import time", "group", s.groupID, "error", err)
	}
}

func defaultImportName(startedAt time.Time) string {
	return "群导入-" + startedAt.Format("20060102-150405")
}

// RunSessionSweeper sweeps expired sessions at the given interval until
// ctx is canceled.
func (m *Manager) RunSessionSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.SweepSessions(ctx)
		}
	}
}
