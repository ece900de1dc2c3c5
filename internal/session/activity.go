package session

import (
	"context"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/ksred/claude-session-manager/internal/config"
	"github.com/ksred/claude-session-manager/internal/domain"
	"github.com/ksred/claude-session-manager/internal/metrics"
	"github.com/ksred/claude-session-manager/internal/store"
)

// AppendActivity records one entry in a session's activity feed and
// broadcasts it. The session must already exist.
func (m *Manager) AppendActivity(ctx context.Context, sessionID string, typ domain.ActivityType, detail string) (*domain.ActivityEntry, error) {
	if !typ.Valid() {
		return nil, store.NewValidationError("type", fmt.Sprintf("unknown activity type %q", typ))
	}

	unlock := m.lockSession(sessionID)
	defer unlock()

	entry := &domain.ActivityEntry{
		ID:        ulid.Make().String(),
		SessionID: sessionID,
		Type:      typ,
		Detail:    detail,
		Timestamp: time.Now().UTC(),
	}
	if err := m.store.AppendActivity(ctx, entry); err != nil {
		return nil, err
	}
	metrics.Global().RecordActivity()

	m.publishActivity(entry)
	return entry, nil
}

// ListActivity returns recent activity newest first, scoped to one
// session when sessionID is non-empty. The window is capped by the
// configured activity window regardless of the requested limit.
func (m *Manager) ListActivity(ctx context.Context, sessionID string, limit int) ([]*domain.ActivityEntry, int, error) {
	window := config.Global().ActivityWindow
	if limit <= 0 || limit > window {
		limit = window
	}

	filter := store.Filter{
		Limit:     limit,
		OrderBy:   "timestamp",
		OrderDesc: true,
	}
	if sessionID != "" {
		if _, err := m.store.GetSession(ctx, sessionID); err != nil {
			return nil, 0, err
		}
		filter = filter.WithWhere("session_id", sessionID)
	}

	entries, err := m.store.ListActivity(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	total, err := m.store.CountActivity(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}
