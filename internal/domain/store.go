package domain

import (
	"context"
	"time"

	"github.com/ksred/claude-session-manager/internal/store"
)

// SessionStore defines session persistence. The interface lives in domain
// so higher layers depend on the contract, not the sqlite implementation.
type SessionStore interface {
	CreateSession(ctx context.Context, sess *Session) error
	GetSession(ctx context.Context, id string) (*Session, error)
	ListSessions(ctx context.Context, filter store.Filter) ([]*Session, error)
	CountSessions(ctx context.Context, filter store.Filter) (int, error)
	// UpdateSession writes the full row guarded by the session's version;
	// a stale version yields store.ErrConflict.
	UpdateSession(ctx context.Context, sess *Session) error
	// SetSessionPath corrects project_path in place, outside the normal
	// transition rules. Reconciler use only.
	SetSessionPath(ctx context.Context, id, path string) (*Session, error)
}

// ActivityStore defines activity feed persistence. Entries are append-only.
type ActivityStore interface {
	AppendActivity(ctx context.Context, entry *ActivityEntry) error
	ListActivity(ctx context.Context, filter store.Filter) ([]*ActivityEntry, error)
	CountActivity(ctx context.Context, filter store.Filter) (int, error)
}

// UsageStore defines usage accumulation and timeline reads.
type UsageStore interface {
	// AddUsage atomically folds the delta into the session aggregate and
	// records the usage event, returning the post-image. Concurrent calls
	// for the same session must never lose an update.
	AddUsage(ctx context.Context, sessionID string, delta TokenUsage, messages int, at time.Time) (*Session, error)
	// UsageEvents returns events in [from, to], oldest first. Empty
	// sessionID selects all sessions.
	UsageEvents(ctx context.Context, sessionID string, from, to time.Time) ([]*UsageEvent, error)
}

// OffsetStore persists per-file ingest positions so a restarted daemon
// resumes where it stopped instead of double-counting usage.
type OffsetStore interface {
	Offset(ctx context.Context, file string) (int64, error)
	SetOffset(ctx context.Context, file string, offset int64) error
}

// Store combines session, activity, usage, and ingest-state persistence.
type Store interface {
	store.Store
	SessionStore
	ActivityStore
	UsageStore
	OffsetStore
}
