// Package session coordinates the session lifecycle on top of the store.
// Mutations for the same session are serialized through keyed locks, and
// every commit publishes a snapshot to the live-update notifier before
// the lock is released, so subscribers observe commit order.
package session

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/ksred/claude-session-manager/internal/domain"
	"github.com/ksred/claude-session-manager/internal/logging"
	"github.com/ksred/claude-session-manager/internal/metrics"
	"github.com/ksred/claude-session-manager/internal/store"
)

// maxRetries bounds the optimistic retry loop when a mutation races the
// reconciler's out-of-band path corrections.
const maxRetries = 3

// Manager handles session lifecycle, activity, and usage recording.
type Manager struct {
	store    domain.Store
	notifier domain.Notifier
	log      *logging.Logger

	lockMu sync.Mutex
	locks  map[string]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// NewManager creates a Manager over the given store. A nil notifier
// disables broadcasting.
func NewManager(s domain.Store, n domain.Notifier) *Manager {
	if n == nil {
		n = domain.NopNotifier{}
	}
	return &Manager{
		store:    s,
		notifier: n,
		log:      logging.New("session"),
		locks:    map[string]*lockEntry{},
	}
}

// lockSession serializes mutations for one session. The returned func
// releases the lock and prunes the entry once unreferenced.
func (m *Manager) lockSession(id string) func() {
	m.lockMu.Lock()
	entry, ok := m.locks[id]
	if !ok {
		entry = &lockEntry{}
		m.locks[id] = entry
	}
	entry.refs++
	m.lockMu.Unlock()

	entry.mu.Lock()
	return func() {
		entry.mu.Unlock()
		m.lockMu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(m.locks, id)
		}
		m.lockMu.Unlock()
	}
}

// Create starts a new session in working state.
func (m *Manager) Create(ctx context.Context, projectName, projectPath, model string) (*domain.Session, error) {
	if strings.TrimSpace(projectName) == "" {
		return nil, store.NewValidationError("project_name", "must not be empty")
	}
	if strings.TrimSpace(projectPath) == "" {
		return nil, store.NewValidationError("project_path", "must not be empty")
	}

	now := time.Now().UTC()
	sess := &domain.Session{
		ID:          ulid.Make().String(),
		ProjectName: projectName,
		ProjectPath: projectPath,
		Model:       model,
		Status:      domain.StatusWorking,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	unlock := m.lockSession(sess.ID)
	defer unlock()

	if err := m.store.CreateSession(ctx, sess); err != nil {
		return nil, err
	}
	metrics.Global().RecordSessionCreated()

	m.publishSession(sess)
	m.recordActivity(ctx, sess.ID, domain.ActivitySessionCreated, "session created for "+projectName)
	return sess, nil
}

// EnsureSession returns the session with the given ID, creating it in
// working state when first seen. Transcript ingest owns its session IDs,
// so unlike Create the caller supplies the identifier.
func (m *Manager) EnsureSession(ctx context.Context, id, projectName, projectPath, model string) (*domain.Session, bool, error) {
	if strings.TrimSpace(id) == "" {
		return nil, false, store.NewValidationError("session_id", "must not be empty")
	}

	unlock := m.lockSession(id)
	defer unlock()

	sess, err := m.store.GetSession(ctx, id)
	if err == nil {
		return sess, false, nil
	}
	if !store.IsNotFound(err) {
		return nil, false, err
	}

	if strings.TrimSpace(projectName) == "" {
		return nil, false, store.NewValidationError("project_name", "must not be empty")
	}
	if strings.TrimSpace(projectPath) == "" {
		return nil, false, store.NewValidationError("project_path", "must not be empty")
	}

	now := time.Now().UTC()
	sess = &domain.Session{
		ID:          id,
		ProjectName: projectName,
		ProjectPath: projectPath,
		Model:       model,
		Status:      domain.StatusWorking,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := m.store.CreateSession(ctx, sess); err != nil {
		return nil, false, err
	}
	metrics.Global().RecordSessionCreated()

	m.publishSession(sess)
	m.recordActivity(ctx, id, domain.ActivitySessionCreated, "session created for "+projectName)
	return sess, true, nil
}

// Get retrieves a session by ID.
func (m *Manager) Get(ctx context.Context, id string) (*domain.Session, error) {
	return m.store.GetSession(ctx, id)
}

// Update merges the provided fields into the session and bumps
// updated_at. Status changes are validated against the transition rules;
// an empty update returns the current session untouched.
func (m *Manager) Update(ctx context.Context, id string, upd domain.SessionUpdate) (*domain.Session, error) {
	if err := validateUpdate(upd); err != nil {
		return nil, err
	}

	unlock := m.lockSession(id)
	defer unlock()

	var sess *domain.Session
	var prevStatus domain.SessionStatus
	for attempt := 0; ; attempt++ {
		var err error
		sess, err = m.store.GetSession(ctx, id)
		if err != nil {
			return nil, err
		}
		if upd.Empty() {
			return sess, nil
		}

		prevStatus = sess.Status
		if upd.Status != nil && !sess.Status.CanTransition(*upd.Status) {
			return nil, store.NewValidationError("status",
				fmt.Sprintf("cannot transition from %s to %s", sess.Status, *upd.Status))
		}

		applyUpdate(sess, upd)
		sess.UpdatedAt = time.Now().UTC()

		err = m.store.UpdateSession(ctx, sess)
		if err == nil {
			break
		}
		if !store.IsConflict(err) || attempt >= maxRetries-1 {
			return nil, err
		}
	}

	sess.DurationSecs = sess.Duration().Seconds()
	m.publishSession(sess)
	if upd.Status != nil && *upd.Status != prevStatus {
		typ := domain.ActivitySessionUpdated
		if *upd.Status == domain.StatusError {
			typ = domain.ActivityError
		}
		m.recordActivity(ctx, id, typ, fmt.Sprintf("status %s to %s", prevStatus, *upd.Status))
	}
	return sess, nil
}

// Restart explicitly returns an idle or errored session to working.
// This is the only way out of the error state.
func (m *Manager) Restart(ctx context.Context, id string) (*domain.Session, error) {
	unlock := m.lockSession(id)
	defer unlock()

	for attempt := 0; ; attempt++ {
		sess, err := m.store.GetSession(ctx, id)
		if err != nil {
			return nil, err
		}
		if sess.Status == domain.StatusWorking {
			return sess, nil
		}
		if !sess.Status.Restartable() {
			return nil, store.NewValidationError("status",
				fmt.Sprintf("cannot restart a %s session", sess.Status))
		}

		prevStatus := sess.Status
		sess.Status = domain.StatusWorking
		sess.UpdatedAt = time.Now().UTC()

		err = m.store.UpdateSession(ctx, sess)
		if err == nil {
			sess.DurationSecs = sess.Duration().Seconds()
			m.publishSession(sess)
			m.recordActivity(ctx, id, domain.ActivitySessionUpdated,
				fmt.Sprintf("restarted from %s", prevStatus))
			return sess, nil
		}
		if !store.IsConflict(err) || attempt >= maxRetries-1 {
			return nil, err
		}
	}
}

// List returns sessions filtered by status and project, most recently
// updated first, with the unpaginated total.
func (m *Manager) List(ctx context.Context, status, project string, limit, offset int) ([]*domain.Session, int, error) {
	if status != "" && !domain.SessionStatus(status).Valid() {
		return nil, 0, store.NewValidationError("status", fmt.Sprintf("unknown status %q", status))
	}

	filter := store.DefaultFilter().WithOffset(offset)
	if limit > 0 {
		filter = filter.WithLimit(limit)
	}
	if status != "" {
		filter = filter.WithWhere("status", status)
	}
	if project != "" {
		filter = filter.WithWhere("project_name", project)
	}

	sessions, err := m.store.ListSessions(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	total, err := m.store.CountSessions(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	return sessions, total, nil
}

// SetProjectPath corrects a session's project path in place. Reconciler
// use only: it bypasses transition rules and does not bump updated_at,
// since it repairs historical data rather than recording new activity.
func (m *Manager) SetProjectPath(ctx context.Context, id, newPath string) (*domain.Session, error) {
	if strings.TrimSpace(newPath) == "" {
		return nil, store.NewValidationError("project_path", "must not be empty")
	}

	unlock := m.lockSession(id)
	defer unlock()

	sess, err := m.store.SetSessionPath(ctx, id, newPath)
	if err != nil {
		return nil, err
	}

	m.publishSession(sess)
	return sess, nil
}

func validateUpdate(upd domain.SessionUpdate) error {
	if upd.ProjectName != nil && strings.TrimSpace(*upd.ProjectName) == "" {
		return store.NewValidationError("project_name", "must not be empty")
	}
	if upd.ProjectPath != nil && strings.TrimSpace(*upd.ProjectPath) == "" {
		return store.NewValidationError("project_path", "must not be empty")
	}
	if upd.Status != nil && !upd.Status.Valid() {
		return store.NewValidationError("status", fmt.Sprintf("unknown status %q", *upd.Status))
	}
	if upd.FilesChanged != nil && *upd.FilesChanged < 0 {
		return store.NewValidationError("files_changed", "must not be negative")
	}
	return nil
}

func applyUpdate(sess *domain.Session, upd domain.SessionUpdate) {
	if upd.ProjectName != nil {
		sess.ProjectName = *upd.ProjectName
	}
	if upd.ProjectPath != nil {
		sess.ProjectPath = *upd.ProjectPath
	}
	if upd.Model != nil {
		sess.Model = *upd.Model
	}
	if upd.Status != nil {
		sess.Status = *upd.Status
	}
	if upd.GitBranch != nil {
		sess.GitBranch = *upd.GitBranch
	}
	if upd.FilesChanged != nil {
		sess.FilesChanged = *upd.FilesChanged
	}
}

// publishSession broadcasts the session snapshot. Publishing happens
// before the per-session lock is released, so bus order is commit order.
func (m *Manager) publishSession(sess *domain.Session) {
	snapshot := *sess
	m.notifier.Publish(domain.Event{
		Type:      domain.EventSessionUpdated,
		SessionID: sess.ID,
		Data:      snapshot,
	})
}

func (m *Manager) publishActivity(entry *domain.ActivityEntry) {
	snapshot := *entry
	m.notifier.Publish(domain.Event{
		Type:      domain.EventActivityAppended,
		SessionID: entry.SessionID,
		Data:      snapshot,
	})
}

// recordActivity appends an internally generated feed entry. Best effort:
// a failed append is logged, never surfaced to the mutation that caused
// it.
func (m *Manager) recordActivity(ctx context.Context, sessionID string, typ domain.ActivityType, detail string) {
	entry := &domain.ActivityEntry{
		ID:        ulid.Make().String(),
		SessionID: sessionID,
		Type:      typ,
		Detail:    detail,
		Timestamp: time.Now().UTC(),
	}
	if err := m.store.AppendActivity(ctx, entry); err != nil {
		m.log.Warn("activity_append_failed", map[string]interface{}{"session": sessionID}, err)
		return
	}
	metrics.Global().RecordActivity()
	m.publishActivity(entry)
}
