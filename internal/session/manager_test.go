package session

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ksred/claude-session-manager/internal/config"
	"github.com/ksred/claude-session-manager/internal/domain"
	"github.com/ksred/claude-session-manager/internal/storage"
	"github.com/ksred/claude-session-manager/internal/store"
)

// captureNotifier records published events in order.
type captureNotifier struct {
	mu     sync.Mutex
	events []domain.Event
}

func (c *captureNotifier) Publish(evt domain.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, evt)
}

func (c *captureNotifier) all() []domain.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.Event, len(c.events))
	copy(out, c.events)
	return out
}

func (c *captureNotifier) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

func (c *captureNotifier) last() domain.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.events[len(c.events)-1]
}

func newTestManager(t *testing.T) (*Manager, *storage.Storage, *captureNotifier) {
	t.Helper()
	config.SetGlobal(config.DefaultConfig())
	t.Cleanup(func() { config.SetGlobal(config.DefaultConfig()) })

	st, err := storage.New(filepath.Join(t.TempDir(), "sessions.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	notifier := &captureNotifier{}
	return NewManager(st, notifier), st, notifier
}

func TestCreateSession(t *testing.T) {
	mgr, _, notifier := newTestManager(t)
	ctx := context.Background()

	sess, err := mgr.Create(ctx, "api", "/home/dev/api", "claude-sonnet-4")
	require.NoError(t, err)

	assert.Len(t, sess.ID, 26)
	assert.Equal(t, domain.StatusWorking, sess.Status)
	assert.True(t, sess.TokenUsage.IsZero())
	assert.Equal(t, float64(0), sess.TokenUsage.Cost)
	assert.False(t, sess.CreatedAt.IsZero())
	assert.Equal(t, 1, sess.Version)

	events := notifier.all()
	require.Len(t, events, 2)
	assert.Equal(t, domain.EventSessionUpdated, events[0].Type)
	assert.Equal(t, sess.ID, events[0].SessionID)
	published, ok := events[0].Data.(domain.Session)
	require.True(t, ok)
	assert.Equal(t, domain.StatusWorking, published.Status)
	assert.Equal(t, domain.EventActivityAppended, events[1].Type)
	entry, ok := events[1].Data.(domain.ActivityEntry)
	require.True(t, ok)
	assert.Equal(t, domain.ActivitySessionCreated, entry.Type)
}

func TestCreateSessionValidation(t *testing.T) {
	mgr, _, notifier := newTestManager(t)
	ctx := context.Background()

	_, err := mgr.Create(ctx, "", "/home/dev/api", "")
	assert.True(t, store.IsValidation(err))

	_, err = mgr.Create(ctx, "api", "", "")
	assert.True(t, store.IsValidation(err))

	_, err = mgr.Create(ctx, "   ", "/home/dev/api", "")
	assert.True(t, store.IsValidation(err))

	assert.Equal(t, 0, notifier.count())
}

func TestGetSession(t *testing.T) {
	mgr, _, _ := newTestManager(t)
	ctx := context.Background()

	created, err := mgr.Create(ctx, "api", "/home/dev/api", "claude-sonnet-4")
	require.NoError(t, err)

	got, err := mgr.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, "api", got.ProjectName)

	_, err = mgr.Get(ctx, "missing")
	assert.True(t, store.IsNotFound(err))
}

func TestUpdateSessionMergesFields(t *testing.T) {
	mgr, _, notifier := newTestManager(t)
	ctx := context.Background()

	sess, err := mgr.Create(ctx, "api", "/home/dev/api", "claude-sonnet-4")
	require.NoError(t, err)

	branch := "feature/auth"
	files := 7
	updated, err := mgr.Update(ctx, sess.ID, domain.SessionUpdate{
		GitBranch:    &branch,
		FilesChanged: &files,
	})
	require.NoError(t, err)

	assert.Equal(t, "feature/auth", updated.GitBranch)
	assert.Equal(t, 7, updated.FilesChanged)
	assert.Equal(t, "api", updated.ProjectName)
	assert.Equal(t, domain.StatusWorking, updated.Status)
	assert.False(t, updated.UpdatedAt.Before(sess.UpdatedAt))
	assert.Equal(t, 2, updated.Version)

	last := notifier.last()
	assert.Equal(t, domain.EventSessionUpdated, last.Type)
	published := last.Data.(domain.Session)
	assert.Equal(t, "feature/auth", published.GitBranch)
}

func TestUpdateSessionEmptyIsNoOp(t *testing.T) {
	mgr, _, notifier := newTestManager(t)
	ctx := context.Background()

	sess, err := mgr.Create(ctx, "api", "/home/dev/api", "")
	require.NoError(t, err)
	before := notifier.count()

	got, err := mgr.Update(ctx, sess.ID, domain.SessionUpdate{})
	require.NoError(t, err)

	assert.True(t, got.UpdatedAt.Equal(sess.UpdatedAt))
	assert.Equal(t, sess.Version, got.Version)
	assert.Equal(t, before, notifier.count())
}

func TestUpdateSessionNotFound(t *testing.T) {
	mgr, _, _ := newTestManager(t)

	branch := "main"
	_, err := mgr.Update(context.Background(), "missing", domain.SessionUpdate{GitBranch: &branch})
	assert.True(t, store.IsNotFound(err))
}

func TestUpdateStatusTransitions(t *testing.T) {
	tests := []struct {
		name string
		from domain.SessionStatus
		to   domain.SessionStatus
		ok   bool
	}{
		{"working to idle", domain.StatusWorking, domain.StatusIdle, true},
		{"working to complete", domain.StatusWorking, domain.StatusComplete, true},
		{"working to error", domain.StatusWorking, domain.StatusError, true},
		{"idle to working", domain.StatusIdle, domain.StatusWorking, true},
		{"error to working needs restart", domain.StatusError, domain.StatusWorking, false},
		{"complete is final", domain.StatusComplete, domain.StatusWorking, false},
		{"complete to idle", domain.StatusComplete, domain.StatusIdle, false},
		{"self transition", domain.StatusWorking, domain.StatusWorking, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mgr, _, _ := newTestManager(t)
			ctx := context.Background()

			sess, err := mgr.Create(ctx, "api", "/home/dev/api", "")
			require.NoError(t, err)
			if tt.from != domain.StatusWorking {
				from := tt.from
				_, err = mgr.Update(ctx, sess.ID, domain.SessionUpdate{Status: &from})
				require.NoError(t, err)
			}

			to := tt.to
			updated, err := mgr.Update(ctx, sess.ID, domain.SessionUpdate{Status: &to})
			if tt.ok {
				require.NoError(t, err)
				assert.Equal(t, tt.to, updated.Status)
			} else {
				assert.True(t, store.IsValidation(err))
				current, getErr := mgr.Get(ctx, sess.ID)
				require.NoError(t, getErr)
				assert.Equal(t, tt.from, current.Status)
			}
		})
	}
}

func TestUpdateUnknownStatus(t *testing.T) {
	mgr, _, _ := newTestManager(t)
	ctx := context.Background()

	sess, err := mgr.Create(ctx, "api", "/home/dev/api", "")
	require.NoError(t, err)

	bogus := domain.SessionStatus("sleeping")
	_, err = mgr.Update(ctx, sess.ID, domain.SessionUpdate{Status: &bogus})
	assert.True(t, store.IsValidation(err))
}

func TestStatusChangeRecordsActivity(t *testing.T) {
	mgr, _, _ := newTestManager(t)
	ctx := context.Background()

	sess, err := mgr.Create(ctx, "api", "/home/dev/api", "")
	require.NoError(t, err)

	errStatus := domain.StatusError
	_, err = mgr.Update(ctx, sess.ID, domain.SessionUpdate{Status: &errStatus})
	require.NoError(t, err)

	entries, _, err := mgr.ListActivity(ctx, sess.ID, 0)
	require.NoError(t, err)
	require.NotEmpty(t, entries)
	assert.Equal(t, domain.ActivityError, entries[0].Type)
	assert.Contains(t, entries[0].Detail, "working")
	assert.Contains(t, entries[0].Detail, "error")
}

func TestRestart(t *testing.T) {
	mgr, _, notifier := newTestManager(t)
	ctx := context.Background()

	sess, err := mgr.Create(ctx, "api", "/home/dev/api", "")
	require.NoError(t, err)

	errStatus := domain.StatusError
	_, err = mgr.Update(ctx, sess.ID, domain.SessionUpdate{Status: &errStatus})
	require.NoError(t, err)

	restarted, err := mgr.Restart(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusWorking, restarted.Status)

	last := notifier.last()
	assert.Equal(t, domain.EventActivityAppended, last.Type)
	entry := last.Data.(domain.ActivityEntry)
	assert.Contains(t, entry.Detail, "restarted")
}

func TestRestartWorkingIsNoOp(t *testing.T) {
	mgr, _, notifier := newTestManager(t)
	ctx := context.Background()

	sess, err := mgr.Create(ctx, "api", "/home/dev/api", "")
	require.NoError(t, err)
	before := notifier.count()

	got, err := mgr.Restart(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusWorking, got.Status)
	assert.Equal(t, sess.Version, got.Version)
	assert.Equal(t, before, notifier.count())
}

func TestRestartCompleteRejected(t *testing.T) {
	mgr, _, _ := newTestManager(t)
	ctx := context.Background()

	sess, err := mgr.Create(ctx, "api", "/home/dev/api", "")
	require.NoError(t, err)

	done := domain.StatusComplete
	_, err = mgr.Update(ctx, sess.ID, domain.SessionUpdate{Status: &done})
	require.NoError(t, err)

	_, err = mgr.Restart(ctx, sess.ID)
	assert.True(t, store.IsValidation(err))

	_, err = mgr.Restart(ctx, "missing")
	assert.True(t, store.IsNotFound(err))
}

func TestListSessions(t *testing.T) {
	mgr, _, _ := newTestManager(t)
	ctx := context.Background()

	a, err := mgr.Create(ctx, "api", "/home/dev/api", "")
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)
	b, err := mgr.Create(ctx, "web", "/home/dev/web", "")
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)
	c, err := mgr.Create(ctx, "api", "/home/dev/api", "")
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)
	idle := domain.StatusIdle
	_, err = mgr.Update(ctx, a.ID, domain.SessionUpdate{Status: &idle})
	require.NoError(t, err)

	// a was updated last, so it leads the listing.
	sessions, total, err := mgr.List(ctx, "", "", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, sessions, 3)
	assert.Equal(t, a.ID, sessions[0].ID)
	assert.Equal(t, c.ID, sessions[1].ID)
	assert.Equal(t, b.ID, sessions[2].ID)

	working, total, err := mgr.List(ctx, string(domain.StatusWorking), "", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, working, 2)

	api, total, err := mgr.List(ctx, "", "api", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, api, 2)

	paged, total, err := mgr.List(ctx, "", "", 1, 1)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, paged, 1)
	assert.Equal(t, c.ID, paged[0].ID)
}

func TestListSessionsUnknownStatus(t *testing.T) {
	mgr, _, _ := newTestManager(t)

	_, _, err := mgr.List(context.Background(), "sleeping", "", 0, 0)
	assert.True(t, store.IsValidation(err))
}

func TestSetProjectPath(t *testing.T) {
	mgr, _, notifier := newTestManager(t)
	ctx := context.Background()

	sess, err := mgr.Create(ctx, "api", "/tmp/wrong", "")
	require.NoError(t, err)

	fixed, err := mgr.SetProjectPath(ctx, sess.ID, "/home/dev/api")
	require.NoError(t, err)
	assert.Equal(t, "/home/dev/api", fixed.ProjectPath)
	assert.True(t, fixed.UpdatedAt.Equal(sess.UpdatedAt), "path repair must not bump updated_at")

	last := notifier.last()
	assert.Equal(t, domain.EventSessionUpdated, last.Type)
	published := last.Data.(domain.Session)
	assert.Equal(t, "/home/dev/api", published.ProjectPath)
}

func TestSetProjectPathPreservesListingOrder(t *testing.T) {
	mgr, _, _ := newTestManager(t)
	ctx := context.Background()

	older, err := mgr.Create(ctx, "api", "/tmp/wrong", "")
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)
	newer, err := mgr.Create(ctx, "web", "/home/dev/web", "")
	require.NoError(t, err)

	_, err = mgr.SetProjectPath(ctx, older.ID, "/home/dev/api")
	require.NoError(t, err)

	sessions, _, err := mgr.List(ctx, "", "", 0, 0)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, newer.ID, sessions[0].ID)
	assert.Equal(t, older.ID, sessions[1].ID)
}

func TestSetProjectPathValidation(t *testing.T) {
	mgr, _, _ := newTestManager(t)
	ctx := context.Background()

	_, err := mgr.SetProjectPath(ctx, "whatever", "  ")
	assert.True(t, store.IsValidation(err))

	_, err = mgr.SetProjectPath(ctx, "missing", "/home/dev/api")
	assert.True(t, store.IsNotFound(err))
}

func TestAppendActivity(t *testing.T) {
	mgr, _, notifier := newTestManager(t)
	ctx := context.Background()

	sess, err := mgr.Create(ctx, "api", "/home/dev/api", "")
	require.NoError(t, err)

	entry, err := mgr.AppendActivity(ctx, sess.ID, domain.ActivityMessageSent, "user message")
	require.NoError(t, err)
	assert.NotEmpty(t, entry.ID)
	assert.Equal(t, sess.ID, entry.SessionID)
	assert.False(t, entry.Timestamp.IsZero())

	last := notifier.last()
	assert.Equal(t, domain.EventActivityAppended, last.Type)
	assert.Equal(t, sess.ID, last.SessionID)

	_, err = mgr.AppendActivity(ctx, sess.ID, domain.ActivityType("dance"), "x")
	assert.True(t, store.IsValidation(err))

	_, err = mgr.AppendActivity(ctx, "missing", domain.ActivityMessageSent, "x")
	assert.True(t, store.IsNotFound(err))
}

func TestListActivityWindow(t *testing.T) {
	mgr, _, _ := newTestManager(t)
	ctx := context.Background()

	cfg := config.DefaultConfig()
	cfg.ActivityWindow = 5
	config.SetGlobal(cfg)

	sess, err := mgr.Create(ctx, "api", "/home/dev/api", "")
	require.NoError(t, err)

	// One session_created entry plus seven appends.
	for i := 0; i < 7; i++ {
		time.Sleep(2 * time.Millisecond)
		_, err = mgr.AppendActivity(ctx, sess.ID, domain.ActivityMessageSent, fmt.Sprintf("message %d", i))
		require.NoError(t, err)
	}

	entries, total, err := mgr.ListActivity(ctx, sess.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, 8, total)
	require.Len(t, entries, 5)
	assert.Equal(t, "message 6", entries[0].Detail)

	entries, _, err = mgr.ListActivity(ctx, sess.ID, 3)
	require.NoError(t, err)
	assert.Len(t, entries, 3)

	// Requests above the window are capped to it.
	entries, _, err = mgr.ListActivity(ctx, sess.ID, 50)
	require.NoError(t, err)
	assert.Len(t, entries, 5)
}

func TestListActivityAcrossSessions(t *testing.T) {
	mgr, _, _ := newTestManager(t)
	ctx := context.Background()

	a, err := mgr.Create(ctx, "api", "/home/dev/api", "")
	require.NoError(t, err)
	b, err := mgr.Create(ctx, "web", "/home/dev/web", "")
	require.NoError(t, err)

	time.Sleep(2 * time.Millisecond)
	_, err = mgr.AppendActivity(ctx, a.ID, domain.ActivityMessageSent, "from a")
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	_, err = mgr.AppendActivity(ctx, b.ID, domain.ActivityMessageSent, "from b")
	require.NoError(t, err)

	all, total, err := mgr.ListActivity(ctx, "", 0)
	require.NoError(t, err)
	assert.Equal(t, 4, total)
	require.Len(t, all, 4)
	assert.Equal(t, "from b", all[0].Detail)

	scoped, total, err := mgr.ListActivity(ctx, a.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	for _, entry := range scoped {
		assert.Equal(t, a.ID, entry.SessionID)
	}

	_, _, err = mgr.ListActivity(ctx, "missing", 0)
	assert.True(t, store.IsNotFound(err))
}

func TestEnsureSession(t *testing.T) {
	mgr, _, notifier := newTestManager(t)
	ctx := context.Background()

	sess, created, err := mgr.EnsureSession(ctx, "transcript-abc", "api", "/home/dev/api", "claude-opus-4")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "transcript-abc", sess.ID)
	assert.Equal(t, domain.StatusWorking, sess.Status)
	after := notifier.count()

	again, created, err := mgr.EnsureSession(ctx, "transcript-abc", "renamed", "/somewhere/else", "")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "api", again.ProjectName)
	assert.Equal(t, after, notifier.count())

	_, _, err = mgr.EnsureSession(ctx, "", "api", "/home/dev/api", "")
	assert.True(t, store.IsValidation(err))

	_, _, err = mgr.EnsureSession(ctx, "transcript-def", "", "/home/dev/api", "")
	assert.True(t, store.IsValidation(err))
}

func TestIdleSweep(t *testing.T) {
	mgr, st, _ := newTestManager(t)
	ctx := context.Background()

	stale, err := mgr.Create(ctx, "api", "/home/dev/api", "")
	require.NoError(t, err)
	fresh, err := mgr.Create(ctx, "web", "/home/dev/web", "")
	require.NoError(t, err)

	// Age the first session well past the cutoff.
	aged, err := st.GetSession(ctx, stale.ID)
	require.NoError(t, err)
	aged.UpdatedAt = time.Now().UTC().Add(-10 * time.Minute)
	require.NoError(t, st.UpdateSession(ctx, aged))

	swept, err := mgr.IdleSweep(ctx, 5*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, swept)

	got, err := mgr.Get(ctx, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusIdle, got.Status)

	got, err = mgr.Get(ctx, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusWorking, got.Status)

	// Second pass finds nothing: the swept session is idle now.
	swept, err = mgr.IdleSweep(ctx, 5*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 0, swept)

	swept, err = mgr.IdleSweep(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, swept)
}

func TestIdleSweepCancelled(t *testing.T) {
	mgr, st, _ := newTestManager(t)
	ctx := context.Background()

	sess, err := mgr.Create(ctx, "api", "/home/dev/api", "")
	require.NoError(t, err)
	aged, err := st.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	aged.UpdatedAt = time.Now().UTC().Add(-time.Hour)
	require.NoError(t, st.UpdateSession(ctx, aged))

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = mgr.IdleSweep(cancelled, 5*time.Minute)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEventOrderFollowsCommits(t *testing.T) {
	mgr, _, notifier := newTestManager(t)
	ctx := context.Background()

	sess, err := mgr.Create(ctx, "api", "/home/dev/api", "claude-sonnet-4")
	require.NoError(t, err)

	branch := "main"
	_, err = mgr.Update(ctx, sess.ID, domain.SessionUpdate{GitBranch: &branch})
	require.NoError(t, err)

	_, err = mgr.RecordUsage(ctx, sess.ID, domain.TokenUsage{Input: 10, Output: 5}, 1)
	require.NoError(t, err)

	var types []domain.EventType
	for _, evt := range notifier.all() {
		types = append(types, evt.Type)
	}
	assert.Equal(t, []domain.EventType{
		domain.EventSessionUpdated,   // create
		domain.EventActivityAppended, // session_created entry
		domain.EventSessionUpdated,   // branch update
		domain.EventSessionUpdated,   // usage delta
	}, types)
}

func TestLockSessionSerializes(t *testing.T) {
	mgr, _, _ := newTestManager(t)

	var active, maxActive int
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := mgr.lockSession("same")
			defer unlock()

			mu.Lock()
			active++
			if active > maxActive {
				maxActive = active
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			active--
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxActive)

	mgr.lockMu.Lock()
	assert.Empty(t, mgr.locks, "lock entries must be pruned when released")
	mgr.lockMu.Unlock()
}
