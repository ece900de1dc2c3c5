package claude

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ksred/claude-session-manager/internal/config"
	"github.com/ksred/claude-session-manager/internal/domain"
	"github.com/ksred/claude-session-manager/internal/session"
	"github.com/ksred/claude-session-manager/internal/storage"
)

func newTestIngester(t *testing.T, root string) (*Ingester, *session.Manager) {
	t.Helper()
	config.SetGlobal(config.DefaultConfig())

	st, err := storage.New(filepath.Join(t.TempDir(), "sessions.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	mgr := session.NewManager(st, nil)
	return NewIngester(mgr, st, root), mgr
}

func TestIngestFileCreatesSession(t *testing.T) {
	root := t.TempDir()
	path := writeTranscript(t, filepath.Join(root, "-Users-dev-api"), "sess-1", userLine, asstLine)

	in, mgr := newTestIngester(t, root)
	ctx := context.Background()
	require.NoError(t, in.ingestFile(ctx, path))

	sess, err := mgr.Get(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, "api", sess.ProjectName)
	assert.Equal(t, "/Users/dev/api", sess.ProjectPath)
	assert.Equal(t, "claude-opus-4", sess.Model)
	assert.Equal(t, "main", sess.GitBranch)
	assert.Equal(t, domain.StatusWorking, sess.Status)
	assert.Equal(t, 100, sess.TokenUsage.Input)
	assert.Equal(t, 25, sess.TokenUsage.Output)
	assert.Equal(t, 10, sess.TokenUsage.CacheCreation)
	assert.Equal(t, 5, sess.TokenUsage.CacheRead)
	assert.Greater(t, sess.TokenUsage.Cost, 0.0)

	// session_created plus one message_sent per transcript message.
	entries, total, err := mgr.ListActivity(ctx, "sess-1", 0)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.NotEmpty(t, entries)
}

func TestIngestFileIncremental(t *testing.T) {
	root := t.TempDir()
	path := writeTranscript(t, filepath.Join(root, "-Users-dev-api"), "sess-1", userLine, asstLine)

	in, mgr := newTestIngester(t, root)
	ctx := context.Background()
	require.NoError(t, in.ingestFile(ctx, path))

	// Re-running with no new content changes nothing.
	require.NoError(t, in.ingestFile(ctx, path))
	sess, err := mgr.Get(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, 100, sess.TokenUsage.Input)

	next := `{"type":"assistant","timestamp":"2026-08-25T10:01:00Z","uuid":"a2","sessionId":"sess-1","cwd":"/Users/dev/api","gitBranch":"main","message":{"role":"assistant","model":"claude-opus-4","content":[],"usage":{"input_tokens":50,"output_tokens":10,"cache_creation_input_tokens":0,"cache_read_input_tokens":0}}}`
	appendTranscript(t, path, next)
	require.NoError(t, in.ingestFile(ctx, path))

	sess, err = mgr.Get(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, 150, sess.TokenUsage.Input)
	assert.Equal(t, 35, sess.TokenUsage.Output)

	_, total, err := mgr.ListActivity(ctx, "sess-1", 0)
	require.NoError(t, err)
	assert.Equal(t, 4, total)
}

func TestIngestRestartDoesNotDoubleCount(t *testing.T) {
	root := t.TempDir()
	path := writeTranscript(t, filepath.Join(root, "-Users-dev-api"), "sess-1", userLine, asstLine)

	config.SetGlobal(config.DefaultConfig())
	st, err := storage.New(filepath.Join(t.TempDir(), "sessions.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	mgr := session.NewManager(st, nil)

	ctx := context.Background()
	first := NewIngester(mgr, st, root)
	require.NoError(t, first.ingestFile(ctx, path))

	// A fresh ingester over the same store resumes from the stored offset.
	second := NewIngester(mgr, st, root)
	require.NoError(t, second.ingestFile(ctx, path))

	sess, err := mgr.Get(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, 100, sess.TokenUsage.Input)
	assert.Equal(t, 25, sess.TokenUsage.Output)
}

func TestIngestDecodedPathFallback(t *testing.T) {
	root := t.TempDir()
	noCwd := `{"type":"user","timestamp":"2026-08-25T10:00:00Z","uuid":"u9","sessionId":"sess-9","message":{"role":"user","content":[]}}`
	path := writeTranscript(t, filepath.Join(root, "-home-dev-web"), "sess-9", noCwd)

	in, mgr := newTestIngester(t, root)
	ctx := context.Background()
	require.NoError(t, in.ingestFile(ctx, path))

	sess, err := mgr.Get(ctx, "sess-9")
	require.NoError(t, err)
	assert.Equal(t, "/home/dev/web", sess.ProjectPath)
	assert.Equal(t, "web", sess.ProjectName)
}

func TestIngestWakesIdleSession(t *testing.T) {
	root := t.TempDir()
	path := writeTranscript(t, filepath.Join(root, "-Users-dev-api"), "sess-1", userLine, asstLine)

	in, mgr := newTestIngester(t, root)
	ctx := context.Background()
	require.NoError(t, in.ingestFile(ctx, path))

	idle := domain.StatusIdle
	_, err := mgr.Update(ctx, "sess-1", domain.SessionUpdate{Status: &idle})
	require.NoError(t, err)

	next := `{"type":"user","timestamp":"2026-08-25T11:00:00Z","uuid":"u2","sessionId":"sess-1","cwd":"/Users/dev/api","gitBranch":"main","message":{"role":"user","content":[]}}`
	appendTranscript(t, path, next)
	require.NoError(t, in.ingestFile(ctx, path))

	sess, err := mgr.Get(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusWorking, sess.Status)
}

func TestIngestLeavesErroredSession(t *testing.T) {
	root := t.TempDir()
	path := writeTranscript(t, filepath.Join(root, "-Users-dev-api"), "sess-1", userLine)

	in, mgr := newTestIngester(t, root)
	ctx := context.Background()
	require.NoError(t, in.ingestFile(ctx, path))

	failed := domain.StatusError
	_, err := mgr.Update(ctx, "sess-1", domain.SessionUpdate{Status: &failed})
	require.NoError(t, err)

	appendTranscript(t, path, asstLine)
	require.NoError(t, in.ingestFile(ctx, path))

	sess, err := mgr.Get(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusError, sess.Status)
	assert.Equal(t, 100, sess.TokenUsage.Input, "usage still accumulates while errored")
}

func TestScanAll(t *testing.T) {
	root := t.TempDir()
	writeTranscript(t, filepath.Join(root, "-Users-dev-api"), "sess-1", userLine, asstLine)
	other := `{"type":"user","timestamp":"2026-08-25T10:00:00Z","uuid":"u5","sessionId":"sess-2","cwd":"/Users/dev/web","message":{"role":"user","content":[]}}`
	writeTranscript(t, filepath.Join(root, "-Users-dev-web"), "sess-2", other)

	in, mgr := newTestIngester(t, root)
	ctx := context.Background()
	in.scanAll(ctx, nil)

	sessions, total, err := mgr.List(ctx, "", "", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Len(t, sessions, 2)
}
